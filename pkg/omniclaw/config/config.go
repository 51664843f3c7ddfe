// Package config defines the typed configuration for the assistant core,
// the .env-backed credential store, and keyring-based secret storage.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all core configuration.
type Config struct {
	// Name is the assistant name shown in responses.
	Name string `yaml:"name"`

	// Timezone is the user's timezone (e.g. "America/Sao_Paulo").
	Timezone string `yaml:"timezone"`

	// Brain configures the orchestrator-facing conversational model.
	Brain ProviderConfig `yaml:"brain"`

	// Orchestrator configures the dispatch/worker model.
	Orchestrator ProviderConfig `yaml:"orchestrator"`

	// Agent configures the orchestrator and worker loops.
	Agent AgentConfig `yaml:"agent"`

	// Conversation configures history retention and summarization.
	Conversation ConversationConfig `yaml:"conversation"`

	// Pipeline configures inbound message handling.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Automations configures scheduled prompts.
	Automations AutomationsConfig `yaml:"automations"`

	// Life configures the autonomous activity engine.
	Life LifeConfig `yaml:"life"`

	// Memory configures the sqlite memory/journal store.
	Memory MemoryConfig `yaml:"memory"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ProviderConfig selects a model provider and model.
type ProviderConfig struct {
	// Provider is the provider kind (e.g. "anthropic", "openai").
	Provider string `yaml:"provider"`

	// Model is the model name.
	Model string `yaml:"model"`
}

// AgentConfig bounds the agent loops.
type AgentConfig struct {
	// MaxToolDepth is the max tool round-trips per orchestrator or
	// worker run.
	MaxToolDepth int `yaml:"max_tool_depth"`

	// MaxConcurrentJobs caps simultaneously running worker jobs.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
}

// ConversationConfig bounds per-chat history.
type ConversationConfig struct {
	// MaxHistory is the max messages retained per chat.
	MaxHistory int `yaml:"max_history"`

	// RecentWindow is how many recent messages escape summarization.
	RecentWindow int `yaml:"recent_window"`
}

// PipelineConfig configures inbound message handling.
type PipelineConfig struct {
	// BatchWindowSeconds is the sliding coalescing window for rapid
	// consecutive messages.
	BatchWindowSeconds int `yaml:"batch_window_seconds"`

	// AdminChat optionally receives unauthorized-access notices.
	AdminChat string `yaml:"admin_chat"`

	// Allowlist is additional user ids permitted beyond the owner.
	Allowlist []string `yaml:"allowlist"`
}

// AutomationsConfig bounds scheduled prompts.
type AutomationsConfig struct {
	MaxPerChat         int `yaml:"max_per_chat"`
	MinIntervalMinutes int `yaml:"min_interval_minutes"`
}

// LifeConfig configures the autonomous activity engine.
type LifeConfig struct {
	// Enabled turns the life engine on.
	Enabled bool `yaml:"enabled"`

	// IdleMinutes is the base interval between activities.
	IdleMinutes int `yaml:"idle_minutes"`

	// JitterMinutes is added uniformly at random to each interval.
	JitterMinutes int `yaml:"jitter_minutes"`

	// QuietHours is the do-not-disturb window in integer hours.
	QuietHours QuietHoursConfig `yaml:"quiet_hours"`
}

// QuietHoursConfig is the configured quiet window in integer hours.
type QuietHoursConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// MemoryConfig configures the sqlite store.
type MemoryConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the defaults applied before loading.
func DefaultConfig() Config {
	return Config{
		Name:     "omniclaw",
		Timezone: "Local",
		Brain:    ProviderConfig{Provider: "anthropic", Model: "claude-sonnet-4-5"},
		Orchestrator: ProviderConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
		},
		Agent: AgentConfig{
			MaxToolDepth:      10,
			MaxConcurrentJobs: 3,
		},
		Conversation: ConversationConfig{
			MaxHistory:   100,
			RecentWindow: 20,
		},
		Pipeline: PipelineConfig{
			BatchWindowSeconds: 3,
		},
		Automations: AutomationsConfig{
			MaxPerChat:         10,
			MinIntervalMinutes: 5,
		},
		Life: LifeConfig{
			Enabled:       false,
			IdleMinutes:   90,
			JitterMinutes: 30,
			QuietHours:    QuietHoursConfig{Start: 2, End: 6},
		},
		Memory: MemoryConfig{
			Path: filepath.Join(HomeDir(), "memory.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// HomeDir returns the assistant's state directory (~/.omniclaw).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".omniclaw"
	}
	return filepath.Join(home, ".omniclaw")
}

// Load reads a yaml config over the defaults. A missing file returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as yaml.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
