// app.go assembles the assistant core: providers, stores, orchestrator,
// automations, life engine, and the message pipeline, wired against a
// transport. Shared by the serve and chat commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/automation"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/config"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/convo"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/jobs"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/life"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/memory"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/orchestrator"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/persona"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/pipeline"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/provider"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/skills"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/toolkit"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/transport"
)

// app holds the wired core and its shutdown hooks.
type app struct {
	pipeline *pipeline.Pipeline
	autos    *automation.Manager
	life     *life.Engine
	memory   *memory.Store
	convo    *convo.Store
	logger   *slog.Logger
}

// appOptions tunes the wiring per command.
type appOptions struct {
	// disableDelays turns off human-like send pacing (console transport).
	disableDelays bool
}

// resolveConfig loads the config from --config or the default location.
func resolveConfig(cmd *cobra.Command) (config.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = filepath.Join(config.HomeDir(), "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the slog logger from config and the --verbose flag.
func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	switch {
	case verbose, cfg.Logging.Level == "debug":
		level = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		level = slog.LevelWarn
	case cfg.Logging.Level == "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// configSelector persists provider/model choices made through chat commands.
type configSelector struct {
	path string
	cfg  *config.Config
}

func (s *configSelector) SaveProvider(role, providerName, model string) error {
	pc := config.ProviderConfig{Provider: providerName, Model: model}
	switch role {
	case "brain":
		s.cfg.Brain = pc
	case "orchestrator":
		s.cfg.Orchestrator = pc
	default:
		return fmt.Errorf("unknown provider role %q", role)
	}
	return config.Save(s.path, *s.cfg)
}

// newProvider builds a model client for a configured role, resolving the
// API key from the credential store.
func newProvider(pc config.ProviderConfig, env *config.EnvStore, logger *slog.Logger) (provider.ModelProvider, error) {
	key := env.Get(strings.ToUpper(pc.Provider) + "_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("no API key for provider %q; run 'omniclaw setup' or the brain/orchestrator chat command", pc.Provider)
	}
	return provider.NewOpenAIClient(pc.Provider, pc.Model, key, logger), nil
}

// buildApp wires the full core against the given transport.
func buildApp(cfg config.Config, cfgPath string, tr transport.Transport, opts appOptions, logger *slog.Logger) (*app, error) {
	home := config.HomeDir()
	env := config.NewEnvStore(filepath.Join(home, ".env"))

	brain, err := newProvider(cfg.Brain, env, logger)
	if err != nil {
		return nil, err
	}
	workerModel, err := newProvider(cfg.Orchestrator, env, logger)
	if err != nil {
		// The worker model is optional; fall back to the brain.
		logger.Warn("worker provider unavailable, using brain model", "error", err)
		workerModel = brain
	}

	convoStore := convo.NewStore(convo.Options{
		Path:         filepath.Join(home, "conversations.json"),
		MaxHistory:   cfg.Conversation.MaxHistory,
		RecentWindow: cfg.Conversation.RecentWindow,
	}, nil, logger)

	skillStore := skills.NewStore(filepath.Join(home, "custom_skills.json"), logger)

	memStore, err := memory.Open(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	personaMgr := persona.NewManager(home, logger)
	characterGen := persona.NewGenerator(brain, personaMgr)

	catalog := toolkit.NewDefault(toolkit.Options{
		Workspace: filepath.Join(home, "workspace"),
		Memory:    memStore,
	}, logger)

	jobMgr := jobs.NewManager(cfg.Agent.MaxConcurrentJobs, nil, logger)

	quiet := clock.ResolveQuietHours(os.Getenv, clock.QuietHoursConfig{
		Start: cfg.Life.QuietHours.Start,
		End:   cfg.Life.QuietHours.End,
	})

	// The automation manager and life engine call back into the pipeline,
	// which does not exist yet; bind through a late-set pointer.
	var pipe *pipeline.Pipeline
	agentFn := func(ctx context.Context, chat, prompt string) error {
		return pipe.RunAgent(ctx, chat, prompt)
	}

	autoMgr := automation.NewManager(automation.Options{
		Path:               filepath.Join(home, "automations.json"),
		Quiet:              quiet,
		Agent:              agentFn,
		MaxPerChat:         cfg.Automations.MaxPerChat,
		MinIntervalMinutes: cfg.Automations.MinIntervalMinutes,
	}, logger)

	orch := orchestrator.New(orchestrator.Options{
		Provider:       brain,
		WorkerProvider: workerModel,
		Tools:          catalog,
		Convo:          convoStore,
		Jobs:           jobMgr,
		Automations:    autoMgr,
		Persona:        personaMgr,
		MaxToolDepth:   cfg.Agent.MaxToolDepth,
		SystemPrompt:   personaMgr.SystemPrompt(""),
		SkillPrompt:    skillStore.Prompt,
	}, logger)

	var lifeEngine *life.Engine
	if cfg.Life.Enabled {
		lifeEngine = life.NewEngine(life.Options{
			Agent:        agentFn,
			IdleInterval: time.Duration(cfg.Life.IdleMinutes) * time.Minute,
			Jitter:       time.Duration(cfg.Life.JitterMinutes) * time.Minute,
			Quiet:        quiet,
		}, logger)
	}

	popts := pipeline.Options{
		Transport:     tr,
		Agent:         orch.ProcessMessage,
		Convo:         convoStore,
		Jobs:          jobMgr,
		Autos:         autoMgr,
		Skills:        skillStore,
		Owner:         env,
		Providers:     &configSelector{path: cfgPath, cfg: &cfg},
		Memory:        memStore,
		Journal:       memStore,
		Character:     characterGen,
		BatchWindow:   time.Duration(cfg.Pipeline.BatchWindowSeconds) * time.Second,
		Allowlist:     cfg.Pipeline.Allowlist,
		AdminChat:     cfg.Pipeline.AdminChat,
		DisableDelays: opts.disableDelays,
	}
	// Assign only when the engine exists to keep the interface field nil.
	if lifeEngine != nil {
		popts.Life = lifeEngine
	}
	pipe = pipeline.New(popts, logger)
	orch.SetNotifier(pipe.Notify)

	if err := autoMgr.Load(); err != nil {
		logger.Warn("loading automations", "error", err)
	}
	if lifeEngine != nil {
		lifeEngine.Start()
	}

	return &app{
		pipeline: pipe,
		autos:    autoMgr,
		life:     lifeEngine,
		memory:   memStore,
		convo:    convoStore,
		logger:   logger,
	}, nil
}

// shutdown flushes state and stops timers.
func (a *app) shutdown() {
	if a.life != nil {
		a.life.Stop()
	}
	a.autos.Close()
	a.convo.Save()
	if err := a.memory.Close(); err != nil {
		a.logger.Warn("closing memory store", "error", err)
	}
}
