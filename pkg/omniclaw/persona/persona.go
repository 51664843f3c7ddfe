// Package persona manages the assistant's persona: the base character
// profile, the accumulated notes about the owner, and generation of new
// character profiles from interview answers.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/provider"
)

// Manager owns the persona files. Profile is the character definition;
// user notes accumulate one observation per line.
type Manager struct {
	profilePath string
	notesPath   string
	logger      *slog.Logger

	mu      sync.Mutex
	profile string
	notes   string
}

// NewManager loads any persisted persona from dir.
func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		profilePath: filepath.Join(dir, "character.md"),
		notesPath:   filepath.Join(dir, "user_notes.md"),
		logger:      logger.With("component", "persona"),
	}
	if data, err := os.ReadFile(m.profilePath); err == nil {
		m.profile = strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(m.notesPath); err == nil {
		m.notes = strings.TrimSpace(string(data))
	}
	return m
}

// UpdatePersona appends a dated observation about the owner.
func (m *Manager) UpdatePersona(_ context.Context, notes string) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return fmt.Errorf("persona notes are empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	line := fmt.Sprintf("- [%s] %s", time.Now().Format("2006-01-02"), notes)
	if m.notes == "" {
		m.notes = line
	} else {
		m.notes += "\n" + line
	}
	return m.writeLocked(m.notesPath, m.notes)
}

// SetProfile replaces the character profile.
func (m *Manager) SetProfile(profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = strings.TrimSpace(profile)
	return m.writeLocked(m.profilePath, m.profile)
}

// SystemPrompt composes the profile and owner notes into a system prompt,
// falling back to base when no profile is set.
func (m *Manager) SystemPrompt(base string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prompt := base
	if m.profile != "" {
		prompt = m.profile
	}
	if m.notes != "" {
		prompt += "\n\nWhat you know about the owner:\n" + m.notes
	}
	return prompt
}

func (m *Manager) writeLocked(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create persona dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Generator produces a character profile from interview answers using the
// brain model, and installs it on the Manager.
type Generator struct {
	provider provider.ModelProvider
	manager  *Manager
}

// NewGenerator creates a character generator writing into manager.
func NewGenerator(p provider.ModelProvider, manager *Manager) *Generator {
	return &Generator{provider: p, manager: manager}
}

const generatorSystem = `You design assistant personas. From the interview answers, write a complete character profile in second person ("You are ..."): name, personality, speaking style, interests, and how the character handles tasks. Return only the profile text.`

// Generate builds the profile, saves it as the active persona, and returns it.
func (g *Generator) Generate(ctx context.Context, answers []string) (string, error) {
	var b strings.Builder
	b.WriteString("Interview answers:\n")
	for i, a := range answers {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}

	resp, err := g.provider.Chat(ctx, provider.Request{
		System:   generatorSystem,
		Messages: []provider.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return "", fmt.Errorf("generate character: %w", err)
	}
	profile := strings.TrimSpace(resp.Text)
	if profile == "" {
		return "", fmt.Errorf("model returned an empty profile")
	}
	if err := g.manager.SetProfile(profile); err != nil {
		return "", err
	}
	return profile, nil
}
