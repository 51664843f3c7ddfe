// Package skills manages custom skills: named system-prompt fragments the
// user can create at runtime and activate per chat. Built-in skills come
// from elsewhere; this store only owns the custom ones and their
// custom_skills.json persistence.
package skills

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Skill is one custom skill record.
type Skill struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns the custom skill collection. Persistence is best effort:
// write failures are logged, never propagated.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	skills map[string]Skill
}

// NewStore creates a skill store backed by the given file. Empty path
// disables persistence.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger.With("component", "skills"),
		skills: make(map[string]Skill),
	}
	s.load()
	return s
}

// Create registers a new custom skill. Names are unique case-insensitively.
func (s *Store) Create(name, prompt string) (Skill, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Skill{}, fmt.Errorf("skill name is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return Skill{}, fmt.Errorf("skill prompt is required")
	}

	id := slug(name)
	s.mu.Lock()
	if _, exists := s.skills[id]; exists {
		s.mu.Unlock()
		return Skill{}, fmt.Errorf("skill %q already exists", name)
	}
	skill := Skill{ID: id, Name: name, Prompt: prompt, CreatedAt: time.Now()}
	s.skills[id] = skill
	s.mu.Unlock()

	s.save()
	s.logger.Info("custom skill created", "id", id)
	return skill, nil
}

// Get returns a skill by id.
func (s *Store) Get(id string) (Skill, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skill, ok := s.skills[id]
	return skill, ok
}

// Prompt returns the prompt fragment for a skill id, or "".
func (s *Store) Prompt(id string) string {
	skill, ok := s.Get(id)
	if !ok {
		return ""
	}
	return skill.Prompt
}

// List returns all custom skills sorted by name.
func (s *Store) List() []Skill {
	s.mu.Lock()
	out := make([]Skill, 0, len(s.skills))
	for _, skill := range s.skills {
		out = append(out, skill)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes a skill by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.skills[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("skill %q not found", id)
	}
	delete(s.skills, id)
	s.mu.Unlock()

	s.save()
	return nil
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read custom skills", "error", err)
		}
		return
	}
	var list []Skill
	if err := json.Unmarshal(data, &list); err != nil {
		s.logger.Warn("parse custom skills", "error", err)
		return
	}
	s.mu.Lock()
	for _, skill := range list {
		if skill.ID != "" {
			s.skills[skill.ID] = skill
		}
	}
	s.mu.Unlock()
}

func (s *Store) save() {
	if s.path == "" {
		return
	}
	list := s.List()
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		s.logger.Error("marshal custom skills", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Error("create skills dir", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("write custom skills", "error", err)
	}
}

func slug(name string) string {
	out := strings.ToLower(strings.TrimSpace(name))
	out = strings.ReplaceAll(out, " ", "_")
	return out
}
