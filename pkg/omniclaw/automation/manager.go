// Package automation implements scheduled recurring prompts: CRUD over
// automation records, a one-shot timer per armed automation, quiet-hours
// deferral, and per-chat serialized execution through the agent loop.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/schedule"
)

const (
	// DefaultMaxPerChat caps automations per chat.
	DefaultMaxPerChat = 10

	// DefaultMinIntervalMinutes is the floor for interval and random schedules.
	DefaultMinIntervalMinutes = 5

	// quietRearmSlack is added past the quiet-hours end when deferring.
	quietRearmSlack = 60 * time.Second
)

// Automation is one scheduled recurring prompt.
type Automation struct {
	ID                string        `json:"id"`
	ChatID            string        `json:"chat_id"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	Schedule          schedule.Spec `json:"schedule"`
	Enabled           bool          `json:"enabled"`
	RespectQuietHours bool          `json:"respect_quiet_hours"`
	LastRun           *time.Time    `json:"last_run,omitempty"`
	NextRun           *time.Time    `json:"next_run,omitempty"`
	RunCount          int           `json:"run_count"`
	LastError         string        `json:"last_error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// AgentFunc executes one synthetic prompt in a chat. The automation manager
// calls it serialized per chat.
type AgentFunc func(ctx context.Context, chat, prompt string) error

// Update carries partial changes; nil fields are left untouched.
type Update struct {
	Name              *string
	Description       *string
	Schedule          *schedule.Spec
	Enabled           *bool
	RespectQuietHours *bool
}

// Options configures a Manager.
type Options struct {
	// Path is the automations.json location. Empty disables persistence.
	Path string

	Clock clock.Clock
	Quiet clock.QuietHours
	Agent AgentFunc

	MaxPerChat         int
	MinIntervalMinutes int
}

// Manager owns all automation records and their timer wheel.
type Manager struct {
	path       string
	clk        clock.Clock
	quiet      clock.QuietHours
	agent      AgentFunc
	maxPerChat int
	minMinutes int
	timers     *schedule.Timers
	logger     *slog.Logger

	mu    sync.Mutex
	autos map[string]*Automation
	order []string

	chainMu    sync.Mutex
	chains     map[string]chan struct{}
	chainDepth map[string]int
}

// NewManager creates an automation manager. Call Load to restore and re-arm
// persisted automations.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	maxPerChat := opts.MaxPerChat
	if maxPerChat <= 0 {
		maxPerChat = DefaultMaxPerChat
	}
	minMinutes := opts.MinIntervalMinutes
	if minMinutes <= 0 {
		minMinutes = DefaultMinIntervalMinutes
	}
	return &Manager{
		path:       opts.Path,
		clk:        clk,
		quiet:      opts.Quiet,
		agent:      opts.Agent,
		maxPerChat: maxPerChat,
		minMinutes: minMinutes,
		timers:     schedule.NewTimers(clk),
		logger:     logger.With("component", "automation"),
		autos:      make(map[string]*Automation),
		chains:     make(map[string]chan struct{}),
		chainDepth: make(map[string]int),
	}
}

// Create validates, registers, persists, and (when enabled) arms a new
// automation.
func (m *Manager) Create(chat, name, description string, spec schedule.Spec, enabled, respectQuiet bool) (Automation, error) {
	if name == "" {
		return Automation{}, fmt.Errorf("automation name is required")
	}
	if err := spec.Validate(m.minMinutes); err != nil {
		return Automation{}, err
	}

	m.mu.Lock()
	count := 0
	for _, id := range m.order {
		if a := m.autos[id]; a != nil && a.ChatID == chat {
			count++
		}
	}
	if count >= m.maxPerChat {
		m.mu.Unlock()
		return Automation{}, fmt.Errorf("chat already has %d automations (max %d)", count, m.maxPerChat)
	}

	a := &Automation{
		ID:                uuid.NewString()[:8],
		ChatID:            chat,
		Name:              name,
		Description:       description,
		Schedule:          spec,
		Enabled:           enabled,
		RespectQuietHours: respectQuiet,
		CreatedAt:         m.clk.Now(),
	}
	m.autos[a.ID] = a
	m.order = append(m.order, a.ID)
	if a.Enabled {
		m.armLocked(a)
	}
	snap := *a
	m.mu.Unlock()

	m.save()
	m.logger.Info("automation created",
		"id", snap.ID,
		"chat", chat,
		"name", name,
		"schedule", spec.Describe(),
	)
	return snap, nil
}

// Update applies partial changes. A schedule or enablement change re-arms.
func (m *Manager) Update(id string, upd Update) (Automation, error) {
	m.mu.Lock()
	a, ok := m.autos[id]
	if !ok {
		m.mu.Unlock()
		return Automation{}, fmt.Errorf("automation %s not found", id)
	}

	if upd.Schedule != nil {
		if err := upd.Schedule.Validate(m.minMinutes); err != nil {
			m.mu.Unlock()
			return Automation{}, err
		}
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	rearm := false
	if upd.Schedule != nil {
		a.Schedule = *upd.Schedule
		rearm = true
	}
	if upd.Enabled != nil {
		a.Enabled = *upd.Enabled
		rearm = true
	}
	if upd.RespectQuietHours != nil {
		a.RespectQuietHours = *upd.RespectQuietHours
	}

	if rearm {
		if a.Enabled {
			m.armLocked(a)
		} else {
			m.timers.Cancel(a.ID)
			a.NextRun = nil
		}
	}
	snap := *a
	m.mu.Unlock()

	m.save()
	return snap, nil
}

// Delete disarms and removes an automation.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	if _, ok := m.autos[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("automation %s not found", id)
	}
	delete(m.autos, id)
	kept := m.order[:0]
	for _, existing := range m.order {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	m.order = kept
	m.timers.Cancel(id)
	m.mu.Unlock()

	m.save()
	m.logger.Info("automation deleted", "id", id)
	return nil
}

// Get returns a snapshot of one automation.
func (m *Manager) Get(id string) (Automation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.autos[id]
	if !ok {
		return Automation{}, false
	}
	return *a, true
}

// List returns snapshots for a chat in creation order. Empty chat lists all.
func (m *Manager) List(chat string) []Automation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Automation
	for _, id := range m.order {
		if a := m.autos[id]; a != nil && (chat == "" || a.ChatID == chat) {
			out = append(out, *a)
		}
	}
	return out
}

// SetAllEnabled pauses or resumes every automation in a chat.
func (m *Manager) SetAllEnabled(chat string, enabled bool) int {
	m.mu.Lock()
	n := 0
	for _, id := range m.order {
		a := m.autos[id]
		if a == nil || a.ChatID != chat || a.Enabled == enabled {
			continue
		}
		a.Enabled = enabled
		if enabled {
			m.armLocked(a)
		} else {
			m.timers.Cancel(a.ID)
			a.NextRun = nil
		}
		n++
	}
	m.mu.Unlock()

	if n > 0 {
		m.save()
	}
	return n
}

// RunNow fires an automation immediately, bypassing its timer and quiet
// hours. The regular timer stays armed.
func (m *Manager) RunNow(id string) error {
	m.mu.Lock()
	a, ok := m.autos[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("automation %s not found", id)
	}
	snap := *a
	m.mu.Unlock()

	m.execute(snap)
	return nil
}

// Load reads automations.json and re-arms every enabled automation.
func (m *Manager) Load() error {
	if m.path == "" {
		return nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read automations: %w", err)
	}
	var list []*Automation
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse automations: %w", err)
	}

	m.mu.Lock()
	for _, a := range list {
		if a == nil || a.ID == "" {
			continue
		}
		m.autos[a.ID] = a
		m.order = append(m.order, a.ID)
		if a.Enabled {
			m.armLocked(a)
		} else {
			a.NextRun = nil
		}
	}
	n := len(m.order)
	m.mu.Unlock()

	m.logger.Info("automations loaded", "count", n)
	return nil
}

// Close cancels every pending timer.
func (m *Manager) Close() {
	m.timers.CancelAll()
}

// armLocked computes the next fire and schedules the one-shot timer.
// Re-arming cancels the previous timer for the same automation.
func (m *Manager) armLocked(a *Automation) {
	now := m.clk.Now()
	next := a.Schedule.Next(now, a.LastRun)
	a.NextRun = &next
	id := a.ID
	m.timers.Arm(id, next.Sub(now), func() {
		m.fire(id)
	})
}

// fire is the timer callback. It re-checks liveness, defers through quiet
// hours, re-arms for the following occurrence, and queues the execution on
// the chat's serial chain.
func (m *Manager) fire(id string) {
	m.mu.Lock()
	a, ok := m.autos[id]
	if !ok || !a.Enabled {
		// Disabled or deleted between scheduling and firing.
		m.mu.Unlock()
		return
	}

	now := m.clk.Now()
	if a.RespectQuietHours && m.quiet.Contains(now) {
		delay := m.quiet.UntilEnd(now) + quietRearmSlack
		next := now.Add(delay)
		a.NextRun = &next
		m.timers.Arm(id, delay, func() { m.fire(id) })
		m.mu.Unlock()
		m.logger.Info("automation deferred for quiet hours", "id", id, "until", next)
		return
	}

	a.LastRun = &now
	a.RunCount++
	m.armLocked(a)
	snap := *a
	m.mu.Unlock()

	m.save()
	m.execute(snap)
}

// execute runs the automation prompt through the agent, serialized per chat.
func (m *Manager) execute(a Automation) {
	if m.agent == nil {
		return
	}
	prompt := fmt.Sprintf("[AUTOMATION: %s] %s", a.Name, a.Description)
	m.runSerialized(a.ChatID, func() {
		err := m.agent(context.Background(), a.ChatID, prompt)

		m.mu.Lock()
		if live, ok := m.autos[a.ID]; ok {
			if err != nil {
				live.LastError = err.Error()
			} else {
				live.LastError = ""
			}
		}
		m.mu.Unlock()
		m.save()

		if err != nil {
			m.logger.Warn("automation run failed", "id", a.ID, "name", a.Name, "error", err)
		} else {
			m.logger.Info("automation ran", "id", a.ID, "name", a.Name)
		}
	})
}

// runSerialized chains fn behind any in-flight run for the same chat.
// The chain entry is removed once the chat goes idle.
func (m *Manager) runSerialized(chat string, fn func()) {
	m.chainMu.Lock()
	prev := m.chains[chat]
	done := make(chan struct{})
	m.chains[chat] = done
	m.chainDepth[chat]++
	m.chainMu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		fn()
		close(done)

		m.chainMu.Lock()
		m.chainDepth[chat]--
		if m.chainDepth[chat] == 0 {
			delete(m.chains, chat)
			delete(m.chainDepth, chat)
		}
		m.chainMu.Unlock()
	}()
}

// save persists the full collection. Best effort: failures are logged,
// never propagated to callers.
func (m *Manager) save() {
	if m.path == "" {
		return
	}
	m.mu.Lock()
	list := make([]Automation, 0, len(m.order))
	for _, id := range m.order {
		if a := m.autos[id]; a != nil {
			list = append(list, *a)
		}
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		m.logger.Error("marshal automations", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		m.logger.Error("create automations dir", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		m.logger.Error("write automations", "error", err)
	}
}
