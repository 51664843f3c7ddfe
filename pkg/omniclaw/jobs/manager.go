// Package jobs implements the worker job manager: job lifecycle, one-shot
// cancel tokens, the concurrency cap, and the lifecycle event bus.
//
// The manager exclusively owns jobs. Reads return snapshots; all mutation
// goes through the manager under a single lock, and lifecycle events are
// the only channel by which other components observe changes. Events are
// emitted after the manager lock is released so subscribers can call back
// into the manager without re-entrancy, while a separate ordered emit queue
// preserves the recorded order.
package jobs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
)

// Status is a job lifecycle state. Terminal statuses are immutable.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// EventKind names a lifecycle event.
type EventKind string

const (
	EventStarted   EventKind = "job:started"
	EventCompleted EventKind = "job:completed"
	EventFailed    EventKind = "job:failed"
	EventCancelled EventKind = "job:cancelled"
)

// Event carries a full job snapshot at the moment of the transition.
type Event struct {
	Kind EventKind
	Job  Job
}

// Job is a single worker execution unit. Snapshots returned by the manager
// share only the cancel token with the live record.
type Job struct {
	ID               string         `json:"id"`
	ChatID           string         `json:"chat_id"`
	WorkerType       string         `json:"worker_type"`
	Task             string         `json:"task"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        time.Time      `json:"started_at,omitempty"`
	CompletedAt      time.Time      `json:"completed_at,omitempty"`
	DurationS        float64        `json:"duration_s,omitempty"`
	Result           string         `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	DependsOn        []string       `json:"depends_on,omitempty"`
	Progress         []string       `json:"progress,omitempty"`
	LLMCalls         int            `json:"llm_calls"`
	ToolCalls        int            `json:"tool_calls"`
	LastThinking     string         `json:"last_thinking,omitempty"`
	StatusMessageID  string         `json:"status_message_id,omitempty"`
	StructuredResult map[string]any `json:"structured_result,omitempty"`

	// CancelToken closes exactly once when the job is cancelled or timed out.
	// Shared between the manager and the worker runtime.
	CancelToken <-chan struct{} `json:"-"`
}

// terminalSoftCap bounds retained terminal jobs; oldest are evicted FIFO.
const terminalSoftCap = 200

type record struct {
	job      Job
	cancelCh chan struct{}
}

// Manager owns all jobs and serializes mutation under one lock.
type Manager struct {
	maxConcurrent int
	clk           clock.Clock
	logger        *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*record
	order   []string // creation order, for listing and eviction
	subs    []func(Event)
	pending []Event

	emitMu sync.Mutex
}

// NewManager creates a job manager with the given concurrency cap.
func NewManager(maxConcurrent int, clk clock.Clock, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Manager{
		maxConcurrent: maxConcurrent,
		clk:           clk,
		logger:        logger.With("component", "jobs"),
		jobs:          make(map[string]*record),
	}
}

// Subscribe registers a lifecycle listener. Events are delivered in
// registration order on the goroutine that performed the transition.
// Must be called before jobs are created; typically once at construction.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Create registers a new queued job and returns its snapshot.
func (m *Manager) Create(chat, workerType, task string, dependsOn []string) Job {
	m.mu.Lock()

	cancelCh := make(chan struct{})
	job := Job{
		ID:          uuid.NewString()[:8],
		ChatID:      chat,
		WorkerType:  workerType,
		Task:        task,
		Status:      StatusQueued,
		CreatedAt:   m.clk.Now(),
		DependsOn:   append([]string(nil), dependsOn...),
		CancelToken: cancelCh,
	}
	m.jobs[job.ID] = &record{job: job, cancelCh: cancelCh}
	m.order = append(m.order, job.ID)
	m.evictLocked()

	m.logger.Info("job created",
		"id", job.ID,
		"chat", chat,
		"worker", workerType,
	)
	snap := snapshot(m.jobs[job.ID])
	m.mu.Unlock()

	m.flush()
	return snap
}

// Start transitions a queued job to running. Returns false when the job is
// unknown, not queued, or the concurrency cap is reached (the job then
// stays queued).
func (m *Manager) Start(id string) (Job, bool) {
	m.mu.Lock()

	rec, ok := m.jobs[id]
	if !ok || rec.job.Status != StatusQueued {
		m.mu.Unlock()
		return Job{}, false
	}
	if m.runningCountLocked() >= m.maxConcurrent {
		m.logger.Debug("concurrency cap reached, job stays queued", "id", id)
		m.mu.Unlock()
		return Job{}, false
	}

	rec.job.Status = StatusRunning
	rec.job.StartedAt = m.clk.Now()
	m.queueEventLocked(EventStarted, rec)
	snap := snapshot(rec)
	m.mu.Unlock()

	m.flush()
	return snap, true
}

// Complete marks a running job completed. Terminal jobs reject the
// transition silently.
func (m *Manager) Complete(id, result string, structured map[string]any) {
	m.finish(id, StatusCompleted, result, "", structured, EventCompleted)
}

// Fail marks a job failed with a short message.
func (m *Manager) Fail(id, errMsg string) {
	m.finish(id, StatusFailed, "", errMsg, nil, EventFailed)
}

func (m *Manager) finish(id string, status Status, result, errMsg string, structured map[string]any, kind EventKind) {
	m.mu.Lock()

	rec, ok := m.jobs[id]
	if !ok || rec.job.Status.Terminal() {
		m.mu.Unlock()
		return
	}

	now := m.clk.Now()
	rec.job.Status = status
	rec.job.CompletedAt = now
	if !rec.job.StartedAt.IsZero() {
		rec.job.DurationS = now.Sub(rec.job.StartedAt).Seconds()
	}
	rec.job.Result = result
	rec.job.Error = errMsg
	if structured != nil {
		rec.job.StructuredResult = structured
	}
	m.queueEventLocked(kind, rec)
	m.mu.Unlock()

	m.flush()
}

// Cancel cancels a queued or running job: transitions the status, closes
// the cancel token, and emits job:cancelled. Idempotent; returns nil when
// the job is unknown or already terminal.
func (m *Manager) Cancel(id string) *Job {
	m.mu.Lock()

	rec, ok := m.jobs[id]
	if !ok || rec.job.Status.Terminal() {
		m.mu.Unlock()
		return nil
	}

	now := m.clk.Now()
	rec.job.Status = StatusCancelled
	rec.job.CompletedAt = now
	if !rec.job.StartedAt.IsZero() {
		rec.job.DurationS = now.Sub(rec.job.StartedAt).Seconds()
	}
	close(rec.cancelCh)
	m.queueEventLocked(EventCancelled, rec)
	snap := snapshot(rec)
	m.mu.Unlock()

	m.flush()
	return &snap
}

// CancelAllForChat cancels every non-terminal job for a chat and returns
// their snapshots.
func (m *Manager) CancelAllForChat(chat string) []Job {
	m.mu.Lock()
	var ids []string
	for _, id := range m.order {
		rec := m.jobs[id]
		if rec != nil && rec.job.ChatID == chat && !rec.job.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	var cancelled []Job
	for _, id := range ids {
		if j := m.Cancel(id); j != nil {
			cancelled = append(cancelled, *j)
		}
	}
	return cancelled
}

// RecordProgress appends a one-line progress entry and updates the
// counters. Dropped silently on terminal jobs.
func (m *Manager) RecordProgress(id, line string, llmCalls, toolCalls int, lastThinking string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok || rec.job.Status.Terminal() {
		return
	}
	if line != "" {
		rec.job.Progress = append(rec.job.Progress, line)
	}
	rec.job.LLMCalls += llmCalls
	rec.job.ToolCalls += toolCalls
	if lastThinking != "" {
		rec.job.LastThinking = lastThinking
	}
}

// SetStatusMessage records the transport message id carrying live status.
func (m *Manager) SetStatusMessage(id, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.jobs[id]; ok {
		rec.job.StatusMessageID = messageID
	}
}

// Get returns a snapshot of a job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return snapshot(rec), true
}

// List returns snapshots of all jobs for a chat in creation order.
// Empty chat lists every job.
func (m *Manager) List(chat string) []Job {
	return m.filter(func(j Job) bool { return chat == "" || j.ChatID == chat })
}

// ListRunning returns running jobs for a chat (all chats when empty).
func (m *Manager) ListRunning(chat string) []Job {
	return m.filter(func(j Job) bool {
		return j.Status == StatusRunning && (chat == "" || j.ChatID == chat)
	})
}

// OldestQueued returns the oldest queued job, if any. Used to drain the
// queue when a running job reaches a terminal state.
func (m *Manager) OldestQueued() (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if rec := m.jobs[id]; rec != nil && rec.job.Status == StatusQueued {
			return snapshot(rec), true
		}
	}
	return Job{}, false
}

func (m *Manager) filter(keep func(Job) bool) []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Job
	for _, id := range m.order {
		if rec := m.jobs[id]; rec != nil && keep(rec.job) {
			out = append(out, snapshot(rec))
		}
	}
	return out
}

func (m *Manager) runningCountLocked() int {
	n := 0
	for _, rec := range m.jobs {
		if rec.job.Status == StatusRunning {
			n++
		}
	}
	return n
}

// evictLocked drops the oldest terminal jobs beyond the soft cap.
func (m *Manager) evictLocked() {
	terminal := 0
	for _, rec := range m.jobs {
		if rec.job.Status.Terminal() {
			terminal++
		}
	}
	if terminal <= terminalSoftCap {
		return
	}
	excess := terminal - terminalSoftCap
	kept := m.order[:0]
	for _, id := range m.order {
		rec := m.jobs[id]
		if rec == nil {
			continue
		}
		if excess > 0 && rec.job.Status.Terminal() {
			delete(m.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

// ---------- Event delivery ----------

func (m *Manager) queueEventLocked(kind EventKind, rec *record) {
	m.pending = append(m.pending, Event{Kind: kind, Job: snapshot(rec)})
}

// flush delivers queued events outside the manager lock. The emit lock
// keeps delivery in recorded order even when transitions race; TryLock
// lets a subscriber transition jobs re-entrantly — its events are queued
// and drained by the flush already in progress.
func (m *Manager) flush() {
	for {
		if !m.emitMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			if len(m.pending) == 0 {
				m.mu.Unlock()
				break
			}
			ev := m.pending[0]
			m.pending = m.pending[1:]
			subs := make([]func(Event), len(m.subs))
			copy(subs, m.subs)
			m.mu.Unlock()

			for _, fn := range subs {
				fn(ev)
			}
		}
		m.emitMu.Unlock()

		// An event queued between the empty check and the unlock above
		// would otherwise strand; re-check before returning.
		m.mu.Lock()
		empty := len(m.pending) == 0
		m.mu.Unlock()
		if empty {
			return
		}
	}
}

func snapshot(rec *record) Job {
	j := rec.job
	j.DependsOn = append([]string(nil), rec.job.DependsOn...)
	j.Progress = append([]string(nil), rec.job.Progress...)
	j.CancelToken = rec.cancelCh
	return j
}
