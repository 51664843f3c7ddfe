// Package life implements the autonomous activity engine: on an idle
// timer with jitter it picks an activity kind, subject to per-kind
// cooldowns, and injects a synthetic prompt into the agent loop under the
// reserved life chat.
package life

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/convo"
)

// Kind names one activity.
type Kind string

const (
	KindThink      Kind = "think"
	KindBrowse     Kind = "browse"
	KindJournal    Kind = "journal"
	KindCreate     Kind = "create"
	KindSelfCode   Kind = "self_code"
	KindCodeReview Kind = "code_review"
	KindReflect    Kind = "reflect"
)

// cooldowns holds the minimum gap between runs of the same kind.
var cooldowns = map[Kind]time.Duration{
	KindThink:      0,
	KindBrowse:     0,
	KindCreate:     0,
	KindJournal:    4 * time.Hour,
	KindCodeReview: 4 * time.Hour,
	KindReflect:    4 * time.Hour,
	KindSelfCode:   2 * time.Hour,
}

// prompts maps each kind to its synthetic user message.
var prompts = map[Kind]string{
	KindThink:      "Take a moment to think. Pick a topic you find interesting right now and develop a short original thought about it.",
	KindBrowse:     "Browse something you are curious about today. Summarize the most interesting thing you find.",
	KindJournal:    "Write a short journal entry about what happened recently: conversations, tasks, anything you noticed.",
	KindCreate:     "Make something small: a poem, a tiny script, a sketch of an idea. Your choice.",
	KindSelfCode:   "Look at your own task history and write a small improvement or utility that would help you work better.",
	KindCodeReview: "Review the most recent code you produced. Point out what could be better and apply one improvement.",
	KindReflect:    "Reflect on your recent interactions. What went well, what did not, and what would you change?",
}

// AgentFunc injects one synthetic prompt into the agent loop.
type AgentFunc func(ctx context.Context, chat, prompt string) error

// Options configures an Engine.
type Options struct {
	Agent AgentFunc
	Clock clock.Clock

	// IdleInterval is the base gap between activities.
	IdleInterval time.Duration

	// Jitter is added uniformly at random to each interval.
	Jitter time.Duration

	// Quiet suppresses activity inside the do-not-disturb window.
	Quiet clock.QuietHours
}

// Engine drives the activity loop. Start arms the first timer; Pause and
// Resume gate dispatch without disarming it.
type Engine struct {
	agent  AgentFunc
	clk    clock.Clock
	idle   time.Duration
	jitter time.Duration
	quiet  clock.QuietHours
	logger *slog.Logger

	mu      sync.Mutex
	paused  bool
	lastRun map[Kind]time.Time
	timer   clock.Timer
	stopped bool
}

// NewEngine creates a life engine. Call Start to begin the loop.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	idle := opts.IdleInterval
	if idle <= 0 {
		idle = 90 * time.Minute
	}
	return &Engine{
		agent:   opts.Agent,
		clk:     clk,
		idle:    idle,
		jitter:  opts.Jitter,
		quiet:   opts.Quiet,
		logger:  logger.With("component", "life"),
		lastRun: make(map[Kind]time.Time),
	}
}

// Start arms the first activity timer.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = false
	e.armLocked()
}

// Stop disarms the timer permanently.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Pause gates dispatch; the timer keeps running so cadence is preserved.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume re-enables dispatch.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
}

// Paused reports whether dispatch is gated.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// TriggerNow runs an activity immediately, bypassing the timer, the pause
// gate, and the cooldown. Empty kind picks one like the timer would.
func (e *Engine) TriggerNow(kind string) error {
	var k Kind
	if kind == "" {
		e.mu.Lock()
		picked, ok := e.pickLocked(e.clk.Now())
		e.mu.Unlock()
		if !ok {
			return fmt.Errorf("every activity kind is on cooldown")
		}
		k = picked
	} else {
		k = Kind(kind)
		if _, ok := prompts[k]; !ok {
			return fmt.Errorf("unknown activity kind %q", kind)
		}
	}
	e.run(k)
	return nil
}

// tick is the timer callback: re-arm, then maybe dispatch one activity.
func (e *Engine) tick() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.armLocked()

	now := e.clk.Now()
	if e.paused || e.quiet.Contains(now) {
		e.mu.Unlock()
		return
	}
	kind, ok := e.pickLocked(now)
	e.mu.Unlock()
	if !ok {
		return
	}
	e.run(kind)
}

// pickLocked chooses a random kind whose cooldown has elapsed.
func (e *Engine) pickLocked(now time.Time) (Kind, bool) {
	var eligible []Kind
	for kind, cooldown := range cooldowns {
		last, ran := e.lastRun[kind]
		if !ran || now.Sub(last) >= cooldown {
			eligible = append(eligible, kind)
		}
	}
	if len(eligible) == 0 {
		return "", false
	}
	return eligible[rand.Intn(len(eligible))], true
}

// run dispatches one activity prompt under the reserved life chat.
func (e *Engine) run(kind Kind) {
	e.mu.Lock()
	e.lastRun[kind] = e.clk.Now()
	e.mu.Unlock()

	e.logger.Info("life activity", "kind", kind)
	go func() {
		if err := e.agent(context.Background(), convo.LifeChat, prompts[kind]); err != nil {
			e.logger.Warn("life activity failed", "kind", kind, "error", err)
		}
	}()
}

func (e *Engine) armLocked() {
	delay := e.idle
	if e.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(e.jitter)))
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = e.clk.AfterFunc(delay, e.tick)
}
