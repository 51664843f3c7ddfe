// timers.go implements the one-shot timer wheel. At most one pending timer
// exists per key; re-arming cancels the previous one first.
package schedule

import (
	"sync"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
)

// minTimerDelay guards against tight loops on clock skew.
const minTimerDelay = time.Second

// Timers arms cancellable one-shot callbacks keyed by an owner id
// (e.g. an automation id). All delays are clamped to at least one second.
type Timers struct {
	clk     clock.Clock
	mu      sync.Mutex
	pending map[string]clock.Timer
}

// NewTimers creates an empty timer wheel on the given clock.
func NewTimers(clk clock.Clock) *Timers {
	return &Timers{
		clk:     clk,
		pending: make(map[string]clock.Timer),
	}
}

// Arm schedules fn to run after delay under the given key, replacing any
// pending timer for that key. The entry is cleared before fn runs, so fn
// may re-arm the same key.
func (t *Timers) Arm(key string, delay time.Duration, fn func()) {
	if delay < minTimerDelay {
		delay = minTimerDelay
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.pending[key]; ok {
		prev.Stop()
	}
	t.pending[key] = t.clk.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending timer for key, if any.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.pending[key]
	if !ok {
		return false
	}
	delete(t.pending, key)
	return timer.Stop()
}

// CancelAll stops every pending timer.
func (t *Timers) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.pending {
		timer.Stop()
		delete(t.pending, key)
	}
}

// Pending returns the number of armed timers.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
