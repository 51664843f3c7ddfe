// Package clock provides the injected time source used by the scheduler,
// automations, and the life engine, plus the quiet-hours window in which
// non-essential automations defer.
//
// All core components read time through a single Clock so tests can freeze
// and advance it deterministically.
package clock

import (
	"sync"
	"time"
)

// Timer is a handle for a pending one-shot callback.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was stopped.
	Stop() bool
}

// Clock abstracts wall-clock reads and one-shot timers.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// AfterFunc schedules f to run after d and returns a cancellable handle.
	AfterFunc(d time.Duration, f func()) Timer
}

// System returns a Clock backed by the real time package.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ---------- Fake clock (tests) ----------

// Fake is a manually advanced Clock for tests. Timers fire synchronously
// on the goroutine calling Advance, in due order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	nextID int
}

// NewFake creates a Fake clock frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

type fakeTimer struct {
	clock   *Fake
	id      int
	when    time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	for i, other := range t.clock.timers {
		if other.id == t.id {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

// Now returns the frozen time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc registers fn to fire when the clock advances past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := &fakeTimer{clock: f, id: f.nextID, when: f.now.Add(d), f: fn}
	f.timers = append(f.timers, t)
	return t
}

// Set jumps the clock to a specific time, firing due timers.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	if now.After(f.now) {
		f.now = now
	}
	f.mu.Unlock()
	f.fireDue()
}

// Advance moves the clock forward by d, firing any timers that come due.
// Callbacks run outside the clock lock so they may schedule new timers;
// newly scheduled timers that are already due also fire before Advance returns.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
	f.fireDue()
}

func (f *Fake) fireDue() {
	for {
		f.mu.Lock()
		var due *fakeTimer
		dueIdx := -1
		for i, t := range f.timers {
			if !t.when.After(f.now) && (due == nil || t.when.Before(due.when)) {
				due = t
				dueIdx = i
			}
		}
		if due == nil {
			f.mu.Unlock()
			return
		}
		f.timers = append(f.timers[:dueIdx], f.timers[dueIdx+1:]...)
		due.stopped = true
		f.mu.Unlock()

		due.f()
	}
}

// PendingTimers returns how many timers are armed. Test helper.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}
