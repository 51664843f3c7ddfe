package jobs

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(cap int) (*Manager, *clock.Fake) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewManager(cap, fake, testLogger()), fake
}

func TestJobLifecycleEvents(t *testing.T) {
	t.Parallel()

	m, fake := newTestManager(2)

	var events []EventKind
	m.Subscribe(func(ev Event) { events = append(events, ev.Kind) })

	job := m.Create("chat", "coding", "write hello.py", nil)
	if job.Status != StatusQueued {
		t.Fatalf("new job status = %q, want queued", job.Status)
	}
	if job.ID == "" || len(job.ID) != 8 {
		t.Errorf("job id %q should be short and non-empty", job.ID)
	}

	started, ok := m.Start(job.ID)
	if !ok || started.Status != StatusRunning {
		t.Fatalf("Start = (%+v, %v), want running", started, ok)
	}

	fake.Advance(3 * time.Second)
	m.Complete(job.ID, "done", nil)

	got, _ := m.Get(job.ID)
	if got.Status != StatusCompleted || got.Result != "done" {
		t.Errorf("final job = %+v", got)
	}
	if got.DurationS != 3 {
		t.Errorf("DurationS = %v, want 3", got.DurationS)
	}

	want := []EventKind{EventStarted, EventCompleted}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestTerminalJobsRejectMutationSilently(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(2)
	var events []EventKind
	m.Subscribe(func(ev Event) { events = append(events, ev.Kind) })

	job := m.Create("chat", "coding", "task", nil)
	m.Start(job.ID)
	m.Cancel(job.ID)

	// A cancelled job that later finishes its model call emits nothing.
	m.Complete(job.ID, "late result", nil)
	m.Fail(job.ID, "late failure")
	if m.Cancel(job.ID) != nil {
		t.Error("second Cancel should return nil")
	}

	got, _ := m.Get(job.ID)
	if got.Status != StatusCancelled || got.Result != "" {
		t.Errorf("terminal job mutated: %+v", got)
	}

	want := []EventKind{EventStarted, EventCancelled}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v (no repeats after terminal)", events, want)
	}
}

func TestCancelClosesToken(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(2)
	job := m.Create("chat", "system", "task", nil)
	m.Start(job.ID)

	select {
	case <-job.CancelToken:
		t.Fatal("token closed before Cancel")
	default:
	}

	m.Cancel(job.ID)

	select {
	case <-job.CancelToken:
	case <-time.After(time.Second):
		t.Fatal("token not closed within 1s of Cancel")
	}
}

func TestConcurrencyCap(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(2)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, m.Create("chat", "coding", fmt.Sprintf("task %d", i), nil).ID)
	}

	if _, ok := m.Start(ids[0]); !ok {
		t.Fatal("first start should succeed")
	}
	if _, ok := m.Start(ids[1]); !ok {
		t.Fatal("second start should succeed")
	}
	if _, ok := m.Start(ids[2]); ok {
		t.Fatal("third start should be refused at cap 2")
	}

	third, _ := m.Get(ids[2])
	if third.Status != StatusQueued {
		t.Errorf("capped job status = %q, want queued", third.Status)
	}

	// Cancel is always permitted, even at the cap.
	if m.Cancel(ids[2]) == nil {
		t.Error("queued job should be cancellable")
	}

	// Finishing a running job frees a slot.
	m.Complete(ids[0], "ok", nil)
	queued := m.Create("chat", "coding", "task 3", nil)
	if _, ok := m.Start(queued.ID); !ok {
		t.Error("start should succeed after a slot freed")
	}
}

func TestCancelAllForChat(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(5)
	a := m.Create("alpha", "coding", "one", nil)
	b := m.Create("alpha", "browser", "two", nil)
	c := m.Create("beta", "coding", "other chat", nil)
	m.Start(a.ID)

	cancelled := m.CancelAllForChat("alpha")
	if len(cancelled) != 2 {
		t.Fatalf("cancelled %d jobs, want 2", len(cancelled))
	}
	if got, _ := m.Get(c.ID); got.Status != StatusQueued {
		t.Errorf("other chat's job touched: %+v", got)
	}
	_ = b
}

func TestListAndListRunning(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(5)
	a := m.Create("chat", "coding", "one", nil)
	m.Create("chat", "browser", "two", nil)
	m.Start(a.ID)

	if got := len(m.List("chat")); got != 2 {
		t.Errorf("List = %d jobs, want 2", got)
	}
	running := m.ListRunning("chat")
	if len(running) != 1 || running[0].ID != a.ID {
		t.Errorf("ListRunning = %+v, want [%s]", running, a.ID)
	}
}

func TestOldestQueued(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(1)
	a := m.Create("chat", "coding", "one", nil)
	b := m.Create("chat", "coding", "two", nil)
	m.Start(a.ID)

	next, ok := m.OldestQueued()
	if !ok || next.ID != b.ID {
		t.Errorf("OldestQueued = (%+v, %v), want %s", next, ok, b.ID)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(2)
	job := m.Create("chat", "coding", "task", nil)
	m.Start(job.ID)
	m.RecordProgress(job.ID, "step one", 1, 2, "thinking...")

	snap, _ := m.Get(job.ID)
	snap.Progress[0] = "mutated"
	snap.Task = "mutated"

	fresh, _ := m.Get(job.ID)
	if fresh.Progress[0] != "step one" || fresh.Task != "task" {
		t.Error("mutating a snapshot leaked into the manager")
	}
	if fresh.LLMCalls != 1 || fresh.ToolCalls != 2 {
		t.Errorf("counters = %d/%d, want 1/2", fresh.LLMCalls, fresh.ToolCalls)
	}
}

func TestTerminalEviction(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(500)
	var first string
	for i := 0; i < terminalSoftCap+10; i++ {
		j := m.Create("chat", "coding", "t", nil)
		if i == 0 {
			first = j.ID
		}
		m.Start(j.ID)
		m.Complete(j.ID, "ok", nil)
	}
	// One more create triggers eviction of the oldest terminal jobs.
	m.Create("chat", "coding", "latest", nil)

	if _, ok := m.Get(first); ok {
		t.Error("oldest terminal job should have been evicted")
	}
	if got := len(m.List("")); got > terminalSoftCap+2 {
		t.Errorf("retained %d jobs, want <= %d", got, terminalSoftCap+2)
	}
}
