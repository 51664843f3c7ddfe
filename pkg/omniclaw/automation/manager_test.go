package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/schedule"
)

// recordingAgent captures prompts and signals each run.
type recordingAgent struct {
	mu      sync.Mutex
	prompts []string
	chats   []string
	err     error
	ran     chan struct{}
}

func newRecordingAgent() *recordingAgent {
	return &recordingAgent{ran: make(chan struct{}, 16)}
}

func (a *recordingAgent) run(ctx context.Context, chat, prompt string) error {
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	a.chats = append(a.chats, chat)
	err := a.err
	a.mu.Unlock()
	a.ran <- struct{}{}
	return err
}

func (a *recordingAgent) wait(t *testing.T) {
	t.Helper()
	select {
	case <-a.ran:
	case <-time.After(time.Second):
		t.Fatal("agent did not run")
	}
}

func (a *recordingAgent) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.prompts)
}

func newTestManager(t *testing.T, fake *clock.Fake, agent *recordingAgent, quiet clock.QuietHours) *Manager {
	t.Helper()
	m := NewManager(Options{
		Path:  filepath.Join(t.TempDir(), "automations.json"),
		Clock: fake,
		Quiet: quiet,
		Agent: agent.run,
	}, nil)
	t.Cleanup(m.Close)
	return m
}

func intervalSpec(minutes int) schedule.Spec {
	return schedule.Spec{Kind: schedule.KindInterval, Minutes: minutes}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	m := newTestManager(t, fake, newRecordingAgent(), clock.QuietHours{})

	if _, err := m.Create("chat1", "", "d", intervalSpec(10), true, false); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := m.Create("chat1", "too-fast", "d", intervalSpec(2), true, false); err == nil {
		t.Fatal("interval below minimum accepted")
	}
	a, err := m.Create("chat1", "ping", "check things", intervalSpec(10), true, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" || a.NextRun == nil {
		t.Fatalf("created automation = %+v", a)
	}
	want := fake.Now().Add(10 * time.Minute)
	if !a.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", a.NextRun, want)
	}
}

func TestCreateEnforcesPerChatCap(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	m := NewManager(Options{Clock: fake, MaxPerChat: 2}, nil)
	defer m.Close()

	for i := 0; i < 2; i++ {
		if _, err := m.Create("chat1", "a", "d", intervalSpec(10), false, false); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := m.Create("chat1", "a", "d", intervalSpec(10), false, false); err == nil {
		t.Fatal("per-chat cap not enforced")
	}
	// Other chats are unaffected.
	if _, err := m.Create("chat2", "a", "d", intervalSpec(10), false, false); err != nil {
		t.Fatalf("Create other chat: %v", err)
	}
}

func TestFireRunsAgentAndRearms(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	agent := newRecordingAgent()
	m := newTestManager(t, fake, agent, clock.QuietHours{})

	a, err := m.Create("chat1", "ping", "check the servers", intervalSpec(10), true, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	fake.Advance(10 * time.Minute)
	agent.wait(t)

	if got := agent.prompts[0]; got != "[AUTOMATION: ping] check the servers" {
		t.Fatalf("prompt = %q", got)
	}
	if agent.chats[0] != "chat1" {
		t.Fatalf("chat = %q", agent.chats[0])
	}

	// Poll for the post-run bookkeeping to settle.
	deadline := time.Now().Add(time.Second)
	for {
		live, _ := m.Get(a.ID)
		if live.RunCount == 1 && live.LastError == "" {
			if live.NextRun == nil || !live.NextRun.Equal(fake.Now().Add(10*time.Minute)) {
				t.Fatalf("NextRun = %v, want %v", live.NextRun, fake.Now().Add(10*time.Minute))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("automation state = %+v", live)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFireSetsLastErrorOnFailure(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	agent := newRecordingAgent()
	agent.err = errors.New("model unavailable")
	m := newTestManager(t, fake, agent, clock.QuietHours{})

	a, _ := m.Create("chat1", "ping", "d", intervalSpec(10), true, false)
	fake.Advance(10 * time.Minute)
	agent.wait(t)

	deadline := time.Now().Add(time.Second)
	for {
		live, _ := m.Get(a.ID)
		if live.LastError == "model unavailable" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("LastError = %q", live.LastError)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQuietHoursDeferral(t *testing.T) {
	t.Parallel()

	// Quiet window 02:00-06:00; start at 01:55 so the fire lands inside it.
	quiet := clock.QuietHours{StartMinute: 2 * 60, EndMinute: 6 * 60}
	fake := clock.NewFake(time.Date(2024, 1, 1, 1, 55, 0, 0, time.UTC))
	agent := newRecordingAgent()
	m := newTestManager(t, fake, agent, quiet)

	a, _ := m.Create("chat1", "ping", "d", intervalSpec(10), true, true)

	fake.Advance(10 * time.Minute) // 02:05, inside quiet hours
	time.Sleep(20 * time.Millisecond)

	if agent.count() != 0 {
		t.Fatal("automation executed inside quiet hours")
	}
	live, _ := m.Get(a.ID)
	if live.RunCount != 0 {
		t.Fatalf("RunCount = %d, want 0", live.RunCount)
	}
	wantNext := time.Date(2024, 1, 1, 6, 1, 0, 0, time.UTC) // window end + 60s
	if live.NextRun == nil || !live.NextRun.Equal(wantNext) {
		t.Fatalf("NextRun = %v, want %v", live.NextRun, wantNext)
	}

	// Advancing past the deferred fire executes it.
	fake.Advance(wantNext.Sub(fake.Now()))
	agent.wait(t)
}

func TestDisabledBetweenSchedulingAndFiring(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	agent := newRecordingAgent()
	m := newTestManager(t, fake, agent, clock.QuietHours{})

	a, _ := m.Create("chat1", "ping", "d", intervalSpec(10), true, false)
	enabled := false
	if _, err := m.Update(a.ID, Update{Enabled: &enabled}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fake.Advance(30 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if agent.count() != 0 {
		t.Fatal("disabled automation executed")
	}
}

func TestDeleteDisarms(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	agent := newRecordingAgent()
	m := newTestManager(t, fake, agent, clock.QuietHours{})

	a, _ := m.Create("chat1", "ping", "d", intervalSpec(10), true, false)
	if err := m.Delete(a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	fake.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if agent.count() != 0 {
		t.Fatal("deleted automation executed")
	}
	if _, ok := m.Get(a.ID); ok {
		t.Fatal("deleted automation still listed")
	}
}

func TestUpdateScheduleRearms(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	agent := newRecordingAgent()
	m := newTestManager(t, fake, agent, clock.QuietHours{})

	a, _ := m.Create("chat1", "ping", "d", intervalSpec(30), true, false)
	spec := intervalSpec(10)
	live, err := m.Update(a.ID, Update{Schedule: &spec})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := fake.Now().Add(10 * time.Minute)
	if live.NextRun == nil || !live.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", live.NextRun, want)
	}

	fake.Advance(10 * time.Minute)
	agent.wait(t)
}

func TestRunNowBypassesTimer(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	agent := newRecordingAgent()
	m := newTestManager(t, fake, agent, clock.QuietHours{})

	a, _ := m.Create("chat1", "ping", "run me", intervalSpec(60), true, false)
	if err := m.RunNow(a.ID); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	agent.wait(t)
	if agent.prompts[0] != "[AUTOMATION: ping] run me" {
		t.Fatalf("prompt = %q", agent.prompts[0])
	}
}

func TestPerChatSerialization(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	var mu sync.Mutex
	active := 0
	maxActive := 0
	done := make(chan struct{}, 4)
	agent := func(ctx context.Context, chat, prompt string) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	m := NewManager(Options{Clock: fake, Agent: agent}, nil)
	defer m.Close()

	a1, _ := m.Create("chat1", "one", "d", intervalSpec(10), true, false)
	a2, _ := m.Create("chat1", "two", "d", intervalSpec(10), true, false)

	// Fire both immediately; same chat must serialize.
	if err := m.RunNow(a1.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.RunNow(a2.ID); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("runs did not finish")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Fatalf("max concurrent runs for one chat = %d, want 1", maxActive)
	}
}

func TestLoadRearmsEnabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "automations.json")
	fake := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	agent := newRecordingAgent()

	first := NewManager(Options{Path: path, Clock: fake, Agent: agent.run}, nil)
	a, err := first.Create("chat1", "ping", "persisted", intervalSpec(10), true, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("automations.json not written: %v", err)
	}

	second := NewManager(Options{Path: path, Clock: fake, Agent: agent.run}, nil)
	defer second.Close()
	if err := second.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	live, ok := second.Get(a.ID)
	if !ok {
		t.Fatal("automation lost across restart")
	}
	if live.Name != "ping" || live.Description != "persisted" {
		t.Fatalf("loaded automation = %+v", live)
	}
	if live.NextRun == nil || !live.NextRun.After(fake.Now()) {
		t.Fatalf("NextRun after load = %v", live.NextRun)
	}

	fake.Advance(10 * time.Minute)
	agent.wait(t)
}
