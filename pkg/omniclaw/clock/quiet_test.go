package clock

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2024, 3, 10, h, m, 17, 0, time.UTC)
}

func TestResolveQuietHours(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		env       map[string]string
		cfg       QuietHoursConfig
		wantStart int
		wantEnd   int
	}{
		{"env wins", map[string]string{"QUIET_HOURS_START": "23:30", "QUIET_HOURS_END": "07:15"}, QuietHoursConfig{Start: 1, End: 5}, 23*60 + 30, 7*60 + 15},
		{"config fallback", nil, QuietHoursConfig{Start: 1, End: 5}, 60, 300},
		{"defaults", nil, QuietHoursConfig{}, 120, 360},
		{"partial env ignored", map[string]string{"QUIET_HOURS_START": "23:30"}, QuietHoursConfig{}, 120, 360},
		{"malformed env ignored", map[string]string{"QUIET_HOURS_START": "25:00", "QUIET_HOURS_END": "06:00"}, QuietHoursConfig{}, 120, 360},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			getenv := func(k string) string { return tt.env[k] }
			q := ResolveQuietHours(getenv, tt.cfg)
			if q.StartMinute != tt.wantStart || q.EndMinute != tt.wantEnd {
				t.Errorf("got [%d,%d), want [%d,%d)", q.StartMinute, q.EndMinute, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestQuietHoursContains(t *testing.T) {
	t.Parallel()

	q := QuietHours{StartMinute: 2 * 60, EndMinute: 6 * 60}
	if !q.Contains(at(2, 0)) {
		t.Error("window start should be inside")
	}
	if !q.Contains(at(4, 30)) {
		t.Error("middle of window should be inside")
	}
	if q.Contains(at(6, 0)) {
		t.Error("window end is exclusive")
	}
	if q.Contains(at(12, 0)) {
		t.Error("noon should be outside")
	}
}

func TestQuietHoursWrapsMidnight(t *testing.T) {
	t.Parallel()

	q := QuietHours{StartMinute: 23 * 60, EndMinute: 6 * 60}
	if !q.Contains(at(23, 30)) {
		t.Error("23:30 should be inside a 23:00-06:00 window")
	}
	if !q.Contains(at(1, 0)) {
		t.Error("01:00 should be inside a 23:00-06:00 window")
	}
	if q.Contains(at(7, 0)) {
		t.Error("07:00 should be outside")
	}
}

func TestQuietHoursUntilEnd(t *testing.T) {
	t.Parallel()

	q := QuietHours{StartMinute: 2 * 60, EndMinute: 6 * 60}

	now := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
	if got, want := q.UntilEnd(now), 2*time.Hour; got != want {
		t.Errorf("UntilEnd inside = %v, want %v", got, want)
	}

	if got := q.UntilEnd(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)); got != 0 {
		t.Errorf("UntilEnd outside = %v, want 0", got)
	}

	// Wrapped window, before midnight: end is tomorrow morning.
	wrapped := QuietHours{StartMinute: 23 * 60, EndMinute: 6 * 60}
	now = time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	if got, want := wrapped.UntilEnd(now), 7*time.Hour; got != want {
		t.Errorf("UntilEnd wrapped = %v, want %v", got, want)
	}
}

func TestFakeClockTimers(t *testing.T) {
	t.Parallel()

	fake := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var fired []string
	fake.AfterFunc(10*time.Second, func() { fired = append(fired, "a") })
	b := fake.AfterFunc(20*time.Second, func() { fired = append(fired, "b") })
	fake.AfterFunc(30*time.Second, func() { fired = append(fired, "c") })

	fake.Advance(15 * time.Second)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("after 15s fired = %v, want [a]", fired)
	}

	if !b.Stop() {
		t.Error("Stop on pending timer should return true")
	}
	if b.Stop() {
		t.Error("second Stop should return false")
	}

	fake.Advance(time.Minute)
	if len(fired) != 2 || fired[1] != "c" {
		t.Fatalf("fired = %v, want [a c]", fired)
	}
}

func TestFakeClockTimerReschedulesFromCallback(t *testing.T) {
	t.Parallel()

	fake := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			fake.AfterFunc(time.Second, tick)
		}
	}
	fake.AfterFunc(time.Second, tick)

	fake.Advance(10 * time.Second)
	if count != 3 {
		t.Errorf("count = %d, want 3 (chained timers fire within one Advance)", count)
	}
}
