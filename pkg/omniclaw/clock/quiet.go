// quiet.go implements the quiet-hours window. Automations with
// respect_quiet_hours defer while the local wall clock is inside the window.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultQuietStartHour and DefaultQuietEndHour bound the default
	// do-not-disturb window (02:00–06:00 local time).
	DefaultQuietStartHour = 2
	DefaultQuietEndHour   = 6
)

// QuietHours is a [start,end) window over the minute-of-day.
// Windows that wrap midnight (start > end) are supported.
type QuietHours struct {
	// StartMinute and EndMinute are minutes since local midnight.
	StartMinute int
	EndMinute   int
}

// QuietHoursConfig is the configuration fallback for the window, in whole hours.
type QuietHoursConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// ResolveQuietHours determines the window, in priority order:
// QUIET_HOURS_START/QUIET_HOURS_END env vars in HH:MM, then the config
// integer hours, then the 02:00–06:00 default. getenv is injected so tests
// do not touch the process environment.
func ResolveQuietHours(getenv func(string) string, cfg QuietHoursConfig) QuietHours {
	if start, err := parseHHMM(getenv("QUIET_HOURS_START")); err == nil {
		if end, err := parseHHMM(getenv("QUIET_HOURS_END")); err == nil {
			return QuietHours{StartMinute: start, EndMinute: end}
		}
	}
	if cfg.Start != 0 || cfg.End != 0 {
		return QuietHours{StartMinute: cfg.Start * 60, EndMinute: cfg.End * 60}
	}
	return QuietHours{
		StartMinute: DefaultQuietStartHour * 60,
		EndMinute:   DefaultQuietEndHour * 60,
	}
}

// parseHHMM parses "HH:MM" into minutes since midnight.
func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether now's local minute-of-day lies inside [start,end).
func (q QuietHours) Contains(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	if q.StartMinute == q.EndMinute {
		return false // zero-width window
	}
	if q.StartMinute < q.EndMinute {
		return minute >= q.StartMinute && minute < q.EndMinute
	}
	// Wraps midnight, e.g. 23:00–06:00.
	return minute >= q.StartMinute || minute < q.EndMinute
}

// UntilEnd returns how long until the window closes, or 0 when outside it.
func (q QuietHours) UntilEnd(now time.Time) time.Duration {
	if !q.Contains(now) {
		return 0
	}
	end := time.Date(now.Year(), now.Month(), now.Day(),
		q.EndMinute/60, q.EndMinute%60, 0, 0, now.Location())
	if !end.After(now) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(now)
}
