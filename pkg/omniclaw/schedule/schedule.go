// Package schedule implements next-fire computation for automation
// schedules (cron, fixed interval, uniform random) and the one-shot timer
// wheel used to arm them.
//
// Cron expressions use the standard 5-field format (minute, hour,
// day-of-month, month, day-of-week with 0=Sunday) and are parsed with
// robfig/cron. Next-fire is pure: callers pass the current time and the
// last run, so the computation is fully testable with a frozen clock.
package schedule

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind discriminates the schedule union.
type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
	KindRandom   Kind = "random"
)

// cronSearchBound caps the forward search for a matching cron minute.
// Pathological expressions beyond it fall back to now + 24h.
const cronSearchBound = 366 * 24 * time.Hour

// overdueGrace is how soon an overdue interval fires. Overdue work is not
// coalesced, but it never fires twice for one overdue period.
const overdueGrace = time.Second

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Spec is the tagged schedule union persisted on every automation.
type Spec struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Cron is the 5-field expression for KindCron.
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty"`

	// Minutes is the fixed period for KindInterval.
	Minutes int `json:"minutes,omitempty" yaml:"minutes,omitempty"`

	// MinMinutes and MaxMinutes bound the uniform draw for KindRandom.
	MinMinutes int `json:"min_minutes,omitempty" yaml:"min_minutes,omitempty"`
	MaxMinutes int `json:"max_minutes,omitempty" yaml:"max_minutes,omitempty"`
}

// Validate checks the spec against the configured minimum interval (minutes).
func (s Spec) Validate(minInterval int) error {
	switch s.Kind {
	case KindCron:
		if s.Cron == "" {
			return fmt.Errorf("cron schedule requires an expression")
		}
		if _, err := cronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
		}
	case KindInterval:
		if s.Minutes < minInterval {
			return fmt.Errorf("interval must be at least %d minutes", minInterval)
		}
	case KindRandom:
		if s.MinMinutes < minInterval {
			return fmt.Errorf("random minimum must be at least %d minutes", minInterval)
		}
		if s.MaxMinutes <= s.MinMinutes {
			return fmt.Errorf("random maximum must be greater than minimum")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

// Describe renders a short human-readable form for status listings.
func (s Spec) Describe() string {
	switch s.Kind {
	case KindCron:
		return "cron " + s.Cron
	case KindInterval:
		return fmt.Sprintf("every %dm", s.Minutes)
	case KindRandom:
		return fmt.Sprintf("random %d-%dm", s.MinMinutes, s.MaxMinutes)
	default:
		return string(s.Kind)
	}
}

// Next computes the next fire time strictly after now.
//
// Cron: earliest matching minute after now with seconds truncated; if the
// search exhausts the 366-day bound, now + 24h.
// Interval: lastRun + minutes, or now + minutes on the first arm; an
// overdue interval fires at now + 1s.
// Random: uniform in [min,max] minutes from now.
func (s Spec) Next(now time.Time, lastRun *time.Time) time.Time {
	switch s.Kind {
	case KindCron:
		sched, err := cronParser.Parse(s.Cron)
		if err != nil {
			return now.Add(24 * time.Hour)
		}
		next := sched.Next(now.Truncate(time.Minute))
		if next.IsZero() || next.Sub(now) > cronSearchBound {
			return now.Add(24 * time.Hour)
		}
		return next
	case KindInterval:
		period := time.Duration(s.Minutes) * time.Minute
		if lastRun == nil || lastRun.IsZero() {
			return now.Add(period)
		}
		next := lastRun.Add(period)
		if !next.After(now) {
			return now.Add(overdueGrace)
		}
		return next
	case KindRandom:
		span := s.MaxMinutes - s.MinMinutes
		offset := time.Duration(s.MinMinutes) * time.Minute
		if span > 0 {
			offset += time.Duration(rand.Int63n(int64(span)*int64(time.Minute) + 1))
		}
		return now.Add(offset)
	default:
		return now.Add(24 * time.Hour)
	}
}
