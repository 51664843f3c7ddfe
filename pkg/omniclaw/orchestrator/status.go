// status.go implements the per-job live status message: one transport
// message opened on the first activity line, edited in place as the worker
// progresses, and rewritten with a terminal header when the job finishes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
)

const (
	// minEditInterval rate-limits in-place edits per job.
	minEditInterval = time.Second

	// visibleTail is how many recent activity lines stay visible.
	visibleTail = 10
)

// ReporterOptions configures a StatusReporter.
type ReporterOptions struct {
	JobID  string
	Header string
	Clock  clock.Clock

	// Send opens the status message and returns its id.
	Send func(ctx context.Context, text string) (string, error)

	// Edit rewrites the status message in place.
	Edit func(ctx context.Context, messageID, text string) error

	// OnOpen is called once with the new message id.
	OnOpen func(messageID string)
}

// StatusReporter owns one job's live status message. Progress callbacks
// arriving after Finish are dropped.
type StatusReporter struct {
	opts   ReporterOptions
	logger *slog.Logger

	mu        sync.Mutex
	messageID string
	header    string
	lines     []string
	dropped   int
	lastEdit  time.Time
	finished  bool
}

// NewStatusReporter creates a reporter; the transport message is opened
// lazily on the first activity line.
func NewStatusReporter(opts ReporterOptions, logger *slog.Logger) *StatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	return &StatusReporter{
		opts:   opts,
		header: opts.Header,
		logger: logger.With("component", "status", "job", opts.JobID),
	}
}

// Activity appends one progress line and refreshes the status message,
// rate-limited to one edit per minEditInterval. Skipped refreshes are not
// lost: the tail always renders the latest lines on the next edit.
func (r *StatusReporter) Activity(line string) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.lines = append(r.lines, line)
	if len(r.lines) > visibleTail {
		r.dropped += len(r.lines) - visibleTail
		r.lines = r.lines[len(r.lines)-visibleTail:]
	}

	now := r.opts.Clock.Now()
	if r.messageID == "" {
		text := r.renderLocked()
		r.lastEdit = now
		r.mu.Unlock()

		id, err := r.opts.Send(context.Background(), text)
		if err != nil {
			r.logger.Debug("status message open failed", "error", err)
			return
		}
		r.mu.Lock()
		r.messageID = id
		r.mu.Unlock()
		if id != "" && r.opts.OnOpen != nil {
			r.opts.OnOpen(id)
		}
		return
	}

	if now.Sub(r.lastEdit) < minEditInterval {
		r.mu.Unlock()
		return
	}
	r.lastEdit = now
	text := r.renderLocked()
	id := r.messageID
	r.mu.Unlock()

	if err := r.opts.Edit(context.Background(), id, text); err != nil {
		r.logger.Debug("status edit failed", "error", err)
	}
}

// Finish rewrites the header to the terminal state and stops the reporter.
// The final rewrite is exempt from the edit rate limit.
func (r *StatusReporter) Finish(header string) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.header = header
	id := r.messageID
	text := r.renderLocked()
	r.mu.Unlock()

	if id == "" {
		// No activity was ever reported; nothing to rewrite.
		return
	}
	if err := r.opts.Edit(context.Background(), id, text); err != nil {
		r.logger.Debug("final status edit failed", "error", err)
	}
}

func (r *StatusReporter) renderLocked() string {
	var b strings.Builder
	b.WriteString(r.header)
	if r.dropped > 0 {
		fmt.Fprintf(&b, "\n… %d earlier lines", r.dropped)
	}
	for _, line := range r.lines {
		b.WriteString("\n⚡ ")
		b.WriteString(line)
	}
	return b.String()
}
