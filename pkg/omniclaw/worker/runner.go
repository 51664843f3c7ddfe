// runner.go drives a single worker job: loop the worker model with a
// scoped tool set until it ends the turn, the depth budget runs out, the
// job times out, or the cancel token trips.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/provider"
)

// DefaultMaxToolDepth bounds tool round-trips in one worker run.
const DefaultMaxToolDepth = 15

// progressLineMax bounds one-line activity summaries.
const progressLineMax = 80

// ToolCatalog exposes tool definitions and executes tool calls.
// Tool failures are returned as values inside the result envelope by the
// runner, never raised to the model loop.
type ToolCatalog interface {
	// Specs lists every available tool definition.
	Specs() []provider.ToolSpec

	// Execute runs a named tool. The ctx carries the job's timeout and
	// cancel token so in-flight tools abort with the job.
	Execute(ctx context.Context, name string, input map[string]any) (any, error)
}

// Callbacks receive the outcome and live progress of a run.
type Callbacks struct {
	// OnProgress receives a one-line summary per executed tool call.
	OnProgress func(line string)

	// OnComplete receives the final text when the model ends its turn.
	OnComplete func(text string)

	// OnError receives a short message: "cancelled", "timeout", or the
	// underlying failure.
	OnError func(msg string)
}

// Options configures a single worker run.
type Options struct {
	Provider     provider.ModelProvider
	Tools        ToolCatalog
	Type         Type
	JobID        string
	SkillPrompt  string
	MaxToolDepth int

	// CancelToken is the job's one-shot cancel signal from the job manager.
	CancelToken <-chan struct{}

	// RecordProgress mirrors counters into the owning job record.
	// Optional; called as (line, llmCalls, toolCalls, lastThinking).
	RecordProgress func(line string, llmCalls, toolCalls int, lastThinking string)

	Callbacks Callbacks
}

// Runner executes one job.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a runner for a single job.
func NewRunner(opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxToolDepth <= 0 {
		opts.MaxToolDepth = DefaultMaxToolDepth
	}
	return &Runner{
		opts:   opts,
		logger: logger.With("component", "worker", "job", opts.JobID, "type", opts.Type.Name),
	}
}

// Run executes the task. Exactly one of OnComplete or OnError fires.
func (r *Runner) Run(ctx context.Context, task string) {
	timeout := r.opts.Type.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Trip the run context when the job's cancel token closes, so the
	// in-flight model call and tool abort together.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	if r.opts.CancelToken != nil {
		go func() {
			select {
			case <-r.opts.CancelToken:
				cancel()
			case <-stopWatch:
			}
		}()
	}

	system := r.opts.Type.Prompt
	if r.opts.SkillPrompt != "" {
		system += "\n\n" + r.opts.SkillPrompt
	}
	tools := r.scopedTools()
	messages := []provider.Message{{Role: "user", Content: task}}

	start := time.Now()
	for depth := 1; depth <= r.opts.MaxToolDepth; depth++ {
		resp, err := r.opts.Provider.Chat(runCtx, provider.Request{
			System:   system,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			r.fail(runCtx, err)
			return
		}
		r.record("", 1, 0, resp.Text)

		switch resp.StopReason {
		case provider.StopEndTurn:
			r.logger.Info("worker completed",
				"depth", depth,
				"elapsed_s", int(time.Since(start).Seconds()),
			)
			if r.opts.Callbacks.OnComplete != nil {
				r.opts.Callbacks.OnComplete(resp.Text)
			}
			return

		case provider.StopToolUse:
			assistant := resp.RawContent
			if assistant == "" {
				assistant = resp.Text
			}
			messages = append(messages, provider.Message{Role: "assistant", Content: assistant})

			for _, call := range resp.ToolCalls {
				if r.cancelled() {
					r.fail(runCtx, context.Canceled)
					return
				}
				result := r.executeTool(runCtx, call)
				messages = append(messages, provider.Message{
					Role:    "user",
					Content: fmt.Sprintf("[tool result: %s]\n%s", call.Name, result),
				})
			}

		default:
			if r.opts.Callbacks.OnError != nil {
				r.opts.Callbacks.OnError("unexpected response from worker model")
			}
			return
		}
	}

	if r.opts.Callbacks.OnError != nil {
		r.opts.Callbacks.OnError(fmt.Sprintf("reached maximum tool depth (%d)", r.opts.MaxToolDepth))
	}
}

// executeTool runs one tool call scoped to the worker's allow-list and
// returns the serialized, size-bounded result.
func (r *Runner) executeTool(ctx context.Context, call provider.ToolCall) string {
	var result string
	if !r.opts.Type.Allows(call.Name) {
		result = SerializeResult(map[string]any{
			"error": fmt.Sprintf("tool %q is not available to the %s worker", call.Name, r.opts.Type.Name),
		})
	} else {
		out, err := r.opts.Tools.Execute(ctx, call.Name, call.Input)
		if err != nil {
			// Tool failures feed back to the model as values, never raised.
			out = map[string]any{"error": err.Error()}
		}
		result = SerializeResult(out)
	}

	line := progressLine(call)
	r.record(line, 0, 1, "")
	if r.opts.Callbacks.OnProgress != nil {
		r.opts.Callbacks.OnProgress(line)
	}
	return result
}

// fail classifies the loop error: cancel token beats timeout beats the
// raw error text.
func (r *Runner) fail(runCtx context.Context, err error) {
	msg := err.Error()
	switch {
	case r.cancelled():
		msg = "cancelled"
	case runCtx.Err() == context.DeadlineExceeded:
		msg = "timeout"
	}
	r.logger.Warn("worker run ended with error", "reason", msg)
	if r.opts.Callbacks.OnError != nil {
		r.opts.Callbacks.OnError(msg)
	}
}

func (r *Runner) cancelled() bool {
	if r.opts.CancelToken == nil {
		return false
	}
	select {
	case <-r.opts.CancelToken:
		return true
	default:
		return false
	}
}

func (r *Runner) record(line string, llm, tool int, thinking string) {
	if r.opts.RecordProgress != nil {
		r.opts.RecordProgress(line, llm, tool, thinking)
	}
}

// scopedTools filters the catalog down to the worker's allow-list.
func (r *Runner) scopedTools() []provider.ToolSpec {
	if r.opts.Tools == nil {
		return nil
	}
	var scoped []provider.ToolSpec
	for _, spec := range r.opts.Tools.Specs() {
		if r.opts.Type.Allows(spec.Name) {
			scoped = append(scoped, spec)
		}
	}
	return scoped
}

// progressLine renders a one-line activity summary for a tool call.
func progressLine(call provider.ToolCall) string {
	var detail string
	for _, key := range []string{"command", "url", "path", "query", "task"} {
		if v, ok := call.Input[key].(string); ok && v != "" {
			detail = v
			break
		}
	}
	line := call.Name
	if detail != "" {
		line += ": " + detail
	}
	line = strings.ReplaceAll(line, "\n", " ")
	if len(line) > progressLineMax {
		line = line[:progressLineMax-1] + "…"
	}
	return line
}
