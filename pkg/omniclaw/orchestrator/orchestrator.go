// Package orchestrator implements the top-level agent loop: it drives the
// orchestrator model over the summarized conversation with a bounded tool
// budget, answers directly or dispatches long-running work to worker jobs,
// and relays job lifecycle results back into the chat.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/automation"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/convo"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/jobs"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/provider"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/worker"
)

const (
	// DefaultMaxToolDepth bounds tool round-trips in one orchestrator run.
	DefaultMaxToolDepth = 10

	// fallbackReply is returned when the model ends with an unhandled stop
	// reason and produced no text.
	fallbackReply = "I got an unexpected response from the model. Please try again."
)

// defaultSystemPrompt is used when no persona/system prompt is configured.
const defaultSystemPrompt = `You are a personal assistant orchestrator. Reply directly for conversation and quick questions. For long-running work (coding, browsing, research, system tasks) dispatch a worker with dispatch_task and tell the user it is underway. Keep replies short and concrete.`

// PersonaManager is the narrow surface the orchestrator needs to update the
// owner's persona notes from the update_user_persona tool.
type PersonaManager interface {
	UpdatePersona(ctx context.Context, notes string) error
}

// ChatContext carries the transport callbacks for one chat. The pipeline
// constructs it per message; automations construct an equivalent one.
type ChatContext struct {
	Chat string
	User string

	// SendUpdate sends a new message to the chat and returns its id.
	SendUpdate func(ctx context.Context, text string) (string, error)

	// EditMessage rewrites a previously sent message in place.
	EditMessage func(ctx context.Context, messageID, text string) error

	// SendPhoto sends a local image file with a caption.
	SendPhoto func(ctx context.Context, path, caption string) error
}

// Notifier delivers asynchronous job result chunks to a chat. Installed by
// the pipeline so deliveries go through its send path.
type Notifier func(chat, text string)

// Options configures an Orchestrator.
type Options struct {
	Provider provider.ModelProvider

	// WorkerProvider drives worker runs; defaults to Provider.
	WorkerProvider provider.ModelProvider

	Tools       worker.ToolCatalog
	Convo       *convo.Store
	Jobs        *jobs.Manager
	Automations *automation.Manager
	Persona     PersonaManager
	Clock       clock.Clock

	MaxToolDepth int
	SystemPrompt string

	// SkillPrompt resolves a skill id to its prompt fragment. Optional.
	SkillPrompt func(id string) string
}

// dispatchInfo remembers how a job was dispatched so queued jobs can be
// started later with the same worker setup and chat callbacks.
type dispatchInfo struct {
	cc          ChatContext
	typ         worker.Type
	task        string
	skillPrompt string
}

// Orchestrator owns the top-level loop and the worker dispatch plumbing.
type Orchestrator struct {
	provider       provider.ModelProvider
	workerProvider provider.ModelProvider
	tools          worker.ToolCatalog
	convo          *convo.Store
	jobs           *jobs.Manager
	autos          *automation.Manager
	persona        PersonaManager
	clk            clock.Clock
	maxDepth       int
	systemPrompt   string
	skillPrompt    func(id string) string
	logger         *slog.Logger

	mu         sync.Mutex
	dispatches map[string]*dispatchInfo
	reporters  map[string]*StatusReporter
	notify     Notifier
}

// New creates an orchestrator and installs its job event subscriber. The
// subscriber formats result chunks into the conversation and the chat, and
// drains the queued-job backlog when slots free.
func New(opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WorkerProvider == nil {
		opts.WorkerProvider = opts.Provider
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.MaxToolDepth <= 0 {
		opts.MaxToolDepth = DefaultMaxToolDepth
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}

	o := &Orchestrator{
		provider:       opts.Provider,
		workerProvider: opts.WorkerProvider,
		tools:          opts.Tools,
		convo:          opts.Convo,
		jobs:           opts.Jobs,
		autos:          opts.Automations,
		persona:        opts.Persona,
		clk:            opts.Clock,
		maxDepth:       opts.MaxToolDepth,
		systemPrompt:   opts.SystemPrompt,
		skillPrompt:    opts.SkillPrompt,
		logger:         logger.With("component", "orchestrator"),
		dispatches:     make(map[string]*dispatchInfo),
		reporters:      make(map[string]*StatusReporter),
	}
	o.jobs.Subscribe(o.onJobEvent)
	return o
}

// SetNotifier installs the delivery path for asynchronous job chunks.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notify = n
}

// ProcessMessage runs one orchestrator turn for a chat: append the user
// message, loop the model with the orchestrator tool catalog, and return
// the final reply (already appended to the conversation).
func (o *Orchestrator) ProcessMessage(ctx context.Context, cc ChatContext, text string) (string, error) {
	o.convo.AddMessage(cc.Chat, convo.RoleUser, text)

	system := o.systemPrompt
	if o.skillPrompt != nil {
		if skill := o.convo.ActiveSkill(cc.Chat); skill != "" {
			if frag := o.skillPrompt(skill); frag != "" {
				system += "\n\n" + frag
			}
		}
	}

	messages := toProviderMessages(o.convo.SummarizedHistory(cc.Chat))
	specs := o.toolSpecs()

	for depth := 1; depth <= o.maxDepth; depth++ {
		resp, err := o.provider.Chat(ctx, provider.Request{
			System:   system,
			Messages: messages,
			Tools:    specs,
		})
		if err != nil {
			return "", fmt.Errorf("orchestrator model call: %w", err)
		}

		switch resp.StopReason {
		case provider.StopEndTurn:
			o.convo.AddMessage(cc.Chat, convo.RoleAssistant, resp.Text)
			return resp.Text, nil

		case provider.StopToolUse:
			assistant := resp.RawContent
			if assistant == "" {
				assistant = resp.Text
			}
			messages = append(messages, provider.Message{Role: "assistant", Content: assistant})

			for _, call := range resp.ToolCalls {
				if cc.SendUpdate != nil {
					if _, err := cc.SendUpdate(ctx, "⚡ "+toolSummary(call)); err != nil {
						o.logger.Debug("activity update failed", "error", err)
					}
				}
				result := worker.SerializeResult(o.executeTool(ctx, cc, call))
				envelope := fmt.Sprintf("[tool result: %s]\n%s", call.Name, result)
				o.convo.AddToolResult(cc.Chat, convo.RoleUser, envelope)
				messages = append(messages, provider.Message{Role: "user", Content: envelope})
			}

		default:
			reply := resp.Text
			if reply == "" {
				reply = fallbackReply
			}
			o.convo.AddMessage(cc.Chat, convo.RoleAssistant, reply)
			return reply, nil
		}
	}

	reply := fmt.Sprintf("Reached maximum orchestrator depth (%d).", o.maxDepth)
	o.convo.AddMessage(cc.Chat, convo.RoleAssistant, reply)
	return reply, nil
}

// onJobEvent is the single job lifecycle subscriber: on terminal events it
// finalizes the live status message, writes the result chunk into the
// conversation, notifies the chat, and starts the oldest queued job if a
// slot freed up.
func (o *Orchestrator) onJobEvent(ev jobs.Event) {
	if ev.Kind == jobs.EventStarted {
		return
	}

	chunk := formatJobChunk(ev)

	o.mu.Lock()
	rep := o.reporters[ev.Job.ID]
	delete(o.reporters, ev.Job.ID)
	delete(o.dispatches, ev.Job.ID)
	notify := o.notify
	o.mu.Unlock()

	if rep != nil {
		rep.Finish(terminalHeader(ev))
	}
	o.convo.AddMessage(ev.Job.ChatID, convo.RoleAssistant, chunk)
	if notify != nil {
		notify(ev.Job.ChatID, chunk)
	}

	o.drainQueue()
}

// drainQueue starts queued jobs while slots and dispatch records exist.
func (o *Orchestrator) drainQueue() {
	for {
		queued, ok := o.jobs.OldestQueued()
		if !ok {
			return
		}
		o.mu.Lock()
		d := o.dispatches[queued.ID]
		o.mu.Unlock()
		if d == nil {
			return
		}
		started, ok := o.jobs.Start(queued.ID)
		if !ok {
			return
		}
		o.spawnWorker(started, d)
	}
}

// spawnWorker runs the job's worker on its own goroutine and funnels the
// outcome back through the job manager.
func (o *Orchestrator) spawnWorker(job jobs.Job, d *dispatchInfo) {
	rep := o.reporterFor(job, d)
	runner := worker.NewRunner(worker.Options{
		Provider:    o.workerProvider,
		Tools:       o.tools,
		Type:        d.typ,
		JobID:       job.ID,
		SkillPrompt: d.skillPrompt,
		CancelToken: job.CancelToken,
		RecordProgress: func(line string, llmCalls, toolCalls int, thinking string) {
			o.jobs.RecordProgress(job.ID, line, llmCalls, toolCalls, thinking)
		},
		Callbacks: worker.Callbacks{
			OnProgress: rep.Activity,
			OnComplete: func(text string) {
				o.jobs.Complete(job.ID, text, nil)
			},
			OnError: func(msg string) {
				// A cancelled job is already terminal; Fail is rejected
				// silently and the cancel event stands.
				o.jobs.Fail(job.ID, msg)
			},
		},
	}, o.logger)

	go runner.Run(context.Background(), d.task)
}

// reporterFor lazily creates the job's live status reporter.
func (o *Orchestrator) reporterFor(job jobs.Job, d *dispatchInfo) *StatusReporter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rep, ok := o.reporters[job.ID]; ok {
		return rep
	}
	rep := NewStatusReporter(ReporterOptions{
		JobID:  job.ID,
		Header: fmt.Sprintf("%s %s worker · %s", d.typ.Emoji, d.typ.Name, job.ID),
		Clock:  o.clk,
		Send: func(ctx context.Context, text string) (string, error) {
			if d.cc.SendUpdate == nil {
				return "", nil
			}
			return d.cc.SendUpdate(ctx, text)
		},
		Edit: func(ctx context.Context, messageID, text string) error {
			if d.cc.EditMessage == nil {
				return nil
			}
			return d.cc.EditMessage(ctx, messageID, text)
		},
		OnOpen: func(messageID string) {
			o.jobs.SetStatusMessage(job.ID, messageID)
		},
	}, o.logger)
	o.reporters[job.ID] = rep
	return rep
}

// formatJobChunk renders the asynchronous result message for a terminal
// job event. It always carries the job id.
func formatJobChunk(ev jobs.Event) string {
	j := ev.Job
	switch ev.Kind {
	case jobs.EventCompleted:
		chunk := fmt.Sprintf("✅ %s finished (%s, %.0fs)", j.WorkerType, j.ID, j.DurationS)
		if j.Result != "" {
			chunk += "\n\n" + j.Result
		}
		return chunk
	case jobs.EventFailed:
		return fmt.Sprintf("❌ %s failed (%s): %s", j.WorkerType, j.ID, j.Error)
	case jobs.EventCancelled:
		return fmt.Sprintf("🚫 Cancelled job %s", j.ID)
	default:
		return fmt.Sprintf("job %s: %s", j.ID, j.Status)
	}
}

func terminalHeader(ev jobs.Event) string {
	switch ev.Kind {
	case jobs.EventCompleted:
		return "✅ Done"
	case jobs.EventFailed:
		return "❌ Failed"
	default:
		return "🚫 Cancelled"
	}
}

func toProviderMessages(history []convo.Message) []provider.Message {
	out := make([]provider.Message, len(history))
	for i, m := range history {
		out[i] = provider.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// toolSummary renders the one-line ⚡ activity note for a tool call.
func toolSummary(call provider.ToolCall) string {
	switch call.Name {
	case "dispatch_task":
		wt, _ := call.Input["worker_type"].(string)
		return fmt.Sprintf("dispatching %s worker", wt)
	case "create_automation":
		name, _ := call.Input["name"].(string)
		return fmt.Sprintf("creating automation %q", name)
	default:
		return strings.ReplaceAll(call.Name, "_", " ")
	}
}
