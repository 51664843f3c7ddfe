// Package pipeline implements the chat-facing message pipeline: owner
// registration and allow-list auth, pending-input state machines, the
// per-chat batch window, the strict per-chat FIFO queue, typing indicators,
// human-like send pacing, and the user command surface.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/automation"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/convo"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/jobs"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/orchestrator"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/skills"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/transport"
)

// rejectionNotice is the fixed reply for unauthorized users.
const rejectionNotice = "Sorry, this assistant is private and you are not on its allow list."

// AgentFunc runs one orchestrator turn for a chat.
type AgentFunc func(ctx context.Context, cc orchestrator.ChatContext, text string) (string, error)

// OwnerStore persists the registered owner and credentials. Implemented by
// config.EnvStore.
type OwnerStore interface {
	OwnerID() string
	SetOwnerID(id string) error
	SaveCredential(name, value string) error
}

// ProviderSelector records the chosen provider/model for a role.
// Implemented by the serve wiring; nil disables the brain/orchestrator
// commands.
type ProviderSelector interface {
	SaveProvider(role, provider, model string) error
}

// LifeEngine is the narrow surface the life commands need.
type LifeEngine interface {
	Pause()
	Resume()
	TriggerNow(kind string) error
	Paused() bool
}

// MemoryManager is the narrow memory surface used by commands.
type MemoryManager interface {
	RecentMemories(ctx context.Context, limit int) ([]string, error)
	SearchMemories(ctx context.Context, query string, limit int) ([]string, error)
}

// JournalManager is the narrow journal surface used by commands.
type JournalManager interface {
	EntryFor(ctx context.Context, date string) (string, error)
	ListDates(ctx context.Context, limit int) ([]string, error)
}

// CharacterGenerator turns collected Q/A answers into a character profile.
type CharacterGenerator interface {
	Generate(ctx context.Context, answers []string) (string, error)
}

// Options wires a Pipeline.
type Options struct {
	Transport transport.Transport
	Agent     AgentFunc
	Convo     *convo.Store
	Jobs      *jobs.Manager
	Autos     *automation.Manager
	Skills    *skills.Store
	Owner     OwnerStore
	Providers ProviderSelector
	Life      LifeEngine
	Memory    MemoryManager
	Journal   JournalManager
	Character CharacterGenerator
	Clock     clock.Clock

	// BatchWindow is the sliding coalescing window (default 3s).
	BatchWindow time.Duration

	// Allowlist is additional user ids permitted beyond the owner.
	Allowlist []string

	// AdminChat optionally receives unauthorized-access notices.
	AdminChat string

	// DisableDelays turns off the human-like send pacing (used by the
	// console transport and the life engine path).
	DisableDelays bool
}

// Pipeline is the inbound/outbound message hub for all chats.
type Pipeline struct {
	transport transport.Transport
	agent     AgentFunc
	convo     *convo.Store
	jobs      *jobs.Manager
	autos     *automation.Manager
	skills    *skills.Store
	owner     OwnerStore
	providers ProviderSelector
	life      LifeEngine
	memory    MemoryManager
	journal   JournalManager
	character CharacterGenerator
	clk       clock.Clock
	batch     *batcher
	allow     map[string]bool
	adminChat string
	sleep     func(time.Duration)
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingInput

	queueMu    sync.Mutex
	queueTails map[string]chan struct{}
	queueDepth map[string]int
}

// New creates a pipeline. Call Run to start consuming transport events.
func New(opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	allow := make(map[string]bool, len(opts.Allowlist))
	for _, id := range opts.Allowlist {
		allow[id] = true
	}
	sleep := time.Sleep
	if opts.DisableDelays {
		sleep = func(time.Duration) {}
	}
	return &Pipeline{
		transport:  opts.Transport,
		agent:      opts.Agent,
		convo:      opts.Convo,
		jobs:       opts.Jobs,
		autos:      opts.Autos,
		skills:     opts.Skills,
		owner:      opts.Owner,
		providers:  opts.Providers,
		life:       opts.Life,
		memory:     opts.Memory,
		journal:    opts.Journal,
		character:  opts.Character,
		clk:        clk,
		batch:      newBatcher(opts.BatchWindow, clk),
		allow:      allow,
		adminChat:  opts.AdminChat,
		sleep:      sleep,
		logger:     logger.With("component", "pipeline"),
		pending:    make(map[string]*pendingInput),
		queueTails: make(map[string]chan struct{}),
		queueDepth: make(map[string]int),
	}
}

// Run consumes transport events until the context is cancelled or the
// event stream closes.
func (p *Pipeline) Run(ctx context.Context) error {
	events := p.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ctx, ev)
		}
	}
}

func (p *Pipeline) handleEvent(ctx context.Context, ev transport.Event) {
	if ev.Kind != transport.EventMessage {
		// Callback queries and reactions carry no pipeline semantics yet.
		p.logger.Debug("ignoring event", "kind", ev.Kind, "chat", ev.Chat)
		return
	}
	if !p.authorize(ctx, ev) {
		return
	}

	// Pending-input machines consume the next text verbatim; they must
	// never be batched or routed as commands.
	if p.hasPending(ev.Chat) {
		p.enqueue(ev.Chat, func() {
			p.handlePending(ctx, ev)
		})
		return
	}

	if cmd, ok := parseCommand(ev.Text); ok {
		// Commands bypass batching.
		p.enqueue(ev.Chat, func() {
			p.runCommand(ctx, ev, cmd)
		})
		return
	}

	resolution := p.batch.Add(ev.Chat, ev.Text)
	go func() {
		merged := <-resolution
		if merged == skipResolution {
			return
		}
		p.enqueue(ev.Chat, func() {
			p.process(ctx, ev.Chat, ev.From, merged)
		})
	}()
}

// authorize registers the first-ever user as owner, then enforces the
// allow-list. Unauthorized messages get the fixed rejection and an
// optional admin relay.
func (p *Pipeline) authorize(ctx context.Context, ev transport.Event) bool {
	owner := p.owner.OwnerID()
	if owner == "" {
		if err := p.owner.SetOwnerID(ev.From); err != nil {
			p.logger.Error("owner registration failed", "error", err)
			return false
		}
		p.logger.Info("owner registered", "user", ev.From)
		return true
	}
	if ev.From == owner || p.allow[ev.From] {
		return true
	}

	p.send(ctx, ev.Chat, rejectionNotice)
	if p.adminChat != "" {
		notice := fmt.Sprintf("Unauthorized message from %s (%s): %s", ev.FromName, ev.From, ev.Text)
		if _, err := p.transport.SendMessage(ctx, p.adminChat, notice); err != nil {
			p.logger.Debug("admin relay failed", "error", err)
		}
	}
	return false
}

// enqueue chains fn behind the chat's in-flight work: strict FIFO, each
// task awaits the prior task regardless of outcome. The map entry is
// purged when the chain drains.
func (p *Pipeline) enqueue(chat string, fn func()) {
	p.queueMu.Lock()
	prev := p.queueTails[chat]
	done := make(chan struct{})
	p.queueTails[chat] = done
	p.queueDepth[chat]++
	p.queueMu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		fn()
		close(done)

		p.queueMu.Lock()
		p.queueDepth[chat]--
		if p.queueDepth[chat] == 0 {
			delete(p.queueTails, chat)
			delete(p.queueDepth, chat)
		}
		p.queueMu.Unlock()
	}()
}

// QueuedChats reports how many chats currently hold an active chain.
func (p *Pipeline) QueuedChats() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queueTails)
}

// process runs one orchestrator turn with typing indication and delivers
// the reply with human pacing.
func (p *Pipeline) process(ctx context.Context, chat, user, text string) {
	typing := p.startTyping(chat)
	defer typing.stop()

	reply, err := p.agent(ctx, p.chatContext(chat, user), text)
	if err != nil {
		p.logger.Error("agent turn failed", "chat", chat, "error", err)
		p.send(ctx, chat, "⚠️ Something went wrong handling that message. Please try again.")
		return
	}
	p.sendReply(ctx, chat, reply)
}

// RunAgent executes a synthetic prompt through the same per-chat FIFO as
// live messages. Used by the automation manager and the life engine.
func (p *Pipeline) RunAgent(ctx context.Context, chat, prompt string) error {
	errCh := make(chan error, 1)
	p.enqueue(chat, func() {
		reply, err := p.agent(ctx, p.chatContext(chat, ""), prompt)
		if err != nil {
			errCh <- err
			return
		}
		if chat != convo.LifeChat {
			p.Notify(chat, reply)
		}
		errCh <- nil
	})
	return <-errCh
}

// chatContext builds the transport callback surface handed to the agent.
func (p *Pipeline) chatContext(chat, user string) orchestrator.ChatContext {
	return orchestrator.ChatContext{
		Chat: chat,
		User: user,
		SendUpdate: func(ctx context.Context, text string) (string, error) {
			return p.transport.SendMessage(ctx, chat, text)
		},
		EditMessage: func(ctx context.Context, messageID, text string) error {
			return p.transport.EditMessage(ctx, chat, messageID, text)
		},
		SendPhoto: func(ctx context.Context, path, caption string) error {
			return p.transport.SendPhoto(ctx, chat, path, caption)
		},
	}
}

func (p *Pipeline) hasPending(chat string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[chat]
	return ok
}
