// console.go implements a terminal-backed transport for the local chat
// REPL and for tests: outbound messages print to a writer, inbound events
// are injected programmatically.
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ConsoleChat is the chat id used by the local console session.
const ConsoleChat = "console"

// Console is an in-process Transport. Safe for concurrent use.
type Console struct {
	out    io.Writer
	events chan Event

	mu     sync.Mutex
	seq    int
	closed bool
}

// NewConsole creates a console transport writing outbound messages to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:    out,
		events: make(chan Event, 64),
	}
}

var _ Transport = (*Console)(nil)

// Inject delivers one inbound user message.
func (c *Console) Inject(chat, from, text string) {
	c.events <- Event{
		Kind: EventMessage,
		Chat: chat,
		From: from,
		Text: text,
	}
}

// Close ends the event stream.
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

func (c *Console) SendMessage(ctx context.Context, chat, text string) (string, error) {
	c.mu.Lock()
	c.seq++
	id := fmt.Sprintf("m%d", c.seq)
	c.mu.Unlock()

	fmt.Fprintf(c.out, "%s\n", text)
	return id, nil
}

func (c *Console) EditMessage(ctx context.Context, chat, messageID, text string) error {
	fmt.Fprintf(c.out, "[edit %s]\n%s\n", messageID, text)
	return nil
}

func (c *Console) SendPhoto(ctx context.Context, chat, path, caption string) error {
	fmt.Fprintf(c.out, "[photo %s] %s\n", path, caption)
	return nil
}

func (c *Console) SendChatAction(ctx context.Context, chat, action string) error {
	return nil
}

func (c *Console) SendReaction(ctx context.Context, chat, messageID, emoji string, big bool) error {
	fmt.Fprintf(c.out, "[reaction %s on %s]\n", emoji, messageID)
	return nil
}

func (c *Console) DownloadFile(ctx context.Context, fileID string) (string, error) {
	return "", fmt.Errorf("console transport cannot download files")
}

func (c *Console) Events() <-chan Event {
	return c.events
}
