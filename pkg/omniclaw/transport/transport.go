// Package transport defines the chat transport interface the pipeline
// speaks to. Concrete transports (Telegram, console, ...) implement it;
// the core only uses these methods plus the inbound event stream.
package transport

import (
	"context"
	"errors"
)

// ErrDisconnected is returned by sends on a transport that is not connected.
var ErrDisconnected = errors.New("transport disconnected")

// EventKind discriminates inbound events.
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventCallbackQuery EventKind = "callback_query"
	EventReaction      EventKind = "reaction"
)

// Event is a single inbound transport event.
type Event struct {
	Kind      EventKind
	Chat      string
	From      string
	FromName  string
	MessageID string
	Text      string

	// FileID is set when the message carries a document attachment.
	FileID string

	// Emoji is set for reaction events.
	Emoji string
}

// Transport is the outbound surface plus the inbound event stream.
type Transport interface {
	// SendMessage sends text and returns the new message id.
	SendMessage(ctx context.Context, chat, text string) (string, error)

	// EditMessage rewrites a previously sent message in place.
	EditMessage(ctx context.Context, chat, messageID, text string) error

	// SendPhoto sends a local image file with an optional caption.
	SendPhoto(ctx context.Context, chat, path, caption string) error

	// SendChatAction shows a transient presence action ("typing").
	SendChatAction(ctx context.Context, chat, action string) error

	// SendReaction reacts to a message with an emoji.
	SendReaction(ctx context.Context, chat, messageID, emoji string, big bool) error

	// DownloadFile fetches an attachment and returns a local path.
	DownloadFile(ctx context.Context, fileID string) (string, error)

	// Events returns the inbound event stream.
	Events() <-chan Event
}
