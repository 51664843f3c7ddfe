// Package provider defines the model provider interface consumed by the
// orchestrator loop and the worker runtime. The core never speaks HTTP to
// an LLM API directly; concrete providers live behind this interface.
package provider

import "context"

// StopReason classifies why a model turn ended.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
	StopOther   StopReason = "other"
)

// Message is a single prompt message.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Request is a single chat call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Response is the parsed model reply.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	RawContent string
	StopReason StopReason
}

// ModelProvider is the collaborator interface for a reasoning model.
type ModelProvider interface {
	// Chat runs one model turn. Implementations must honor ctx cancellation
	// by aborting any in-flight streaming read.
	Chat(ctx context.Context, req Request) (Response, error)

	// Ping verifies the provider is reachable and credentialed.
	Ping(ctx context.Context) error
}
