// openai.go implements ModelProvider over the OpenAI-compatible chat
// completions API. The same wire format works against OpenAI, Anthropic's
// compatibility endpoint, GLM (api.z.ai), and any compatible proxy, so one
// client covers every configurable provider name.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// baseURLs maps provider names to their OpenAI-compatible endpoints.
var baseURLs = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"anthropic": "https://api.anthropic.com/v1",
	"glm":       "https://api.z.ai/api/paas/v4",
}

// OpenAIClient speaks the OpenAI-compatible chat completions wire format.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ModelProvider = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the named provider. Unknown provider
// names fall back to the OpenAI endpoint; BaseURL in the environment is not
// consulted here, callers pass overrides via NewOpenAIClientURL.
func NewOpenAIClient(providerName, model, apiKey string, logger *slog.Logger) *OpenAIClient {
	baseURL, ok := baseURLs[strings.ToLower(providerName)]
	if !ok {
		baseURL = baseURLs["openai"]
	}
	return NewOpenAIClientURL(baseURL, model, apiKey, logger)
}

// NewOpenAIClientURL creates a client against an explicit base URL.
func NewOpenAIClientURL(baseURL, model, apiKey string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger.With("component", "llm", "model", model),
	}
}

// ---------- Wire types ----------

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat runs one model turn.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, fmt.Errorf("API key not configured")
	}

	body := wireRequest{Model: c.model}
	if req.System != "" {
		body.Messages = append(body.Messages, wireMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	for _, spec := range req.Tools {
		var t wireTool
		t.Type = "function"
		t.Function.Name = spec.Name
		t.Function.Description = spec.Description
		t.Function.Parameters = spec.InputSchema
		body.Tools = append(body.Tools, t)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("chat request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("API returned %d: %s", httpResp.StatusCode, truncateBody(respBody))
	}

	var parsed wireResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("no response from model")
	}
	choice := parsed.Choices[0]

	c.logger.Debug("chat completion done",
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", parsed.Usage.PromptTokens,
		"completion_tokens", parsed.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
	)

	resp := Response{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: mapStopReason(choice.FinishReason, len(choice.Message.ToolCalls)),
	}
	for _, call := range choice.Message.ToolCalls {
		input := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				c.logger.Warn("unparseable tool arguments", "tool", call.Function.Name, "error", err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}
	if rawMsg, err := json.Marshal(choice.Message); err == nil {
		resp.RawContent = string(rawMsg)
	}
	return resp, nil
}

// Ping verifies credentials with a minimal one-token request.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	_, err := c.Chat(ctx, Request{
		Messages: []Message{{Role: "user", Content: "ping"}},
	})
	return err
}

func mapStopReason(finish string, toolCalls int) StopReason {
	if toolCalls > 0 {
		return StopToolUse
	}
	switch finish {
	case "stop", "end_turn", "length":
		return StopEndTurn
	case "tool_calls", "tool_use":
		return StopToolUse
	default:
		return StopOther
	}
}

func truncateBody(b []byte) string {
	const max = 500
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
