package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/provider"
)

// scriptedProvider replays a fixed sequence of responses, recording the
// requests it saw.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []provider.Response
	errs      []error
	requests  []provider.Request
	block     chan struct{} // when set, Chat waits for ctx or the channel
}

func (p *scriptedProvider) Chat(ctx context.Context, req provider.Request) (provider.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	call := len(p.requests) - 1
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return provider.Response{}, ctx.Err()
		case <-block:
		}
	}
	if call < len(p.errs) && p.errs[call] != nil {
		return provider.Response{}, p.errs[call]
	}
	if call >= len(p.responses) {
		return provider.Response{}, errors.New("script exhausted")
	}
	return p.responses[call], nil
}

func (p *scriptedProvider) Ping(ctx context.Context) error { return nil }

// fakeCatalog records executed calls and returns canned results.
type fakeCatalog struct {
	mu      sync.Mutex
	specs   []provider.ToolSpec
	results map[string]any
	errs    map[string]error
	calls   []string
}

func (c *fakeCatalog) Specs() []provider.ToolSpec { return c.specs }

func (c *fakeCatalog) Execute(ctx context.Context, name string, input map[string]any) (any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
	if err := c.errs[name]; err != nil {
		return nil, err
	}
	return c.results[name], nil
}

type outcome struct {
	mu       sync.Mutex
	complete string
	errMsg   string
	progress []string
	done     chan struct{}
}

func newOutcome() *outcome { return &outcome{done: make(chan struct{})} }

func (o *outcome) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(line string) {
			o.mu.Lock()
			o.progress = append(o.progress, line)
			o.mu.Unlock()
		},
		OnComplete: func(text string) {
			o.mu.Lock()
			o.complete = text
			o.mu.Unlock()
			close(o.done)
		},
		OnError: func(msg string) {
			o.mu.Lock()
			o.errMsg = msg
			o.mu.Unlock()
			close(o.done)
		},
	}
}

func codingType(t *testing.T) Type {
	t.Helper()
	typ, ok := Lookup("coding")
	if !ok {
		t.Fatal("coding worker type missing from catalog")
	}
	return typ
}

func TestRunnerCompletesAfterToolRound(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{responses: []provider.Response{
		{
			StopReason: provider.StopToolUse,
			Text:       "running the build",
			ToolCalls: []provider.ToolCall{
				{ID: "t1", Name: "bash", Input: map[string]any{"command": "go build ./..."}},
			},
		},
		{StopReason: provider.StopEndTurn, Text: "build passed, all done"},
	}}
	catalog := &fakeCatalog{
		specs:   []provider.ToolSpec{{Name: "bash"}, {Name: "browse"}},
		results: map[string]any{"bash": map[string]any{"stdout": "ok", "exit_code": 0}},
	}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:  prov,
		Tools:     catalog,
		Type:      codingType(t),
		JobID:     "job1",
		Callbacks: out.callbacks(),
	}, nil)
	r.Run(context.Background(), "build the project")

	if out.complete != "build passed, all done" {
		t.Fatalf("complete = %q", out.complete)
	}
	if out.errMsg != "" {
		t.Fatalf("unexpected error: %q", out.errMsg)
	}
	if len(catalog.calls) != 1 || catalog.calls[0] != "bash" {
		t.Fatalf("tool calls = %v", catalog.calls)
	}
	if len(out.progress) != 1 || !strings.HasPrefix(out.progress[0], "bash: go build") {
		t.Fatalf("progress = %v", out.progress)
	}

	// Tool result fed back as a user-role message on the second request.
	second := prov.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "user" || !strings.Contains(last.Content, "[tool result: bash]") {
		t.Fatalf("tool result message = %+v", last)
	}
	if !strings.Contains(last.Content, `"stdout":"ok"`) {
		t.Fatalf("tool result content = %q", last.Content)
	}
}

func TestRunnerScopesToolsToAllowList(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{responses: []provider.Response{
		{StopReason: provider.StopEndTurn, Text: "done"},
	}}
	catalog := &fakeCatalog{specs: []provider.ToolSpec{
		{Name: "bash"}, {Name: "browse"}, {Name: "git"}, {Name: "screenshot"},
	}}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:  prov,
		Tools:     catalog,
		Type:      codingType(t),
		Callbacks: out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	var names []string
	for _, spec := range prov.requests[0].Tools {
		names = append(names, spec.Name)
	}
	// coding allows bash and git from this catalog, not browse/screenshot.
	if len(names) != 2 || names[0] != "bash" || names[1] != "git" {
		t.Fatalf("scoped tools = %v", names)
	}
}

func TestRunnerRejectsDisallowedToolCall(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{responses: []provider.Response{
		{
			StopReason: provider.StopToolUse,
			ToolCalls:  []provider.ToolCall{{ID: "t1", Name: "browse", Input: map[string]any{"url": "https://example.com"}}},
		},
		{StopReason: provider.StopEndTurn, Text: "ok"},
	}}
	catalog := &fakeCatalog{specs: []provider.ToolSpec{{Name: "browse"}}}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:  prov,
		Tools:     catalog,
		Type:      codingType(t),
		Callbacks: out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	if len(catalog.calls) != 0 {
		t.Fatalf("disallowed tool was executed: %v", catalog.calls)
	}
	last := prov.requests[1].Messages[len(prov.requests[1].Messages)-1]
	if !strings.Contains(last.Content, "not available to the coding worker") {
		t.Fatalf("rejection result = %q", last.Content)
	}
}

func TestRunnerToolErrorFedBackAsValue(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{responses: []provider.Response{
		{
			StopReason: provider.StopToolUse,
			ToolCalls:  []provider.ToolCall{{ID: "t1", Name: "bash", Input: map[string]any{"command": "false"}}},
		},
		{StopReason: provider.StopEndTurn, Text: "recovered"},
	}}
	catalog := &fakeCatalog{
		specs: []provider.ToolSpec{{Name: "bash"}},
		errs:  map[string]error{"bash": errors.New("exit status 1")},
	}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:  prov,
		Tools:     catalog,
		Type:      codingType(t),
		Callbacks: out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	if out.complete != "recovered" {
		t.Fatalf("complete = %q, err = %q", out.complete, out.errMsg)
	}
	last := prov.requests[1].Messages[len(prov.requests[1].Messages)-1]
	if !strings.Contains(last.Content, "exit status 1") {
		t.Fatalf("error result = %q", last.Content)
	}
}

func TestRunnerOversizedToolResultTruncated(t *testing.T) {
	t.Parallel()

	huge := strings.Repeat("x", 8000)
	prov := &scriptedProvider{responses: []provider.Response{
		{
			StopReason: provider.StopToolUse,
			ToolCalls:  []provider.ToolCall{{ID: "t1", Name: "bash", Input: map[string]any{"command": "cat big"}}},
		},
		{StopReason: provider.StopEndTurn, Text: "done"},
	}}
	catalog := &fakeCatalog{
		specs:   []provider.ToolSpec{{Name: "bash"}},
		results: map[string]any{"bash": map[string]any{"stdout": huge, "exit_code": 0}},
	}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:  prov,
		Tools:     catalog,
		Type:      codingType(t),
		Callbacks: out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	last := prov.requests[1].Messages[len(prov.requests[1].Messages)-1]
	body := strings.TrimPrefix(last.Content, "[tool result: bash]\n")
	if len(body) > MaxResultLength {
		t.Fatalf("result length %d exceeds cap", len(body))
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		t.Fatalf("result not a JSON envelope: %v", err)
	}
	if !strings.Contains(envelope["stdout"].(string), "[truncated 7500 chars]") {
		t.Fatalf("stdout not field-truncated: %.120q", envelope["stdout"])
	}
	if envelope["exit_code"].(float64) != 0 {
		t.Fatal("small field lost during truncation")
	}
}

func TestRunnerDepthExhausted(t *testing.T) {
	t.Parallel()

	loop := provider.Response{
		StopReason: provider.StopToolUse,
		ToolCalls:  []provider.ToolCall{{ID: "t", Name: "bash", Input: map[string]any{"command": "true"}}},
	}
	prov := &scriptedProvider{responses: []provider.Response{loop, loop, loop, loop}}
	catalog := &fakeCatalog{
		specs:   []provider.ToolSpec{{Name: "bash"}},
		results: map[string]any{"bash": "ok"},
	}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:     prov,
		Tools:        catalog,
		Type:         codingType(t),
		MaxToolDepth: 3,
		Callbacks:    out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	if out.errMsg != "reached maximum tool depth (3)" {
		t.Fatalf("err = %q", out.errMsg)
	}
	if len(prov.requests) != 3 {
		t.Fatalf("model calls = %d, want 3", len(prov.requests))
	}
}

func TestRunnerUnexpectedStopReason(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{responses: []provider.Response{
		{StopReason: provider.StopOther, Text: "???"},
	}}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:  prov,
		Tools:     &fakeCatalog{},
		Type:      codingType(t),
		Callbacks: out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	if out.errMsg != "unexpected response from worker model" {
		t.Fatalf("err = %q", out.errMsg)
	}
}

func TestRunnerCancelTokenAbortsPromptly(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{block: make(chan struct{})}
	cancelCh := make(chan struct{})
	out := newOutcome()

	r := NewRunner(Options{
		Provider:    prov,
		Tools:       &fakeCatalog{},
		Type:        codingType(t),
		CancelToken: cancelCh,
		Callbacks:   out.callbacks(),
	}, nil)
	go r.Run(context.Background(), "task")

	// Let the model call park, then trip the token.
	time.Sleep(20 * time.Millisecond)
	close(cancelCh)

	select {
	case <-out.done:
	case <-time.After(time.Second):
		t.Fatal("runner did not abort within 1s of cancellation")
	}
	if out.errMsg != "cancelled" {
		t.Fatalf("err = %q, want cancelled", out.errMsg)
	}
}

func TestRunnerTimeout(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{block: make(chan struct{})}
	out := newOutcome()

	typ := codingType(t)
	typ.Timeout = 30 * time.Millisecond
	r := NewRunner(Options{
		Provider:  prov,
		Tools:     &fakeCatalog{},
		Type:      typ,
		Callbacks: out.callbacks(),
	}, nil)
	go r.Run(context.Background(), "task")

	select {
	case <-out.done:
	case <-time.After(time.Second):
		t.Fatal("runner did not time out")
	}
	if out.errMsg != "timeout" {
		t.Fatalf("err = %q, want timeout", out.errMsg)
	}
}

func TestRunnerSkillPromptAppended(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{responses: []provider.Response{
		{StopReason: provider.StopEndTurn, Text: "done"},
	}}
	out := newOutcome()

	r := NewRunner(Options{
		Provider:    prov,
		Tools:       &fakeCatalog{},
		Type:        codingType(t),
		SkillPrompt: "Prefer table-driven tests.",
		Callbacks:   out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	system := prov.requests[0].System
	if !strings.HasPrefix(system, codingType(t).Prompt) {
		t.Fatalf("system prompt does not start with the worker template: %.80q", system)
	}
	if !strings.HasSuffix(system, "Prefer table-driven tests.") {
		t.Fatalf("skill prompt not appended: %.80q", system)
	}
}

func TestRunnerRecordsProgressCounters(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{responses: []provider.Response{
		{
			StopReason: provider.StopToolUse,
			Text:       "checking disk",
			ToolCalls: []provider.ToolCall{
				{ID: "t1", Name: "bash", Input: map[string]any{"command": "df -h"}},
				{ID: "t2", Name: "bash", Input: map[string]any{"command": "du -sh ."}},
			},
		},
		{StopReason: provider.StopEndTurn, Text: "done"},
	}}
	catalog := &fakeCatalog{
		specs:   []provider.ToolSpec{{Name: "bash"}},
		results: map[string]any{"bash": "ok"},
	}
	out := newOutcome()

	var llm, tool int
	var lastThinking string
	r := NewRunner(Options{
		Provider: prov,
		Tools:    catalog,
		Type:     codingType(t),
		RecordProgress: func(line string, llmCalls, toolCalls int, thinking string) {
			llm += llmCalls
			tool += toolCalls
			if thinking != "" {
				lastThinking = thinking
			}
		},
		Callbacks: out.callbacks(),
	}, nil)
	r.Run(context.Background(), "task")

	if llm != 2 || tool != 2 {
		t.Fatalf("counters llm=%d tool=%d, want 2/2", llm, tool)
	}
	if lastThinking != "done" {
		t.Fatalf("lastThinking = %q", lastThinking)
	}
}

func TestSerializeResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "OK"},
		{"string", "hello", "hello"},
		{"bytes", []byte("raw"), "raw"},
		{"error", errors.New("boom"), "Error: boom"},
		{"struct", map[string]any{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SerializeResult(tt.in); got != tt.want {
				t.Fatalf("SerializeResult(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSerializeResultHardCap(t *testing.T) {
	t.Parallel()

	// A long plain string has no envelope to field-truncate.
	s := SerializeResult(strings.Repeat("y", 5000))
	if len(s) != MaxResultLength {
		t.Fatalf("len = %d, want %d", len(s), MaxResultLength)
	}
}

func TestSerializeResultMultipleLargeFields(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"stdout": strings.Repeat("a", 2000),
		"stderr": strings.Repeat("b", 2000),
		"code":   1,
	}
	s := SerializeResult(in)
	if len(s) > MaxResultLength {
		t.Fatalf("len = %d", len(s))
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(s), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"stdout", "stderr"} {
		v := envelope[field].(string)
		if !strings.Contains(v, fmt.Sprintf("[truncated %d chars]", 1500)) {
			t.Fatalf("%s not truncated: %.80q", field, v)
		}
	}
}

func TestProgressLineTruncation(t *testing.T) {
	t.Parallel()

	line := progressLine(provider.ToolCall{
		Name:  "bash",
		Input: map[string]any{"command": strings.Repeat("c", 200)},
	})
	if len(line) > progressLineMax+2 { // ellipsis rune is multi-byte
		t.Fatalf("line length = %d", len(line))
	}
	if !strings.HasSuffix(line, "…") {
		t.Fatalf("line not ellipsized: %q", line)
	}
}
