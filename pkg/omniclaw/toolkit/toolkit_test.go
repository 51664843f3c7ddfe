package toolkit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCatalogSpecsSorted(t *testing.T) {
	t.Parallel()

	c := NewDefault(Options{Workspace: t.TempDir()}, nil)
	specs := c.Specs()
	if len(specs) == 0 {
		t.Fatal("no specs registered")
	}
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Name >= specs[i].Name {
			t.Fatalf("specs not sorted: %q before %q", specs[i-1].Name, specs[i].Name)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if _, err := c.Execute(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestFileToolsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewDefault(Options{Workspace: dir}, nil)
	ctx := context.Background()

	if _, err := c.Execute(ctx, "write_file", map[string]any{
		"path":    "notes/hello.txt",
		"content": "line one\nline two\nline three",
	}); err != nil {
		t.Fatalf("write_file: %v", err)
	}

	out, err := c.Execute(ctx, "read_file", map[string]any{"path": "notes/hello.txt"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	content := out.(map[string]any)["content"].(string)
	if content != "line one\nline two\nline three" {
		t.Fatalf("content = %q", content)
	}

	// Offset/limit slicing.
	out, err = c.Execute(ctx, "read_file", map[string]any{
		"path": "notes/hello.txt", "offset": float64(2), "limit": float64(1),
	})
	if err != nil {
		t.Fatalf("read_file offset: %v", err)
	}
	if got := out.(map[string]any)["content"].(string); got != "line two" {
		t.Fatalf("sliced content = %q", got)
	}

	if _, err := c.Execute(ctx, "edit_file", map[string]any{
		"path":     "notes/hello.txt",
		"old_text": "line two",
		"new_text": "line 2",
	}); err != nil {
		t.Fatalf("edit_file: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "notes/hello.txt"))
	if err != nil {
		t.Fatalf("reading edited file: %v", err)
	}
	if !strings.Contains(string(data), "line 2") {
		t.Fatalf("edit not applied: %q", data)
	}
}

func TestEditFileRequiresUniqueMatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewDefault(Options{Workspace: dir}, nil)
	ctx := context.Background()

	if _, err := c.Execute(ctx, "write_file", map[string]any{
		"path": "dup.txt", "content": "same\nsame\n",
	}); err != nil {
		t.Fatalf("write_file: %v", err)
	}
	if _, err := c.Execute(ctx, "edit_file", map[string]any{
		"path": "dup.txt", "old_text": "same", "new_text": "other",
	}); err == nil {
		t.Fatal("expected error for ambiguous old_text")
	}
	if _, err := c.Execute(ctx, "edit_file", map[string]any{
		"path": "dup.txt", "old_text": "missing", "new_text": "other",
	}); err == nil {
		t.Fatal("expected error for absent old_text")
	}
}

func TestBashToolTracksWorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	c := NewDefault(Options{Workspace: dir}, nil)
	ctx := context.Background()

	if _, err := c.Execute(ctx, "bash", map[string]any{"command": "cd sub"}); err != nil {
		t.Fatalf("bash cd: %v", err)
	}
	out, err := c.Execute(ctx, "bash", map[string]any{"command": "pwd"})
	if err != nil {
		t.Fatalf("bash pwd: %v", err)
	}
	result := out.(map[string]any)
	pwd, _ := result["output"].(string)
	if resolved, err := filepath.EvalSymlinks(sub); err == nil {
		sub = resolved
	}
	if strings.TrimSpace(pwd) != sub {
		t.Fatalf("pwd = %q, want %q", pwd, sub)
	}
	if result["exit_code"] != 0 {
		t.Fatalf("exit_code = %v", result["exit_code"])
	}
}

func TestBashToolReportsExitCode(t *testing.T) {
	t.Parallel()

	c := NewDefault(Options{Workspace: t.TempDir()}, nil)
	out, err := c.Execute(context.Background(), "bash", map[string]any{"command": "exit 3"})
	if err != nil {
		t.Fatalf("bash: %v", err)
	}
	if got := out.(map[string]any)["exit_code"]; got != 3 {
		t.Fatalf("exit_code = %v, want 3", got)
	}
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	html := `<html><head><style>p{color:red}</style><script>var x=1;</script></head>
<body><h1>Title</h1><p>Hello &amp; welcome</p></body></html>`
	text := htmlToText(html)
	if strings.Contains(text, "color:red") || strings.Contains(text, "var x") {
		t.Fatalf("script/style leaked into text: %q", text)
	}
	if !strings.Contains(text, "Title") || !strings.Contains(text, "Hello & welcome") {
		t.Fatalf("text = %q", text)
	}
}

type fakeSearcher struct{ results []string }

func (f fakeSearcher) SearchMemories(_ context.Context, _ string, _ int) ([]string, error) {
	return f.results, nil
}

func TestSearchMemoryTool(t *testing.T) {
	t.Parallel()

	c := NewDefault(Options{
		Workspace: t.TempDir(),
		Memory:    fakeSearcher{results: []string{"owner likes tea"}},
	}, nil)
	out, err := c.Execute(context.Background(), "search_memory", map[string]any{"query": "tea"})
	if err != nil {
		t.Fatalf("search_memory: %v", err)
	}
	result := out.(map[string]any)
	if result["count"] != 1 {
		t.Fatalf("count = %v", result["count"])
	}
}
