// files.go registers the read_file, write_file, and edit_file tools.
package toolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxReadBytes bounds read_file output.
const maxReadBytes = 100 * 1024

func registerFileTools(c *Catalog, workspace string) {
	resolve := func(p string) string {
		if filepath.IsAbs(p) || workspace == "" {
			return p
		}
		return filepath.Join(workspace, p)
	}

	c.Register(
		spec("read_file", "Read a text file. Returns up to 100KB of content.", map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path (absolute or workspace-relative)",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Line number to start from (1-based)",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to return",
			},
		}, "path"),
		func(_ context.Context, args map[string]any) (any, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return nil, err
			}
			content, err := os.ReadFile(resolve(path))
			if err != nil {
				return nil, fmt.Errorf("reading file: %w", err)
			}

			text := string(content)
			offset := intArg(args, "offset", 1) - 1
			limit := intArg(args, "limit", 0)
			if offset > 0 || limit > 0 {
				lines := strings.Split(text, "\n")
				if offset >= len(lines) {
					return map[string]any{"content": ""}, nil
				}
				lines = lines[offset:]
				if limit > 0 && limit < len(lines) {
					lines = lines[:limit]
				}
				text = strings.Join(lines, "\n")
			}
			if len(text) > maxReadBytes {
				text = text[:maxReadBytes] + "\n... (truncated)"
			}
			return map[string]any{"content": text}, nil
		},
	)

	c.Register(
		spec("write_file", "Create or overwrite a file with the given content. Parent directories are created.", map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path (absolute or workspace-relative)",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full file content",
			},
		}, "path", "content"),
		func(_ context.Context, args map[string]any) (any, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return nil, err
			}
			content, _ := args["content"].(string)
			full := resolve(path)
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return nil, fmt.Errorf("creating directory: %w", err)
			}
			if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("writing file: %w", err)
			}
			return map[string]any{"path": full, "bytes": len(content)}, nil
		},
	)

	c.Register(
		spec("edit_file", "Replace an exact text fragment inside a file. The fragment must appear exactly once.", map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path (absolute or workspace-relative)",
			},
			"old_text": map[string]any{
				"type":        "string",
				"description": "Exact text to replace",
			},
			"new_text": map[string]any{
				"type":        "string",
				"description": "Replacement text",
			},
		}, "path", "old_text", "new_text"),
		func(_ context.Context, args map[string]any) (any, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return nil, err
			}
			oldText, err := stringArg(args, "old_text")
			if err != nil {
				return nil, err
			}
			newText, _ := args["new_text"].(string)

			full := resolve(path)
			content, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("reading file: %w", err)
			}
			text := string(content)
			switch strings.Count(text, oldText) {
			case 0:
				return nil, fmt.Errorf("old_text not found in %s", path)
			case 1:
			default:
				return nil, fmt.Errorf("old_text appears more than once in %s; provide more context", path)
			}
			text = strings.Replace(text, oldText, newText, 1)
			if err := os.WriteFile(full, []byte(text), 0o644); err != nil {
				return nil, fmt.Errorf("writing file: %w", err)
			}
			return map[string]any{"path": full}, nil
		},
	)
}
