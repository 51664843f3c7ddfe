// shell.go registers the bash and git tools. Commands run directly on the
// host as the current user; per-call timeouts bound runaway commands.
package toolkit

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultCommandTimeout = 120 * time.Second
	maxCommandTimeout     = 600 * time.Second

	// maxOutputBytes bounds captured command output.
	maxOutputBytes = 100 * 1024
)

// shellState tracks the working directory between bash calls so cd persists.
type shellState struct {
	mu  sync.Mutex
	cwd string
}

func registerShellTools(c *Catalog, workspace string) {
	state := &shellState{cwd: workspace}

	c.Register(
		spec("bash", "Execute a bash command on the host machine. cd is tracked between calls.", map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Bash command to execute",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (default 120, max 600)",
			},
		}, "command"),
		func(ctx context.Context, args map[string]any) (any, error) {
			command, err := stringArg(args, "command")
			if err != nil {
				return nil, err
			}
			timeout := time.Duration(intArg(args, "timeout_seconds", 120)) * time.Second
			if timeout > maxCommandTimeout {
				timeout = maxCommandTimeout
			}
			return state.run(ctx, command, timeout)
		},
	)

	c.Register(
		spec("git", "Run a git subcommand in the workspace (status, log, diff, add, commit, ...).", map[string]any{
			"args": map[string]any{
				"type":        "string",
				"description": "Arguments passed to git, e.g. \"status --short\"",
			},
		}, "args"),
		func(ctx context.Context, args map[string]any) (any, error) {
			gitArgs, err := stringArg(args, "args")
			if err != nil {
				return nil, err
			}
			return state.run(ctx, "git "+gitArgs, defaultCommandTimeout)
		},
	)
}

// run executes command under bash, honoring the tracked working directory.
// A trailing `pwd` marker captures cd movement for the next call.
func (s *shellState) run(ctx context.Context, command string, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.mu.Lock()
	cwd := s.cwd
	s.mu.Unlock()

	const marker = "__OMNICLAW_CWD__"
	wrapped := command + fmt.Sprintf("\n__status=$?; echo %s$(pwd); exit $__status", marker)

	cmd := exec.CommandContext(ctx, "bash", "-c", wrapped)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	runErr := cmd.Run()

	output := buf.String()
	if idx := strings.LastIndex(output, marker); idx >= 0 {
		line := strings.TrimSpace(output[idx+len(marker):])
		if newline := strings.IndexByte(line, '\n'); newline >= 0 {
			line = line[:newline]
		}
		if line != "" {
			s.mu.Lock()
			s.cwd = line
			s.mu.Unlock()
		}
		output = output[:idx]
	}
	output = strings.TrimRight(output, "\n")
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + "\n... (output truncated)"
	}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s", timeout)
	}

	result := map[string]any{"output": output}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result["exit_code"] = exitErr.ExitCode()
	} else if runErr != nil {
		return nil, fmt.Errorf("running command: %w", runErr)
	} else {
		result["exit_code"] = 0
	}
	return result, nil
}
