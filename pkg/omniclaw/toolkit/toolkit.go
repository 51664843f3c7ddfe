// Package toolkit implements the local tool catalog executed by workers:
// shell, file, git, HTTP, web, and memory-search tools. Tool handlers are
// registered against JSON-schema specs; the worker runtime filters the
// catalog by each worker type's allow-list.
package toolkit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/provider"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/worker"
)

// Handler executes one tool call.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Catalog is a registry of named tools. Safe for concurrent use after
// registration; Register is not safe to call concurrently with Execute.
type Catalog struct {
	mu       sync.RWMutex
	specs    map[string]provider.ToolSpec
	handlers map[string]Handler
	logger   *slog.Logger
}

var _ worker.ToolCatalog = (*Catalog)(nil)

// New creates an empty catalog.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		specs:    make(map[string]provider.ToolSpec),
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "toolkit"),
	}
}

// Register adds a tool. Re-registering a name replaces the previous handler.
func (c *Catalog) Register(spec provider.ToolSpec, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[spec.Name] = spec
	c.handlers[spec.Name] = h
}

// Specs returns every registered spec, sorted by name.
func (c *Catalog) Specs() []provider.ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]provider.ToolSpec, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named tool.
func (c *Catalog) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	c.mu.RLock()
	h, ok := c.handlers[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	c.logger.Debug("executing tool", "tool", name)
	return h(ctx, args)
}

// MemorySearcher is the memory surface the search_memory tool needs.
type MemorySearcher interface {
	SearchMemories(ctx context.Context, query string, limit int) ([]string, error)
}

// Options configures the default tool set.
type Options struct {
	// Workspace is the base directory for relative file paths.
	Workspace string

	// Memory backs the search_memory tool; nil leaves it unregistered.
	Memory MemorySearcher
}

// NewDefault creates a catalog with the full local tool set registered.
func NewDefault(opts Options, logger *slog.Logger) *Catalog {
	c := New(logger)
	registerShellTools(c, opts.Workspace)
	registerFileTools(c, opts.Workspace)
	registerWebTools(c)
	if opts.Memory != nil {
		registerMemoryTools(c, opts.Memory)
	}
	return c
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// intArg extracts an optional integer argument (JSON numbers decode as float64).
func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

// spec builds a ToolSpec with an object schema.
func spec(name, description string, properties map[string]any, required ...string) provider.ToolSpec {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return provider.ToolSpec{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}
}
