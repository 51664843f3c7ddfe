// Package worker implements the worker runtime: specialized sub-agents
// that execute a single job with a scoped tool set, a per-job timeout,
// and progress reporting back to the job manager.
package worker

import "time"

// Type describes one specialized worker. Types are defined once at build
// time and are not mutable at runtime.
type Type struct {
	Name        string
	Emoji       string
	Label       string
	Description string
	Timeout     time.Duration

	// Tools is the allow-list of tool names this worker may call.
	Tools []string

	// Prompt is the system prompt template for this worker.
	Prompt string
}

// builtinTypes is the fixed worker catalog.
var builtinTypes = []Type{
	{
		Name:        "coding",
		Emoji:       "💻",
		Label:       "Coding",
		Description: "Writes, edits, runs, and debugs code in the workspace.",
		Timeout:     10 * time.Minute,
		Tools:       []string{"bash", "read_file", "write_file", "edit_file", "git"},
		Prompt:      "You are a focused coding agent. Complete the task end to end: write the code, run it, and verify the output. Report what you built and how you verified it.",
	},
	{
		Name:        "browser",
		Emoji:       "🌐",
		Label:       "Browser",
		Description: "Browses the web, extracts page content, takes screenshots.",
		Timeout:     5 * time.Minute,
		Tools:       []string{"browse", "screenshot", "extract", "http_request"},
		Prompt:      "You are a web research agent. Visit the requested pages, extract what matters, and summarize concisely with sources.",
	},
	{
		Name:        "system",
		Emoji:       "⚙️",
		Label:       "System",
		Description: "Inspects and operates the local machine.",
		Timeout:     5 * time.Minute,
		Tools:       []string{"bash", "read_file", "write_file"},
		Prompt:      "You are a system operations agent. Run the requested commands carefully and report the results.",
	},
	{
		Name:        "devops",
		Emoji:       "🚀",
		Label:       "DevOps",
		Description: "Handles deployments, services, and infrastructure tasks.",
		Timeout:     15 * time.Minute,
		Tools:       []string{"bash", "git", "http_request", "read_file", "write_file"},
		Prompt:      "You are a devops agent. Execute the infrastructure task step by step, verify each step, and report the final state.",
	},
	{
		Name:        "research",
		Emoji:       "🔎",
		Label:       "Research",
		Description: "Deep research across the web and local notes.",
		Timeout:     10 * time.Minute,
		Tools:       []string{"browse", "extract", "http_request", "search_memory"},
		Prompt:      "You are a research agent. Gather information from multiple sources, cross-check claims, and produce a structured summary.",
	},
	{
		Name:        "social",
		Emoji:       "💬",
		Label:       "Social",
		Description: "Drafts posts and messages for outbound channels.",
		Timeout:     5 * time.Minute,
		Tools:       []string{"browse", "search_memory"},
		Prompt:      "You are a social writing agent. Draft the requested content in the owner's voice. Return only the final text.",
	},
}

// Types returns the worker catalog keyed by name.
func Types() map[string]Type {
	out := make(map[string]Type, len(builtinTypes))
	for _, t := range builtinTypes {
		out[t.Name] = t
	}
	return out
}

// TypeNames returns the catalog names in declaration order.
func TypeNames() []string {
	names := make([]string, len(builtinTypes))
	for i, t := range builtinTypes {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the worker type by name.
func Lookup(name string) (Type, bool) {
	for _, t := range builtinTypes {
		if t.Name == name {
			return t, true
		}
	}
	return Type{}, false
}

// Allows reports whether the worker type may call the named tool.
func (t Type) Allows(tool string) bool {
	for _, name := range t.Tools {
		if name == tool {
			return true
		}
	}
	return false
}
