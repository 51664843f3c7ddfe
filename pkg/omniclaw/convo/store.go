// Package convo implements the per-chat conversation store: an ordered
// message log with FIFO truncation, per-chat active skill pointers, and
// best-effort JSON persistence.
//
// The persisted document is a single JSON object whose top-level keys are
// chat ids plus a reserved "_skills" sub-object. Older files without
// "_skills" load fine and are migrated on the next save.
package convo

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
)

// LifeChat is the reserved pseudo-chat id used by the life engine.
const LifeChat = "__life__"

// skillsKey is the reserved top-level key holding per-chat active skills.
const skillsKey = "_skills"

// summaryPreviewChars bounds how much of an older message survives into
// the summary block.
const summaryPreviewChars = 200

// Role is a message author role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation log entry. Content is either plain text
// or a serialized tool-result envelope; the latter is flagged so it never
// receives relative-time markers.
type Message struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	TimestampMs int64  `json:"timestamp_ms"`
	ToolResult  bool   `json:"tool_result,omitempty"`
}

// Store owns every per-chat message log. All mutation goes through its API;
// the per-chat pipeline guarantees no concurrent AddMessage for one chat.
type Store struct {
	path         string
	clk          clock.Clock
	maxHistory   int
	recentWindow int
	logger       *slog.Logger

	mu     sync.Mutex
	chats  map[string][]Message
	skills map[string]string
}

// Options configures a Store.
type Options struct {
	// Path is the JSON document location (e.g. ~/.omniclaw/conversations.json).
	Path string

	// MaxHistory bounds messages kept per chat; oldest drop FIFO.
	MaxHistory int

	// RecentWindow is how many trailing messages survive summarization intact.
	RecentWindow int
}

// NewStore creates a conversation store and loads any persisted document.
// Load failures are logged and leave the store empty.
func NewStore(opts Options, clk clock.Clock, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 100
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = 20
	}

	s := &Store{
		path:         opts.Path,
		clk:          clk,
		maxHistory:   opts.MaxHistory,
		recentWindow: opts.RecentWindow,
		logger:       logger.With("component", "convo"),
		chats:        make(map[string][]Message),
		skills:       make(map[string]string),
	}
	s.load()
	return s
}

// AddMessage appends a text message with the current timestamp, trims to
// MaxHistory, and drops any leading non-user messages.
func (s *Store) AddMessage(chat string, role Role, content string) {
	s.append(chat, Message{
		Role:        role,
		Content:     content,
		TimestampMs: s.clk.Now().UnixMilli(),
	})
}

// AddToolResult appends an assistant-owned tool-result envelope. Envelopes
// never receive wall-clock markers during summarization.
func (s *Store) AddToolResult(chat string, role Role, content string) {
	s.append(chat, Message{
		Role:        role,
		Content:     content,
		TimestampMs: s.clk.Now().UnixMilli(),
		ToolResult:  true,
	})
}

func (s *Store) append(chat string, msg Message) {
	s.mu.Lock()
	log := append(s.chats[chat], msg)
	if excess := len(log) - s.maxHistory; excess > 0 {
		log = log[excess:]
	}
	log = trimLeadingNonUser(log)
	s.chats[chat] = log
	s.mu.Unlock()

	s.Save()
}

// trimLeadingNonUser enforces the invariant that a persisted history
// starts with a user-role message.
func trimLeadingNonUser(log []Message) []Message {
	start := 0
	for start < len(log) && log[start].Role != RoleUser {
		start++
	}
	return log[start:]
}

// History returns a copy of the chat's message log.
func (s *Store) History(chat string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.chats[chat]
	out := make([]Message, len(log))
	copy(out, log)
	return out
}

// Len returns the number of messages stored for a chat.
func (s *Store) Len(chat string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats[chat])
}

// Clear deletes the chat's history and its active skill.
func (s *Store) Clear(chat string) {
	s.mu.Lock()
	delete(s.chats, chat)
	delete(s.skills, chat)
	s.mu.Unlock()

	s.Save()
}

// Chats returns every chat id with stored history.
func (s *Store) Chats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	return ids
}

// ---------- Active skills ----------

// SetActiveSkill records the active skill id for a chat. Empty id clears it.
func (s *Store) SetActiveSkill(chat, skillID string) {
	s.mu.Lock()
	if skillID == "" {
		delete(s.skills, chat)
	} else {
		s.skills[chat] = skillID
	}
	s.mu.Unlock()

	s.Save()
}

// ActiveSkill returns the chat's active skill id, or "".
func (s *Store) ActiveSkill(chat string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skills[chat]
}

// ---------- Summarization ----------

// SummarizedHistory returns the working prompt history for a chat.
//
// When the log fits in the recent window, every text message gets a
// relative-time marker. Otherwise the older prefix collapses into one
// synthetic user message tagged
// "[CONVERSATION SUMMARY - N earlier messages]" followed by one preview
// line per older message, and the recent window follows annotated as usual.
// The result always begins with a user-role message.
func (s *Store) SummarizedHistory(chat string) []Message {
	now := s.clk.Now()

	s.mu.Lock()
	log := make([]Message, len(s.chats[chat]))
	copy(log, s.chats[chat])
	s.mu.Unlock()

	if len(log) <= s.recentWindow {
		return annotate(log, now)
	}

	older := log[:len(log)-s.recentWindow]
	recent := log[len(log)-s.recentWindow:]

	summary := fmt.Sprintf("[CONVERSATION SUMMARY - %d earlier messages]", len(older))
	for _, m := range older {
		preview := m.Content
		if len(preview) > summaryPreviewChars {
			preview = preview[:summaryPreviewChars]
		}
		summary += fmt.Sprintf("\n[%s][%s]: %s", m.Role, relativeTag(m.TimestampMs, now), preview)
	}

	out := make([]Message, 0, 1+len(recent))
	out = append(out, Message{
		Role:        RoleUser,
		Content:     summary,
		TimestampMs: now.UnixMilli(),
	})
	out = append(out, annotate(recent, now)...)
	return out
}

// annotate prepends a relative-time marker to each plain text message.
// Tool-result envelopes pass through untouched.
func annotate(log []Message, now time.Time) []Message {
	out := make([]Message, len(log))
	for i, m := range log {
		out[i] = m
		if !m.ToolResult {
			out[i].Content = "[" + relativeTag(m.TimestampMs, now) + "] " + m.Content
		}
	}
	return out
}

// relativeTag renders the age of a timestamp as just now / Nm / Nh / Nd ago.
func relativeTag(tsMs int64, now time.Time) string {
	age := now.Sub(time.UnixMilli(tsMs))
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

// ---------- Persistence ----------

// Save writes the full document. Best-effort: failures are logged,
// never returned to callers.
func (s *Store) Save() {
	if s.path == "" {
		return
	}

	s.mu.Lock()
	doc := make(map[string]any, len(s.chats)+1)
	for chat, log := range s.chats {
		doc[chat] = log
	}
	doc[skillsKey] = s.skills
	data, err := json.MarshalIndent(doc, "", "  ")
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to encode conversations", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Error("failed to create conversations dir", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.Error("failed to write conversations", "path", s.path, "error", err)
	}
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read conversations", "path", s.path, "error", err)
		}
		return
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("failed to parse conversations", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, raw := range doc {
		if key == skillsKey {
			var skills map[string]string
			if err := json.Unmarshal(raw, &skills); err == nil {
				s.skills = skills
			}
			continue
		}
		var log []Message
		if err := json.Unmarshal(raw, &log); err != nil {
			s.logger.Warn("skipping unreadable chat history", "chat", key, "error", err)
			continue
		}
		s.chats[key] = trimLeadingNonUser(log)
	}
	s.logger.Info("conversations loaded", "chats", len(s.chats))
}
