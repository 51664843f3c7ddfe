// commands.go implements the user command surface. Commands bypass the
// batch window and run on the chat's FIFO chain like any other task.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/transport"
)

// command is one parsed user command.
type command struct {
	verb string
	args []string
}

func (c command) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

func (c command) rest(from int) string {
	if from >= len(c.args) {
		return ""
	}
	return strings.Join(c.args[from:], " ")
}

var commandVerbs = map[string]bool{
	"character": true, "brain": true, "orchestrator": true,
	"claudemodel": true, "claude": true, "skills": true,
	"jobs": true, "cancel": true, "auto": true, "life": true,
	"journal": true, "memories": true, "evolution": true,
	"linkedin": true, "context": true, "clean": true, "clear": true,
	"reset": true, "history": true, "browse": true,
	"screenshot": true, "extract": true, "help": true,
}

// parseCommand recognizes a leading command verb, with or without a "/".
func parseCommand(text string) (command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return command{}, false
	}
	verb := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if !commandVerbs[verb] {
		return command{}, false
	}
	return command{verb: verb, args: fields[1:]}, true
}

func (p *Pipeline) runCommand(ctx context.Context, ev transport.Event, cmd command) {
	chat := ev.Chat
	switch cmd.verb {
	case "help":
		p.send(ctx, chat, helpText)

	case "jobs":
		p.send(ctx, chat, p.formatJobs(chat))

	case "cancel":
		cancelled := p.jobs.CancelAllForChat(chat)
		if len(cancelled) == 0 {
			p.send(ctx, chat, "No active jobs to cancel.")
		}
		// Per-job 🚫 chunks arrive through the job event subscriber.

	case "clean", "clear", "reset":
		p.convo.Clear(chat)
		p.send(ctx, chat, "🧹 Conversation cleared.")

	case "history":
		p.send(ctx, chat, p.formatHistory(chat))

	case "context":
		p.send(ctx, chat, p.formatContext(chat))

	case "skills":
		p.send(ctx, chat, p.runSkillsCommand(chat, cmd))

	case "brain":
		p.startProviderKey(ctx, chat, cmd, pendingBrainKey)

	case "orchestrator":
		p.startProviderKey(ctx, chat, cmd, pendingOrchestratorKey)

	case "claudemodel":
		model := cmd.arg(0)
		if model == "" {
			p.send(ctx, chat, "Usage: claudemodel <model>")
			return
		}
		if p.providers != nil {
			if err := p.providers.SaveProvider("brain", "anthropic", model); err != nil {
				p.send(ctx, chat, "⚠️ "+err.Error())
				return
			}
		}
		p.send(ctx, chat, fmt.Sprintf("✅ Claude model set to %s.", model))

	case "claude":
		authType := strings.ToLower(cmd.arg(0))
		if authType != "api_key" && authType != "oauth_token" {
			p.send(ctx, chat, "Usage: claude <api_key|oauth_token>")
			return
		}
		p.setPending(chat, &pendingInput{kind: pendingClaudeAuth, authType: authType})
		p.send(ctx, chat, "Send the credential, or \"cancel\".")

	case "character":
		p.setPending(chat, &pendingInput{kind: pendingCustomCharacter})
		p.send(ctx, chat, characterQuestions[0])

	case "auto":
		p.runAutoCommand(ctx, ev, cmd)

	case "life":
		p.send(ctx, chat, p.runLifeCommand(cmd))

	case "journal":
		p.send(ctx, chat, p.runJournalCommand(ctx, cmd))

	case "memories":
		p.send(ctx, chat, p.runMemoriesCommand(ctx, cmd))

	case "evolution", "linkedin":
		p.send(ctx, chat, fmt.Sprintf("%s is not configured on this install.", cmd.verb))

	case "browse":
		p.process(ctx, chat, ev.From, fmt.Sprintf("Browse %s and summarize what matters on the page.", cmd.arg(0)))

	case "screenshot":
		p.process(ctx, chat, ev.From, fmt.Sprintf("Take a screenshot of %s and send it to me.", cmd.arg(0)))

	case "extract":
		p.process(ctx, chat, ev.From, fmt.Sprintf("Extract %q from %s and return the content.", cmd.arg(1), cmd.arg(0)))
	}
}

// startProviderKey begins the key-entry flow for brain/orchestrator.
func (p *Pipeline) startProviderKey(ctx context.Context, chat string, cmd command, kind pendingKind) {
	provider := strings.ToLower(cmd.arg(0))
	if provider == "" {
		p.send(ctx, chat, fmt.Sprintf("Usage: %s <provider> [model]", cmd.verb))
		return
	}
	model := cmd.arg(1)
	p.setPending(chat, &pendingInput{kind: kind, provider: provider, model: model})
	p.send(ctx, chat, fmt.Sprintf("Send the %s API key, or \"cancel\".", provider))
}

func (p *Pipeline) runSkillsCommand(chat string, cmd command) string {
	switch strings.ToLower(cmd.arg(0)) {
	case "reset":
		p.convo.SetActiveSkill(chat, "")
		return "Skill deactivated."
	case "use":
		id := cmd.arg(1)
		if _, ok := p.skills.Get(id); !ok {
			return fmt.Sprintf("Skill %q not found.", id)
		}
		p.convo.SetActiveSkill(chat, id)
		return fmt.Sprintf("✅ Skill %s active for this chat.", id)
	case "new", "create":
		p.setPending(chat, &pendingInput{kind: pendingCustomSkill, step: "name"})
		return "What should the skill be called?"
	case "delete":
		if err := p.skills.Delete(cmd.arg(1)); err != nil {
			return "⚠️ " + err.Error()
		}
		return "Skill deleted."
	default:
		list := p.skills.List()
		if len(list) == 0 {
			return "No custom skills yet. Create one with: skills new"
		}
		var b strings.Builder
		b.WriteString("Custom skills:\n")
		active := p.convo.ActiveSkill(chat)
		for _, s := range list {
			marker := "  "
			if s.ID == active {
				marker = "▸ "
			}
			fmt.Fprintf(&b, "%s%s (%s)\n", marker, s.Name, s.ID)
		}
		return strings.TrimRight(b.String(), "\n")
	}
}

func (p *Pipeline) runAutoCommand(ctx context.Context, ev transport.Event, cmd command) {
	chat := ev.Chat
	switch strings.ToLower(cmd.arg(0)) {
	case "pause":
		n := p.autos.SetAllEnabled(chat, false)
		p.send(ctx, chat, fmt.Sprintf("Paused %d automation(s).", n))
	case "resume":
		n := p.autos.SetAllEnabled(chat, true)
		p.send(ctx, chat, fmt.Sprintf("Resumed %d automation(s).", n))
	case "delete":
		if err := p.autos.Delete(cmd.arg(1)); err != nil {
			p.send(ctx, chat, "⚠️ "+err.Error())
			return
		}
		p.send(ctx, chat, "Automation deleted.")
	case "run":
		if err := p.autos.RunNow(cmd.arg(1)); err != nil {
			p.send(ctx, chat, "⚠️ "+err.Error())
		}
	case "":
		list := p.autos.List(chat)
		if len(list) == 0 {
			p.send(ctx, chat, "No automations. Ask me to create one, e.g. \"auto remind me to stretch every hour\".")
			return
		}
		var b strings.Builder
		b.WriteString("Automations:\n")
		for _, a := range list {
			state := "on"
			if !a.Enabled {
				state = "off"
			}
			fmt.Fprintf(&b, "• %s %s — %s [%s, runs %d]\n", a.ID, a.Name, a.Schedule.Describe(), state, a.RunCount)
		}
		p.send(ctx, chat, strings.TrimRight(b.String(), "\n"))
	default:
		// Natural language: let the orchestrator create it with its tools.
		p.process(ctx, chat, ev.From, "Create an automation for me: "+cmd.rest(0))
	}
}

func (p *Pipeline) runLifeCommand(cmd command) string {
	if p.life == nil {
		return "The life engine is not enabled."
	}
	switch strings.ToLower(cmd.arg(0)) {
	case "pause":
		p.life.Pause()
		return "Life engine paused."
	case "resume":
		p.life.Resume()
		return "Life engine resumed."
	case "trigger":
		if err := p.life.TriggerNow(cmd.arg(1)); err != nil {
			return "⚠️ " + err.Error()
		}
		return "Triggered."
	case "review":
		if err := p.life.TriggerNow("reflect"); err != nil {
			return "⚠️ " + err.Error()
		}
		return "Reflection triggered."
	default:
		if p.life.Paused() {
			return "Life engine: paused."
		}
		return "Life engine: active."
	}
}

func (p *Pipeline) runJournalCommand(ctx context.Context, cmd command) string {
	if p.journal == nil {
		return "No journal is configured."
	}
	arg := cmd.arg(0)
	if strings.EqualFold(arg, "list") || arg == "" {
		dates, err := p.journal.ListDates(ctx, 14)
		if err != nil {
			return "⚠️ " + err.Error()
		}
		if len(dates) == 0 {
			return "The journal is empty."
		}
		return "Journal entries:\n• " + strings.Join(dates, "\n• ")
	}
	entry, err := p.journal.EntryFor(ctx, arg)
	if err != nil {
		return "⚠️ " + err.Error()
	}
	if entry == "" {
		return fmt.Sprintf("No journal entry for %s.", arg)
	}
	return entry
}

func (p *Pipeline) runMemoriesCommand(ctx context.Context, cmd command) string {
	if p.memory == nil {
		return "No memory store is configured."
	}
	var (
		items []string
		err   error
	)
	if strings.EqualFold(cmd.arg(0), "about") {
		items, err = p.memory.SearchMemories(ctx, cmd.rest(1), 10)
	} else {
		items, err = p.memory.RecentMemories(ctx, 10)
	}
	if err != nil {
		return "⚠️ " + err.Error()
	}
	if len(items) == 0 {
		return "Nothing remembered yet."
	}
	return "Memories:\n• " + strings.Join(items, "\n• ")
}

func (p *Pipeline) formatJobs(chat string) string {
	list := p.jobs.List(chat)
	if len(list) == 0 {
		return "No jobs for this chat."
	}
	var b strings.Builder
	b.WriteString("Jobs:\n")
	for _, j := range list {
		fmt.Fprintf(&b, "• %s %s [%s] %s\n", j.ID, j.WorkerType, j.Status, firstLine(j.Task))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Pipeline) formatHistory(chat string) string {
	history := p.convo.History(chat)
	if len(history) == 0 {
		return "The conversation log is empty."
	}
	start := 0
	if len(history) > 10 {
		start = len(history) - 10
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d of %d messages:\n", len(history)-start, len(history))
	for _, m := range history[start:] {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, firstLine(m.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Pipeline) formatContext(chat string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Messages in history: %d\n", p.convo.Len(chat))
	if skill := p.convo.ActiveSkill(chat); skill != "" {
		fmt.Fprintf(&b, "Active skill: %s\n", skill)
	}
	running := p.jobs.ListRunning(chat)
	fmt.Fprintf(&b, "Running jobs: %d", len(running))
	for _, j := range running {
		fmt.Fprintf(&b, "\n• %s %s", j.ID, j.WorkerType)
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 60 {
		s = s[:59] + "…"
	}
	return s
}

const helpText = `Commands:
jobs — list worker jobs · cancel — cancel running jobs
auto — list automations · auto pause|resume|delete <id>|run <id>
skills — list skills · skills new|use <id>|reset|delete <id>
character — create a custom character
brain <provider> [model] · orchestrator <provider> [model]
claudemodel <model> · claude <api_key|oauth_token>
journal [date|list] · memories [about <query>]
life [pause|resume|trigger [kind]|review]
browse <url> · screenshot <url> · extract <url> <selector>
context · history · clear · help`
