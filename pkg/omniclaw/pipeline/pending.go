// pending.go implements the pending-input state machines: flows where the
// pipeline asks a question and consumes the next message verbatim (API
// keys, skill creation, character interviews). Each machine is keyed by
// chat and strictly owned by the pipeline.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/transport"
)

type pendingKind string

const (
	pendingBrainKey        pendingKind = "brain_key"
	pendingOrchestratorKey pendingKind = "orchestrator_key"
	pendingClaudeAuth      pendingKind = "claude_auth"
	pendingCustomSkill     pendingKind = "custom_skill"
	pendingCustomCharacter pendingKind = "custom_character"
)

// characterQuestions is the fixed interview for custom characters.
var characterQuestions = []string{
	"What is the character's name?",
	"How would you describe their personality in a few sentences?",
	"How do they speak? Tone, quirks, favorite expressions?",
	"What do they care about most?",
}

type pendingInput struct {
	kind pendingKind

	// brain/orchestrator key
	provider string
	model    string

	// claude auth: "api_key" or "oauth_token"
	authType string

	// custom skill: "name" then "prompt"
	step string
	name string

	// custom character interview
	answers []string
}

func (p *Pipeline) setPending(chat string, in *pendingInput) {
	p.mu.Lock()
	p.pending[chat] = in
	p.mu.Unlock()
}

func (p *Pipeline) clearPending(chat string) {
	p.mu.Lock()
	delete(p.pending, chat)
	p.mu.Unlock()
}

// handlePending consumes one message for the chat's active machine.
func (p *Pipeline) handlePending(ctx context.Context, ev transport.Event) {
	p.mu.Lock()
	in := p.pending[ev.Chat]
	p.mu.Unlock()
	if in == nil {
		return
	}

	text := strings.TrimSpace(ev.Text)
	if strings.EqualFold(text, "cancel") {
		p.clearPending(ev.Chat)
		p.send(ctx, ev.Chat, "Cancelled.")
		return
	}

	switch in.kind {
	case pendingBrainKey, pendingOrchestratorKey:
		p.finishProviderKey(ctx, ev.Chat, in, text)
	case pendingClaudeAuth:
		p.finishClaudeAuth(ctx, ev.Chat, in, text)
	case pendingCustomSkill:
		p.stepCustomSkill(ctx, ev, in, text)
	case pendingCustomCharacter:
		p.stepCustomCharacter(ctx, ev.Chat, in, text)
	default:
		p.clearPending(ev.Chat)
	}
}

// finishProviderKey stores the credential and records the provider/model
// choice for the role.
func (p *Pipeline) finishProviderKey(ctx context.Context, chat string, in *pendingInput, key string) {
	p.clearPending(chat)

	credName := strings.ToUpper(in.provider) + "_API_KEY"
	if err := p.owner.SaveCredential(credName, key); err != nil {
		p.logger.Error("credential save failed", "name", credName, "error", err)
		p.send(ctx, chat, "⚠️ Could not store the key. Please try again.")
		return
	}

	role := "brain"
	if in.kind == pendingOrchestratorKey {
		role = "orchestrator"
	}
	if p.providers != nil {
		if err := p.providers.SaveProvider(role, in.provider, in.model); err != nil {
			p.logger.Warn("provider save failed", "role", role, "error", err)
		}
	}
	p.send(ctx, chat, fmt.Sprintf("✅ %s set to %s/%s.", role, in.provider, in.model))
}

func (p *Pipeline) finishClaudeAuth(ctx context.Context, chat string, in *pendingInput, credential string) {
	p.clearPending(chat)

	name := "ANTHROPIC_API_KEY"
	if in.authType == "oauth_token" {
		name = "CLAUDE_OAUTH_TOKEN"
	}
	if err := p.owner.SaveCredential(name, credential); err != nil {
		p.logger.Error("credential save failed", "name", name, "error", err)
		p.send(ctx, chat, "⚠️ Could not store the credential. Please try again.")
		return
	}
	p.send(ctx, chat, "✅ Claude credential stored.")
}

// stepCustomSkill advances the two-step skill flow: name, then prompt.
// A file upload in the prompt step is accepted as the prompt body.
func (p *Pipeline) stepCustomSkill(ctx context.Context, ev transport.Event, in *pendingInput, text string) {
	chat := ev.Chat
	switch in.step {
	case "name":
		in.name = text
		in.step = "prompt"
		p.setPending(chat, in)
		p.send(ctx, chat, fmt.Sprintf("Skill %q. Now send the skill prompt, or upload a text file with it.", text))

	case "prompt":
		prompt := text
		if ev.FileID != "" {
			path, err := p.transport.DownloadFile(ctx, ev.FileID)
			if err != nil {
				p.logger.Warn("skill file download failed", "error", err)
				p.send(ctx, chat, "⚠️ Could not download the file. Send the prompt as text, or \"cancel\".")
				return
			}
			data, err := os.ReadFile(path)
			if err != nil {
				p.send(ctx, chat, "⚠️ Could not read the file. Send the prompt as text, or \"cancel\".")
				return
			}
			prompt = string(data)
		}

		p.clearPending(chat)
		skill, err := p.skills.Create(in.name, prompt)
		if err != nil {
			p.send(ctx, chat, "⚠️ "+err.Error())
			return
		}
		p.send(ctx, chat, fmt.Sprintf("✅ Skill %q created. Activate it with: skills use %s", skill.Name, skill.ID))
	}
}

// stepCustomCharacter records one answer and asks the next question; when
// the interview is exhausted the character generator is invoked.
func (p *Pipeline) stepCustomCharacter(ctx context.Context, chat string, in *pendingInput, answer string) {
	in.answers = append(in.answers, answer)
	if len(in.answers) < len(characterQuestions) {
		p.setPending(chat, in)
		p.send(ctx, chat, characterQuestions[len(in.answers)])
		return
	}

	p.clearPending(chat)
	if p.character == nil {
		p.send(ctx, chat, "⚠️ Character creation is not configured.")
		return
	}
	profile, err := p.character.Generate(ctx, in.answers)
	if err != nil {
		p.logger.Error("character generation failed", "error", err)
		p.send(ctx, chat, "⚠️ Character generation failed: "+err.Error())
		return
	}
	p.send(ctx, chat, "✅ Character created.\n\n"+profile)
}
