// send.go implements the outbound side of the pipeline: typing refresh,
// human-like delays, long-message splitting, and the Markdown-to-plain
// retry on transport failures.
package pipeline

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
)

const (
	// TypingInterval is how often the typing action is re-sent while a
	// task runs.
	TypingInterval = 4 * time.Second

	// SplitLimit is the maximum chunk length for one transport message.
	SplitLimit = 4096

	// Pre-send delay bounds: 25ms per char clamped to [400ms, 4s].
	preDelayPerChar = 25 * time.Millisecond
	preDelayMin     = 400 * time.Millisecond
	preDelayMax     = 4 * time.Second

	// Between-chunk delay bounds: 8ms per char clamped to [300ms, 1.5s].
	chunkDelayPerChar = 8 * time.Millisecond
	chunkDelayMin     = 300 * time.Millisecond
	chunkDelayMax     = 1500 * time.Millisecond

	// delayJitter is the ± fraction applied to both delays.
	delayJitter = 0.15
)

// typingRefresher re-sends the typing chat action every TypingInterval
// until stopped.
type typingRefresher struct {
	stop func()
}

// startTyping begins the periodic typing action for a chat.
func (p *Pipeline) startTyping(chat string) *typingRefresher {
	done := make(chan struct{})
	var arm func()
	var timer clock.Timer

	send := func() {
		if err := p.transport.SendChatAction(context.Background(), chat, "typing"); err != nil {
			p.logger.Debug("typing action failed", "chat", chat, "error", err)
		}
	}
	arm = func() {
		timer = p.clk.AfterFunc(TypingInterval, func() {
			select {
			case <-done:
				return
			default:
			}
			send()
			arm()
		})
	}

	send()
	arm()
	return &typingRefresher{stop: func() {
		close(done)
		if timer != nil {
			timer.Stop()
		}
	}}
}

// sendReply delivers a final reply with human-like pacing: a pre-send delay
// scaled by length, then split chunks with shorter delays in between.
func (p *Pipeline) sendReply(ctx context.Context, chat, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	chunks := splitMessage(text, SplitLimit)

	p.sleep(jitter(clampDelay(time.Duration(len(text))*preDelayPerChar, preDelayMin, preDelayMax)))
	for i, chunk := range chunks {
		if i > 0 {
			p.sleep(jitter(clampDelay(time.Duration(len(chunk))*chunkDelayPerChar, chunkDelayMin, chunkDelayMax)))
		}
		p.send(ctx, chat, chunk)
	}
}

// Notify delivers an asynchronous chunk (job results, automation output)
// without the humanized pacing. Installed as the orchestrator's notifier.
func (p *Pipeline) Notify(chat, text string) {
	ctx := context.Background()
	for _, chunk := range splitMessage(text, SplitLimit) {
		p.send(ctx, chat, chunk)
	}
}

// send pushes one chunk through the transport, retrying once as plain text
// when the Markdown form is rejected. A second failure is logged only.
func (p *Pipeline) send(ctx context.Context, chat, text string) {
	if _, err := p.transport.SendMessage(ctx, chat, text); err != nil {
		plain := stripMarkdown(text)
		if _, retryErr := p.transport.SendMessage(ctx, chat, plain); retryErr != nil {
			p.logger.Warn("send failed after plain-text retry",
				"chat", chat,
				"error", retryErr,
			)
		}
	}
}

// splitMessage splits on the last newline before the limit when that leaves
// a first chunk of at least half the limit; otherwise hard-splits.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := limit
		if idx := strings.LastIndexByte(text[:limit], '\n'); idx >= limit/2 {
			cut = idx
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func clampDelay(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// jitter applies ±15% uniform noise.
func jitter(d time.Duration) time.Duration {
	f := 1 + delayJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * f)
}

var markdownRe = regexp.MustCompile("[*_`~]+")

// stripMarkdown removes the formatting characters most likely to break a
// strict transport parser.
func stripMarkdown(text string) string {
	return markdownRe.ReplaceAllString(text, "")
}
