// batch.go implements the per-chat batch window: rapid consecutive texts
// in one chat are coalesced into a single merged prompt. The window slides:
// every arrival resets the timer.
package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/clock"
)

// DefaultBatchWindow is the sliding coalescing window.
const DefaultBatchWindow = 3 * time.Second

// skipResolution is delivered to every in-batch sender after the first.
const skipResolution = "skip"

type batchState struct {
	texts   []string
	timer   clock.Timer
	waiters []chan string
}

// batcher coalesces texts per chat. The first sender in a batch resolves
// with the merged text; later senders resolve with "skip".
type batcher struct {
	window time.Duration
	clk    clock.Clock

	mu    sync.Mutex
	chats map[string]*batchState
}

func newBatcher(window time.Duration, clk clock.Clock) *batcher {
	if window <= 0 {
		window = DefaultBatchWindow
	}
	if clk == nil {
		clk = clock.System()
	}
	return &batcher{
		window: window,
		clk:    clk,
		chats:  make(map[string]*batchState),
	}
}

// Add registers a text and returns the channel its resolution arrives on.
func (b *batcher) Add(chat, text string) <-chan string {
	ch := make(chan string, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.chats[chat]
	if !ok {
		state = &batchState{}
		b.chats[chat] = state
	}
	state.texts = append(state.texts, text)
	state.waiters = append(state.waiters, ch)

	// Sliding window: every arrival resets the timer.
	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = b.clk.AfterFunc(b.window, func() {
		b.flush(chat)
	})
	return ch
}

func (b *batcher) flush(chat string) {
	b.mu.Lock()
	state, ok := b.chats[chat]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.chats, chat)
	b.mu.Unlock()

	merged := mergeBatch(state.texts)
	for i, ch := range state.waiters {
		if i == 0 {
			ch <- merged
		} else {
			ch <- skipResolution
		}
	}
}

// mergeBatch joins a batch: verbatim for one message, numbered "[i]: text"
// blocks separated by blank lines otherwise.
func mergeBatch(texts []string) string {
	if len(texts) == 1 {
		return texts[0]
	}
	parts := make([]string, len(texts))
	for i, t := range texts {
		parts[i] = fmt.Sprintf("[%d]: %s", i+1, t)
	}
	return strings.Join(parts, "\n\n")
}
