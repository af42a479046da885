package ptysup

import (
	"time"

	"github.com/ehrlich-b/mplexd/internal/logger"
	"github.com/ehrlich-b/mplexd/internal/redraw"
)

// RunScheduler converts this PTY's dirty signals into throttled
// render-and-broadcast work: at most one frame every frameTime, with a
// single pending timer tracked explicitly so repeated
// signals during the cool-down period never arm more than one timer. It
// runs until the PTY's exit channel closes, after which it renders and
// broadcasts one final frame (any output buffered right up to exit still
// reaches clients) before the caller delivers pty_exited.
func (p *PTY) RunScheduler(frameTime time.Duration) {
	for {
		select {
		case <-p.dirty:
			p.onDirtySignal(frameTime)
		case <-p.exitC:
			p.renderAndBroadcast()
			return
		}
	}
}

func (p *PTY) onDirtySignal(frameTime time.Duration) {
	// The render-state cache has no per-row change tracking of its own, so
	// a dirty signal marks every row for the next frame.
	_, rows := p.Term.Dims()
	for r := 0; r < rows; r++ {
		p.State.MarkRowDirty(r)
	}

	p.renderTimerMu.Lock()
	defer p.renderTimerMu.Unlock()

	elapsed := time.Since(p.lastRender)
	if p.lastRender.IsZero() || elapsed >= frameTime {
		p.renderTimerMu.Unlock()
		p.renderAndBroadcast()
		p.renderTimerMu.Lock()
		return
	}
	if p.renderTimer != nil {
		return // a timer is already armed for this cool-down window
	}
	wait := frameTime - elapsed
	p.renderTimer = time.AfterFunc(wait, func() {
		p.renderTimerMu.Lock()
		p.renderTimer = nil
		p.renderTimerMu.Unlock()
		p.renderAndBroadcast()
	})
}

func (p *PTY) renderAndBroadcast() {
	// Synchronized-output mode suppresses rendering even if a signal slipped
	// through before the reader thread's own suppression check.
	if p.Term.ModeState().SyncOutput {
		return
	}

	events, ok := redraw.Build(p.ID, p.Term, p.State)
	if !ok {
		return
	}

	p.renderTimerMu.Lock()
	p.lastRender = time.Now()
	p.renderTimerMu.Unlock()

	wire := make([]any, len(events))
	for i, e := range events {
		wire[i] = e.AsWire()
	}
	p.Broadcast("redraw", wire)
	p.maybeResolveDA1()
}

// maybeResolveDA1 writes the deferred DA1 reply to the PTY master once it
// is ready: either the color-query queue is empty (including queries
// issued after DA1 was requested), or the defer timeout elapsed.
func (p *PTY) maybeResolveDA1() {
	if !p.DA1Ready() {
		return
	}
	p.ConsumeDA1()
	if err := p.Write([]byte("\x1b[?1;2c")); err != nil {
		logger.Warn("ptysup: DA1 reply write failed", "pty", p.ID, "err", err)
	}
}
