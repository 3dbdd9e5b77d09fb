package engine

import (
	"context"
	"sync"
	"time"
)

// gate is the pause/resume primitive the debug loop blocks on. It starts
// open (not paused). pause closes it; resume re-opens it and wakes every
// waiter. Closing twice or resuming twice is a no-op — callers don't need
// to track whether they're already in the state they're requesting.
//
// Unlike the original's threading.Event (set = running, cleared = paused),
// this is expressed as a channel that's closed on resume, which is the
// idiomatic Go way to broadcast a one-shot wakeup to any number of
// goroutines blocked in wait.
type gate struct {
	mu   sync.Mutex
	open bool
	ch   chan struct{}
}

func newGate() *gate {
	return &gate{open: true}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.open = false
		g.ch = make(chan struct{})
	}
}

func (g *gate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.open = true
		close(g.ch)
	}
}

func (g *gate) paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.open
}

// wait blocks until the gate is open (resumed) or ctx is cancelled. It
// returns immediately if the gate is already open — this is the check that
// must happen at the top of every loop iteration, never mid-node, so a
// pause always takes effect before the next node runs rather than
// interrupting one in flight.
//
// warnAfter/onWarn let a caller log once if the wait runs unusually long —
// a debug session left paused and forgotten rather than deliberately
// stepped through. Neither changes when the wait actually unblocks; a
// zero warnAfter or nil onWarn disables the warning entirely.
func (g *gate) wait(ctx context.Context, warnAfter time.Duration, onWarn func()) error {
	g.mu.Lock()
	if g.open {
		g.mu.Unlock()
		return nil
	}
	ch := g.ch
	g.mu.Unlock()

	if warnAfter <= 0 || onWarn == nil {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(warnAfter)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		onWarn()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
