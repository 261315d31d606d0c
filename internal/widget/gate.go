package widget

import (
	"context"
	"sync"

	"github.com/beekhof/calendar-widget/internal/render"
)

// Gate holds back work until a one-time ready signal.
//
// Functions registered before Ready are queued and run, in registration
// order, by the Ready call. Functions registered afterwards run immediately
// on the caller's goroutine.
type Gate struct {
	mu      sync.Mutex
	ready   bool
	pending []func()
}

// Register queues fn, or runs it now if the gate is already open.
func (g *Gate) Register(fn func()) {
	g.mu.Lock()
	if !g.ready {
		g.pending = append(g.pending, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	fn()
}

// Ready opens the gate and runs everything queued so far. Later calls do
// nothing.
func (g *Gate) Ready() {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		return
	}
	g.ready = true
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// IsReady reports whether Ready has been called.
func (g *Gate) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Defer registers a load of p on gate. done, if not nil, receives the
// outcome once the load has run.
func (l *Loader) Defer(ctx context.Context, gate *Gate, doc *render.Document, p Params, done func(*Result, error)) {
	gate.Register(func() {
		res, err := l.Load(ctx, doc, p)
		if done != nil {
			done(res, err)
		}
	})
}
