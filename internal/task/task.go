// Package task models superseding background work. Each Start bumps a
// generation counter; results from an older generation are dropped.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
)

type Group struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Token identifies one started task.
type Token struct {
	g   *Group
	gen uint64
}

// Current reports whether no newer task has started since this one.
func (t Token) Current() bool {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	return t.g.gen == t.gen
}

// Start supersedes the running task and cancels its context.
func (g *Group) Start(parent context.Context) (context.Context, Token) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.gen++
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	return ctx, Token{g: g, gen: g.gen}
}

// Cancel supersedes the running task without starting a new one.
func (g *Group) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.gen++
}

// Run executes fn as a new task and hands its result to apply, unless a
// newer task started first. It reports whether apply ran. apply runs
// outside the group lock, so it may start or cancel tasks on g.
func Run[T any](parent context.Context, g *Group, fn func(context.Context) (T, error), apply func(T, error)) bool {
	ctx, tok := g.Start(parent)
	v, err := fn(ctx)
	if !tok.Current() {
		return false
	}
	apply(v, err)
	return true
}

// Debouncer runs only the last function handed to Do within a quiet window.
type Debouncer struct {
	call func(func())
}

func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{call: debounce.New(d)}
}

func (d *Debouncer) Do(f func()) {
	d.call(f)
}
