// Package tab drives the scenario tab: it owns the selection, re-runs the
// aggregation and render stages on every change, and publishes the layout.
package tab

import (
	"context"
	"sync"
)

// Loop is a single-goroutine FIFO task queue. Every controller mutation runs
// on the goroutine that calls Run (or RunPending), so controller state never
// needs to be touched from two goroutines at once.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post appends fn to the queue.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// NextTick defers fn until the tasks already queued have run.
func (l *Loop) NextTick(fn func()) {
	l.Post(fn)
}

// Do runs fn on the loop and waits for its result. It must not be called
// from a task running on the loop.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	l.Post(func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn()
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued tasks, including tasks they post, until the queue is
// empty. It returns the number of tasks run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		fn, ok := l.pop()
		if !ok {
			return n
		}
		fn()
		n++
	}
}

// Run processes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}
