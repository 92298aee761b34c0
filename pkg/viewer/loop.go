package viewer

import (
	"context"
	"sync"
)

// Loop is the viewer's single-threaded work queue. Every Viewer method and
// every completion callback runs on the goroutine that drains the loop;
// background goroutines only Post.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Wake is signaled after a Post.
func (l *Loop) Wake() <-chan struct{} {
	return l.wake
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued functions on the caller's goroutine until the queue
// is empty, including functions posted while draining. It returns how many
// ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// RunUntil drains the loop until cond holds or ctx is done.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	for {
		l.RunPending()
		if cond() {
			return nil
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
