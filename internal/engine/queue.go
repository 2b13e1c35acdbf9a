package engine

import (
	"context"
	"sync"
)

const DefaultQueueSize = 128

// Queue is the bounded channel carrying commands from any number of senders
// to the engine goroutine, in FIFO order.
type Queue struct {
	ch chan Command

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Command, size), done: make(chan struct{})}
}

// Send blocks while the queue is full.
func (q *Queue) Send(ctx context.Context, c Command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- c:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues c unless the queue is full or closed.
func (q *Queue) TrySend(c Command) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- c:
		return true
	default:
		return false
	}
}

// Close stops accepting commands. Already queued commands stay readable.
func (q *Queue) Close() {
	q.once.Do(func() {
		// release blocked senders before taking the write lock
		close(q.done)
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) recv() <-chan Command { return q.ch }
