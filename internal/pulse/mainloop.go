package pulse

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopStopped = errors.New("pulse: mainloop stopped")

// Mainloop is the event loop shared by a Context and its owner.
//
// Native code never runs callbacks directly: it posts completions with Post
// and they run in Iterate or Wait, on the goroutine holding the lock. The lock
// is not reentrant.
type Mainloop struct {
	mu sync.Mutex

	qmu     sync.Mutex
	queue   []func()
	limit   int
	stopped bool

	wake chan struct{}
}

func NewMainloop(queueSize int) (*Mainloop, error) {
	if queueSize <= 0 {
		return nil, errors.New("pulse: mainloop queue size must be positive")
	}
	return &Mainloop{
		queue: make([]func(), 0, queueSize),
		limit: queueSize,
		wake:  make(chan struct{}, 1),
	}, nil
}

func (m *Mainloop) Lock()   { m.mu.Lock() }
func (m *Mainloop) Unlock() { m.mu.Unlock() }

// Post queues fn to run on the loop. Safe from any goroutine. queueSize only
// sizes the batch buffer; completions are never dropped.
func (m *Mainloop) Post(fn func()) {
	m.qmu.Lock()
	if m.stopped {
		m.qmu.Unlock()
		return
	}
	m.queue = append(m.queue, fn)
	m.qmu.Unlock()
	m.Signal()
}

// Signal wakes a goroutine blocked in Wait or selecting on Wakeup.
func (m *Mainloop) Signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Wakeup fires after Post or Signal.
func (m *Mainloop) Wakeup() <-chan struct{} { return m.wake }

// Iterate runs the completions queued at call time and returns how many ran.
// Completions posted meanwhile wait for the next call. Lock must be held.
func (m *Mainloop) Iterate() int {
	m.qmu.Lock()
	batch := m.queue
	m.queue = make([]func(), 0, m.limit)
	m.qmu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Wait releases the lock, blocks until something is posted or signalled, then
// re-acquires the lock and iterates. Lock must be held.
func (m *Mainloop) Wait(ctx context.Context) error {
	m.mu.Unlock()
	var err error
	select {
	case <-m.wake:
	case <-ctx.Done():
		err = ctx.Err()
	}
	m.mu.Lock()
	if m.isStopped() {
		return ErrLoopStopped
	}
	m.Iterate()
	return err
}

// Stop drops pending completions and rejects later posts.
func (m *Mainloop) Stop() {
	m.qmu.Lock()
	m.stopped = true
	m.queue = nil
	m.qmu.Unlock()
	m.Signal()
}

func (m *Mainloop) isStopped() bool {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	return m.stopped
}
