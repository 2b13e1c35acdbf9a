package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AJMerr/gopamix/internal/pulse"
)

type Config struct {
	pulse.Config
	// QueueSize bounds the command queue and sizes the mainloop batches.
	QueueSize int
	// Instance tags the client proplist; the engine run id when empty.
	Instance string
}

// Connection owns the mainloop and the server context. The context is only
// reachable through Do, which holds the loop lock.
type Connection struct {
	loop *pulse.Mainloop
	ctx  pulse.Context
	once sync.Once
}

// Session is the capability handed to Do callbacks: proof that the loop lock
// is held. It must not be kept after the callback returns.
type Session struct {
	pulse.Context
	loop *pulse.Mainloop
}

// Iterate runs one batch of posted completions.
func (s Session) Iterate() int { return s.loop.Iterate() }

// Wait releases the lock until completions arrive or ctx ends, then runs them.
func (s Session) Wait(ctx context.Context) error { return s.loop.Wait(ctx) }

// Connect creates the loop and context and blocks until the context is ready
// or has failed. It never retries.
func Connect(ctx context.Context, server pulse.Server, cfg Config) (*Connection, error) {
	size := cfg.QueueSize
	if size == 0 {
		size = DefaultQueueSize
	}
	loop, err := pulse.NewMainloop(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMainloopCreate, err)
	}

	pc, err := server.NewContext(loop, pulse.NewProplist(cfg.AppName, cfg.Instance))
	if err != nil {
		loop.Stop()
		return nil, fmt.Errorf("%w: %v", ErrContextCreate, err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	loop.Lock()
	defer loop.Unlock()

	pc.SetStateCallback(func() {
		switch pc.State() {
		case pulse.StateReady, pulse.StateFailed, pulse.StateTerminated:
			loop.Signal()
		}
	})

	log.WithField("server", serverName(cfg.Server)).Debug("connecting context")
	if err := pc.Connect(cfg.Server); err != nil {
		pc.SetStateCallback(nil)
		loop.Stop()
		return nil, fmt.Errorf("%w: %v", ErrMainloopConnect, err)
	}

	start := time.Now()
	for {
		st := pc.State()
		if st == pulse.StateReady {
			break
		}
		if st.Terminal() {
			pc.SetStateCallback(nil)
			pc.Disconnect()
			loop.Stop()
			return nil, fmt.Errorf("%w: context %s", ErrMainloopConnect, st)
		}
		if err := loop.Wait(ctx); err != nil && pc.State() != pulse.StateReady {
			pc.SetStateCallback(nil)
			pc.Disconnect()
			loop.Stop()
			return nil, fmt.Errorf("%w: %v", ErrMainloopConnect, err)
		}
	}
	pc.SetStateCallback(nil)
	log.WithField("elapsed", time.Since(start)).Debug("context ready")

	return &Connection{loop: loop, ctx: pc}, nil
}

// Do runs fn with the loop lock held. The lock is released on every exit path.
func (c *Connection) Do(fn func(Session)) {
	c.loop.Lock()
	defer c.loop.Unlock()
	fn(Session{Context: c.ctx, loop: c.loop})
}

// Wakeup fires when completions are posted.
func (c *Connection) Wakeup() <-chan struct{} { return c.loop.Wakeup() }

// Close disconnects the context and stops the loop. Safe to call twice.
func (c *Connection) Close() {
	c.once.Do(func() {
		c.Do(func(s Session) { s.Disconnect() })
		c.loop.Stop()
	})
}

func serverName(s string) string {
	if s == "" {
		return "default"
	}
	return s
}
