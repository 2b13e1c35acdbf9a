// Package engine keeps the mixer in sync with the sound server. One goroutine
// owns the connection: it waits on UI commands and server completions, and
// every server call and callback happens there with the loop lock held.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
)

type State int

const (
	StateStarting State = iota
	StateConnecting
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var errAlreadyStarted = errors.New("engine: already started")

// Engine runs once. Reconnecting means building a new Engine.
type Engine struct {
	cfg    Config
	server pulse.Server
	queue  *Queue
	out    Emitter
	log    *log.Entry
	runID  string

	mu    sync.Mutex
	state State

	targets    map[entry.Identifier]uint32
	monitors   *Monitors
	dispatcher *Dispatcher
	lost       bool
}

func New(cfg Config, server pulse.Server, out Emitter) *Engine {
	runID := uuid.NewString()
	if cfg.Instance == "" {
		cfg.Instance = runID
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger := log.WithFields(log.Fields{"component": "engine", "run": runID})
	return &Engine{
		cfg:        cfg,
		server:     server,
		queue:      NewQueue(cfg.QueueSize),
		out:        out,
		log:        logger,
		runID:      runID,
		targets:    map[entry.Identifier]uint32{},
		monitors:   NewMonitors(out, logger),
		dispatcher: NewDispatcher(out, logger),
	}
}

// Queue is the command side; it may be used from any goroutine.
func (e *Engine) Queue() *Queue { return e.queue }

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	e.log.WithFields(log.Fields{"from": prev, "to": s}).Debug("engine state")
}

// Run connects and serves commands until Shutdown, a closed queue or ctx
// cancellation. A connection loss is reported but does not end the run.
// EngineStopped is always the last event emitted.
func (e *Engine) Run(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.state != StateStarting {
		e.mu.Unlock()
		return errAlreadyStarted
	}
	e.state = StateConnecting
	e.mu.Unlock()

	defer func() { e.out.Emit(EngineStopped{Err: err}) }()

	conn, err := Connect(ctx, e.server, e.cfg)
	if err != nil {
		e.setState(StateFailed)
		e.log.WithError(err).Error("engine failed to start")
		return err
	}
	e.setState(StateRunning)
	defer e.setState(StateStopped)
	defer e.teardown(conn)

	conn.Do(func(s Session) {
		s.ServerInfo(func(info pulse.ServerInfo, err error) {
			if err != nil {
				e.log.WithError(err).Debug("server info unavailable")
			}
			e.out.Emit(Connected{Server: info})
		})
		e.dispatcher.Subscribe(s)
		e.dispatcher.RequestState(s)
	})
	e.log.Info("engine running")

	for {
		var cmd Command
		select {
		case <-ctx.Done():
			e.log.Debug("context cancelled")
			return nil
		case c, ok := <-e.queue.recv():
			if !ok {
				e.log.Debug("command queue closed")
				return nil
			}
			cmd = c
		case <-conn.Wakeup():
		}
		if e.step(conn, cmd) == Stop {
			return nil
		}
	}
}

// step pumps one batch of completions, then handles cmd and whatever was
// already queued behind it, all under one lock acquisition.
func (e *Engine) step(conn *Connection, cmd Command) Outcome {
	out := Continue
	conn.Do(func(s Session) {
		s.Iterate()
		e.watch(s)
		if cmd == nil {
			return
		}
		if out = e.handle(s, cmd); out == Stop {
			return
		}
		for n := e.queue.Len(); n > 0; n-- {
			next, ok := <-e.queue.recv()
			if !ok {
				out = Stop
				return
			}
			if out = e.handle(s, next); out == Stop {
				return
			}
		}
	})
	return out
}

func (e *Engine) handle(s Session, cmd Command) Outcome {
	e.log.WithField("command", describe(cmd)).Trace("handle")
	out := e.dispatcher.Handle(s, cmd)
	switch c := cmd.(type) {
	case CreateMonitors:
		e.targets = c.Targets
		e.refresh(s)
	case Tick:
		e.refresh(s)
	}
	return out
}

func (e *Engine) refresh(s Session) {
	if e.monitors.Refresh(s, e.targets) {
		e.log.WithField("monitors", e.monitors.IDs()).Debug("monitor set changed")
		e.out.Emit(Redraw{})
	}
}

// watch reports the first time the context leaves Ready.
func (e *Engine) watch(s Session) {
	if e.lost {
		return
	}
	if st := s.State(); st != pulse.StateReady {
		e.lost = true
		e.log.WithField("state", st).Warn("connection to server lost")
		e.out.Emit(ConnectionLost{})
	}
}

func (e *Engine) teardown(conn *Connection) {
	conn.Do(func(Session) { e.monitors.Clear() })
	conn.Close()
	e.log.Info("engine stopped")
}
