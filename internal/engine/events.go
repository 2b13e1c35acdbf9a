package engine

import (
	"sync"

	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
)

// Event is what the engine reports back to the UI.
type Event interface {
	event()
}

// Connected is emitted once the context is ready.
type Connected struct{ Server pulse.ServerInfo }

// ServerUpdated carries refreshed server info, e.g. a new default sink.
type ServerUpdated struct{ Server pulse.ServerInfo }

type EntryUpdated struct{ Entry entry.Entry }

type EntryRemoved struct{ ID entry.Identifier }

type PeakLevel struct {
	ID   entry.Identifier
	Peak float32
}

// ConnectionLost is emitted when the context leaves Ready while running.
type ConnectionLost struct{}

// Redraw asks the UI to repaint without new data, e.g. after monitors changed.
type Redraw struct{}

// EngineStopped is always the last event of a run. Err is nil on a clean stop.
type EngineStopped struct{ Err error }

func (Connected) event()      {}
func (ServerUpdated) event()  {}
func (EntryUpdated) event()   {}
func (EntryRemoved) event()   {}
func (PeakLevel) event()      {}
func (ConnectionLost) event() {}
func (Redraw) event()         {}
func (EngineStopped) event()  {}

type Emitter interface {
	Emit(Event)
}

// ChanEmitter delivers events on a buffered channel. Peak samples are dropped
// when the buffer is full; every other event waits for room.
type ChanEmitter struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewChanEmitter(size int) *ChanEmitter {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &ChanEmitter{ch: make(chan Event, size), done: make(chan struct{})}
}

func (c *ChanEmitter) Events() <-chan Event { return c.ch }

func (c *ChanEmitter) Emit(ev Event) {
	if _, ok := ev.(PeakLevel); ok {
		select {
		case c.ch <- ev:
		default:
		}
		return
	}
	select {
	case c.ch <- ev:
	case <-c.done:
	}
}

// Close unblocks pending Emit calls; later events are discarded.
func (c *ChanEmitter) Close() {
	c.once.Do(func() { close(c.done) })
}
