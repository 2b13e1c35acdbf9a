package app

import (
	"time"

	"github.com/AJMerr/gopamix/internal/engine"
)

// Engine lifecycle
type EngineStartedMsg struct {
	Gen    int
	Queue  Sender
	Events *engine.ChanEmitter
}

// Engine output, batched so a burst of peaks costs one render.
type EngineEventsMsg struct {
	Gen    int
	Events []engine.Event
	Source *engine.ChanEmitter
}

// UI timer tick
type TickMsg struct{ At time.Time }
