package engine

import "errors"

// Startup failures. They abort Run and are never retried by the engine.
var (
	ErrMainloopCreate  = errors.New("engine: cannot create mainloop")
	ErrMainloopConnect = errors.New("engine: cannot connect to audio server")
	ErrContextCreate   = errors.New("engine: cannot create server context")
)

var ErrQueueClosed = errors.New("engine: command queue closed")
