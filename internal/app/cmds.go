package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/AJMerr/gopamix/internal/engine"
)

// maxBatch caps how many queued events one EngineEventsMsg carries.
const maxBatch = 256

// StartEngineCmd builds a fresh engine and runs it in the background. Each
// run gets its own emitter so a replaced run cannot leak into the next one.
func StartEngineCmd(d Deps, gen int) tea.Cmd {
	return func() tea.Msg {
		events := engine.NewChanEmitter(d.Engine.QueueSize)
		eng := engine.New(d.Engine, d.Server, events)
		go func() {
			if err := eng.Run(context.Background()); err != nil {
				log.WithError(err).WithField("run", eng.RunID()).Warn("engine run ended with error")
			}
		}()
		return EngineStartedMsg{Gen: gen, Queue: eng.Queue(), Events: events}
	}
}

// ListenCmd waits for the next engine event and drains whatever else is
// already buffered; re-issue it after every EngineEventsMsg.
func ListenCmd(gen int, events *engine.ChanEmitter) tea.Cmd {
	return func() tea.Msg {
		ch := events.Events()
		batch := []engine.Event{<-ch}
		for len(batch) < maxBatch {
			select {
			case ev := <-ch:
				batch = append(batch, ev)
			default:
				return EngineEventsMsg{Gen: gen, Events: batch, Source: events}
			}
		}
		return EngineEventsMsg{Gen: gen, Events: batch, Source: events}
	}
}

// UI tick; re-schedule from Update.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{At: t}
	})
}
