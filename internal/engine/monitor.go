package engine

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
)

// Monitor is one live peak stream feeding PeakLevel events for an entry.
type Monitor struct {
	ID     entry.Identifier
	Target pulse.PeakTarget

	stream    pulse.PeakStream
	destroyed bool
}

// Alive reports whether the stream still delivers samples.
func (m *Monitor) Alive() bool {
	return !m.destroyed && m.stream.Alive()
}

// Destroy closes the stream. Calling it again is a no-op.
func (m *Monitor) Destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.stream.Close()
}

// peakTarget derives where an entry's peaks are recorded from.
func peakTarget(id entry.Identifier, source uint32) (pulse.PeakTarget, bool) {
	if source == pulse.NoIndex {
		return pulse.PeakTarget{}, false
	}
	switch id.Type {
	case entry.TypeSink, entry.TypeSource, entry.TypeSourceOutput:
		return pulse.PeakTarget{Source: source, SinkInput: pulse.NoIndex}, true
	case entry.TypeSinkInput:
		return pulse.PeakTarget{Source: source, SinkInput: id.Index}, true
	}
	return pulse.PeakTarget{}, false
}

// Monitors is the set of live monitors, at most one per entry. Owned by the
// engine goroutine.
type Monitors struct {
	live map[entry.Identifier]*Monitor
	out  Emitter
	log  *log.Entry
}

func NewMonitors(out Emitter, logger *log.Entry) *Monitors {
	return &Monitors{live: map[entry.Identifier]*Monitor{}, out: out, log: logger}
}

func (ms *Monitors) Len() int { return len(ms.live) }

// IDs returns the monitored entries in order.
func (ms *Monitors) IDs() []entry.Identifier {
	out := make([]entry.Identifier, 0, len(ms.live))
	for id := range ms.live {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Refresh reconciles the set with targets: dead monitors are dropped,
// monitors no longer wanted (or whose source moved) are destroyed, and
// missing ones are created. Creation is skipped while the context is not
// ready. It reports whether the set changed.
func (ms *Monitors) Refresh(c pulse.Context, targets map[entry.Identifier]uint32) bool {
	changed := false

	for id, m := range ms.live {
		if !m.Alive() {
			ms.log.WithField("entry", id).Debug("monitor died")
			m.Destroy()
			delete(ms.live, id)
			changed = true
		}
	}

	for id, m := range ms.live {
		src, wanted := targets[id]
		if tgt, ok := peakTarget(id, src); wanted && ok && tgt == m.Target {
			continue
		}
		m.Destroy()
		delete(ms.live, id)
		changed = true
	}

	if c.State() != pulse.StateReady {
		return changed
	}

	for id, src := range targets {
		if _, ok := ms.live[id]; ok {
			continue
		}
		tgt, ok := peakTarget(id, src)
		if !ok {
			continue
		}
		m := &Monitor{ID: id, Target: tgt}
		stream, err := c.OpenPeak(tgt, ms.sampler(m))
		if err != nil {
			ms.log.WithError(err).WithField("entry", id).Warn("monitor creation failed")
			continue
		}
		m.stream = stream
		ms.live[id] = m
		changed = true
	}
	return changed
}

func (ms *Monitors) sampler(m *Monitor) func(float32) {
	return func(v float32) {
		if m.destroyed {
			return
		}
		ms.out.Emit(PeakLevel{ID: m.ID, Peak: v})
	}
}

// Clear destroys every monitor.
func (ms *Monitors) Clear() {
	for id, m := range ms.live {
		m.Destroy()
		delete(ms.live, id)
	}
}
