package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/AJMerr/gopamix/internal/engine"
	"github.com/AJMerr/gopamix/internal/entry"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case EngineStartedMsg:
		if msg.Gen != m.gen {
			// a newer run was requested meanwhile
			retire(msg.Queue)
			return m, ListenCmd(msg.Gen, msg.Events)
		}
		m.queue = msg.Queue
		m.events = msg.Events
		m.state = stateConnecting
		m.lastErr = nil
		m.entries.Clear()
		m.monitored = map[entry.Identifier]uint32{}
		return m, ListenCmd(m.gen, m.events)

	case EngineEventsMsg:
		if msg.Gen != m.gen {
			// drain a replaced run until it has stopped
			if stoppedIn(msg.Events) {
				return m, nil
			}
			return m, ListenCmd(msg.Gen, msg.Source)
		}
		stopped := false
		for _, ev := range msg.Events {
			if m.apply(ev) {
				stopped = true
			}
		}
		m.clamp()
		m.syncMonitors()
		if stopped {
			return m, nil
		}
		return m, ListenCmd(m.gen, m.events)

	case TickMsg:
		if m.state == stateConnected {
			m.send(engine.Tick{})
		}
		return m, TickCmd(m.deps.Tick)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.clamp()
		m.syncMonitors()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// apply folds one engine event into the model and reports whether the run ended.
func (m *Model) apply(ev engine.Event) bool {
	switch ev := ev.(type) {
	case engine.Connected:
		m.state = stateConnected
		m.server = ev.Server
	case engine.ServerUpdated:
		m.server = ev.Server
	case engine.EntryUpdated:
		m.entries.Set(ev.Entry)
	case engine.EntryRemoved:
		m.entries.Remove(ev.ID)
	case engine.PeakLevel:
		m.entries.SetPeak(ev.ID, ev.Peak)
	case engine.ConnectionLost:
		m.state = stateLost
	case engine.EngineStopped:
		m.queue = nil
		m.lastErr = ev.Err
		if ev.Err != nil {
			m.state = stateFailed
		} else if m.state != stateLost {
			m.state = stateStopped
		}
		return true
	}
	return false
}

func stoppedIn(events []engine.Event) bool {
	for _, ev := range events {
		if _, ok := ev.(engine.EngineStopped); ok {
			return true
		}
	}
	return false
}

// send hands c to the engine without blocking the UI.
func (m *Model) send(c engine.Command) bool {
	if m.queue == nil {
		return false
	}
	if !m.queue.TrySend(c) {
		log.WithField("command", c).Warn("engine queue full, command dropped")
		return false
	}
	return true
}

// retire stops a run for good. Shutdown may not fit in a full queue, so the
// queue is also closed; the engine exits once it has drained it.
func retire(q Sender) {
	if q == nil {
		return
	}
	q.TrySend(engine.Shutdown{})
	q.Close()
}

// syncMonitors asks for peaks of exactly what is on screen.
func (m *Model) syncMonitors() {
	if m.state != stateConnected {
		return
	}
	t := m.targets()
	if sameTargets(t, m.monitored) {
		return
	}
	if m.send(engine.NewCreateMonitors(t)) {
		m.monitored = t
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		retire(m.queue)
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		retire(m.queue)
		m.queue = nil
		m.gen++
		m.state = stateConnecting
		return m, StartEngineCmd(m.deps, m.gen)

	case key.Matches(msg, m.keys.NextTab):
		m.tab = (m.tab + 1) % tabCount
	case key.Matches(msg, m.keys.PrevTab):
		m.tab = (m.tab + tabCount - 1) % tabCount
	case key.Matches(msg, m.keys.Up):
		m.cursor[m.tab]--
	case key.Matches(msg, m.keys.Down):
		m.cursor[m.tab]++

	default:
		m.act(msg)
		return m, nil
	}
	m.clamp()
	m.syncMonitors()
	return m, nil
}

// act turns a key into a command on the selected entry.
func (m *Model) act(msg tea.KeyMsg) {
	e, ok := m.selected()
	if !ok {
		return
	}
	isCard := e.ID.Type == entry.TypeCard

	switch {
	case key.Matches(msg, m.keys.Mute) && !isCard:
		m.send(engine.SetMute{ID: e.ID, Mute: !e.Mute})

	case key.Matches(msg, m.keys.VolumeUp) && !isCard:
		m.send(engine.NewSetVolume(e.ID, e.Volume.Adjust(m.deps.VolumeStep, m.deps.MaxVolume)))

	case key.Matches(msg, m.keys.VolumeDown) && !isCard:
		m.send(engine.NewSetVolume(e.ID, e.Volume.Adjust(-m.deps.VolumeStep, m.deps.MaxVolume)))

	case key.Matches(msg, m.keys.VolumeSet) && !isCard:
		pct := int(msg.String()[0]-'0') * 10
		if pct == 0 {
			pct = 100
		}
		m.send(engine.NewSetVolume(e.ID, e.Volume.SetPercent(pct)))

	case key.Matches(msg, m.keys.Move) && e.ID.Type.IsStream():
		if dev, ok := m.nextDevice(e); ok {
			m.send(engine.MoveEntry{ID: e.ID, Parent: dev})
		}

	case key.Matches(msg, m.keys.Kill) && e.ID.Type.IsStream():
		m.send(engine.KillEntry{ID: e.ID})

	case key.Matches(msg, m.keys.Profile) && isCard && e.Card != nil:
		if p, ok := e.Card.NextProfile(); ok {
			m.send(engine.SetCardProfile{ID: e.ID, Profile: p})
		}
	}
}
