package app

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AJMerr/gopamix/internal/engine"
	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
)

// Tabs
type Tab int

const (
	TabPlayback Tab = iota
	TabRecording
	TabOutput
	TabInput
	TabCards
	tabCount
)

var tabNames = [tabCount]string{"Playback", "Recording", "Output", "Input", "Cards"}

func (t Tab) String() string { return tabNames[t] }

// Type is the entry type listed on the tab.
func (t Tab) Type() entry.Type {
	switch t {
	case TabPlayback:
		return entry.TypeSinkInput
	case TabRecording:
		return entry.TypeSourceOutput
	case TabOutput:
		return entry.TypeSink
	case TabInput:
		return entry.TypeSource
	}
	return entry.TypeCard
}

type connState int

const (
	stateConnecting connState = iota
	stateConnected
	stateLost
	stateFailed
	stateStopped
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateLost:
		return "connection lost"
	case stateFailed:
		return "failed"
	}
	return "stopped"
}

// Sender is the command side of a running engine.
type Sender interface {
	TrySend(engine.Command) bool
	Close()
}

// Dependencies passed into command constructors:
type Deps struct {
	Server     pulse.Server
	Engine     engine.Config
	Tick       time.Duration
	VolumeStep int
	MaxVolume  int
}

type Model struct {
	deps Deps

	// engine run; gen tells events of a replaced run apart
	gen    int
	queue  Sender
	events *engine.ChanEmitter

	// UI state
	state   connState
	server  pulse.ServerInfo
	lastErr error
	tab     Tab
	cursor  [tabCount]int
	offset  [tabCount]int
	width   int
	height  int

	entries   *entry.Entries
	monitored map[entry.Identifier]uint32

	keys keyMap
	help help.Model
	bar  progress.Model
	peak progress.Model
	st   Styles
}

func New(d Deps) Model {
	if d.Tick <= 0 {
		d.Tick = 50 * time.Millisecond
	}
	if d.VolumeStep <= 0 {
		d.VolumeStep = 5
	}
	if d.MaxVolume <= 0 {
		d.MaxVolume = 150
	}
	return Model{
		deps:      d,
		state:     stateConnecting,
		entries:   entry.NewEntries(),
		monitored: map[entry.Identifier]uint32{},
		keys:      defaultKeys(),
		help:      help.New(),
		bar:       progress.New(progress.WithGradient(string(colPurple), string(colAccent)), progress.WithoutPercentage()),
		peak:      progress.New(progress.WithSolidFill(string(colMuted)), progress.WithoutPercentage()),
		st:        newStyles(),
		width:     80,
		height:    24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		StartEngineCmd(m.deps, m.gen),
		TickCmd(m.deps.Tick),
	)
}

// rows is how many entries fit between header and footer.
func (m Model) rows() int {
	n := m.height - 6
	if n < 1 {
		return 1
	}
	return n
}

func (m Model) list() []entry.Entry {
	return m.entries.ByType(m.tab.Type())
}

// visible is the window of the current tab that is on screen.
func (m Model) visible() []entry.Entry {
	all := m.list()
	start := m.offset[m.tab]
	if start > len(all) {
		start = len(all)
	}
	end := start + m.rows()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (m Model) selected() (entry.Entry, bool) {
	all := m.list()
	c := m.cursor[m.tab]
	if c < 0 || c >= len(all) {
		return entry.Entry{}, false
	}
	return all[c], true
}

// clamp keeps the cursor on an entry and inside the window.
func (m *Model) clamp() {
	n := len(m.list())
	c := m.cursor[m.tab]
	if c >= n {
		c = n - 1
	}
	if c < 0 {
		c = 0
	}
	m.cursor[m.tab] = c

	off := m.offset[m.tab]
	if c < off {
		off = c
	}
	if c >= off+m.rows() {
		off = c - m.rows() + 1
	}
	if off < 0 {
		off = 0
	}
	m.offset[m.tab] = off
}

// targets maps every visible entry to the source its peaks come from.
func (m Model) targets() map[entry.Identifier]uint32 {
	out := map[entry.Identifier]uint32{}
	if m.tab == TabCards {
		return out
	}
	for _, e := range m.visible() {
		out[e.ID] = m.entries.MonitorSource(e)
	}
	return out
}

func sameTargets(a, b map[entry.Identifier]uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for id, src := range a {
		if other, ok := b[id]; !ok || other != src {
			return false
		}
	}
	return true
}

// nextDevice returns the device after the stream's current one, wrapping.
func (m Model) nextDevice(e entry.Entry) (uint32, bool) {
	t := entry.TypeSink
	if e.ID.Type == entry.TypeSourceOutput {
		t = entry.TypeSource
	}
	devs := m.entries.ByType(t)
	if len(devs) < 2 {
		return 0, false
	}
	for i, d := range devs {
		if d.ID.Index == e.Parent {
			return devs[(i+1)%len(devs)].ID.Index, true
		}
	}
	return devs[0].ID.Index, true
}
