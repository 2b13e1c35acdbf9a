package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AJMerr/gopamix/internal/engine"
	"github.com/AJMerr/gopamix/internal/entry"
)

type recorder struct {
	cmds   []engine.Command
	full   bool
	closed bool
}

func (r *recorder) TrySend(c engine.Command) bool {
	if r.full || r.closed {
		return false
	}
	r.cmds = append(r.cmds, c)
	return true
}

func (r *recorder) Close() { r.closed = true }

func (r *recorder) last() engine.Command {
	if len(r.cmds) == 0 {
		return nil
	}
	return r.cmds[len(r.cmds)-1]
}

var (
	sink0  = entry.ID(entry.TypeSink, 0)
	sink1  = entry.ID(entry.TypeSink, 1)
	input5 = entry.ID(entry.TypeSinkInput, 5)
	card2  = entry.ID(entry.TypeCard, 2)
)

func fixture() []engine.Event {
	return []engine.Event{
		engine.Connected{},
		engine.EntryUpdated{Entry: entry.Entry{ID: sink0, Name: "Speakers", Volume: entry.Volume{0x10000}, Monitor: 10}},
		engine.EntryUpdated{Entry: entry.Entry{ID: sink1, Name: "Headphones", Volume: entry.Volume{0x10000}, Monitor: 11}},
		engine.EntryUpdated{Entry: entry.Entry{ID: input5, Name: "firefox", Volume: entry.Volume{0x8000, 0x8000}, Parent: 0}},
		engine.EntryUpdated{Entry: entry.Entry{ID: card2, Name: "Built-in", Card: &entry.CardInfo{
			Active:   "a",
			Profiles: []entry.Profile{{Name: "a", Available: true}, {Name: "b", Available: false}, {Name: "c", Available: true}},
		}}},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out, cmd
}

func connected(t *testing.T) (Model, *recorder) {
	t.Helper()
	rec := &recorder{}
	m := New(Deps{VolumeStep: 5, MaxVolume: 150})
	m, _ = update(t, m, EngineStartedMsg{Gen: 0, Queue: rec, Events: engine.NewChanEmitter(8)})
	m, _ = update(t, m, EngineEventsMsg{Gen: 0, Events: fixture()})
	return m, rec
}

func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	m, _ = update(t, m, msg)
	return m
}

func TestEventsPopulateModel(t *testing.T) {
	m, rec := connected(t)
	if m.state != stateConnected {
		t.Errorf("Expected connected, got %v", m.state)
	}
	if m.entries.Len() != 4 {
		t.Errorf("Expected 4 entries, got %d", m.entries.Len())
	}

	// the playback tab is visible: the sink input follows its sink's monitor
	cm, ok := rec.last().(engine.CreateMonitors)
	if !ok {
		t.Fatalf("Expected CreateMonitors, got %#v", rec.last())
	}
	if len(cm.Targets) != 1 || cm.Targets[input5] != 10 {
		t.Errorf("Unexpected targets %v", cm.Targets)
	}
}

func TestMonitorsFollowTab(t *testing.T) {
	m, rec := connected(t)
	n := len(rec.cmds)

	m = press(t, m, "tab") // recording: empty
	m = press(t, m, "tab") // output
	cm, ok := rec.last().(engine.CreateMonitors)
	if !ok || len(cm.Targets) != 2 || cm.Targets[sink0] != 10 || cm.Targets[sink1] != 11 {
		t.Errorf("Expected sink monitors, got %#v", rec.last())
	}

	sent := len(rec.cmds)
	m = press(t, m, "down")
	if len(rec.cmds) != sent {
		t.Error("Expected no CreateMonitors when the visible set is unchanged")
	}
	if len(rec.cmds) <= n {
		t.Error("Expected tab switches to resend targets")
	}
	_ = m
}

func TestKeysSendCommands(t *testing.T) {
	tests := []struct {
		name     string
		tabs     int
		key      string
		expected engine.Command
	}{
		{"mute", 0, "m", engine.SetMute{ID: input5, Mute: true}},
		{"volume up", 0, "l", engine.SetVolume{ID: input5, Volume: entry.Volume{0x8000 + 0xccc, 0x8000 + 0xccc}}},
		{"set 30%", 0, "3", engine.SetVolume{ID: input5, Volume: entry.Volume{0x4ccc, 0x4ccc}}},
		{"set 100%", 0, "0", engine.SetVolume{ID: input5, Volume: entry.Volume{0x10000, 0x10000}}},
		{"move to next sink", 0, "d", engine.MoveEntry{ID: input5, Parent: 1}},
		{"kill", 0, "x", engine.KillEntry{ID: input5}},
		// 102% of norm is 66846
		{"volume up clamps", 2, "l", engine.SetVolume{ID: sink0, Volume: entry.Volume{66846}}},
		{"card profile skips unavailable", 4, "p", engine.SetCardProfile{ID: card2, Profile: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := connected(t)
			m.deps.MaxVolume = 102
			for i := 0; i < tt.tabs; i++ {
				m = press(t, m, "tab")
			}
			press(t, m, tt.key)
			if !commandEqual(rec.last(), tt.expected) {
				t.Errorf("Expected %#v, got %#v", tt.expected, rec.last())
			}
		})
	}
}

func commandEqual(a, b engine.Command) bool {
	av, aok := a.(engine.SetVolume)
	bv, bok := b.(engine.SetVolume)
	if aok && bok {
		if av.ID != bv.ID || len(av.Volume) != len(bv.Volume) {
			return false
		}
		for i := range av.Volume {
			if av.Volume[i] != bv.Volume[i] {
				return false
			}
		}
		return true
	}
	if aok || bok {
		return false
	}
	return a == b
}

func TestInapplicableKeysSendNothing(t *testing.T) {
	m, rec := connected(t)
	for i := 0; i < 4; i++ {
		m = press(t, m, "tab")
	}
	n := len(rec.cmds)
	for _, k := range []string{"m", "l", "x", "d", "5"} {
		m = press(t, m, k)
	}
	if len(rec.cmds) != n {
		t.Errorf("Expected no commands on a card, got %v", rec.cmds[n:])
	}
}

func TestRemovalClampsCursor(t *testing.T) {
	m, _ := connected(t)
	m = press(t, m, "tab")
	m = press(t, m, "tab")
	m = press(t, m, "down")
	if m.cursor[TabOutput] != 1 {
		t.Fatalf("Expected cursor 1, got %d", m.cursor[TabOutput])
	}
	m, _ = update(t, m, EngineEventsMsg{Gen: 0, Events: []engine.Event{engine.EntryRemoved{ID: sink1}}})
	if m.cursor[TabOutput] != 0 {
		t.Errorf("Expected cursor clamped to 0, got %d", m.cursor[TabOutput])
	}
}

func TestPeaksUpdateEntries(t *testing.T) {
	m, _ := connected(t)
	m, _ = update(t, m, EngineEventsMsg{Gen: 0, Events: []engine.Event{engine.PeakLevel{ID: input5, Peak: 0.25}}})
	e, _ := m.entries.Get(input5)
	if e.Peak != 0.25 {
		t.Errorf("Expected peak 0.25, got %v", e.Peak)
	}
}

func TestStaleEventsAreIgnored(t *testing.T) {
	m, _ := connected(t)
	m.gen = 1
	m, cmd := update(t, m, EngineEventsMsg{Gen: 0, Events: []engine.Event{engine.EntryRemoved{ID: input5}, engine.EngineStopped{}}})
	if _, ok := m.entries.Get(input5); !ok {
		t.Error("Stale event changed the model")
	}
	if cmd != nil {
		t.Error("Expected to stop listening to a stopped stale run")
	}
}

func TestEngineStopped(t *testing.T) {
	m, rec := connected(t)
	boom := errors.New("boom")
	m, cmd := update(t, m, EngineEventsMsg{Gen: 0, Events: []engine.Event{engine.EngineStopped{Err: boom}}})
	if m.state != stateFailed || !errors.Is(m.lastErr, boom) {
		t.Errorf("Expected failed with boom, got %v %v", m.state, m.lastErr)
	}
	if cmd != nil {
		t.Error("Expected no further listening")
	}
	n := len(rec.cmds)
	press(t, m, "m")
	if len(rec.cmds) != n {
		t.Error("Expected commands to go nowhere after the engine stopped")
	}
}

func TestFullQueueDoesNotBlock(t *testing.T) {
	m, rec := connected(t)
	rec.full = true
	m = press(t, m, "m")
	if m.state != stateConnected {
		t.Errorf("Expected to stay connected, got %v", m.state)
	}
}

func TestReconnectStartsNewRun(t *testing.T) {
	m, rec := connected(t)
	next, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if _, ok := rec.last().(engine.Shutdown); !ok {
		t.Errorf("Expected Shutdown to the old run, got %#v", rec.last())
	}
	if !rec.closed {
		t.Error("Expected the old queue to be closed")
	}
	if next.gen != 1 || next.state != stateConnecting || cmd == nil {
		t.Errorf("Expected a new run to start, got gen %d state %v", next.gen, next.state)
	}
}

func TestReconnectWithFullQueueRetiresOldRun(t *testing.T) {
	m, _ := connected(t)
	q := engine.NewQueue(1)
	if !q.TrySend(engine.Tick{}) {
		t.Fatal("TrySend on an empty queue failed")
	}
	m.queue = q

	next, _ := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if next.queue != nil {
		t.Error("Expected the old queue to be released")
	}
	if q.TrySend(engine.Tick{}) {
		t.Error("Expected the old queue to refuse commands")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Send(ctx, engine.Tick{}); !errors.Is(err, engine.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}

func TestStaleStartIsRetired(t *testing.T) {
	m, _ := connected(t)
	m.gen = 2
	old := &recorder{}
	_, cmd := update(t, m, EngineStartedMsg{Gen: 1, Queue: old, Events: engine.NewChanEmitter(8)})
	if !old.closed {
		t.Error("Expected the stale run's queue to be closed")
	}
	if cmd == nil {
		t.Error("Expected the stale run to be drained")
	}
}

func TestView(t *testing.T) {
	m, _ := connected(t)
	out := m.View()
	for _, want := range []string{"gopamix", "Playback", "firefox", "connected"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		in       string
		w        int
		expected string
	}{
		{"abc", 5, "abc  "},
		{"abcdef", 4, "abc…"},
		{"abcd", 4, "abcd"},
	}
	for _, tt := range tests {
		if got := fit(tt.in, tt.w); got != tt.expected {
			t.Errorf("fit(%q, %d) = %q, want %q", tt.in, tt.w, got, tt.expected)
		}
	}
}
