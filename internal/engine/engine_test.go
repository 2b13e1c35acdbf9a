package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
	"github.com/AJMerr/gopamix/internal/pulse/pulsetest"
)

const waitTimeout = 2 * time.Second

func testConfig() Config {
	return Config{Config: pulse.Config{AppName: "gopamix-test", Timeout: waitTimeout}}
}

// newServer returns a fake with one sink, one source, one card and one
// nameless sink input owned by "firefox".
func newServer() *pulsetest.Server {
	srv := pulsetest.NewServer()
	srv.Sinks[0] = pulse.Device{Index: 0, Name: "alsa_output", Description: "Speakers", Volume: []uint32{0x8000, 0x8000}, Monitor: 1}
	srv.Sources[1] = pulse.Device{Index: 1, Name: "alsa_output.monitor", Description: "Monitor of Speakers", Volume: []uint32{0x10000}}
	srv.SinkInputs[5] = pulse.Stream{Index: 5, Name: "music", Client: 7, Device: 0, Volume: []uint32{0x10000, 0x10000}}
	srv.Clients[7] = pulse.ClientInfo{Index: 7, Application: "firefox"}
	srv.Cards[2] = pulse.Card{
		Index:         2,
		Description:   "Built-in Audio",
		ActiveProfile: "output:stereo",
		Profiles: []pulse.CardProfile{
			{Name: "output:stereo", Available: true},
			{Name: "off", Available: true},
		},
	}
	return srv
}

type harness struct {
	t    *testing.T
	srv  *pulsetest.Server
	eng  *Engine
	em   *ChanEmitter
	errc chan error

	once sync.Once
	err  error
}

func start(t *testing.T, srv *pulsetest.Server) *harness {
	t.Helper()
	h := &harness{t: t, srv: srv, em: NewChanEmitter(1024), errc: make(chan error, 1)}
	h.eng = New(testConfig(), srv, h.em)
	go func() { h.errc <- h.eng.Run(context.Background()) }()
	t.Cleanup(func() { h.stop() })
	next[Connected](t, h.em, nil)
	return h
}

func (h *harness) send(cmds ...Command) {
	h.t.Helper()
	for _, c := range cmds {
		if err := h.eng.Queue().Send(context.Background(), c); err != nil {
			h.t.Fatalf("Send(%s): %v", describe(c), err)
		}
	}
}

// stop shuts the engine down and returns Run's error.
func (h *harness) stop() error {
	h.once.Do(func() {
		_ = h.eng.Queue().Send(context.Background(), Shutdown{})
		select {
		case h.err = <-h.errc:
		case <-time.After(waitTimeout):
			h.t.Error("engine did not stop")
		}
	})
	return h.err
}

// next waits for the first event of type T accepted by match.
func next[T Event](t *testing.T, em *ChanEmitter, match func(T) bool) T {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-em.Events():
			if v, ok := ev.(T); ok && (match == nil || match(v)) {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func updated(id entry.Identifier) func(EntryUpdated) bool {
	return func(ev EntryUpdated) bool { return ev.Entry.ID == id }
}

// collect gathers updates until every id has been seen, in any order.
func collect(t *testing.T, em *ChanEmitter, ids ...entry.Identifier) map[entry.Identifier]entry.Entry {
	t.Helper()
	want := map[entry.Identifier]bool{}
	for _, id := range ids {
		want[id] = true
	}
	got := map[entry.Identifier]entry.Entry{}
	for len(got) < len(want) {
		ev := next(t, em, func(ev EntryUpdated) bool { return want[ev.Entry.ID] })
		got[ev.Entry.ID] = ev.Entry
	}
	return got
}

func TestRunStartupFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*pulsetest.Server)
		expected error
	}{
		{"context create", func(s *pulsetest.Server) { s.ContextErr = errors.New("boom") }, ErrContextCreate},
		{"connect rejected", func(s *pulsetest.Server) { s.ConnectErr = errors.New("refused") }, ErrMainloopConnect},
		{"context failed", func(s *pulsetest.Server) { s.FailConnect = true }, ErrMainloopConnect},
		{"timeout", func(s *pulsetest.Server) { s.Hang = true }, ErrMainloopConnect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := pulsetest.NewServer()
			tt.setup(srv)
			em := NewChanEmitter(16)
			cfg := testConfig()
			cfg.Timeout = 30 * time.Millisecond
			eng := New(cfg, srv, em)

			err := eng.Run(context.Background())
			if !errors.Is(err, tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, err)
			}
			if eng.State() != StateFailed {
				t.Errorf("Expected state failed, got %v", eng.State())
			}
			stopped := next[EngineStopped](t, em, nil)
			if !errors.Is(stopped.Err, tt.expected) {
				t.Errorf("EngineStopped carried %v", stopped.Err)
			}
		})
	}
}

func TestRunTwice(t *testing.T) {
	h := start(t, newServer())
	if err := h.eng.Run(context.Background()); !errors.Is(err, errAlreadyStarted) {
		t.Errorf("Expected errAlreadyStarted, got %v", err)
	}
}

func TestProplistCarriesRunID(t *testing.T) {
	h := start(t, newServer())
	props := h.srv.Context().Props
	if got := props[pulse.PropApplicationInstance]; got != h.eng.RunID() {
		t.Errorf("Expected instance %q, got %q", h.eng.RunID(), got)
	}
	if got := props[pulse.PropApplicationName]; got != "gopamix-test" {
		t.Errorf("Expected app name gopamix-test, got %q", got)
	}
}

func TestInitialStateIsListed(t *testing.T) {
	h := start(t, newServer())
	sinkID := entry.ID(entry.TypeSink, 0)
	inputID := entry.ID(entry.TypeSinkInput, 5)
	cardID := entry.ID(entry.TypeCard, 2)
	got := collect(t, h.em, sinkID, inputID, cardID)

	if sink := got[sinkID]; sink.Name != "Speakers" || sink.Monitor != 1 {
		t.Errorf("Unexpected sink entry %+v", sink)
	}
	input := got[inputID]
	if input.Name != "firefox: music" {
		t.Errorf("Expected client name to be resolved, got %q", input.Name)
	}
	if input.Parent != 0 {
		t.Errorf("Expected parent sink 0, got %d", input.Parent)
	}
	if card := got[cardID]; card.Card == nil || card.Card.Active != "output:stereo" {
		t.Errorf("Unexpected card entry %+v", card)
	}
	if len(h.srv.CallsOf("subscribe")) != 1 {
		t.Error("Expected one subscribe request")
	}
}

func TestMutationsReachServer(t *testing.T) {
	h := start(t, newServer())
	input := entry.ID(entry.TypeSinkInput, 5)
	h.send(
		NewSetVolume(entry.ID(entry.TypeSink, 0), entry.Volume{0x4000, 0x4000}),
		SetMute{ID: input, Mute: true},
		MoveEntry{ID: input, Parent: 3},
		SetCardProfile{ID: entry.ID(entry.TypeCard, 2), Profile: "off"},
		KillEntry{ID: input},
	)
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tests := []struct {
		op    string
		index uint32
	}{
		{"set-sink-volume", 0},
		{"set-sink-input-mute", 5},
		{"move-sink-input", 5},
		{"set-card-profile", 2},
		{"kill-sink-input", 5},
	}
	for _, tt := range tests {
		calls := h.srv.CallsOf(tt.op)
		if len(calls) != 1 || calls[0].Index != tt.index {
			t.Errorf("Expected one %s on %d, got %v", tt.op, tt.index, calls)
		}
	}
}

func TestInapplicableCommandsAreIgnored(t *testing.T) {
	h := start(t, newServer())
	h.send(
		KillEntry{ID: entry.ID(entry.TypeSink, 0)},
		SetMute{ID: entry.ID(entry.TypeCard, 2), Mute: true},
		SetCardProfile{ID: entry.ID(entry.TypeSink, 0), Profile: "off"},
	)
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, c := range h.srv.Calls() {
		switch c.Op {
		case "kill-sink-input", "kill-source-output", "set-sink-mute", "set-card-profile":
			t.Errorf("Unexpected call %v", c)
		}
	}
}

func TestRejectedMutationKeepsRunning(t *testing.T) {
	srv := newServer()
	srv.MutationErr = errors.New("access denied")
	h := start(t, srv)
	sink := entry.ID(entry.TypeSink, 0)
	next(t, h.em, updated(sink))
	h.send(SetMute{ID: sink, Mute: true}, AskInfo{ID: sink})
	next(t, h.em, updated(sink))
	if len(h.srv.CallsOf("set-sink-mute")) != 1 {
		t.Error("Expected the mute request to be sent")
	}
	if h.eng.State() != StateRunning {
		t.Errorf("Expected running, got %v", h.eng.State())
	}
}

func TestAskInfoForMissingEntryIsSilent(t *testing.T) {
	h := start(t, newServer())
	missing := entry.ID(entry.TypeSink, 99)
	source := entry.ID(entry.TypeSource, 1)
	h.send(AskInfo{ID: missing}, AskInfo{ID: source})

	// the second source update answers the AskInfo queued after the missing one
	seen := 0
	timeout := time.After(waitTimeout)
	for seen < 2 {
		select {
		case ev := <-h.em.Events():
			switch ev := ev.(type) {
			case EntryUpdated:
				if ev.Entry.ID == missing {
					t.Fatal("Got an update for a missing entry")
				}
				if ev.Entry.ID == source {
					seen++
				}
			case EntryRemoved, EngineStopped:
				t.Fatalf("Unexpected event %T", ev)
			}
		case <-timeout:
			t.Fatal("timed out")
		}
	}
	if len(h.srv.CallsOf("sink-info")) != 1 {
		t.Error("Expected the missing entry to be queried once")
	}
}

func TestSubscriptionEvents(t *testing.T) {
	h := start(t, newServer())
	sink := entry.ID(entry.TypeSink, 0)
	next(t, h.em, updated(sink))

	h.srv.Update(func(s *pulsetest.Server) {
		d := s.Sinks[0]
		d.Mute = true
		s.Sinks[0] = d
	})
	h.srv.Context().Emit(pulse.Event{Facility: pulse.FacilitySink, Type: pulse.EventChange, Index: 0})
	got := next(t, h.em, updated(sink))
	if !got.Entry.Mute {
		t.Error("Expected the change to be re-queried")
	}

	h.srv.Context().Emit(pulse.Event{Facility: pulse.FacilitySinkInput, Type: pulse.EventRemove, Index: 5})
	removed := next[EntryRemoved](t, h.em, nil)
	if removed.ID != entry.ID(entry.TypeSinkInput, 5) {
		t.Errorf("Expected sink-input#5 removed, got %v", removed.ID)
	}

	h.srv.Update(func(s *pulsetest.Server) { s.Info.DefaultSink = "alsa_output" })
	h.srv.Context().Emit(pulse.Event{Facility: pulse.FacilityServer, Type: pulse.EventChange})
	next(t, h.em, func(ev ServerUpdated) bool { return ev.Server.DefaultSink == "alsa_output" })
}

func TestMonitorsFollowTargets(t *testing.T) {
	h := start(t, newServer())
	sink := entry.ID(entry.TypeSink, 0)
	input := entry.ID(entry.TypeSinkInput, 5)
	card := entry.ID(entry.TypeCard, 2)

	h.send(NewCreateMonitors(map[entry.Identifier]uint32{sink: 1, input: 1, card: 1}))
	next[Redraw](t, h.em, nil)

	peaks := h.srv.Peaks()
	if len(peaks) != 2 {
		t.Fatalf("Expected 2 peak streams, got %d", len(peaks))
	}
	var inputPeak *pulsetest.Peak
	for _, p := range peaks {
		if p.Target.Source != 1 {
			t.Errorf("Expected source 1, got %d", p.Target.Source)
		}
		if p.Target.SinkInput == 5 {
			inputPeak = p
		}
	}
	if inputPeak == nil {
		t.Fatal("Expected a stream restricted to sink input 5")
	}

	if err := inputPeak.Send(0.5); err != nil {
		t.Fatalf("Send: %v", err)
	}
	level := next(t, h.em, func(ev PeakLevel) bool { return ev.ID == input })
	if level.Peak != 0.5 {
		t.Errorf("Expected peak 0.5, got %v", level.Peak)
	}

	h.send(NewCreateMonitors(map[entry.Identifier]uint32{sink: 1}))
	next[Redraw](t, h.em, nil)
	if !inputPeak.Closed() {
		t.Error("Expected the unwanted monitor to be closed")
	}
	if err := inputPeak.Send(0.9); err == nil {
		t.Error("Expected a closed peak to refuse samples")
	}
}

func TestTickReplacesDeadMonitor(t *testing.T) {
	h := start(t, newServer())
	sink := entry.ID(entry.TypeSink, 0)
	h.send(NewCreateMonitors(map[entry.Identifier]uint32{sink: 1}))
	next[Redraw](t, h.em, nil)

	h.srv.Peaks()[0].Kill()
	h.send(Tick{})
	next[Redraw](t, h.em, nil)

	if n := len(h.srv.CallsOf("open-peak")); n != 2 {
		t.Errorf("Expected the monitor to be recreated, got %d opens", n)
	}
	if !h.srv.Peaks()[0].Closed() {
		t.Error("Expected the dead stream to be closed")
	}
}

func TestTickRetriesFailedMonitor(t *testing.T) {
	srv := newServer()
	srv.PeakErr[1] = errors.New("no such source")
	h := start(t, srv)
	sink := entry.ID(entry.TypeSink, 0)
	next(t, h.em, updated(sink))
	h.send(NewCreateMonitors(map[entry.Identifier]uint32{sink: 1}), Tick{}, AskInfo{ID: sink})
	next(t, h.em, updated(sink))

	if n := len(h.srv.CallsOf("open-peak")); n != 2 {
		t.Errorf("Expected one attempt per refresh, got %d", n)
	}
	if len(h.srv.Peaks()) != 0 {
		t.Error("Expected no live peak stream")
	}
}

func TestConnectionLost(t *testing.T) {
	h := start(t, newServer())
	h.srv.Context().Fail()
	next[ConnectionLost](t, h.em, nil)

	h.send(SetMute{ID: entry.ID(entry.TypeSink, 0), Mute: true})
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := h.srv.CallsOf("set-sink-mute"); len(calls) != 0 {
		t.Errorf("Expected commands to be dropped after loss, got %v", calls)
	}
}

func TestShutdownStopsDispatch(t *testing.T) {
	srv := newServer()
	em := NewChanEmitter(1024)
	eng := New(testConfig(), srv, em)
	q := eng.Queue()
	for _, c := range []Command{
		SetMute{ID: entry.ID(entry.TypeSink, 0), Mute: true},
		Shutdown{},
		SetMute{ID: entry.ID(entry.TypeSource, 1), Mute: true},
	} {
		if !q.TrySend(c) {
			t.Fatal("TrySend failed")
		}
	}

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eng.State() != StateStopped {
		t.Errorf("Expected stopped, got %v", eng.State())
	}
	if len(srv.CallsOf("set-sink-mute")) != 1 {
		t.Error("Expected the command before Shutdown to run")
	}
	if len(srv.CallsOf("set-source-mute")) != 0 {
		t.Error("Expected the command after Shutdown to be skipped")
	}
	if len(srv.CallsOf("disconnect")) != 1 {
		t.Error("Expected a disconnect on teardown")
	}
}

func TestRunEndsOnQueueCloseAndCancel(t *testing.T) {
	tests := []struct {
		name string
		stop func(*Engine, context.CancelFunc)
	}{
		{"queue closed", func(e *Engine, _ context.CancelFunc) { e.Queue().Close() }},
		{"context cancelled", func(_ *Engine, cancel context.CancelFunc) { cancel() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := NewChanEmitter(1024)
			eng := New(testConfig(), newServer(), em)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			errc := make(chan error, 1)
			go func() { errc <- eng.Run(ctx) }()
			next[Connected](t, em, nil)

			tt.stop(eng, cancel)
			select {
			case err := <-errc:
				if err != nil {
					t.Errorf("Expected clean stop, got %v", err)
				}
			case <-time.After(waitTimeout):
				t.Fatal("engine did not stop")
			}
			next[EngineStopped](t, em, nil)
		})
	}
}

func TestEngineStoppedIsLast(t *testing.T) {
	h := start(t, newServer())
	h.send(NewCreateMonitors(map[entry.Identifier]uint32{entry.ID(entry.TypeSink, 0): 1}))
	next[Redraw](t, h.em, nil)
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var last Event
	for {
		select {
		case ev := <-h.em.Events():
			last = ev
			continue
		default:
		}
		break
	}
	if _, ok := last.(EngineStopped); !ok {
		t.Errorf("Expected EngineStopped last, got %T", last)
	}
	if !h.srv.Peaks()[0].Closed() {
		t.Error("Expected monitors to be closed on teardown")
	}
}

func TestMonitorTargetReplacement(t *testing.T) {
	srv := newServer()
	srv.Sources[2] = pulse.Device{Index: 2, Name: "mic"}
	h := start(t, srv)
	a := entry.ID(entry.TypeSink, 0)
	b := entry.ID(entry.TypeSource, 1)
	c := entry.ID(entry.TypeSource, 2)

	h.send(NewCreateMonitors(map[entry.Identifier]uint32{a: 1, b: 1}))
	next[Redraw](t, h.em, nil)
	first := h.srv.Peaks()

	// same targets again: nothing is reopened
	h.send(NewCreateMonitors(map[entry.Identifier]uint32{a: 1, b: 1}))
	h.send(NewCreateMonitors(map[entry.Identifier]uint32{b: 1, c: 2}))
	next[Redraw](t, h.em, nil)
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	opens := h.srv.CallsOf("open-peak")
	if len(opens) != 3 {
		t.Fatalf("Expected 3 opens (A, B, then C), got %v", opens)
	}
	if opens[2].Index != 2 {
		t.Errorf("Expected the third open on source 2, got %v", opens[2])
	}
	// A's stream was closed by the replacement, B's only at teardown
	closes := h.srv.CallsOf("close-peak")
	if len(closes) != 3 {
		t.Errorf("Expected every stream closed by teardown, got %v", closes)
	}
	if len(first) != 2 {
		t.Errorf("Expected 2 initial streams, got %d", len(first))
	}
}

func TestSetVolumeWhileFailedIsDropped(t *testing.T) {
	h := start(t, newServer())
	h.srv.Context().Fail()
	next[ConnectionLost](t, h.em, nil)

	h.send(NewSetVolume(entry.ID(entry.TypeSink, 0), entry.Volume{0x1000}))
	h.send(Tick{})
	if h.eng.State() != StateRunning {
		t.Errorf("Expected the loop to keep running, got %v", h.eng.State())
	}
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := h.srv.CallsOf("set-sink-volume"); len(calls) != 0 {
		t.Errorf("Expected no volume request, got %v", calls)
	}
}

func TestTickReplacesRejectedMonitor(t *testing.T) {
	srv := newServer()
	srv.PeakReject[1] = errors.New("no such source")
	h := start(t, srv)
	sink := entry.ID(entry.TypeSink, 0)

	h.send(NewCreateMonitors(map[entry.Identifier]uint32{sink: 1}))
	next[Redraw](t, h.em, nil)
	if n := len(h.srv.Peaks()); n != 1 {
		t.Fatalf("Expected one stream, got %d", n)
	}

	h.send(Tick{})
	next[Redraw](t, h.em, nil)
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := len(h.srv.CallsOf("open-peak")); n != 2 {
		t.Fatalf("Expected exactly one reopen, got %d opens", n)
	}
	peaks := h.srv.Peaks()
	if peaks[0].Opened() || peaks[1].Opened() {
		t.Error("Expected neither stream to be accepted")
	}
	// the rejected stream is closed before its replacement is requested
	var ops []string
	for _, c := range h.srv.Calls() {
		if c.Op == "open-peak" || c.Op == "close-peak" {
			ops = append(ops, c.Op)
		}
	}
	want := []string{"open-peak", "close-peak", "open-peak", "close-peak"}
	if len(ops) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, ops)
		}
	}
}

func TestCommandOrderSurvivesCallbacks(t *testing.T) {
	h := start(t, newServer())
	sink := entry.ID(entry.TypeSink, 0)
	source := entry.ID(entry.TypeSource, 1)

	const n = 100
	for i := 0; i < n; i++ {
		id := sink
		if i%2 == 1 {
			id = source
		}
		h.send(SetMute{ID: id, Mute: i%4 < 2})
		h.srv.Context().Emit(pulse.Event{Facility: pulse.FacilitySink, Type: pulse.EventChange, Index: 0})
	}
	if err := h.stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got []pulsetest.Call
	for _, c := range h.srv.Calls() {
		if c.Op == "set-sink-mute" || c.Op == "set-source-mute" {
			got = append(got, c)
		}
	}
	if len(got) != n {
		t.Fatalf("Expected %d mutations, got %d", n, len(got))
	}
	for i, c := range got {
		op := "set-sink-mute"
		if i%2 == 1 {
			op = "set-source-mute"
		}
		if c.Op != op || c.Arg != (i%4 < 2) {
			t.Fatalf("mutation %d: expected %s(%v), got %v", i, op, i%4 < 2, c)
		}
	}
}
