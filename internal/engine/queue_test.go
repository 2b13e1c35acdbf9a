package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
)

func TestQueueKeepsOrder(t *testing.T) {
	q := NewQueue(4)
	for i := uint32(0); i < 3; i++ {
		if err := q.Send(context.Background(), AskInfo{ID: entry.ID(entry.TypeSink, i)}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for i := uint32(0); i < 3; i++ {
		c := (<-q.recv()).(AskInfo)
		if c.ID.Index != i {
			t.Errorf("Expected index %d, got %d", i, c.ID.Index)
		}
	}
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(1)
	if !q.TrySend(Tick{}) {
		t.Fatal("Expected the first TrySend to succeed")
	}
	if q.TrySend(Tick{}) {
		t.Error("Expected TrySend to fail on a full queue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Send(ctx, Tick{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(1)
	q.TrySend(Tick{})

	blocked := make(chan error, 1)
	go func() { blocked <- q.Send(context.Background(), Tick{}) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close()

	select {
	case err := <-blocked:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked sender was not released")
	}
	if err := q.Send(context.Background(), Tick{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed after close, got %v", err)
	}
	if _, ok := <-q.recv(); !ok {
		t.Error("Expected the queued command to survive Close")
	}
}

func TestCommandConstructorsCopy(t *testing.T) {
	targets := map[entry.Identifier]uint32{entry.ID(entry.TypeSink, 0): 1}
	cm := NewCreateMonitors(targets)
	targets[entry.ID(entry.TypeSink, 1)] = 2
	if len(cm.Targets) != 1 {
		t.Error("CreateMonitors shares the caller's map")
	}

	vol := entry.Volume{10, 20}
	sv := NewSetVolume(entry.ID(entry.TypeSink, 0), vol)
	vol[0] = 99
	if sv.Volume[0] != 10 {
		t.Error("SetVolume shares the caller's slice")
	}
}

func TestPeakTarget(t *testing.T) {
	tests := []struct {
		name     string
		id       entry.Identifier
		source   uint32
		expected pulse.PeakTarget
		ok       bool
	}{
		{"sink", entry.ID(entry.TypeSink, 0), 1, pulse.PeakTarget{Source: 1, SinkInput: pulse.NoIndex}, true},
		{"source", entry.ID(entry.TypeSource, 3), 3, pulse.PeakTarget{Source: 3, SinkInput: pulse.NoIndex}, true},
		{"sink input", entry.ID(entry.TypeSinkInput, 9), 1, pulse.PeakTarget{Source: 1, SinkInput: 9}, true},
		{"source output", entry.ID(entry.TypeSourceOutput, 4), 3, pulse.PeakTarget{Source: 3, SinkInput: pulse.NoIndex}, true},
		{"card", entry.ID(entry.TypeCard, 2), 1, pulse.PeakTarget{}, false},
		{"unknown source", entry.ID(entry.TypeSink, 0), pulse.NoIndex, pulse.PeakTarget{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := peakTarget(tt.id, tt.source)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("Expected (%+v, %v), got (%+v, %v)", tt.expected, tt.ok, got, ok)
			}
		})
	}
}

func TestChanEmitterDropsPeaksWhenFull(t *testing.T) {
	em := NewChanEmitter(1)
	em.Emit(PeakLevel{Peak: 0.1})
	em.Emit(PeakLevel{Peak: 0.2})
	if got := (<-em.Events()).(PeakLevel); got.Peak != 0.1 {
		t.Errorf("Expected the first sample, got %v", got.Peak)
	}

	em.Emit(Redraw{})
	done := make(chan struct{})
	go func() {
		em.Emit(Redraw{})
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Expected Emit to block on a full buffer")
	case <-time.After(20 * time.Millisecond):
	}
	em.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not release Emit")
	}
}
