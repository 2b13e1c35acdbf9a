package engine

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
)

// Outcome tells the loop whether to keep going after a command.
type Outcome int

const (
	Continue Outcome = iota
	Stop
)

const subscribeMask = pulse.MaskSink | pulse.MaskSource | pulse.MaskSinkInput |
	pulse.MaskSourceOutput | pulse.MaskServer | pulse.MaskCard

// Dispatcher turns commands into server requests. All methods run on the
// engine goroutine with the loop lock held, and so do the callbacks they
// register.
type Dispatcher struct {
	out Emitter
	log *log.Entry
}

func NewDispatcher(out Emitter, logger *log.Entry) *Dispatcher {
	return &Dispatcher{out: out, log: logger}
}

// Handle issues the requests for cmd without waiting for their replies.
// Tick and CreateMonitors belong to the monitor set and are ignored here.
func (d *Dispatcher) Handle(c pulse.Context, cmd Command) Outcome {
	switch cmd.(type) {
	case Shutdown:
		return Stop
	case Tick, CreateMonitors:
		return Continue
	}

	if st := c.State(); st != pulse.StateReady {
		d.log.WithFields(log.Fields{"command": describe(cmd), "state": st}).Debug("context not ready, dropping command")
		return Continue
	}

	switch cmd := cmd.(type) {
	case AskInfo:
		d.requestInfo(c, cmd.ID)
	case RequestState:
		d.RequestState(c)
	case SetMute:
		d.setMute(c, cmd)
	case SetVolume:
		d.setVolume(c, cmd)
	case MoveEntry:
		d.move(c, cmd)
	case KillEntry:
		d.kill(c, cmd)
	case SetCardProfile:
		if cmd.ID.Type != entry.TypeCard {
			d.inapplicable(cmd)
			break
		}
		c.SetCardProfile(cmd.ID.Index, cmd.Profile, d.ack(cmd))
	}
	return Continue
}

// Subscribe routes server change notifications into entry queries.
func (d *Dispatcher) Subscribe(c pulse.Context) {
	c.SetSubscribeCallback(func(ev pulse.Event) { d.onEvent(c, ev) })
	c.Subscribe(subscribeMask, func(err error) {
		if err != nil {
			d.log.WithError(err).Warn("subscribe failed, changes will not be tracked")
		}
	})
}

// RequestState lists every entry and the server info.
func (d *Dispatcher) RequestState(c pulse.Context) {
	d.requestServer(c)
	c.SinkInfoList(func(devs []pulse.Device, err error) {
		if d.listFailed("sinks", err) {
			return
		}
		for _, dev := range devs {
			d.out.Emit(EntryUpdated{Entry: deviceEntry(entry.TypeSink, dev)})
		}
	})
	c.SourceInfoList(func(devs []pulse.Device, err error) {
		if d.listFailed("sources", err) {
			return
		}
		for _, dev := range devs {
			d.out.Emit(EntryUpdated{Entry: deviceEntry(entry.TypeSource, dev)})
		}
	})
	c.SinkInputInfoList(func(streams []pulse.Stream, err error) {
		if d.listFailed("sink inputs", err) {
			return
		}
		for _, s := range streams {
			d.emitStream(c, entry.TypeSinkInput, s)
		}
	})
	c.SourceOutputInfoList(func(streams []pulse.Stream, err error) {
		if d.listFailed("source outputs", err) {
			return
		}
		for _, s := range streams {
			d.emitStream(c, entry.TypeSourceOutput, s)
		}
	})
	c.CardInfoList(func(cards []pulse.Card, err error) {
		if d.listFailed("cards", err) {
			return
		}
		for _, card := range cards {
			d.out.Emit(EntryUpdated{Entry: cardEntry(card)})
		}
	})
}

func (d *Dispatcher) onEvent(c pulse.Context, ev pulse.Event) {
	if ev.Facility == pulse.FacilityServer {
		d.requestServer(c)
		return
	}
	id, ok := identifierOf(ev.Facility, ev.Index)
	if !ok {
		return
	}
	if ev.Type == pulse.EventRemove {
		d.out.Emit(EntryRemoved{ID: id})
		return
	}
	d.requestInfo(c, id)
}

func (d *Dispatcher) requestServer(c pulse.Context) {
	c.ServerInfo(func(info pulse.ServerInfo, err error) {
		if err != nil {
			d.log.WithError(err).Debug("server info unavailable")
			return
		}
		d.out.Emit(ServerUpdated{Server: info})
	})
}

// requestInfo queries one entry. Queries for objects that have vanished are
// dropped without a reply; the removal event tells the UI.
func (d *Dispatcher) requestInfo(c pulse.Context, id entry.Identifier) {
	switch id.Type {
	case entry.TypeSink:
		c.SinkInfo(id.Index, func(dev pulse.Device, err error) {
			if d.absent(id, err) {
				return
			}
			d.out.Emit(EntryUpdated{Entry: deviceEntry(id.Type, dev)})
		})
	case entry.TypeSource:
		c.SourceInfo(id.Index, func(dev pulse.Device, err error) {
			if d.absent(id, err) {
				return
			}
			d.out.Emit(EntryUpdated{Entry: deviceEntry(id.Type, dev)})
		})
	case entry.TypeSinkInput:
		c.SinkInputInfo(id.Index, func(s pulse.Stream, err error) {
			if d.absent(id, err) {
				return
			}
			d.emitStream(c, id.Type, s)
		})
	case entry.TypeSourceOutput:
		c.SourceOutputInfo(id.Index, func(s pulse.Stream, err error) {
			if d.absent(id, err) {
				return
			}
			d.emitStream(c, id.Type, s)
		})
	case entry.TypeCard:
		c.CardInfo(id.Index, func(card pulse.Card, err error) {
			if d.absent(id, err) {
				return
			}
			d.out.Emit(EntryUpdated{Entry: cardEntry(card)})
		})
	}
}

// emitStream resolves the owning client's name when the stream has none.
func (d *Dispatcher) emitStream(c pulse.Context, t entry.Type, s pulse.Stream) {
	if s.Application != "" || s.Client == pulse.NoIndex {
		d.out.Emit(EntryUpdated{Entry: streamEntry(t, s, s.Application)})
		return
	}
	c.ClientInfo(s.Client, func(ci pulse.ClientInfo, err error) {
		app := ""
		if err == nil {
			app = ci.Application
		}
		d.out.Emit(EntryUpdated{Entry: streamEntry(t, s, app)})
	})
}

func (d *Dispatcher) absent(id entry.Identifier, err error) bool {
	if err == nil {
		return false
	}
	l := d.log.WithField("entry", id)
	if errors.Is(err, pulse.ErrNoEntity) {
		l.Trace("entry gone before info arrived")
	} else {
		l.WithError(err).Debug("info query failed")
	}
	return true
}

func (d *Dispatcher) listFailed(what string, err error) bool {
	if err == nil {
		return false
	}
	d.log.WithError(err).WithField("list", what).Warn("listing failed")
	return true
}

func (d *Dispatcher) setMute(c pulse.Context, cmd SetMute) {
	idx, done := cmd.ID.Index, d.ack(cmd)
	switch cmd.ID.Type {
	case entry.TypeSink:
		c.SetSinkMute(idx, cmd.Mute, done)
	case entry.TypeSource:
		c.SetSourceMute(idx, cmd.Mute, done)
	case entry.TypeSinkInput:
		c.SetSinkInputMute(idx, cmd.Mute, done)
	case entry.TypeSourceOutput:
		c.SetSourceOutputMute(idx, cmd.Mute, done)
	default:
		d.inapplicable(cmd)
	}
}

func (d *Dispatcher) setVolume(c pulse.Context, cmd SetVolume) {
	if len(cmd.Volume) == 0 {
		d.inapplicable(cmd)
		return
	}
	idx, vol, done := cmd.ID.Index, []uint32(cmd.Volume.Clone()), d.ack(cmd)
	switch cmd.ID.Type {
	case entry.TypeSink:
		c.SetSinkVolume(idx, vol, done)
	case entry.TypeSource:
		c.SetSourceVolume(idx, vol, done)
	case entry.TypeSinkInput:
		c.SetSinkInputVolume(idx, vol, done)
	case entry.TypeSourceOutput:
		c.SetSourceOutputVolume(idx, vol, done)
	default:
		d.inapplicable(cmd)
	}
}

func (d *Dispatcher) move(c pulse.Context, cmd MoveEntry) {
	switch cmd.ID.Type {
	case entry.TypeSinkInput:
		c.MoveSinkInput(cmd.ID.Index, cmd.Parent, d.ack(cmd))
	case entry.TypeSourceOutput:
		c.MoveSourceOutput(cmd.ID.Index, cmd.Parent, d.ack(cmd))
	default:
		d.inapplicable(cmd)
	}
}

func (d *Dispatcher) kill(c pulse.Context, cmd KillEntry) {
	switch cmd.ID.Type {
	case entry.TypeSinkInput:
		c.KillSinkInput(cmd.ID.Index, d.ack(cmd))
	case entry.TypeSourceOutput:
		c.KillSourceOutput(cmd.ID.Index, d.ack(cmd))
	default:
		d.inapplicable(cmd)
	}
}

// ack logs server rejections. Mutations are fire-and-forget: the change
// notification, not the ack, updates the UI.
func (d *Dispatcher) ack(cmd Command) func(error) {
	return func(err error) {
		if err != nil {
			d.log.WithError(err).WithField("command", describe(cmd)).Warn("server rejected command")
		}
	}
}

func (d *Dispatcher) inapplicable(cmd Command) {
	d.log.WithField("command", describe(cmd)).Debug("command does not apply to entry type")
}
