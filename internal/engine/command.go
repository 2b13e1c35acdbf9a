package engine

import (
	"fmt"

	"github.com/AJMerr/gopamix/internal/entry"
)

// Command is a request from the UI to the engine. Values are immutable once sent.
type Command interface {
	command()
}

// Action is a Command that acts on the server.
type Action interface {
	Command
	action()
}

// AskInfo queries one entry; the answer arrives as EntryUpdated.
type AskInfo struct{ ID entry.Identifier }

// Tick drives monitor maintenance.
type Tick struct{}

type SetMute struct {
	ID   entry.Identifier
	Mute bool
}

type SetVolume struct {
	ID     entry.Identifier
	Volume entry.Volume
}

// CreateMonitors replaces the set of monitored entries. Targets maps each
// entry to the source its peaks are read from, pulse.NoIndex when unknown.
type CreateMonitors struct {
	Targets map[entry.Identifier]uint32
}

// MoveEntry attaches a stream to another sink or source.
type MoveEntry struct {
	ID     entry.Identifier
	Parent uint32
}

type KillEntry struct{ ID entry.Identifier }

type SetCardProfile struct {
	ID      entry.Identifier
	Profile string
}

// RequestState re-lists every entry on the server.
type RequestState struct{}

// Shutdown stops the engine after the command in flight.
type Shutdown struct{}

func (AskInfo) command()        {}
func (Tick) command()           {}
func (SetMute) command()        {}
func (SetVolume) command()      {}
func (CreateMonitors) command() {}
func (MoveEntry) command()      {}
func (KillEntry) command()      {}
func (SetCardProfile) command() {}
func (RequestState) command()   {}
func (Shutdown) command()       {}

func (SetMute) action()        {}
func (SetVolume) action()      {}
func (CreateMonitors) action() {}
func (MoveEntry) action()      {}
func (KillEntry) action()      {}
func (SetCardProfile) action() {}
func (RequestState) action()   {}
func (Shutdown) action()       {}

// NewCreateMonitors copies targets so the sender can keep mutating its map.
func NewCreateMonitors(targets map[entry.Identifier]uint32) CreateMonitors {
	cp := make(map[entry.Identifier]uint32, len(targets))
	for id, src := range targets {
		cp[id] = src
	}
	return CreateMonitors{Targets: cp}
}

// NewSetVolume copies vol for the same reason.
func NewSetVolume(id entry.Identifier, vol entry.Volume) SetVolume {
	return SetVolume{ID: id, Volume: vol.Clone()}
}

func describe(c Command) string {
	switch c := c.(type) {
	case AskInfo:
		return "ask-info " + c.ID.String()
	case Tick:
		return "tick"
	case SetMute:
		return fmt.Sprintf("set-mute %s %v", c.ID, c.Mute)
	case SetVolume:
		return fmt.Sprintf("set-volume %s %d%%", c.ID, c.Volume.Percent())
	case CreateMonitors:
		return fmt.Sprintf("create-monitors (%d)", len(c.Targets))
	case MoveEntry:
		return fmt.Sprintf("move %s -> %d", c.ID, c.Parent)
	case KillEntry:
		return "kill " + c.ID.String()
	case SetCardProfile:
		return fmt.Sprintf("card-profile %s %q", c.ID, c.Profile)
	case RequestState:
		return "request-state"
	case Shutdown:
		return "shutdown"
	}
	return fmt.Sprintf("%T", c)
}
