package pulse

import (
	"errors"
	"time"
)

// NoIndex marks an absent server object index.
const NoIndex uint32 = 0xFFFFFFFF

var (
	ErrNoEntity = errors.New("pulse: no such entity")
	ErrNotReady = errors.New("pulse: context not ready")
)

type Config struct {
	Server  string // empty means the default server
	AppName string
	Timeout time.Duration
}

type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateReady
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Terminal reports whether no further state change can happen.
func (s State) Terminal() bool { return s == StateFailed || s == StateTerminated }

// Subscription masks.
type Mask uint32

const (
	MaskSink         Mask = 0x0001
	MaskSource       Mask = 0x0002
	MaskSinkInput    Mask = 0x0004
	MaskSourceOutput Mask = 0x0008
	MaskServer       Mask = 0x0080
	MaskCard         Mask = 0x0200
)

type Facility uint32

const (
	FacilitySink         Facility = 0
	FacilitySource       Facility = 1
	FacilitySinkInput    Facility = 2
	FacilitySourceOutput Facility = 3
	FacilityServer       Facility = 7
	FacilityCard         Facility = 9
)

type EventType uint32

const (
	EventNew    EventType = 0x00
	EventChange EventType = 0x10
	EventRemove EventType = 0x20
)

// Event is a decoded subscription notification.
type Event struct {
	Facility Facility
	Type     EventType
	Index    uint32
}

// DecodeEvent splits the raw subscription word into facility and type.
func DecodeEvent(raw, index uint32) Event {
	return Event{
		Facility: Facility(raw & 0x0F),
		Type:     EventType(raw & 0x30),
		Index:    index,
	}
}

type ServerInfo struct {
	PackageName    string
	PackageVersion string
	Hostname       string
	DefaultSink    string
	DefaultSource  string
}

// Device is a sink or a source.
type Device struct {
	Index       uint32
	Name        string
	Description string
	Icon        string
	Volume      []uint32
	Mute        bool
	// Monitor is the monitor source of a sink; for a source it is its own index.
	Monitor uint32
	Card    uint32
}

// Stream is a sink input or a source output.
type Stream struct {
	Index       uint32
	Name        string
	Application string
	Icon        string
	Client      uint32
	// Device is the sink (sink input) or source (source output) the stream is attached to.
	Device uint32
	Volume []uint32
	Mute   bool
	Corked bool
}

type ClientInfo struct {
	Index       uint32
	Application string
}

type CardProfile struct {
	Name        string
	Description string
	Available   bool
}

type Card struct {
	Index         uint32
	Name          string
	Description   string
	Icon          string
	Profiles      []CardProfile
	ActiveProfile string
}

// PeakTarget names what a peak monitor records from.
type PeakTarget struct {
	Source uint32
	// SinkInput restricts the recording to one playback stream, NoIndex otherwise.
	SinkInput uint32
}

// PeakStream is a live peak subscription. A stream is Alive from the moment
// it is requested; Opened turns true once the server has accepted it. A
// rejected stream goes dead without ever being opened.
type PeakStream interface {
	Alive() bool
	Opened() bool
	Close()
}

// Server produces contexts bound to a Mainloop.
type Server interface {
	NewContext(loop *Mainloop, props Proplist) (Context, error)
}

// Context is the connection object. Every method must be called with the
// Mainloop lock held; callbacks are posted to the Mainloop and run only while
// it is iterated.
type Context interface {
	State() State
	SetStateCallback(cb func())
	Connect(server string) error
	Disconnect()

	Subscribe(mask Mask, cb func(error))
	SetSubscribeCallback(cb func(Event))

	ServerInfo(cb func(ServerInfo, error))

	SinkInfo(index uint32, cb func(Device, error))
	SourceInfo(index uint32, cb func(Device, error))
	SinkInputInfo(index uint32, cb func(Stream, error))
	SourceOutputInfo(index uint32, cb func(Stream, error))
	CardInfo(index uint32, cb func(Card, error))
	ClientInfo(index uint32, cb func(ClientInfo, error))

	SinkInfoList(cb func([]Device, error))
	SourceInfoList(cb func([]Device, error))
	SinkInputInfoList(cb func([]Stream, error))
	SourceOutputInfoList(cb func([]Stream, error))
	CardInfoList(cb func([]Card, error))

	SetSinkVolume(index uint32, vol []uint32, cb func(error))
	SetSourceVolume(index uint32, vol []uint32, cb func(error))
	SetSinkInputVolume(index uint32, vol []uint32, cb func(error))
	SetSourceOutputVolume(index uint32, vol []uint32, cb func(error))

	SetSinkMute(index uint32, mute bool, cb func(error))
	SetSourceMute(index uint32, mute bool, cb func(error))
	SetSinkInputMute(index uint32, mute bool, cb func(error))
	SetSourceOutputMute(index uint32, mute bool, cb func(error))

	MoveSinkInput(index, sink uint32, cb func(error))
	MoveSourceOutput(index, source uint32, cb func(error))
	KillSinkInput(index uint32, cb func(error))
	KillSourceOutput(index uint32, cb func(error))
	SetCardProfile(index uint32, profile string, cb func(error))

	OpenPeak(target PeakTarget, cb func(float32)) (PeakStream, error)
}
