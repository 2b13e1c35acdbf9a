package pulse

import (
	"os"
	"path/filepath"
	"strconv"
)

const (
	PropApplicationName     = "application.name"
	PropApplicationIconName = "application.icon_name"
	PropApplicationInstance = "application.instance"
	PropProcessID           = "application.process.id"
	PropProcessBinary       = "application.process.binary"
	PropMediaName           = "media.name"
	PropDeviceDescription   = "device.description"
	PropDeviceIconName      = "device.icon_name"
)

// Proplist is the application identity handed to the server at connect time.
type Proplist map[string]string

// NewProplist builds the client identity for appName; instance tags this run.
func NewProplist(appName, instance string) Proplist {
	p := Proplist{
		PropApplicationName:     appName,
		PropApplicationIconName: "multimedia-volume-control",
		PropProcessID:           strconv.Itoa(os.Getpid()),
		PropProcessBinary:       filepath.Base(os.Args[0]),
	}
	if instance != "" {
		p[PropApplicationInstance] = instance
	}
	return p
}

// Clone returns a copy so the original can stay immutable after context creation.
func (p Proplist) Clone() Proplist {
	out := make(Proplist, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
