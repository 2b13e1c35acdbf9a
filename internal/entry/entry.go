package entry

import "fmt"

// Type is the kind of server object an entry mirrors.
type Type int

const (
	TypeSink Type = iota
	TypeSinkInput
	TypeSource
	TypeSourceOutput
	TypeCard
)

func (t Type) String() string {
	switch t {
	case TypeSink:
		return "sink"
	case TypeSinkInput:
		return "sink-input"
	case TypeSource:
		return "source"
	case TypeSourceOutput:
		return "source-output"
	case TypeCard:
		return "card"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// IsStream reports whether entries of this type are playback or recording streams.
func (t Type) IsStream() bool {
	return t == TypeSinkInput || t == TypeSourceOutput
}

// Identifier is the stable key of an entry: server index plus direction.
type Identifier struct {
	Type  Type
	Index uint32
}

func ID(t Type, index uint32) Identifier { return Identifier{Type: t, Index: index} }

func (id Identifier) String() string {
	return fmt.Sprintf("%s#%d", id.Type, id.Index)
}

// Less orders identifiers by type, then index.
func (id Identifier) Less(o Identifier) bool {
	if id.Type != o.Type {
		return id.Type < o.Type
	}
	return id.Index < o.Index
}

type Profile struct {
	Name        string
	Description string
	Available   bool
}

type CardInfo struct {
	Profiles []Profile
	Active   string
}

// NextProfile returns the available profile after the active one, wrapping around.
func (c CardInfo) NextProfile() (string, bool) {
	if len(c.Profiles) == 0 {
		return "", false
	}
	start := 0
	for i, p := range c.Profiles {
		if p.Name == c.Active {
			start = i
			break
		}
	}
	for n := 1; n <= len(c.Profiles); n++ {
		p := c.Profiles[(start+n)%len(c.Profiles)]
		if p.Available && p.Name != c.Active {
			return p.Name, true
		}
	}
	return "", false
}

// Entry is one row of the mixer.
type Entry struct {
	ID   Identifier
	Name string
	Icon string

	Volume Volume
	Mute   bool
	Peak   float32

	// Parent is the sink (for sink inputs) or source (for source outputs)
	// the stream is attached to.
	Parent uint32
	// Monitor is the source whose peaks represent this entry.
	Monitor uint32
	Corked  bool

	Card *CardInfo
}
