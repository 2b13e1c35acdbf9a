package engine

import (
	"github.com/AJMerr/gopamix/internal/entry"
	"github.com/AJMerr/gopamix/internal/pulse"
)

func deviceEntry(t entry.Type, d pulse.Device) entry.Entry {
	name := d.Description
	if name == "" {
		name = d.Name
	}
	monitor := d.Monitor
	if t == entry.TypeSource {
		monitor = d.Index
	}
	return entry.Entry{
		ID:      entry.ID(t, d.Index),
		Name:    name,
		Icon:    d.Icon,
		Volume:  entry.Volume(d.Volume).Clone(),
		Mute:    d.Mute,
		Parent:  pulse.NoIndex,
		Monitor: monitor,
	}
}

// streamEntry labels a stream "application: media" when both are known.
// A sink input's monitor depends on its sink and is resolved by the caller.
func streamEntry(t entry.Type, s pulse.Stream, app string) entry.Entry {
	name := s.Name
	switch {
	case app != "" && s.Name != "" && app != s.Name:
		name = app + ": " + s.Name
	case app != "":
		name = app
	}
	monitor := pulse.NoIndex
	if t == entry.TypeSourceOutput {
		monitor = s.Device
	}
	return entry.Entry{
		ID:      entry.ID(t, s.Index),
		Name:    name,
		Icon:    s.Icon,
		Volume:  entry.Volume(s.Volume).Clone(),
		Mute:    s.Mute,
		Parent:  s.Device,
		Monitor: monitor,
		Corked:  s.Corked,
	}
}

func cardEntry(c pulse.Card) entry.Entry {
	name := c.Description
	if name == "" {
		name = c.Name
	}
	info := &entry.CardInfo{Active: c.ActiveProfile}
	for _, p := range c.Profiles {
		info.Profiles = append(info.Profiles, entry.Profile{
			Name:        p.Name,
			Description: p.Description,
			Available:   p.Available,
		})
	}
	return entry.Entry{
		ID:      entry.ID(entry.TypeCard, c.Index),
		Name:    name,
		Icon:    c.Icon,
		Parent:  pulse.NoIndex,
		Monitor: pulse.NoIndex,
		Card:    info,
	}
}

func identifierOf(f pulse.Facility, index uint32) (entry.Identifier, bool) {
	switch f {
	case pulse.FacilitySink:
		return entry.ID(entry.TypeSink, index), true
	case pulse.FacilitySource:
		return entry.ID(entry.TypeSource, index), true
	case pulse.FacilitySinkInput:
		return entry.ID(entry.TypeSinkInput, index), true
	case pulse.FacilitySourceOutput:
		return entry.ID(entry.TypeSourceOutput, index), true
	case pulse.FacilityCard:
		return entry.ID(entry.TypeCard, index), true
	}
	return entry.Identifier{}, false
}
