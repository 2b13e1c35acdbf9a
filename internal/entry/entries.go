package entry

import "sort"

// Entries is the UI-side collection of known entries.
type Entries struct {
	byID map[Identifier]Entry
}

func NewEntries() *Entries {
	return &Entries{byID: map[Identifier]Entry{}}
}

func (es *Entries) Len() int { return len(es.byID) }

// Set inserts or replaces e, keeping the last seen peak for known entries.
func (es *Entries) Set(e Entry) {
	if old, ok := es.byID[e.ID]; ok && e.Peak == 0 {
		e.Peak = old.Peak
	}
	es.byID[e.ID] = e
}

func (es *Entries) Get(id Identifier) (Entry, bool) {
	e, ok := es.byID[id]
	return e, ok
}

func (es *Entries) Remove(id Identifier) {
	delete(es.byID, id)
}

func (es *Entries) SetPeak(id Identifier, peak float32) bool {
	e, ok := es.byID[id]
	if !ok {
		return false
	}
	e.Peak = peak
	es.byID[id] = e
	return true
}

// ByType returns the entries of type t sorted by index.
func (es *Entries) ByType(t Type) []Entry {
	var out []Entry
	for id, e := range es.byID {
		if id.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// Clear drops everything, used after a reconnect.
func (es *Entries) Clear() {
	es.byID = map[Identifier]Entry{}
}

// NoIndex is the server's invalid object index.
const NoIndex uint32 = 0xFFFFFFFF

// MonitorSource returns the source whose peaks represent e. A sink input
// follows the monitor of the sink it plays on.
func (es *Entries) MonitorSource(e Entry) uint32 {
	if e.ID.Type == TypeSinkInput {
		if sink, ok := es.byID[ID(TypeSink, e.Parent)]; ok {
			return sink.Monitor
		}
		return NoIndex
	}
	return e.Monitor
}
