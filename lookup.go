package parammap

import (
	"sort"
)

// Entry is the stored state of one key: its last known wire value and the
// destinations to notify, in registration order.
type Entry struct {
	key          Key
	midiValue    uint16
	destinations []*Destination
	// bitWidth is the widest bit width ever bound to this entry, 0 if none.
	bitWidth uint8
}

func (e *Entry) Key() Key             { return e.key }
func (e *Entry) MidiValue() uint16    { return e.midiValue }
func (e *Entry) NumDestinations() int { return len(e.destinations) }

// Destinations returns a copy of the bound destinations in notification
// order.
func (e *Entry) Destinations() []*Destination {
	r := make([]*Destination, len(e.destinations))
	copy(r, e.destinations)
	return r
}

// maxValue is the largest wire value the entry may hold.
func (e *Entry) maxValue() uint16 {
	w := e.bitWidth
	if w == 0 {
		w = e.key.messageType.BitWidth()
	}
	return uint16(fullRange(w) - 1)
}

// store sets the wire value, saturating at the entry's bit width. It reports
// whether the stored value changed.
func (e *Entry) store(v uint16) bool {
	if limit := e.maxValue(); v > limit {
		v = limit
	}
	changed := e.midiValue != v
	e.midiValue = v
	return changed
}

// LookupTable maps keys to entries. Entries are created lazily on first bind
// or first observed value.
type LookupTable struct {
	entries map[Key]*Entry
}

func NewLookupTable() *LookupTable {
	return &LookupTable{entries: make(map[Key]*Entry)}
}

// Get returns the entry for key, if any.
func (t *LookupTable) Get(key Key) (*Entry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// GetOrCreate returns the entry for key, creating an empty one if needed.
func (t *LookupTable) GetOrCreate(key Key) *Entry {
	if e, ok := t.entries[key]; ok {
		return e
	}
	e := &Entry{key: key}
	t.entries[key] = e
	return e
}

// Bind appends d to the destinations of key.
func (t *LookupTable) Bind(key Key, d *Destination) *Entry {
	e := t.GetOrCreate(key)
	if d.Slot != nil && d.Slot.Overlay == nil && d.Slot.BitWidth == 0 {
		d.Slot.BitWidth = key.Type().BitWidth()
	}
	e.destinations = append(e.destinations, d)
	if w := d.bitWidth(); w > e.bitWidth {
		e.bitWidth = w
	}
	return e
}

// Unbind removes the first registration of d from key, keeping the order of
// the remaining destinations. It reports whether d was bound.
func (t *LookupTable) Unbind(key Key, d *Destination) bool {
	e, ok := t.entries[key]
	if !ok {
		return false
	}
	for i, b := range e.destinations {
		if b == d {
			e.destinations = append(e.destinations[:i:i], e.destinations[i+1:]...)
			return true
		}
	}
	return false
}

// Reset discards every entry.
func (t *LookupTable) Reset() {
	t.entries = make(map[Key]*Entry)
}

// ResetDevice discards the entries of one device.
func (t *LookupTable) ResetDevice(deviceID int) {
	for k := range t.entries {
		if k.DeviceID() == deviceID {
			delete(t.entries, k)
		}
	}
}

func (t *LookupTable) Len() int {
	return len(t.entries)
}

// Entries returns all entries ordered by device, type and parameter number.
func (t *LookupTable) Entries() []*Entry {
	r := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		r = append(r, e)
	}
	sort.Slice(r, func(i, j int) bool { return keyLess(r[i].key, r[j].key) })
	return r
}

func keyLess(a, b Key) bool {
	if a.deviceID != b.deviceID {
		return a.deviceID < b.deviceID
	}
	if a.messageType != b.messageType {
		return a.messageType < b.messageType
	}
	return a.parameterNumber < b.parameterNumber
}
