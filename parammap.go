package parammap

import (
	"fmt"
	"sort"

	"github.com/golang/glog"
)

// Origin tags every mutation with the actor that caused it.
type Origin uint8

const (
	IncomingMidi Origin = iota
	UserInteraction
	Script
	PresetLoad
	SnapshotRecall
)

var originNames = map[Origin]string{
	IncomingMidi:    "incomingMidi",
	UserInteraction: "userInteraction",
	Script:          "script",
	PresetLoad:      "presetLoad",
	SnapshotRecall:  "snapshotRecall",
}

func (o Origin) String() string {
	if n, ok := originNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Origin(%d)", uint8(o))
}

// Emitter sends a wire value to the device a key belongs to.
type Emitter interface {
	Emit(key Key, midiValue uint16) error
}

// ScriptHost receives the script-side notifications of a propagation pass.
type ScriptHost interface {
	// CallFunction runs the named value function of a destination.
	CallFunction(name string, d *Destination, displayValue int, origin Origin)
	// OnChange is called once per propagated change, after all
	// destinations have been notified.
	OnChange(key Key, destinations []*Destination, origin Origin, midiValue uint16)
}

// Options tune the wire behaviour of a Map.
type Options struct {
	// SendDefaultsOnLoad lets presetLoad changes reach the wire.
	SendDefaultsOnLoad bool
}

// Map is the parameter map: it owns the lookup table of the active preset,
// translates values for bound destinations and decides which changes are sent
// to the wire.
//
// A Map is not safe for concurrent use. It is re-entrant: listeners and
// script hooks may call back into it while a change is being propagated.
type Map struct {
	table   *LookupTable
	emitter Emitter
	script  ScriptHost
	opts    Options

	snapshots SnapshotStore
	projectID string

	// inFlight holds the keys currently being propagated.
	inFlight map[Key]struct{}
}

// New returns an empty Map. emitter and script may be nil; a nil store keeps
// snapshots in memory.
func New(emitter Emitter, script ScriptHost, store SnapshotStore, opts Options) *Map {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Map{
		table:     NewLookupTable(),
		emitter:   emitter,
		script:    script,
		opts:      opts,
		snapshots: store,
		inFlight:  make(map[Key]struct{}),
	}
}

// Table exposes the lookup table.
func (m *Map) Table() *LookupTable {
	return m.table
}

// Bind registers d as a destination of key.
func (m *Map) Bind(key Key, d *Destination) {
	m.table.Bind(key, d)
}

// Unbind deregisters d from key.
func (m *Map) Unbind(key Key, d *Destination) {
	m.table.Unbind(key, d)
}

// Get returns the entry of key, if any.
func (m *Map) Get(key Key) (*Entry, bool) {
	return m.table.Get(key)
}

// GetValue returns the stored wire value of key, or 0 if there is none.
func (m *Map) GetValue(key Key) uint16 {
	if e, ok := m.table.Get(key); ok {
		return e.midiValue
	}
	return 0
}

// GetValues returns the destinations bound to key. It returns ErrNoEntry if
// the key has no entry or nothing is bound to it.
func (m *Map) GetValues(key Key) ([]*Destination, error) {
	e, ok := m.table.Get(key)
	if !ok || len(e.destinations) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, key)
	}
	return e.Destinations(), nil
}

// SetValue stores midiValue for key and propagates the change. Nothing
// happens if the entry already held that value.
func (m *Map) SetValue(key Key, midiValue uint16, origin Origin) {
	m.update(key, midiValue, origin, false)
}

// ApplyToValue is SetValue without the unchanged-value short circuit: the
// value is always propagated and, origin permitting, sent.
func (m *Map) ApplyToValue(key Key, midiValue uint16, origin Origin) {
	m.update(key, midiValue, origin, true)
}

// Send transmits the stored value of key without changing it.
func (m *Map) Send(key Key) error {
	e, ok := m.table.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoEntry, key)
	}
	if m.emitter == nil || key.Type() == Virtual {
		return nil
	}
	return m.emitter.Emit(key, e.midiValue)
}

// Reset discards every entry.
func (m *Map) Reset() {
	glog.V(1).Infof("parameterMap: reset %d entries", m.table.Len())
	m.table.Reset()
}

// ResetDevice discards the entries of one device.
func (m *Map) ResetDevice(deviceID int) {
	glog.V(1).Infof("parameterMap: reset device %d", deviceID)
	m.table.ResetDevice(deviceID)
}

func (m *Map) update(key Key, midiValue uint16, origin Origin, force bool) {
	e, existed := m.table.Get(key)
	if !existed {
		e = m.table.GetOrCreate(key)
	}
	if changed := e.store(midiValue); !changed && existed && !force {
		return
	}
	glog.V(2).Infof("parameterMap: %s = %d (%s)", key, e.midiValue, origin)

	if m.sendsToWire(origin) {
		m.emit(key, e.midiValue)
	}

	// A write to a key that is already being propagated only updates the
	// stored value. Destinations not yet serviced in the running pass read
	// it when their turn comes; the ones already serviced are not notified
	// again.
	if _, busy := m.inFlight[key]; busy {
		return
	}
	m.propagate(e, origin)
}

func (m *Map) propagate(e *Entry, origin Origin) {
	m.inFlight[e.key] = struct{}{}
	defer delete(m.inFlight, e.key)

	for _, d := range e.Destinations() {
		display := d.Display(e.midiValue)
		if d.Listener != nil {
			d.Listener.ValueChanged(d, display, origin)
		}
		if fn := d.function(); fn != "" && m.script != nil {
			m.script.CallFunction(fn, d, display, origin)
		}
	}
	if m.script != nil {
		m.script.OnChange(e.key, e.Destinations(), origin, e.midiValue)
	}
}

// sendsToWire reports whether changes of the given origin are transmitted.
// Values that came from the wire or from a snapshot are never sent back.
func (m *Map) sendsToWire(origin Origin) bool {
	switch origin {
	case IncomingMidi, SnapshotRecall:
		return false
	case PresetLoad:
		return m.opts.SendDefaultsOnLoad
	default:
		return true
	}
}

func (m *Map) emit(key Key, midiValue uint16) {
	if m.emitter == nil || key.Type() == Virtual {
		return
	}
	if err := m.emitter.Emit(key, midiValue); err != nil {
		glog.Errorf("parameterMap: failed to send %s = %d: %v", key, midiValue, err)
	}
}

// SetProjectID selects the snapshot that Keep, Recall and Forget act on.
func (m *Map) SetProjectID(id string) {
	m.projectID = id
}

func (m *Map) ProjectID() string {
	return m.projectID
}

// Keep copies every entry's wire value into the snapshot of the current
// project.
func (m *Map) Keep() error {
	s := make(Snapshot, m.table.Len())
	for k, e := range m.table.entries {
		s[k] = e.midiValue
	}
	glog.Infof("parameterMap: keeping %d values of project %q", len(s), m.projectID)
	return m.snapshots.Save(m.projectID, s)
}

// Recall restores the snapshot of the current project. Restored values are
// propagated to destinations but never sent to the wire.
func (m *Map) Recall() error {
	s, err := m.snapshots.Load(m.projectID)
	if err != nil {
		return err
	}
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	glog.Infof("parameterMap: recalling %d values of project %q", len(keys), m.projectID)
	for _, k := range keys {
		m.ApplyToValue(k, s[k], SnapshotRecall)
	}
	return nil
}

// Forget discards the snapshot of the current project.
func (m *Map) Forget() error {
	glog.Infof("parameterMap: forgetting project %q", m.projectID)
	return m.snapshots.Delete(m.projectID)
}
