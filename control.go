package parammap

import (
	"fmt"
)

// Kind is the variety of an on-screen control. The numeric values are
// exposed to scripts.
type Kind uint8

const (
	KindNone Kind = iota
	Fader
	VFader
	List
	Pad
	Adsr
	Adr
	Dx7Envelope
	Knob
	Relative
)

var kindNames = map[Kind]string{
	KindNone:    "none",
	Fader:       "fader",
	VFader:      "vfader",
	List:        "list",
	Pad:         "pad",
	Adsr:        "adsr",
	Adr:         "adr",
	Dx7Envelope: "dx7envelope",
	Knob:        "knob",
	Relative:    "relative",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k *Kind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	for v, n := range kindNames {
		if n == s {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("invalid control type %q", s)
}

// valueIDs lists the value ids each kind carries, in segment order.
var valueIDs = map[Kind][]string{
	Fader:       {"value"},
	VFader:      {"value"},
	List:        {"value"},
	Pad:         {"value"},
	Knob:        {"value"},
	Relative:    {"value"},
	Adsr:        {"attack", "decay", "sustain", "release"},
	Adr:         {"attack", "decay", "release"},
	Dx7Envelope: {"l1", "r1", "l2", "r2", "l3", "r3", "l4", "r4"},
}

// ValueIDs returns the value ids a control of this kind may declare.
func (k Kind) ValueIDs() []string {
	return valueIDs[k]
}

func (k Kind) hasValueID(id string) bool {
	for _, v := range valueIDs[k] {
		if v == id {
			return true
		}
	}
	return false
}

// envelope reports whether controls of this kind edit one segment at a time.
func (k Kind) envelope() bool {
	switch k {
	case Adsr, Adr, Dx7Envelope:
		return true
	}
	return false
}

// SegmentSelector is the capability of envelope controls: they edit one
// segment at a time.
type SegmentSelector interface {
	ActiveSegment() string
	SelectSegment(valueID string) error
}

type segments struct {
	kind   Kind
	active string
}

func (s *segments) ActiveSegment() string {
	return s.active
}

func (s *segments) SelectSegment(valueID string) error {
	if !s.kind.hasValueID(valueID) {
		return fmt.Errorf("%s has no segment %q", s.kind, valueID)
	}
	s.active = valueID
	return nil
}

// ControlValue is one value slot of a control and the parameter it drives.
type ControlValue struct {
	ValueID string
	Default int
	Key     Key
	Slot    Slot

	control *Control
	dest    *Destination
}

func (v *ControlValue) Control() *Control {
	return v.control
}

// Destination returns the registration made by Attach, or nil.
func (v *ControlValue) Destination() *Destination {
	return v.dest
}

// Display returns the current display value of v according to m.
func (v *ControlValue) Display(m *Map) int {
	return v.Slot.ToDisplay(m.GetValue(v.Key))
}

// Set converts displayValue to a wire value and stores it with SetValue.
func (v *ControlValue) Set(m *Map, displayValue int, origin Origin) {
	m.SetValue(v.Key, v.Slot.ToWire(displayValue), origin)
}

// Apply is Set without the unchanged-value short circuit.
func (v *ControlValue) Apply(m *Map, displayValue int, origin Origin) {
	m.ApplyToValue(v.Key, v.Slot.ToWire(displayValue), origin)
}

// Control is an on-screen control with one value per declared value id.
type Control struct {
	ID     int
	Name   string
	Kind   Kind
	Values []*ControlValue

	segments *segments
}

// NewControl returns a control of the given kind owning values.
func NewControl(id int, name string, kind Kind, values []*ControlValue) *Control {
	c := &Control{ID: id, Name: name, Kind: kind, Values: values}
	for _, v := range values {
		v.control = c
	}
	if kind.envelope() {
		c.segments = &segments{kind: kind}
		if len(values) > 0 {
			c.segments.active = values[0].ValueID
		}
	}
	return c
}

// Segments returns the segment selector of envelope controls and nil for
// every other kind.
func (c *Control) Segments() SegmentSelector {
	if c.segments == nil {
		return nil
	}
	return c.segments
}

// Value returns the value with the given id.
func (c *Control) Value(valueID string) (*ControlValue, bool) {
	for _, v := range c.Values {
		if v.ValueID == valueID {
			return v, true
		}
	}
	return nil, false
}

// Attach binds a destination for every value of c. l is told about changes.
func (c *Control) Attach(m *Map, l Listener) {
	for _, v := range c.Values {
		if v.dest != nil {
			continue
		}
		v.dest = &Destination{Slot: &v.Slot, Listener: l, Owner: v}
		m.Bind(v.Key, v.dest)
	}
}

// Detach removes the destinations registered by Attach.
func (c *Control) Detach(m *Map) {
	for _, v := range c.Values {
		if v.dest == nil {
			continue
		}
		m.Unbind(v.Key, v.dest)
		v.dest = nil
	}
}

// ApplyDefaults stores the declared default of every value.
func (c *Control) ApplyDefaults(m *Map, origin Origin) {
	for _, v := range c.Values {
		v.Apply(m, v.Default, origin)
	}
}

// ResetToDefault restores the default of the value the control is editing:
// the active segment for envelopes, the only value otherwise.
func (c *Control) ResetToDefault(m *Map, origin Origin) error {
	var v *ControlValue
	switch c.Kind {
	case Adsr, Adr, Dx7Envelope:
		s := c.Segments()
		if s == nil {
			return fmt.Errorf("control %d: no active segment", c.ID)
		}
		var ok bool
		if v, ok = c.Value(s.ActiveSegment()); !ok {
			return fmt.Errorf("control %d: no value for segment %q", c.ID, s.ActiveSegment())
		}
	default:
		if len(c.Values) == 0 {
			return fmt.Errorf("control %d has no values", c.ID)
		}
		v = c.Values[0]
	}
	v.Apply(m, v.Default, origin)
	return nil
}
