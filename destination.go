package parammap

import (
	"sort"
)

// Slot holds the value-slot attributes a destination interprets a wire value
// with. Different slots bound to one key may read the same wire value
// differently.
type Slot struct {
	SignMode SignMode
	// BitWidth of the wire value. 0 means undeclared: binding the slot sets
	// it to the natural width of the key's message type.
	BitWidth   uint8
	MidiMin    int
	MidiMax    int
	DisplayMin int
	DisplayMax int
	// Formatter names how the UI renders the display value. Function names
	// a script hook run on every change.
	Formatter string
	Function  string
	// Overlay, when set, replaces the linear rescale: display values are
	// indices into the overlay's items.
	Overlay *Overlay
}

// ToDisplay converts a wire value to this slot's display value.
func (s *Slot) ToDisplay(midiValue uint16) int {
	if s.Overlay != nil {
		return s.Overlay.IndexOf(midiValue)
	}
	return ToDisplay(midiValue, s.MidiMin, s.MidiMax, s.DisplayMin, s.DisplayMax, s.SignMode, s.width())
}

// ToWire converts a display value of this slot to a wire value.
func (s *Slot) ToWire(displayValue int) uint16 {
	if s.Overlay != nil {
		return s.Overlay.ValueAt(displayValue)
	}
	return ToWire(displayValue, s.DisplayMin, s.DisplayMax, s.MidiMin, s.MidiMax, s.SignMode, s.width())
}

// width is BitWidth, or the widest wire value for an unbound slot that
// declares none.
func (s *Slot) width() uint8 {
	if s.BitWidth == 0 {
		return maxBitWidth
	}
	return s.BitWidth
}

// OverlayItem is one entry of a list control.
type OverlayItem struct {
	Value uint16 `yaml:"value"`
	Label string `yaml:"label"`
}

// Overlay is an ordered list of wire values with labels.
type Overlay struct {
	ID    int           `yaml:"id"`
	Items []OverlayItem `yaml:"items"`
}

// Sort orders the items by wire value.
func (o *Overlay) Sort() {
	sort.SliceStable(o.Items, func(i, j int) bool { return o.Items[i].Value < o.Items[j].Value })
}

// IndexOf returns the index of the item with the closest wire value not
// above midiValue, or 0.
func (o *Overlay) IndexOf(midiValue uint16) int {
	idx := 0
	for i, it := range o.Items {
		if it.Value > midiValue {
			break
		}
		idx = i
	}
	return idx
}

// ValueAt returns the wire value of item i, clamping i to the item range.
func (o *Overlay) ValueAt(i int) uint16 {
	if len(o.Items) == 0 {
		return 0
	}
	return o.Items[clamp(i, 0, len(o.Items)-1)].Value
}

// Listener is the UI side of a destination: it is told the display value
// whenever the bound parameter changes.
type Listener interface {
	ValueChanged(d *Destination, displayValue int, origin Origin)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(d *Destination, displayValue int, origin Origin)

func (f ListenerFunc) ValueChanged(d *Destination, displayValue int, origin Origin) {
	f(d, displayValue, origin)
}

// Destination is a non-owning registration of a consumer of one key. A nil
// Slot makes it a purely scripted listener that receives the raw wire value.
// The owner must Unbind a destination before discarding it.
type Destination struct {
	Slot     *Slot
	Listener Listener
	// Owner is an opaque back-reference for the registering side, e.g. the
	// control value that created it.
	Owner interface{}
}

// Display converts midiValue for this destination.
func (d *Destination) Display(midiValue uint16) int {
	if d.Slot == nil {
		return int(midiValue)
	}
	return d.Slot.ToDisplay(midiValue)
}

// bitWidth returns the bit width the destination expects, or 0 if it does
// not declare one.
func (d *Destination) bitWidth() uint8 {
	if d.Slot == nil || d.Slot.Overlay != nil || d.Slot.BitWidth == 0 {
		return 0
	}
	return clampBitWidth(d.Slot.BitWidth)
}

func (d *Destination) function() string {
	if d.Slot == nil {
		return ""
	}
	return d.Slot.Function
}
