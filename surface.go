package parammap

import (
	"fmt"
)

// Surface exposes the scripting primitives of a Map on raw integers. Every
// argument is validated before the Map is touched, and mutations are tagged
// with the Script origin.
type Surface struct {
	m *Map
}

func NewSurface(m *Map) *Surface {
	return &Surface{m: m}
}

// ValueInfo describes one destination returned by GetValues.
type ValueInfo struct {
	ControlID int    `json:"controlId"`
	ValueID   string `json:"valueId"`
	Display   int    `json:"display"`
}

func (s *Surface) key(deviceID, messageType, parameterNumber int) (Key, error) {
	if messageType < 0 || messageType >= int(numMessageTypes) {
		return Key{}, fmt.Errorf("%w: %d", ErrInvalidParameterType, messageType)
	}
	return NewKey(deviceID, MessageType(messageType), parameterNumber)
}

func (s *Surface) ResetAll() {
	s.m.Reset()
}

func (s *Surface) ResetDevice(deviceID int) error {
	if err := validateDeviceID(deviceID); err != nil {
		return err
	}
	s.m.ResetDevice(deviceID)
	return nil
}

func (s *Surface) Set(deviceID, messageType, parameterNumber, midiValue int) error {
	k, err := s.key(deviceID, messageType, parameterNumber)
	if err != nil {
		return err
	}
	if err := validateMidiValue(midiValue); err != nil {
		return err
	}
	s.m.SetValue(k, uint16(midiValue), Script)
	return nil
}

func (s *Surface) Apply(deviceID, messageType, parameterNumber, midiValue int) error {
	k, err := s.key(deviceID, messageType, parameterNumber)
	if err != nil {
		return err
	}
	if err := validateMidiValue(midiValue); err != nil {
		return err
	}
	s.m.ApplyToValue(k, uint16(midiValue), Script)
	return nil
}

// Send re-transmits the stored value of a parameter.
func (s *Surface) Send(deviceID, messageType, parameterNumber int) error {
	k, err := s.key(deviceID, messageType, parameterNumber)
	if err != nil {
		return err
	}
	return s.m.Send(k)
}

// Get returns the stored wire value of a parameter, 0 if there is none.
func (s *Surface) Get(deviceID, messageType, parameterNumber int) (int, error) {
	k, err := s.key(deviceID, messageType, parameterNumber)
	if err != nil {
		return 0, err
	}
	return int(s.m.GetValue(k)), nil
}

// GetValues describes the control values bound to a parameter. It returns
// ErrNoEntry when nothing is bound.
func (s *Surface) GetValues(deviceID, messageType, parameterNumber int) ([]ValueInfo, error) {
	k, err := s.key(deviceID, messageType, parameterNumber)
	if err != nil {
		return nil, err
	}
	dests, err := s.m.GetValues(k)
	if err != nil {
		return nil, err
	}
	midiValue := s.m.GetValue(k)
	r := make([]ValueInfo, 0, len(dests))
	for _, d := range dests {
		vi := ValueInfo{Display: d.Display(midiValue)}
		if cv, ok := d.Owner.(*ControlValue); ok {
			vi.ValueID = cv.ValueID
			if c := cv.Control(); c != nil {
				vi.ControlID = c.ID
			}
		}
		r = append(r, vi)
	}
	return r, nil
}
