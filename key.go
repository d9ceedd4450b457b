package parammap

import (
	"errors"
	"fmt"
)

const (
	// MinDeviceID and MaxDeviceID bound the logical device ids.
	MinDeviceID = 1
	MaxDeviceID = 32
	// MaxParameterNumber is the largest parameter number of any message type.
	MaxParameterNumber = 16383
	// MaxMidiValue is the largest wire value any message type can carry.
	MaxMidiValue = 16383
)

var (
	ErrInvalidDeviceID        = errors.New("invalid device id")
	ErrInvalidParameterType   = errors.New("invalid parameter type")
	ErrInvalidParameterNumber = errors.New("invalid parameter number")
	ErrInvalidMidiValue       = errors.New("invalid midi value")

	// ErrNoEntry is returned when a lookup that must surface an absent entry
	// finds nothing.
	ErrNoEntry = errors.New("empty parameterMap entry")
	// ErrUnsupportedType is returned by transports for message types that
	// have no wire form.
	ErrUnsupportedType = errors.New("unsupported message type")
)

// MessageType identifies the kind of MIDI message a parameter travels in.
// The numeric values are exposed to scripts and must not be reordered.
type MessageType uint8

const (
	Virtual MessageType = iota
	ControlChange
	ControlChange14
	NRPN
	RPN
	NoteOn
	NoteOff
	ProgramChange
	SysEx
	PolyAftertouch
	ChannelAftertouch
	PitchBend

	numMessageTypes
)

var messageTypeNames = map[MessageType]string{
	Virtual:           "virtual",
	ControlChange:     "cc7",
	ControlChange14:   "cc14",
	NRPN:              "nrpn",
	RPN:               "rpn",
	NoteOn:            "noteOn",
	NoteOff:           "noteOff",
	ProgramChange:     "program",
	SysEx:             "sysex",
	PolyAftertouch:    "atpoly",
	ChannelAftertouch: "atchannel",
	PitchBend:         "pitchbend",
}

func (t MessageType) String() string {
	if n, ok := messageTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// ParseMessageType returns the MessageType with the given name.
func ParseMessageType(s string) (MessageType, error) {
	for t, n := range messageTypeNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidParameterType, s)
}

// MarshalYAML and UnmarshalYAML let preset files name types.
func (t MessageType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *MessageType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// BitWidth is the natural width of values carried by this message type.
func (t MessageType) BitWidth() uint8 {
	switch t {
	case ControlChange, NoteOn, NoteOff, ProgramChange, PolyAftertouch, ChannelAftertouch:
		return 7
	default:
		return 14
	}
}

// Key identifies one logical parameter on one logical device. The zero Key
// is invalid; use NewKey.
type Key struct {
	deviceID        uint8
	messageType     MessageType
	parameterNumber uint16
}

// NewKey validates its arguments and returns the corresponding Key. Every
// type accepts parameter numbers 0..MaxParameterNumber; whether a number fits
// the wire form of its type is checked when the value is encoded.
func NewKey(deviceID int, messageType MessageType, parameterNumber int) (Key, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return Key{}, err
	}
	if messageType >= numMessageTypes {
		return Key{}, fmt.Errorf("%w: %d", ErrInvalidParameterType, messageType)
	}
	if parameterNumber < 0 || parameterNumber > MaxParameterNumber {
		return Key{}, fmt.Errorf("%w: %d for %s", ErrInvalidParameterNumber, parameterNumber, messageType)
	}
	return Key{
		deviceID:        uint8(deviceID),
		messageType:     messageType,
		parameterNumber: uint16(parameterNumber),
	}, nil
}

func validateDeviceID(deviceID int) error {
	if deviceID < MinDeviceID || deviceID > MaxDeviceID {
		return fmt.Errorf("%w: %d", ErrInvalidDeviceID, deviceID)
	}
	return nil
}

func validateMidiValue(v int) error {
	if v < 0 || v > MaxMidiValue {
		return fmt.Errorf("%w: %d", ErrInvalidMidiValue, v)
	}
	return nil
}

func (k Key) DeviceID() int        { return int(k.deviceID) }
func (k Key) Type() MessageType    { return k.messageType }
func (k Key) ParameterNumber() int { return int(k.parameterNumber) }
func (k Key) valid() bool          { return k.deviceID >= MinDeviceID }

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%d", k.deviceID, k.messageType, k.parameterNumber)
}
