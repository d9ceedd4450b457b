package parammap

import (
	"errors"
	"testing"
)

func TestNewKey(t *testing.T) {
	for _, test := range []struct {
		desc     string
		device   int
		mt       MessageType
		pn       int
		wantErr  error
		wantName string
	}{
		{desc: "Valid", device: 3, mt: ControlChange, pn: 10, wantName: "3/cc7/10"},
		{desc: "MaxDevice", device: 32, mt: NRPN, pn: 16383, wantName: "32/nrpn/16383"},
		{desc: "DeviceZero", device: 0, mt: ControlChange, pn: 1, wantErr: ErrInvalidDeviceID},
		{desc: "DeviceTooHigh", device: 33, mt: ControlChange, pn: 1, wantErr: ErrInvalidDeviceID},
		{desc: "BadType", device: 1, mt: numMessageTypes, pn: 1, wantErr: ErrInvalidParameterType},
		{desc: "NegativeParameter", device: 1, mt: NRPN, pn: -1, wantErr: ErrInvalidParameterNumber},
		{desc: "ParameterTooHigh", device: 1, mt: NRPN, pn: 16384, wantErr: ErrInvalidParameterNumber},
		{desc: "CC7AboveWireRange", device: 1, mt: ControlChange, pn: 200, wantName: "1/cc7/200"},
		{desc: "CC14AboveWireRange", device: 1, mt: ControlChange14, pn: 40, wantName: "1/cc14/40"},
		{desc: "ProgramWithNumber", device: 1, mt: ProgramChange, pn: 1, wantName: "1/program/1"},
		{desc: "PitchBendWithNumber", device: 1, mt: PitchBend, pn: 3, wantName: "1/pitchbend/3"},
		{desc: "CC7TooHigh", device: 1, mt: ControlChange, pn: 16384, wantErr: ErrInvalidParameterNumber},
		{desc: "VirtualWide", device: 1, mt: Virtual, pn: 12000, wantName: "1/virtual/12000"},
	} {
		t.Run(test.desc, func(t *testing.T) {
			k, err := NewKey(test.device, test.mt, test.pn)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("got error %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("got %v, want no error", err)
			}
			if got := k.String(); got != test.wantName {
				t.Errorf("got %s, want %s", got, test.wantName)
			}
			if k.DeviceID() != test.device || k.Type() != test.mt || k.ParameterNumber() != test.pn {
				t.Errorf("accessors returned %d/%s/%d", k.DeviceID(), k.Type(), k.ParameterNumber())
			}
		})
	}
}

func TestParseMessageType(t *testing.T) {
	for mt := Virtual; mt < numMessageTypes; mt++ {
		got, err := ParseMessageType(mt.String())
		if err != nil {
			t.Errorf("ParseMessageType(%q) = %v", mt, err)
			continue
		}
		if got != mt {
			t.Errorf("ParseMessageType(%q) = %d, want %d", mt, got, mt)
		}
	}
	if _, err := ParseMessageType("banana"); !errors.Is(err, ErrInvalidParameterType) {
		t.Errorf("got %v, want %v", err, ErrInvalidParameterType)
	}
}

func TestMessageTypeNumbers(t *testing.T) {
	// Scripts address types by number.
	for mt, want := range map[MessageType]int{
		Virtual:           0,
		ControlChange:     1,
		ControlChange14:   2,
		NRPN:              3,
		RPN:               4,
		NoteOn:            5,
		NoteOff:           6,
		ProgramChange:     7,
		SysEx:             8,
		PolyAftertouch:    9,
		ChannelAftertouch: 10,
		PitchBend:         11,
	} {
		if int(mt) != want {
			t.Errorf("%s = %d, want %d", mt, mt, want)
		}
	}
}
