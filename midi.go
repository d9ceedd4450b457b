package parammap

import (
	"fmt"
	"sort"

	"github.com/golang/glog"
	"gitlab.com/gomidi/midi/v2"
)

// Controller numbers used by parameter-number and 14-bit CC messages.
const (
	ccDataEntryMSB = 6
	ccDataEntryLSB = 38
	ccNRPNLSB      = 98
	ccNRPNMSB      = 99
	ccRPNLSB       = 100
	ccRPNMSB       = 101
	// cc14LSBOffset is the distance between a 14-bit CC and its LSB.
	cc14LSBOffset = 32

	pitchBendCenter = 8192
)

// wireParameterLimit returns the largest parameter number the wire form of t
// can address. Types without a parameter byte ignore the number.
func wireParameterLimit(t MessageType) int {
	switch t {
	case ControlChange, NoteOn, NoteOff, PolyAftertouch:
		return 127
	case ControlChange14:
		// LSB travels on parameterNumber+32.
		return cc14LSBOffset - 1
	default:
		return MaxParameterNumber
	}
}

// Encode returns the channel messages carrying midiValue for key. Virtual
// keys have no wire form and yield no messages.
func Encode(key Key, midiValue uint16, channel uint8) ([]midi.Message, error) {
	pn := key.ParameterNumber()
	if pn > wireParameterLimit(key.Type()) {
		return nil, fmt.Errorf("%w: %d can't be sent as %s", ErrInvalidParameterNumber, pn, key.Type())
	}
	v7 := uint8(clamp(int(midiValue), 0, 127))
	msb, lsb := uint8(midiValue>>7&0x7f), uint8(midiValue&0x7f)

	switch key.Type() {
	case Virtual:
		return nil, nil
	case ControlChange:
		return []midi.Message{midi.ControlChange(channel, uint8(pn), v7)}, nil
	case ControlChange14:
		return []midi.Message{
			midi.ControlChange(channel, uint8(pn), msb),
			midi.ControlChange(channel, uint8(pn+cc14LSBOffset), lsb),
		}, nil
	case NRPN, RPN:
		selMSB, selLSB := uint8(ccNRPNMSB), uint8(ccNRPNLSB)
		if key.Type() == RPN {
			selMSB, selLSB = ccRPNMSB, ccRPNLSB
		}
		return []midi.Message{
			midi.ControlChange(channel, selMSB, uint8(pn>>7&0x7f)),
			midi.ControlChange(channel, selLSB, uint8(pn&0x7f)),
			midi.ControlChange(channel, ccDataEntryMSB, msb),
			midi.ControlChange(channel, ccDataEntryLSB, lsb),
		}, nil
	case NoteOn:
		return []midi.Message{midi.NoteOn(channel, uint8(pn), v7)}, nil
	case NoteOff:
		return []midi.Message{midi.NoteOffVelocity(channel, uint8(pn), v7)}, nil
	case ProgramChange:
		return []midi.Message{midi.ProgramChange(channel, v7)}, nil
	case PolyAftertouch:
		return []midi.Message{midi.PolyAfterTouch(channel, uint8(pn), v7)}, nil
	case ChannelAftertouch:
		return []midi.Message{midi.AfterTouch(channel, v7)}, nil
	case PitchBend:
		v := clamp(int(midiValue), 0, MaxMidiValue)
		return []midi.Message{midi.Pitchbend(channel, int16(v-pitchBendCenter))}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, key.Type())
	}
}

type midiOutput struct {
	channel uint8
	send    func(midi.Message) error
}

// MidiEmitter sends parameter changes to the output port of their device.
type MidiEmitter struct {
	outputs map[int]midiOutput
}

var _ Emitter = &MidiEmitter{}

func NewMidiEmitter() *MidiEmitter {
	return &MidiEmitter{outputs: make(map[int]midiOutput)}
}

// AddDevice routes a device's messages to send on the zero-based channel.
func (e *MidiEmitter) AddDevice(deviceID int, channel uint8, send func(midi.Message) error) {
	e.outputs[deviceID] = midiOutput{channel: channel & 0x0f, send: send}
}

func (e *MidiEmitter) Emit(key Key, midiValue uint16) error {
	out, ok := e.outputs[key.DeviceID()]
	if !ok {
		return fmt.Errorf("device %d has no output", key.DeviceID())
	}
	msgs, err := Encode(key, midiValue, out.channel)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := out.send(msg); err != nil {
			return fmt.Errorf("couldn't send %s: %v", msg, err)
		}
	}
	return nil
}

// Value is a decoded parameter change.
type Value struct {
	Key       Key
	MidiValue uint16
}

type paramSelect struct {
	rpn      bool
	msb, lsb int
	dataMSB  uint8
}

func (p *paramSelect) selected() bool {
	// 127/127 is the null parameter.
	return p.msb >= 0 && p.lsb >= 0 && !(p.msb == 127 && p.lsb == 127)
}

type channelState struct {
	deviceID int
	param    paramSelect
	cc14MSB  [cc14LSBOffset]uint8
}

// Decoder turns channel messages arriving on one input port into parameter
// changes. It keeps the running NRPN, RPN and 14-bit CC state of each
// channel.
type Decoder struct {
	channels map[uint8]*channelState
}

// NewDecoder returns a Decoder for the given device id to zero-based channel
// assignment.
func NewDecoder(devices map[int]uint8) *Decoder {
	d := &Decoder{channels: make(map[uint8]*channelState)}
	for id, ch := range devices {
		d.channels[ch&0x0f] = &channelState{
			deviceID: id,
			param:    paramSelect{msb: -1, lsb: -1},
		}
	}
	return d
}

// Decode returns the changes carried by msg. Messages on channels without a
// device and messages without a parameter are ignored.
func (d *Decoder) Decode(msg midi.Message) []Value {
	var ch, a, b uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetControlChange(&ch, &a, &b):
		if s, ok := d.channels[ch]; ok {
			return s.controlChange(a, b)
		}
	case msg.GetNoteOn(&ch, &a, &b):
		if s, ok := d.channels[ch]; ok {
			return s.values(NoteOn, int(a), b)
		}
	case msg.GetNoteOff(&ch, &a, &b):
		if s, ok := d.channels[ch]; ok {
			// A note off also ends the note on.
			return append(s.values(NoteOn, int(a), 0), s.values(NoteOff, int(a), b)...)
		}
	case msg.GetProgramChange(&ch, &a):
		if s, ok := d.channels[ch]; ok {
			return s.values(ProgramChange, 0, a)
		}
	case msg.GetPolyAfterTouch(&ch, &a, &b):
		if s, ok := d.channels[ch]; ok {
			return s.values(PolyAftertouch, int(a), b)
		}
	case msg.GetAfterTouch(&ch, &a):
		if s, ok := d.channels[ch]; ok {
			return s.values(ChannelAftertouch, 0, a)
		}
	case msg.GetPitchBend(&ch, &rel, &abs):
		if s, ok := d.channels[ch]; ok {
			return s.value(PitchBend, 0, abs)
		}
	}
	return nil
}

func (s *channelState) values(t MessageType, pn int, v uint8) []Value {
	return s.value(t, pn, uint16(v))
}

func (s *channelState) value(t MessageType, pn int, v uint16) []Value {
	k, err := NewKey(s.deviceID, t, pn)
	if err != nil {
		glog.V(1).Infof("midi: dropping %s %d: %v", t, pn, err)
		return nil
	}
	return []Value{{Key: k, MidiValue: v}}
}

func (s *channelState) controlChange(cc, v uint8) []Value {
	p := &s.param
	switch cc {
	case ccNRPNMSB, ccRPNMSB:
		p.rpn = cc == ccRPNMSB
		p.msb = int(v)
		return nil
	case ccNRPNLSB, ccRPNLSB:
		p.rpn = cc == ccRPNLSB
		p.lsb = int(v)
		return nil
	case ccDataEntryMSB:
		// Reported at once with a zero LSB. A following LSB refines it.
		if p.selected() {
			p.dataMSB = v
			return s.value(p.messageType(), p.msb<<7|p.lsb, uint16(v)<<7)
		}
	case ccDataEntryLSB:
		if p.selected() {
			return s.value(p.messageType(), p.msb<<7|p.lsb, uint16(p.dataMSB)<<7|uint16(v))
		}
	}

	r := s.values(ControlChange, int(cc), v)
	switch {
	case cc < cc14LSBOffset:
		s.cc14MSB[cc] = v
	case cc < 2*cc14LSBOffset:
		n := cc - cc14LSBOffset
		r = append(r, s.value(ControlChange14, int(n), uint16(s.cc14MSB[n])<<7|uint16(v))...)
	}
	return r
}

func (p *paramSelect) messageType() MessageType {
	if p.rpn {
		return RPN
	}
	return NRPN
}

// OpenOutputs connects every configured device to its output port.
func OpenOutputs(conf *Config, e *MidiEmitter) error {
	for _, id := range conf.DeviceIDs() {
		dev, _ := conf.Device(id)
		out, err := midi.FindOutPort(dev.Port)
		if err != nil {
			return fmt.Errorf("device %d: can't find output %q: %w", id, dev.Port, err)
		}
		send, err := midi.SendTo(out)
		if err != nil {
			return fmt.Errorf("device %d: can't open output %q: %w", id, dev.Port, err)
		}
		e.AddDevice(id, uint8(dev.Channel-1), send)
		glog.Infof("device %d: output %q channel %d", id, dev.Port, dev.Channel)
	}
	return nil
}

// ListenInputs decodes the input ports of the configured devices and hands
// every change to deliver. The returned function stops all listeners.
func ListenInputs(conf *Config, deliver func(Value)) (func(), error) {
	ports := make(map[string]map[int]uint8)
	for _, id := range conf.DeviceIDs() {
		dev, _ := conf.Device(id)
		if ports[dev.Port] == nil {
			ports[dev.Port] = make(map[int]uint8)
		}
		ports[dev.Port][id] = uint8(dev.Channel - 1)
	}
	names := make([]string, 0, len(ports))
	for n := range ports {
		names = append(names, n)
	}
	sort.Strings(names)

	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}
	for _, name := range names {
		in, err := midi.FindInPort(name)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("can't find input %q: %w", name, err)
		}
		dec := NewDecoder(ports[name])
		stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
			for _, v := range dec.Decode(msg) {
				deliver(v)
			}
		})
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("can't listen to %q: %w", name, err)
		}
		stops = append(stops, stop)
		glog.Infof("listening on %q", name)
	}
	return stopAll, nil
}
