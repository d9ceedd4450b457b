package parammap

import (
	"context"
	"fmt"
	"net"

	"github.com/9600org/go-osc/osc"
	"github.com/golang/glog"
)

type Client interface {
	Send(osc.Packet) error
}

type UDPClient struct {
	Conn *net.UDPConn
}

var _ Client = &UDPClient{}

// DialUDP returns a client sending to the host:port address a.
func DialUDP(a string) (*UDPClient, error) {
	host, port, err := splitAddress(a)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return nil, fmt.Errorf("couldn't create UDP connection to %s: %v", a, err)
	}
	return &UDPClient{Conn: conn}, nil
}

func (c *UDPClient) Send(p osc.Packet) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := c.Conn.Write(data); err != nil {
		return err
	}
	return nil
}

// ServeOSC reads OSC packets from the UDP address a and dispatches them until
// ctx is done.
func ServeOSC(ctx context.Context, a string, d osc.Dispatcher) error {
	host, port, err := splitAddress(a)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return fmt.Errorf("couldn't create listen UDP connection: %v", err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("osc read: %v", err)
		}
		p, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			glog.Warningf("osc: dropping malformed packet: %v", err)
			continue
		}
		d.Dispatch(p)
	}
}

func getIntArg(m *osc.Message, i int) (int32, error) {
	if l := len(m.Arguments); l <= i {
		return 0, fmt.Errorf("insufficient args (%d), wanted > %d", l, i)
	}
	switch r := m.Arguments[i].(type) {
	case int32:
		return r, nil
	case float32:
		return int32(r), nil
	default:
		return 0, fmt.Errorf("got arg type %T, wanted int32", m.Arguments[i])
	}
}

// getIntArgs returns the first n arguments of m as ints.
func getIntArgs(m *osc.Message, n int) ([]int, error) {
	r := make([]int, n)
	for i := range r {
		v, err := getIntArg(m, i)
		if err != nil {
			return nil, err
		}
		r[i] = int(v)
	}
	return r, nil
}

func controlAddress(v *ControlValue) (string, bool) {
	if v == nil || v.Control() == nil {
		return "", false
	}
	return fmt.Sprintf("/control/%d/%s", v.Control().ID, v.ValueID), true
}

// OSCListener redraws the on-screen controls of the UI over OSC. A slot's
// formatter, if any, follows the display value so the UI can render it.
type OSCListener struct {
	Client Client
}

var _ Listener = &OSCListener{}

func (l *OSCListener) ValueChanged(d *Destination, displayValue int, origin Origin) {
	cv, _ := d.Owner.(*ControlValue)
	addr, ok := controlAddress(cv)
	if !ok {
		return
	}
	msg := &osc.Message{Address: addr, Arguments: []interface{}{int32(displayValue)}}
	if d.Slot != nil && d.Slot.Formatter != "" {
		msg.Arguments = append(msg.Arguments, d.Slot.Formatter)
	}
	if err := l.Client.Send(msg); err != nil {
		glog.Errorf("ui: failed to send %s: %v", addr, err)
	}
}

// OSCScriptHost forwards script hooks to an external script runtime.
type OSCScriptHost struct {
	Client Client
}

var _ ScriptHost = &OSCScriptHost{}

func (h *OSCScriptHost) CallFunction(name string, d *Destination, displayValue int, origin Origin) {
	args := []interface{}{int32(0), "", int32(displayValue), int32(origin)}
	if cv, ok := d.Owner.(*ControlValue); ok && cv.Control() != nil {
		args[0], args[1] = int32(cv.Control().ID), cv.ValueID
	}
	h.send(&osc.Message{Address: "/function/" + name, Arguments: args})
}

func (h *OSCScriptHost) OnChange(key Key, destinations []*Destination, origin Origin, midiValue uint16) {
	args := []interface{}{
		int32(key.DeviceID()), int32(key.Type()), int32(key.ParameterNumber()),
		int32(origin), int32(midiValue),
	}
	for _, d := range destinations {
		if cv, ok := d.Owner.(*ControlValue); ok && cv.Control() != nil {
			args = append(args, int32(cv.Control().ID), cv.ValueID)
		}
	}
	h.send(&osc.Message{Address: "/parameterMap/onChange", Arguments: args})
}

func (h *OSCScriptHost) send(msg *osc.Message) {
	if err := h.Client.Send(msg); err != nil {
		glog.Errorf("script: failed to send %s: %v", msg.Address, err)
	}
}
