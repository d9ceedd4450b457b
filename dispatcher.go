package parammap

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/9600org/go-osc/osc"
	"github.com/golang/glog"
)

// ExactDispatcher routes messages by exact address, falling back to the
// longest registered prefix. Bundles are dispatched in order on the calling
// goroutine.
type ExactDispatcher struct {
	handlers map[string]osc.Handler
	prefixes map[string]osc.Handler
}

var _ osc.Dispatcher = &ExactDispatcher{}

func NewExactDispatcher() *ExactDispatcher {
	return &ExactDispatcher{
		handlers: make(map[string]osc.Handler),
		prefixes: make(map[string]osc.Handler),
	}
}

func (s *ExactDispatcher) AddMsgHandler(addr string, f osc.HandlerFunc) error {
	s.handlers[addr] = f
	return nil
}

// AddPrefixHandler registers f for every address starting with prefix that
// has no exact handler.
func (s *ExactDispatcher) AddPrefixHandler(prefix string, f osc.HandlerFunc) error {
	s.prefixes[prefix] = f
	return nil
}

func (s *ExactDispatcher) handler(addr string) (osc.Handler, bool) {
	if h, ok := s.handlers[addr]; ok {
		return h, true
	}
	var best string
	var h osc.Handler
	for p, ph := range s.prefixes {
		if strings.HasPrefix(addr, p) && len(p) > len(best) {
			best, h = p, ph
		}
	}
	return h, h != nil
}

func (s *ExactDispatcher) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	default:
		return

	case *osc.Message:
		handler, ok := s.handler(p.Address)
		if !ok {
			glog.V(2).Infof("osc: no handler for %s", p.Address)
			return
		}
		handler.HandleMessage(p)

	case *osc.Bundle:
		for _, message := range p.Messages {
			s.Dispatch(message)
		}
		for _, b := range p.Bundles {
			s.Dispatch(b)
		}
	}
}

// Dispatcher returns the OSC routes of the server: control edits from the UI
// and the parameterMap primitives of the script host.
func (s *Server) Dispatcher() *ExactDispatcher {
	d := NewExactDispatcher()
	d.AddPrefixHandler("/control/", s.handleControl)

	d.AddMsgHandler("/parameterMap/resetAll", func(msg *osc.Message) {
		s.run(msg, func() error {
			s.surface.ResetAll()
			return nil
		})
	})
	d.AddMsgHandler("/parameterMap/resetDevice", func(msg *osc.Message) {
		s.withInts(msg, 1, func(a []int) error {
			return s.surface.ResetDevice(a[0])
		})
	})
	d.AddMsgHandler("/parameterMap/set", func(msg *osc.Message) {
		s.withInts(msg, 4, func(a []int) error {
			return s.surface.Set(a[0], a[1], a[2], a[3])
		})
	})
	d.AddMsgHandler("/parameterMap/apply", func(msg *osc.Message) {
		s.withInts(msg, 4, func(a []int) error {
			return s.surface.Apply(a[0], a[1], a[2], a[3])
		})
	})
	d.AddMsgHandler("/parameterMap/send", func(msg *osc.Message) {
		s.withInts(msg, 3, func(a []int) error {
			return s.surface.Send(a[0], a[1], a[2])
		})
	})
	d.AddMsgHandler("/parameterMap/get", func(msg *osc.Message) {
		s.withInts(msg, 3, func(a []int) error {
			v, err := s.surface.Get(a[0], a[1], a[2])
			if err != nil {
				return err
			}
			s.reply(&osc.Message{
				Address:   "/parameterMap/value",
				Arguments: []interface{}{int32(a[0]), int32(a[1]), int32(a[2]), int32(v)},
			})
			return nil
		})
	})
	d.AddMsgHandler("/parameterMap/getValues", func(msg *osc.Message) {
		s.withInts(msg, 3, func(a []int) error {
			values, err := s.surface.GetValues(a[0], a[1], a[2])
			if err != nil {
				return err
			}
			args := []interface{}{int32(a[0]), int32(a[1]), int32(a[2])}
			for _, v := range values {
				args = append(args, int32(v.ControlID), v.ValueID, int32(v.Display))
			}
			s.reply(&osc.Message{Address: "/parameterMap/values", Arguments: args})
			return nil
		})
	})
	return d
}

// handleControl serves /control/<id>/<valueId> with a display value,
// /control/<id>/reset and /control/<id>/segment with a value id.
func (s *Server) handleControl(msg *osc.Message) {
	bits := strings.Split(strings.TrimPrefix(msg.Address, "/control/"), "/")
	if len(bits) != 2 {
		glog.Warningf("osc: invalid control address %s", msg.Address)
		return
	}
	id, err := strconv.Atoi(bits[0])
	if err != nil {
		glog.Warningf("osc: invalid control id in %s: %v", msg.Address, err)
		return
	}
	action := bits[1]

	var segment string
	var display int32
	switch action {
	case "reset":
	case "segment":
		if len(msg.Arguments) < 1 {
			glog.Warningf("osc: %s wants a segment name", msg.Address)
			return
		}
		var ok bool
		if segment, ok = msg.Arguments[0].(string); !ok {
			glog.Warningf("osc: %s: got arg type %T, wanted string", msg.Address, msg.Arguments[0])
			return
		}
	default:
		if display, err = getIntArg(msg, 0); err != nil {
			glog.Warningf("osc: %s: %v", msg.Address, err)
			return
		}
	}

	err = s.Do(context.Background(), func() {
		pr := s.presets.Active()
		if pr == nil {
			return
		}
		c, ok := pr.Control(id)
		if !ok {
			glog.Warningf("osc: no control %d", id)
			return
		}
		switch action {
		case "reset":
			if err := c.ResetToDefault(s.m, UserInteraction); err != nil {
				glog.Warningf("osc: %v", err)
			}
		case "segment":
			if sel := c.Segments(); sel != nil {
				if err := sel.SelectSegment(segment); err != nil {
					glog.Warningf("osc: control %d: %v", id, err)
				}
			}
		default:
			v, ok := c.Value(action)
			if !ok {
				glog.Warningf("osc: control %d has no value %q", id, action)
				return
			}
			v.Set(s.m, int(display), UserInteraction)
		}
	})
	if err != nil {
		glog.Errorf("osc: %s: %v", msg.Address, err)
	}
}

// withInts runs fn on the owner goroutine with the first n arguments of msg.
func (s *Server) withInts(msg *osc.Message, n int, fn func([]int) error) {
	args, err := getIntArgs(msg, n)
	if err != nil {
		s.replyError(msg.Address, err)
		return
	}
	s.run(msg, func() error { return fn(args) })
}

func (s *Server) run(msg *osc.Message, fn func() error) {
	var err error
	if doErr := s.Do(context.Background(), func() { err = fn() }); doErr != nil {
		err = doErr
	}
	if err != nil {
		s.replyError(msg.Address, err)
	}
}

func (s *Server) replyError(addr string, err error) {
	glog.Warningf("osc: %s: %v", addr, err)
	text := err.Error()
	if errors.Is(err, ErrNoEntry) {
		text = "failed: " + ErrNoEntry.Error()
	}
	s.reply(&osc.Message{Address: "/parameterMap/error", Arguments: []interface{}{addr, text}})
}

func (s *Server) reply(msg *osc.Message) {
	if s.script == nil {
		return
	}
	if err := s.script.Send(msg); err != nil {
		glog.Errorf("script: failed to send %s: %v", msg.Address, err)
	}
}
