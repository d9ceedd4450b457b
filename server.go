package parammap

import (
	"context"
	"errors"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// ErrServerStopped is returned by Do once the owner loop has exited.
var ErrServerStopped = errors.New("server stopped")

// Server owns a Map and its presets. Every access to them runs on a single
// goroutine, fed by the transports through Do.
type Server struct {
	conf    *Config
	m       *Map
	surface *Surface
	presets *Presets
	// script receives replies to script requests. May be nil.
	script Client

	ops     chan func()
	stopped chan struct{}
}

// NewServer returns a Server for m. conf may be nil when no transport is
// started through Run.
func NewServer(conf *Config, m *Map, presets *Presets, script Client) *Server {
	if conf == nil {
		conf = &Config{}
	}
	return &Server{
		conf:    conf,
		m:       m,
		surface: NewSurface(m),
		presets: presets,
		script:  script,
		ops:     make(chan func(), 256),
		stopped: make(chan struct{}),
	}
}

// Do runs fn on the owner goroutine and waits for it to finish. fn must not
// call Do.
func (s *Server) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrServerStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrServerStopped
		}
	}
}

// DeliverMidi queues an incoming value without waiting for it to be applied.
func (s *Server) DeliverMidi(v Value) {
	select {
	case s.ops <- func() { s.m.SetValue(v.Key, v.MidiValue, IncomingMidi) }:
	case <-s.stopped:
	}
}

// Serve runs the owner loop until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.ops:
			fn()
		}
	}
}

// LoadPreset makes pr the active preset.
func (s *Server) LoadPreset(ctx context.Context, pr *Preset) error {
	var err error
	if doErr := s.Do(ctx, func() { err = s.presets.Load(pr) }); doErr != nil {
		return doErr
	}
	return err
}

// Run serves the owner loop and the configured OSC and status listeners
// until ctx is done or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(ctx)
	})
	if a := s.conf.ListenAddress; a != "" {
		g.Go(func() error {
			glog.Infof("osc: listening on %s", a)
			return ServeOSC(ctx, a, s.Dispatcher())
		})
	}
	if a := s.conf.StatusAddress; a != "" {
		g.Go(func() error {
			glog.Infof("status: listening on %s", a)
			return ServeStatus(ctx, a, s)
		})
	}
	return g.Wait()
}
