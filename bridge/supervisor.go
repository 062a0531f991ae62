package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// ErrBind marks a listener that could not be opened at startup.
var ErrBind = errors.New("bind failure")

// Listen opens a TCP listener; failures wrap ErrBind.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrBind, addr, err)
	}
	return l, nil
}

// Phase is a Supervisor lifecycle state.
type Phase int32

const (
	Starting Phase = iota
	Listening
	Degraded
	ShuttingDown
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Degraded:
		return "degraded"
	case ShuttingDown:
		return "shutting-down"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// Supervisor owns the process lifecycle:
//
//	Starting -> Listening -> (Degraded <-> Listening) -> ShuttingDown -> Stopped
//
// Reader transitions outside Listening/Degraded are ignored.
type Supervisor struct {
	log zerolog.Logger

	mu    sync.Mutex
	phase Phase
	steps []shutdownStep

	once sync.Once
	done chan struct{}
	err  error
}

// NewSupervisor returns a supervisor in Starting.
func NewSupervisor(log zerolog.Logger) *Supervisor {
	phaseGauge.Set(float64(Starting))
	return &Supervisor{log: log, done: make(chan struct{})}
}

// Phase returns the current phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Serving records that every listener is bound.
func (s *Supervisor) Serving() {
	s.move(Listening, Starting)
}

// ReaderFault moves Listening to Degraded.
func (s *Supervisor) ReaderFault() {
	s.move(Degraded, Listening)
}

// ReaderRecovered moves Degraded back to Listening.
func (s *Supervisor) ReaderRecovered() {
	s.move(Listening, Degraded)
}

func (s *Supervisor) move(to Phase, from ...Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.phase == f {
			s.log.Info().Stringer("from", s.phase).Stringer("to", to).Msg("supervisor transition")
			s.phase = to
			phaseGauge.Set(float64(to))
			return true
		}
	}
	return false
}

// OnShutdown registers a step run by Shutdown. Steps run in registration
// order.
func (s *Supervisor) OnShutdown(name string, fn func(context.Context) error) {
	s.mu.Lock()
	s.steps = append(s.steps, shutdownStep{name: name, fn: fn})
	s.mu.Unlock()
}

// Shutdown runs the registered steps once and enters Stopped. Every call
// after the first waits for the first to finish and returns its result.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.log.Info().Stringer("from", s.phase).Msg("shutting down")
		s.phase = ShuttingDown
		phaseGauge.Set(float64(ShuttingDown))
		steps := append([]shutdownStep(nil), s.steps...)
		s.mu.Unlock()

		var errs []error
		for _, st := range steps {
			if err := st.fn(ctx); err != nil {
				s.log.Error().Err(err).Str("step", st.name).Msg("shutdown step failed")
				errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
				continue
			}
			s.log.Debug().Str("step", st.name).Msg("shutdown step done")
		}
		s.err = errors.Join(errs...)

		s.mu.Lock()
		s.phase = Stopped
		phaseGauge.Set(float64(Stopped))
		s.mu.Unlock()
		s.log.Info().Msg("stopped")
		close(s.done)
	})
	<-s.done
	return s.err
}

// Done is closed once Shutdown has completed.
func (s *Supervisor) Done() <-chan struct{} { return s.done }
