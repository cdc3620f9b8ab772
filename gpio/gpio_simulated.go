package gpio

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var slog zerolog.Logger

func init() {
	slog = log.With().Str("component", "gpio").Logger()
}

type simPin struct {
	mode  Mode
	pull  Pull
	edge  Edge
	level bool
}

// Sim is an in-memory board. Drive plays the part of the outside world;
// whichever goroutine calls it is the interrupt context for that edge.
type Sim struct {
	mu      sync.Mutex
	pins    []simPin
	handler EdgeHandler
}

func NewSim(pinCount int) *Sim {
	slog.Debug().Int("pins", pinCount).Msg("GPIO will be simulated")
	return &Sim{
		pins: make([]simPin, pinCount),
	}
}

func (s *Sim) PinCount() int {
	return len(s.pins)
}

func (s *Sim) Configure(pin int, mode Mode, pull Pull, edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkPin(pin, len(s.pins)); err != nil {
		return err
	}

	p := &s.pins[pin]
	p.mode, p.pull, p.edge = mode, pull, edge
	switch pull {
	case PullUp:
		p.level = true
	case PullDown:
		p.level = false
	}

	slog.Debug().
		Int("pin", pin).
		Stringer("mode", mode).
		Stringer("pull", pull).
		Stringer("interrupt", edge).
		Msg("Configured pin")
	return nil
}

func (s *Sim) Reset(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkPin(pin, len(s.pins)); err != nil {
		return err
	}
	s.pins[pin] = simPin{}
	return nil
}

func (s *Sim) Read(pin int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkPin(pin, len(s.pins)); err != nil {
		return false, err
	}
	return s.pins[pin].level, nil
}

// Write drives an output. On an input_output pin the new level is also seen
// by the input stage, so it can raise an interrupt like on real silicon.
func (s *Sim) Write(pin int, level bool) error {
	return s.set(pin, level, false)
}

// Drive sets the level seen on an input pin as if an external circuit
// pulled it, raising an interrupt if the configured trigger qualifies.
func (s *Sim) Drive(pin int, level bool) error {
	return s.set(pin, level, true)
}

func (s *Sim) set(pin int, level bool, external bool) error {
	s.mu.Lock()
	if err := checkPin(pin, len(s.pins)); err != nil {
		s.mu.Unlock()
		return err
	}

	p := &s.pins[pin]
	if external && !p.mode.CanRead() {
		// Nothing listens on a pin without an input stage.
		s.mu.Unlock()
		return nil
	}

	prev := p.level
	p.level = level
	fire := p.mode.CanRead() && p.edge.Qualifies(prev, level)
	handler := s.handler
	s.mu.Unlock()

	if fire && handler != nil {
		handler(pin, level)
	}
	return nil
}

// Pulse drives level then its inverse, producing two edges back to back.
func (s *Sim) Pulse(pin int, level bool) error {
	if err := s.Drive(pin, level); err != nil {
		return err
	}
	return s.Drive(pin, !level)
}

func (s *Sim) SetEdgeHandler(h EdgeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Levels returns a snapshot of every pin level, mostly for logging.
func (s *Sim) Levels() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := make([]bool, len(s.pins))
	for i, p := range s.pins {
		levels[i] = p.level
	}
	return levels
}

func (s *Sim) Close() error {
	slog.Debug().Msg("Simulated GPIO closing")
	s.SetEdgeHandler(nil)
	return nil
}
