// Package gpio is the hardware side of pinloop. A Driver configures pins and
// reports qualifying edges by calling an EdgeHandler from its own goroutine;
// that goroutine is the runtime's interrupt context.
package gpio

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPin  = errors.New("invalid pin")
	ErrUnsupported = errors.New("unsupported by driver")
)

type Mode int

const (
	ModeDisabled Mode = iota
	ModeInput
	ModeOutput
	ModeInputOutput
)

func (m Mode) CanRead() bool  { return m == ModeInput || m == ModeInputOutput }
func (m Mode) CanWrite() bool { return m == ModeOutput || m == ModeInputOutput }

func (m Mode) Valid() bool { return m >= ModeDisabled && m <= ModeInputOutput }

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disable"
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeInputOutput:
		return "input_output"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

type Pull int

const (
	PullFloating Pull = iota
	PullUp
	PullDown
	PullBoth
)

func (p Pull) Valid() bool { return p >= PullFloating && p <= PullBoth }

func (p Pull) String() string {
	switch p {
	case PullFloating:
		return "floating"
	case PullUp:
		return "pullup"
	case PullDown:
		return "pulldown"
	case PullBoth:
		return "both"
	}
	return fmt.Sprintf("pull(%d)", int(p))
}

// Edge is the interrupt trigger of a pin. EdgeLow and EdgeHigh are level
// triggers: they fire every time the pin is driven to that level.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
	EdgeLow
	EdgeHigh
)

func (e Edge) Valid() bool { return e >= EdgeNone && e <= EdgeHigh }

func (e Edge) String() string {
	switch e {
	case EdgeNone:
		return "none"
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	case EdgeLow:
		return "low"
	case EdgeHigh:
		return "high"
	}
	return fmt.Sprintf("edge(%d)", int(e))
}

// Qualifies reports whether a transition from prev to next should raise an
// interrupt for this trigger.
func (e Edge) Qualifies(prev, next bool) bool {
	switch e {
	case EdgeRising:
		return !prev && next
	case EdgeFalling:
		return prev && !next
	case EdgeBoth:
		return prev != next
	case EdgeLow:
		return !next
	case EdgeHigh:
		return next
	}
	return false
}

// EdgeHandler receives a qualifying edge. It runs in interrupt context and
// must not block or allocate.
type EdgeHandler func(pin int, level bool)

type Driver interface {
	PinCount() int
	Configure(pin int, mode Mode, pull Pull, edge Edge) error
	// Reset returns the pin to a disabled, floating, non-interrupting state.
	Reset(pin int) error
	Read(pin int) (bool, error)
	Write(pin int, level bool) error
	SetEdgeHandler(h EdgeHandler)
	Close() error
}

// Open returns the named driver. "sim" is always available; "rpio" needs
// a Raspberry Pi running linux.
func Open(name string, pinCount int) (Driver, error) {
	switch name {
	case "", "sim":
		return NewSim(pinCount), nil
	case "rpio":
		return OpenRPi()
	}
	return nil, fmt.Errorf("%w: unknown gpio driver %q", ErrUnsupported, name)
}

func checkPin(pin, count int) error {
	if pin < 0 || pin >= count {
		return fmt.Errorf("%w: %d (have %d pins)", ErrInvalidPin, pin, count)
	}
	return nil
}

// ParseMode accepts the names String produces, plus "disabled".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "disable", "disabled":
		return ModeDisabled, nil
	case "input":
		return ModeInput, nil
	case "output":
		return ModeOutput, nil
	case "input_output":
		return ModeInputOutput, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func ParsePull(s string) (Pull, error) {
	switch s {
	case "", "floating":
		return PullFloating, nil
	case "pullup":
		return PullUp, nil
	case "pulldown":
		return PullDown, nil
	case "both":
		return PullBoth, nil
	}
	return 0, fmt.Errorf("unknown pull mode %q", s)
}

func ParseEdge(s string) (Edge, error) {
	for e := EdgeNone; e <= EdgeHigh; e++ {
		if e.String() == s {
			return e, nil
		}
	}
	if s == "" {
		return EdgeNone, nil
	}
	return 0, fmt.Errorf("unknown interrupt type %q", s)
}
