package loop

import (
	"errors"
	"fmt"
	"strconv"
)

// Error kinds. Every error returned by the runtime matches exactly one of
// these with errors.Is.
var (
	// ErrConfiguration covers bad pin numbers, impossible mode/pull/interrupt
	// combinations, bad debounce windows and bad timer arguments.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceState covers operations on closed pins, released timers and
	// a closed runtime, and attaching an ISR to a pin with no interrupt.
	ErrResourceState = errors.New("resource state error")

	// ErrCapacity reports pressure on a bounded resource: the edge ring
	// (surfaced through Health, never returned to the interrupt side) or
	// the timer limit.
	ErrCapacity = errors.New("capacity error")
)

// Error carries the operation and pin that failed alongside its kind.
type Error struct {
	Kind error
	Op   string
	Pin  int // -1 when no pin is involved
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op
	if e.Pin >= 0 {
		s += " pin " + strconv.Itoa(e.Pin)
	}
	s += ": " + e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, op string, pin int, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Pin:  pin,
		Msg:  fmt.Sprintf(format, args...),
	}
}

func configError(op string, pin int, format string, args ...any) error {
	return newError(ErrConfiguration, op, pin, format, args...)
}

func stateError(op string, pin int, format string, args ...any) error {
	return newError(ErrResourceState, op, pin, format, args...)
}
