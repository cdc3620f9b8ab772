package loop

import (
	"math/bits"

	"gregoryjjb/pinloop/gpio"
)

// GPIOConfig is the bitmask form of pin configuration, for code that
// configures several pins at once the way vendor SDKs do.
type GPIOConfig struct {
	PinBitMask     uint64
	Mode           gpio.Mode
	PullUpEnable   bool
	PullDownEnable bool
	IntrType       gpio.Edge
}

func (c GPIOConfig) pull() gpio.Pull {
	switch {
	case c.PullUpEnable && c.PullDownEnable:
		return gpio.PullBoth
	case c.PullUpEnable:
		return gpio.PullUp
	case c.PullDownEnable:
		return gpio.PullDown
	}
	return gpio.PullFloating
}

// Config configures every pin in the mask. Pins configured here go through
// the same registry as Setup, so an existing Pin handle for one of them is
// closed, and Lookup returns a handle for them. If the driver rejects a pin,
// the pins this call already configured are closed again.
func (r *Runtime) Config(c GPIOConfig) error {
	const op = "config"

	if c.PinBitMask == 0 {
		return configError(op, -1, "empty pin mask")
	}

	cfg := PinConfig{
		Mode:      c.Mode,
		Pull:      c.pull(),
		Interrupt: c.IntrType,
	}

	var pins []int
	for mask := c.PinBitMask; mask != 0; mask &= mask - 1 {
		pins = append(pins, bits.TrailingZeros64(mask))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pin := range pins {
		if err := r.reg.validate(op, pin, cfg); err != nil {
			return err
		}
	}
	done := make([]*pinEntry, 0, len(pins))
	for _, pin := range pins {
		e, err := r.configure(op, pin, cfg)
		if err != nil {
			for _, e := range done {
				r.closePin(e)
			}
			return err
		}
		done = append(done, e)
	}
	return nil
}

// SetLevel writes 0 or any non-zero level to a configured output pin.
func (r *Runtime) SetLevel(pin int, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.configuredEntry("set_level", pin)
	if err != nil {
		return err
	}
	return r.writeLevel("set_level", e, level != 0)
}

// GetLevel reads a configured pin as 0 or 1.
func (r *Runtime) GetLevel(pin int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.configuredEntry("get_level", pin)
	if err != nil {
		return 0, err
	}
	level, err := r.driver.Read(e.pin)
	if err != nil {
		return 0, &Error{Kind: ErrResourceState, Op: "get_level", Pin: pin, Err: err}
	}
	if level {
		return 1, nil
	}
	return 0, nil
}

// ResetPin returns pin to its disabled default, closing any handle for it.
func (r *Runtime) ResetPin(pin int) error {
	const op = "reset_pin"

	r.mu.Lock()
	defer r.mu.Unlock()

	if pin < 0 || pin >= r.reg.count {
		return configError(op, pin, "pin number outside 0..%d", r.reg.count-1)
	}
	if e := r.reg.get(pin); e != nil {
		r.closePin(e)
		return nil
	}
	if err := r.driver.Reset(pin); err != nil {
		return &Error{Kind: ErrResourceState, Op: op, Pin: pin, Err: err}
	}
	return nil
}

func (r *Runtime) configuredEntry(op string, pin int) (*pinEntry, error) {
	if pin < 0 || pin >= r.reg.count {
		return nil, configError(op, pin, "pin number outside 0..%d", r.reg.count-1)
	}
	e := r.reg.get(pin)
	if e == nil || e.state != PinConfigured {
		return nil, stateError(op, pin, "pin not configured")
	}
	return e, nil
}
