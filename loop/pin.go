package loop

import (
	"gregoryjjb/pinloop/gpio"
)

// Pin is the handle returned by Setup. It stays valid until closed, either
// explicitly or because the same pin number was configured again.
type Pin struct {
	rt    *Runtime
	entry *pinEntry
}

// Setup configures one pin. Configuring a pin that is already configured
// resets it and closes the previous handle.
func (r *Runtime) Setup(pin int, cfg PinConfig) (*Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.configure("setup", pin, cfg)
	if err != nil {
		return nil, err
	}
	return &Pin{rt: r, entry: e}, nil
}

// SetupMany configures several pins with one config. Every pin is validated
// before any is touched; if the driver then rejects one, the pins already
// configured by this call are closed again.
func (r *Runtime) SetupMany(pins []int, cfg PinConfig) ([]*Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pin := range pins {
		if err := r.reg.validate("setup", pin, cfg); err != nil {
			return nil, err
		}
	}

	handles := make([]*Pin, 0, len(pins))
	for _, pin := range pins {
		e, err := r.configure("setup", pin, cfg)
		if err != nil {
			for _, h := range handles {
				r.closePin(h.entry)
			}
			return nil, err
		}
		handles = append(handles, &Pin{rt: r, entry: e})
	}
	return handles, nil
}

// Lookup returns a handle for a pin configured through the low-level Config
// call, so an ISR can be attached to it.
func (r *Runtime) Lookup(pin int) (*Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.reg.get(pin)
	if e == nil || e.state != PinConfigured {
		return nil, stateError("lookup", pin, "pin not configured")
	}
	return &Pin{rt: r, entry: e}, nil
}

func (p *Pin) Number() int {
	return p.entry.pin
}

func (p *Pin) Config() PinConfig {
	return p.entry.cfg
}

func (p *Pin) Closed() bool {
	p.rt.mu.Lock()
	defer p.rt.mu.Unlock()
	return p.entry.state != PinConfigured
}

// live checks the handle is usable. Called with rt.mu held.
func (p *Pin) live(op string) error {
	if p.entry.state != PinConfigured {
		return stateError(op, p.entry.pin, "pin is closed")
	}
	return nil
}

func (p *Pin) Read() (bool, error) {
	p.rt.mu.Lock()
	defer p.rt.mu.Unlock()

	if err := p.live("read"); err != nil {
		return false, err
	}
	level, err := p.rt.driver.Read(p.entry.pin)
	if err != nil {
		return false, &Error{Kind: ErrResourceState, Op: "read", Pin: p.entry.pin, Err: err}
	}
	return level, nil
}

func (p *Pin) Write(level bool) error {
	p.rt.mu.Lock()
	defer p.rt.mu.Unlock()

	if err := p.live("write"); err != nil {
		return err
	}
	return p.rt.writeLevel("write", p.entry, level)
}

// writeLevel drives an output. Called with rt.mu held.
func (r *Runtime) writeLevel(op string, e *pinEntry, level bool) error {
	if !e.cfg.Mode.CanWrite() {
		return stateError(op, e.pin, "pin is configured as %s", e.cfg.Mode)
	}
	if err := r.driver.Write(e.pin, level); err != nil {
		return &Error{Kind: ErrResourceState, Op: op, Pin: e.pin, Err: err}
	}
	return nil
}

// AttachISR sets the callback run on the dispatcher for each accepted edge,
// replacing any previous one.
func (p *Pin) AttachISR(callback func()) error {
	r := p.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := p.live("attach"); err != nil {
		return err
	}
	if p.entry.cfg.Interrupt == gpio.EdgeNone {
		return stateError("attach", p.entry.pin, "pin has no interrupt type configured")
	}
	if callback == nil {
		return configError("attach", p.entry.pin, "callback is nil")
	}

	p.entry.callback = callback
	r.setInterruptEnabled(p.entry.pin, true)
	return nil
}

// DetachISR removes the callback. Edges already captured or pending in the
// debounce filter are discarded. Detaching twice is harmless.
func (p *Pin) DetachISR() error {
	r := p.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := p.live("detach"); err != nil {
		return err
	}

	r.setInterruptEnabled(p.entry.pin, false)
	p.entry.callback = nil
	r.cancelDebounce(p.entry)
	return nil
}

// Close detaches the ISR, resets the pin to disabled and releases it. If the
// pin's callback is running on the dispatcher, Close blocks until it
// returns; once Close returns that callback never runs again. Closing a
// closed pin is a no-op.
func (p *Pin) Close() error {
	r := p.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closePin(p.entry)
	return nil
}
