package loop

import (
	"errors"
	"time"

	"gregoryjjb/pinloop/gpio"
)

// PinConfig mirrors the setup() options of the scripting API. A zero
// Debounce disables debouncing.
type PinConfig struct {
	Mode      gpio.Mode
	Pull      gpio.Pull
	Interrupt gpio.Edge
	Debounce  time.Duration
}

type PinState int

const (
	PinConfigured PinState = iota
	pinClosing
	PinClosed
)

func (s PinState) String() string {
	switch s {
	case PinConfigured:
		return "configured"
	case pinClosing:
		return "closing"
	case PinClosed:
		return "closed"
	}
	return "unknown"
}

type pinEntry struct {
	pin      int
	cfg      PinConfig
	state    PinState
	since    time.Duration // edges captured before this belong to an older handle
	callback func()
	debounce *debounceState
}

// PinInfo is a snapshot of a registry entry.
type PinInfo struct {
	Pin       int           `json:"pin"`
	Mode      string        `json:"mode"`
	Pull      string        `json:"pull"`
	Interrupt string        `json:"interrupt"`
	Debounce  time.Duration `json:"debounce"`
	Attached  bool          `json:"attached"`
	State     string        `json:"state"`
}

func (e *pinEntry) info() PinInfo {
	return PinInfo{
		Pin:       e.pin,
		Mode:      e.cfg.Mode.String(),
		Pull:      e.cfg.Pull.String(),
		Interrupt: e.cfg.Interrupt.String(),
		Debounce:  e.cfg.Debounce,
		Attached:  e.callback != nil,
		State:     e.state.String(),
	}
}

// registry owns the pin table. Callers hold Runtime.mu.
type registry struct {
	count int
	pins  map[int]*pinEntry
}

func newRegistry(count int) registry {
	return registry{
		count: count,
		pins:  make(map[int]*pinEntry),
	}
}

func (g *registry) validate(op string, pin int, cfg PinConfig) error {
	if pin < 0 || pin >= g.count {
		return configError(op, pin, "pin number outside 0..%d", g.count-1)
	}
	if !cfg.Mode.Valid() {
		return configError(op, pin, "unknown mode %s", cfg.Mode)
	}
	if !cfg.Pull.Valid() {
		return configError(op, pin, "unknown pull mode %s", cfg.Pull)
	}
	if !cfg.Interrupt.Valid() {
		return configError(op, pin, "unknown interrupt type %s", cfg.Interrupt)
	}
	if cfg.Pull != gpio.PullFloating && !cfg.Mode.CanRead() {
		return configError(op, pin, "pull mode %s needs an input mode, got %s", cfg.Pull, cfg.Mode)
	}
	if cfg.Interrupt != gpio.EdgeNone && !cfg.Mode.CanRead() {
		return configError(op, pin, "interrupt %s needs an input mode, got %s", cfg.Interrupt, cfg.Mode)
	}
	if cfg.Debounce < 0 {
		return configError(op, pin, "debounce window must be positive, got %s", cfg.Debounce)
	}
	if cfg.Debounce > 0 && cfg.Interrupt == gpio.EdgeNone {
		return configError(op, pin, "debounce needs an interrupt type")
	}
	return nil
}

func (g *registry) get(pin int) *pinEntry {
	return g.pins[pin]
}

// configure installs a fresh entry for pin, implicitly closing whatever
// handle held the number before. Called with r.mu held; it may release the
// lock while waiting for an in-flight callback of the old handle.
func (r *Runtime) configure(op string, pin int, cfg PinConfig) (*pinEntry, error) {
	if r.closed {
		return nil, stateError(op, pin, "runtime closed")
	}
	if err := r.reg.validate(op, pin, cfg); err != nil {
		return nil, err
	}

	for old := r.reg.get(pin); old != nil; old = r.reg.get(pin) {
		llog.Debug().Int("pin", pin).Msg("Reconfiguring pin, closing previous handle")
		r.closePin(old)
		// On the dispatcher a close started elsewhere is left to its caller,
		// which is waiting for this very callback to return.
		if old.state != PinClosed {
			return nil, stateError(op, pin, "pin is being closed")
		}
	}

	if err := r.driver.Configure(pin, cfg.Mode, cfg.Pull, cfg.Interrupt); err != nil {
		kind := ErrConfiguration
		if !errors.Is(err, gpio.ErrUnsupported) && !errors.Is(err, gpio.ErrInvalidPin) {
			kind = ErrResourceState
		}
		return nil, &Error{Kind: kind, Op: op, Pin: pin, Msg: "driver rejected configuration", Err: err}
	}

	e := &pinEntry{
		pin:   pin,
		cfg:   cfg,
		state: PinConfigured,
		since: r.now(),
	}
	if cfg.Debounce > 0 {
		level, err := r.driver.Read(pin)
		if err != nil {
			if rerr := r.driver.Reset(pin); rerr != nil {
				llog.Err(rerr).Int("pin", pin).Msg("Pin reset failed")
			}
			return nil, &Error{Kind: ErrResourceState, Op: op, Pin: pin, Msg: "reading initial level", Err: err}
		}
		e.debounce = &debounceState{window: cfg.Debounce, level: level}
	}
	r.reg.pins[pin] = e

	llog.Debug().
		Int("pin", pin).
		Stringer("mode", cfg.Mode).
		Stringer("pull", cfg.Pull).
		Stringer("interrupt", cfg.Interrupt).
		Dur("debounce", cfg.Debounce).
		Msg("Pin configured")

	return e, nil
}

// release drops the registry's reference to e once it is fully closed.
func (g *registry) release(e *pinEntry) {
	if g.pins[e.pin] == e {
		delete(g.pins, e.pin)
	}
}

// PinInfo returns the registry view of pin, if it is configured.
func (r *Runtime) PinInfo(pin int) (PinInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.reg.get(pin)
	if e == nil {
		return PinInfo{}, false
	}
	return e.info(), true
}

// Pins lists every configured pin in pin order.
func (r *Runtime) Pins() []PinInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]PinInfo, 0, len(r.reg.pins))
	for pin := 0; pin < r.reg.count; pin++ {
		if e := r.reg.pins[pin]; e != nil {
			infos = append(infos, e.info())
		}
	}
	return infos
}
