package demos

import (
	"time"

	"gregoryjjb/pinloop/console"
	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
)

const (
	// BlinkPin drives the on-board LED of most dev boards.
	BlinkPin    = 2
	BlinkPeriod = 500 * time.Millisecond
)

// Blink toggles an LED using only the low-level tier: reset_pin, a bitmask
// config, then get_level/set_level from an interval timer.
type Blink struct {
	rt    *loop.Runtime
	con   *console.Console
	pin   int
	timer *loop.Timer
}

func StartBlink(rt *loop.Runtime, con *console.Console, pin int, period time.Duration) (*Blink, error) {
	con.Log("Resetting pin", pin)
	if err := rt.ResetPin(pin); err != nil {
		return nil, err
	}

	con.Log("Configuring pin", pin, "as output")
	err := rt.Config(loop.GPIOConfig{
		PinBitMask: 1 << uint(pin),
		Mode:       gpio.ModeOutput,
	})
	if err != nil {
		return nil, err
	}

	level, err := rt.GetLevel(pin)
	if err != nil {
		return nil, err
	}
	con.Log("Previous level for pin", pin, level)
	con.Log("Setting pin", pin, "level to 1 (ON)")
	if err := rt.SetLevel(pin, 1); err != nil {
		return nil, err
	}

	b := &Blink{rt: rt, con: con, pin: pin}
	b.timer, err = rt.SetInterval(b.toggle, period)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Blink) toggle() {
	level, err := b.rt.GetLevel(b.pin)
	if err != nil {
		b.con.Error("Blink failed to read pin:", err)
		return
	}
	if err := b.rt.SetLevel(b.pin, 1-level); err != nil {
		b.con.Error("Blink failed to set pin:", err)
	}
}

func (b *Blink) Stop() error {
	if err := b.rt.ClearInterval(b.timer); err != nil {
		return err
	}
	return b.rt.ResetPin(b.pin)
}
