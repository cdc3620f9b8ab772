package demos

import (
	"time"

	"gregoryjjb/pinloop/console"
	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
)

const (
	LEDPin      = 2
	AlarmLength = 2 * time.Second
)

// IntruderAlarm sounds the buzzer when the PIR sensor trips while armed.
// The debounced button toggles arming and the LED shows the armed state.
type IntruderAlarm struct {
	rt      *loop.Runtime
	con     *console.Console
	pir     *loop.Pin
	button  *loop.Pin
	led     *loop.Pin
	buzzer  *loop.Pin
	armed   bool
	alarms  int
	silence *loop.Timer
}

func StartIntruderAlarm(rt *loop.Runtime, con *console.Console) (*IntruderAlarm, error) {
	a := &IntruderAlarm{rt: rt, con: con}

	var err error
	if a.pir, err = rt.Setup(PIRPin, loop.PinConfig{Mode: gpio.ModeInput, Interrupt: gpio.EdgeFalling}); err != nil {
		return nil, err
	}
	a.button, err = rt.Setup(ButtonPin, loop.PinConfig{
		Mode:      gpio.ModeInput,
		Pull:      gpio.PullUp,
		Interrupt: gpio.EdgeFalling,
		Debounce:  50 * time.Millisecond,
	})
	if err != nil {
		a.Stop()
		return nil, err
	}
	if a.led, err = rt.Setup(LEDPin, loop.PinConfig{Mode: gpio.ModeOutput}); err != nil {
		a.Stop()
		return nil, err
	}
	if a.buzzer, err = rt.Setup(BuzzerPin, loop.PinConfig{Mode: gpio.ModeOutput}); err != nil {
		a.Stop()
		return nil, err
	}

	con.Log("Intruder Alert System Initialised.")
	if err := a.button.AttachISR(a.toggleArmed); err != nil {
		a.Stop()
		return nil, err
	}
	return a, nil
}

func (a *IntruderAlarm) onIntruder() {
	a.con.Log("Intruder Detected!")
	a.alarms++
	a.write(a.buzzer, true)

	// A new detection restarts the alarm period.
	a.rt.ClearTimeout(a.silence)
	var err error
	a.silence, err = a.rt.SetTimeout(func() {
		a.write(a.buzzer, false)
	}, AlarmLength)
	if err != nil {
		a.con.Error("Failed to schedule alarm stop:", err)
	}
}

func (a *IntruderAlarm) toggleArmed() {
	a.armed = !a.armed
	if a.armed {
		if err := a.pir.AttachISR(a.onIntruder); err != nil {
			a.con.Error("Failed to watch motion sensor:", err)
			a.armed = false
			return
		}
		a.write(a.led, true)
		a.con.Log("System Armed.")
		return
	}

	if err := a.pir.DetachISR(); err != nil {
		a.con.Error("Failed to release motion sensor:", err)
	}
	a.write(a.led, false)
	a.con.Log("System Disarmed.")
}

func (a *IntruderAlarm) write(p *loop.Pin, level bool) {
	if err := p.Write(level); err != nil {
		a.con.Error("Pin", p.Number(), "write failed:", err)
	}
}

func (a *IntruderAlarm) Armed() bool { return a.armed }

// Alarms counts detections while armed.
func (a *IntruderAlarm) Alarms() int { return a.alarms }

func (a *IntruderAlarm) Stop() error {
	a.rt.ClearTimeout(a.silence)
	return closeAll(a.pir, a.button, a.led, a.buzzer)
}
