package demos

import (
	"time"

	"gregoryjjb/pinloop/console"
	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
)

const (
	PIRPin    = 13
	LDRPin    = 12
	ButtonPin = 5
	RelayPin  = 4

	InactivityTimeout = 10 * time.Second
)

// SmartLight switches a relay on motion when the light sensor reads dark
// and off again after a period without motion. The button flips between
// automatic and manual mode; in manual mode each press toggles the light.
type SmartLight struct {
	rt      *loop.Runtime
	con     *console.Console
	pir     *loop.Pin
	ldr     *loop.Pin
	button  *loop.Pin
	relay   *loop.Pin
	lightOn bool
	auto    bool
	autoOff *loop.Timer
}

func StartSmartLight(rt *loop.Runtime, con *console.Console) (*SmartLight, error) {
	s := &SmartLight{rt: rt, con: con, auto: true}

	var err error
	if s.pir, err = rt.Setup(PIRPin, loop.PinConfig{Mode: gpio.ModeInput, Interrupt: gpio.EdgeRising}); err != nil {
		return nil, err
	}
	if s.ldr, err = rt.Setup(LDRPin, loop.PinConfig{Mode: gpio.ModeInput}); err != nil {
		s.Stop()
		return nil, err
	}
	s.button, err = rt.Setup(ButtonPin, loop.PinConfig{
		Mode:      gpio.ModeInput,
		Pull:      gpio.PullUp,
		Interrupt: gpio.EdgeFalling,
		Debounce:  200 * time.Millisecond,
	})
	if err != nil {
		s.Stop()
		return nil, err
	}
	if s.relay, err = rt.Setup(RelayPin, loop.PinConfig{Mode: gpio.ModeOutput}); err != nil {
		s.Stop()
		return nil, err
	}

	con.Log("Smart Light Controller Initialised. Mode: AUTO")
	s.setLight(false)
	if err := s.pir.AttachISR(s.handleMotion); err != nil {
		s.Stop()
		return nil, err
	}
	if err := s.button.AttachISR(s.toggleMode); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

func (s *SmartLight) setLight(on bool) {
	s.lightOn = on
	if err := s.relay.Write(on); err != nil {
		s.con.Error("Relay write failed:", err)
		return
	}
	if on {
		s.con.Log("Light ON")
	} else {
		s.con.Log("Light OFF")
	}
}

func (s *SmartLight) handleMotion() {
	s.rt.ClearTimeout(s.autoOff)

	if !s.lightOn {
		bright, err := s.ldr.Read()
		switch {
		case err != nil:
			s.con.Error("Light sensor read failed:", err)
		case !bright:
			s.con.Log("Motion detected in the dark, turning light on.")
			s.setLight(true)
		default:
			s.con.Log("Motion detected, but it is bright enough.")
		}
	}

	var err error
	s.autoOff, err = s.rt.SetTimeout(func() {
		s.con.Log("Inactivity timeout, turning light off.")
		s.setLight(false)
	}, InactivityTimeout)
	if err != nil {
		s.con.Error("Failed to arm inactivity timer:", err)
	}
}

func (s *SmartLight) toggleMode() {
	s.auto = !s.auto
	if s.auto {
		s.con.Log("Mode switched to: AUTO")
		if err := s.pir.AttachISR(s.handleMotion); err != nil {
			s.con.Error("Failed to watch motion sensor:", err)
		}
		return
	}

	s.con.Log("Mode switched to: MANUAL")
	if err := s.pir.DetachISR(); err != nil {
		s.con.Error("Failed to release motion sensor:", err)
	}
	s.rt.ClearTimeout(s.autoOff)
	s.setLight(!s.lightOn)
}

func (s *SmartLight) LightOn() bool { return s.lightOn }
func (s *SmartLight) Auto() bool    { return s.auto }

func (s *SmartLight) Stop() error {
	s.rt.ClearTimeout(s.autoOff)
	return closeAll(s.pir, s.ldr, s.button, s.relay)
}
