//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// rpiPinCount covers BCM GPIO 0-27 on the 40 pin header.
const rpiPinCount = 28

// rpiPollInterval is how often the edge goroutine checks the event detect
// status register. go-rpio has no kernel interrupt hookup, so this goroutine
// is the interrupt context on a Pi.
const rpiPollInterval = time.Millisecond

type RPi struct {
	mu      sync.Mutex
	edges   [rpiPinCount]Edge
	handler EdgeHandler

	stop chan struct{}
	done chan struct{}
}

func OpenRPi() (Driver, error) {
	if err := rpio.Open(); err != nil {
		return nil, err
	}

	r := &RPi{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.pollEdges()

	slog.Info().Int("pins", rpiPinCount).Msg("Opened Raspberry Pi GPIO")
	return r, nil
}

func (r *RPi) PinCount() int {
	return rpiPinCount
}

func (r *RPi) Configure(pin int, mode Mode, pull Pull, edge Edge) error {
	if err := checkPin(pin, rpiPinCount); err != nil {
		return err
	}

	var detect rpio.Edge
	switch edge {
	case EdgeNone:
		detect = rpio.NoEdge
	case EdgeRising:
		detect = rpio.RiseEdge
	case EdgeFalling:
		detect = rpio.FallEdge
	case EdgeBoth:
		detect = rpio.AnyEdge
	default:
		return fmt.Errorf("%w: %s trigger", ErrUnsupported, edge)
	}
	if pull == PullBoth {
		return fmt.Errorf("%w: %s pull", ErrUnsupported, pull)
	}

	p := rpio.Pin(pin)
	switch mode {
	case ModeOutput, ModeInputOutput:
		// BCM pins read back their output latch, so output covers both.
		p.Output()
	default:
		p.Input()
	}

	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}

	r.mu.Lock()
	r.edges[pin] = edge
	r.mu.Unlock()
	p.Detect(detect)

	return nil
}

func (r *RPi) Reset(pin int) error {
	if err := checkPin(pin, rpiPinCount); err != nil {
		return err
	}

	r.mu.Lock()
	r.edges[pin] = EdgeNone
	r.mu.Unlock()

	p := rpio.Pin(pin)
	p.Detect(rpio.NoEdge)
	p.Input()
	p.PullOff()
	return nil
}

func (r *RPi) Read(pin int) (bool, error) {
	if err := checkPin(pin, rpiPinCount); err != nil {
		return false, err
	}
	return rpio.Pin(pin).Read() == rpio.High, nil
}

func (r *RPi) Write(pin int, level bool) error {
	if err := checkPin(pin, rpiPinCount); err != nil {
		return err
	}
	if level {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (r *RPi) SetEdgeHandler(h EdgeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *RPi) pollEdges() {
	defer close(r.done)

	ticker := time.NewTicker(rpiPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		edges := r.edges
		handler := r.handler
		r.mu.Unlock()

		for pin, edge := range edges {
			if edge == EdgeNone {
				continue
			}
			p := rpio.Pin(pin)
			if p.EdgeDetected() && handler != nil {
				handler(pin, p.Read() == rpio.High)
			}
		}
	}
}

func (r *RPi) Close() error {
	close(r.stop)
	<-r.done

	for pin := 0; pin < rpiPinCount; pin++ {
		rpio.Pin(pin).Detect(rpio.NoEdge)
	}
	return rpio.Close()
}
