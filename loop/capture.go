package loop

import "time"

// EdgeEvent is one qualifying edge as seen in interrupt context. It lives in
// the ring until the dispatcher consumes it and is never kept afterwards.
type EdgeEvent struct {
	Pin   int
	At    time.Duration
	Level bool
}

// captureEdge is the driver's edge handler and the only runtime code that
// runs in interrupt context. It touches nothing but the enable flags, the
// clock, the ring and the wake channel.
func (r *Runtime) captureEdge(pin int, level bool) {
	if pin < 0 || pin >= len(r.enabled) {
		// Reported by the dispatcher on its next pass.
		r.faults.Add(1)
		return
	}
	if !r.enabled[pin].Load() {
		return
	}

	r.events.Push(EdgeEvent{Pin: pin, At: r.now(), Level: level})
	r.signal()
}

// signal wakes the dispatcher without blocking. One pending token is enough
// since a wakeup always re-examines both the ring and the timer heap.
func (r *Runtime) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runtime) setInterruptEnabled(pin int, on bool) {
	r.enabled[pin].Store(on)
}

// surfaceCaptureProblems reports drops and faults recorded by interrupt
// context since the previous pass. Dispatcher only.
func (r *Runtime) surfaceCaptureProblems() {
	if faults := r.faults.Load(); faults != r.reportedFaults {
		llog.Error().
			Uint64("faults", faults-r.reportedFaults).
			Uint64("total", faults).
			Msg("Interrupt context reported edges for unknown pins")
		r.reportedFaults = faults
	}

	dropped := r.events.Dropped()
	if dropped < r.reportedDropped {
		// Counter was reset from outside.
		r.reportedDropped = 0
	}
	if dropped > r.reportedDropped && r.dropWarnings.Allow() {
		llog.Warn().
			Uint64("dropped", dropped-r.reportedDropped).
			Uint64("total", dropped).
			Int("capacity", r.events.Cap()).
			Msg("Edge ring full, events dropped")
		r.reportedDropped = dropped
	}
}
