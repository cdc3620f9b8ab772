package loop

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

type State int32

const (
	StateIdle State = iota
	StateDraining
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateSleeping:
		return "sleeping"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for c := StateIdle; c <= StateSleeping; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown dispatcher state %q", text)
}

func (r *Runtime) State() State {
	return State(r.state.Load())
}

// Run is the dispatcher loop. It owns every callback invocation until ctx
// is cancelled or the runtime is closed. Only one Run may be active.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return stateError("run", -1, "dispatcher already running")
	}
	defer r.running.Store(false)

	r.dispatcher.Store(goroutineID())
	defer r.dispatcher.Store(0)
	defer r.state.Store(int32(StateIdle))

	llog.Info().Msg("Dispatcher running")

	for {
		// Leftovers from a bounded drain mean there is no reason to sleep.
		if r.events.Len() == 0 {
			wait, ok := r.nextDeadline()
			if !ok || wait > 0 {
				if !r.sleep(ctx, wait, ok) {
					llog.Info().Msg("Dispatcher stopped")
					return nil
				}
			}
		}

		r.pass()
	}
}

// sleep is the only place the dispatcher suspends. It returns false when
// the loop should exit.
func (r *Runtime) sleep(ctx context.Context, wait time.Duration, bounded bool) bool {
	r.state.Store(int32(StateSleeping))

	var deadline <-chan time.Time
	if bounded {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-r.quit:
		return false
	case <-r.wake:
	case <-deadline:
	}
	return true
}

// Poll runs a single non-blocking dispatcher pass on the calling goroutine.
// It is for callers that drive the runtime from their own loop, typically
// with a ManualClock. It fails while Run is active.
func (r *Runtime) Poll() error {
	if !r.running.CompareAndSwap(false, true) {
		return stateError("poll", -1, "dispatcher already running")
	}
	defer r.running.Store(false)

	r.dispatcher.Store(goroutineID())
	defer r.dispatcher.Store(0)

	r.pass()
	r.state.Store(int32(StateIdle))
	return nil
}

// pass drains a bounded batch of edges, then fires every due timer.
// Timers created by any callback during the pass wait for the next one.
func (r *Runtime) pass() {
	r.state.Store(int32(StateDraining))
	r.surfaceCaptureProblems()

	r.mu.Lock()
	barrier := r.nextSeq
	r.mu.Unlock()

	r.events.Drain(r.opts.DrainBatch, r.routeEdge)
	r.fireDueTimers(barrier)
}

// routeEdge sends one captured edge through the debounce filter, or
// straight to the pin callback for pins without one.
func (r *Runtime) routeEdge(ev EdgeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.reg.get(ev.Pin)
	if e == nil || e.state != PinConfigured || e.callback == nil || ev.At < e.since {
		return
	}

	if e.debounce != nil {
		r.debounceEdge(e, ev)
		return
	}
	r.invokePin(e)
}

// fireDueTimers pops due timers in (due, seq) order. User timers numbered at
// or past barrier were created during this pass and stay queued; debounce
// checks armed by the drain are exempt.
func (r *Runtime) fireDueTimers(barrier uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	for {
		t := r.timers.peek()
		if t == nil || t.due > now {
			return
		}
		if t.check == nil && t.seq >= barrier {
			return
		}
		r.timers.pop()

		if t.check != nil {
			t.state = TimerFired
			r.acceptDebounced(t.check, now)
			continue
		}
		r.fireTimer(t, now)
	}
}

// fireTimer runs a popped user timer. Called with r.mu held; the callback
// runs with it released.
func (r *Runtime) fireTimer(t *Timer, now time.Duration) {
	t.state = TimerFiring
	r.inflightTimer = t
	callback := t.callback

	r.mu.Unlock()
	took, panicked := r.safeCall(callback, "timer", int64(t.id))
	r.mu.Lock()

	r.inflightTimer = nil
	r.idle.Broadcast()

	switch {
	case t.state == TimerCancelled:
		// Cancelled from inside its own callback or while we ran it.
	case t.kind == OneShot:
		t.state = TimerFired
		t.callback = nil
		r.liveTimers--
	default:
		t.due = nextDue(t.due, t.period, now)
		t.state = TimerScheduled
		r.timers.push(t)
	}

	r.observe(Dispatch{Kind: "timer", TimerID: t.id, At: now, Took: took, Panicked: panicked})
}

// invokePin runs the callback of a configured pin. Called with r.mu held;
// the callback runs with it released.
func (r *Runtime) invokePin(e *pinEntry) {
	callback := e.callback
	r.inflightPin = e
	at := r.now()

	r.mu.Unlock()
	took, panicked := r.safeCall(callback, "pin", int64(e.pin))
	r.mu.Lock()

	r.inflightPin = nil
	r.idle.Broadcast()

	r.observe(Dispatch{Kind: "pin", Pin: e.pin, At: at, Took: took, Panicked: panicked})
}

func (r *Runtime) observe(d Dispatch) {
	if r.opts.Observer != nil {
		r.opts.Observer(d)
	}
}

// safeCall isolates the loop from panicking callbacks.
func (r *Runtime) safeCall(callback func(), source string, id int64) (took time.Duration, panicked bool) {
	start := time.Now()
	defer func() {
		took = time.Since(start)
		if rec := recover(); rec != nil {
			panicked = true
			llog.Error().
				Str("source", source).
				Int64("id", id).
				Interface("recover_info", rec).
				Bytes("debug_stack", debug.Stack()).
				Msg("Callback panicked")
		}
	}()

	callback()
	return
}

// onDispatcher reports whether the caller is the goroutine currently
// dispatching. Lifecycle calls made from inside a callback must not wait
// for that same callback to finish.
func (r *Runtime) onDispatcher() bool {
	id := r.dispatcher.Load()
	return id != 0 && goroutineID() == id
}

// goroutineID parses the current goroutine id out of the stack header
// "goroutine NNN [".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
