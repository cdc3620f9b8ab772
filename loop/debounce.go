package loop

import "time"

// debounceState implements a quiet-period filter: an edge is only accepted
// once W has passed with no further edges on the pin. The check is an
// internal timer in the heap, so it is ordered against user timers.
type debounceState struct {
	window       time.Duration
	lastAccepted time.Duration
	pendingAt    time.Duration
	pendingLevel bool
	level        bool   // stable level after the last accepted edge
	check        *Timer // non-nil while an edge is pending
}

// debounceEdge records ev as the pending edge and (re)arms the quiet period
// check at ev.At+W. Called with r.mu held.
func (r *Runtime) debounceEdge(e *pinEntry, ev EdgeEvent) {
	d := e.debounce
	d.pendingAt = ev.At
	d.pendingLevel = ev.Level

	due := ev.At + d.window
	if d.check != nil {
		d.check.due = due
		r.timers.fix(d.check)
		return
	}

	d.check = &Timer{
		rt:    r,
		kind:  OneShot,
		due:   due,
		seq:   r.takeSeq(),
		state: TimerScheduled,
		check: e,
	}
	r.timers.push(d.check)
}

// acceptDebounced runs when a quiet period elapses with no new edge. Called
// with r.mu held; the pin callback runs with it released.
func (r *Runtime) acceptDebounced(e *pinEntry, now time.Duration) {
	d := e.debounce
	d.check = nil
	d.lastAccepted = now
	d.level = d.pendingLevel

	if e.state != PinConfigured || e.callback == nil {
		return
	}
	r.invokePin(e)
}

// cancelDebounce forgets a pending edge. Called with r.mu held.
func (r *Runtime) cancelDebounce(e *pinEntry) {
	if e.debounce == nil || e.debounce.check == nil {
		return
	}
	r.timers.remove(e.debounce.check)
	e.debounce.check.state = TimerCancelled
	e.debounce.check = nil
}

// DebounceInfo is the filter state of a debounced pin.
type DebounceInfo struct {
	Window       time.Duration
	LastAccepted time.Duration
	Pending      bool
	PendingAt    time.Duration
	Level        bool
}

func (p *Pin) Debounce() (DebounceInfo, bool) {
	r := p.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	d := p.entry.debounce
	if d == nil || p.entry.state != PinConfigured {
		return DebounceInfo{}, false
	}
	return DebounceInfo{
		Window:       d.window,
		LastAccepted: d.lastAccepted,
		Pending:      d.check != nil,
		PendingAt:    d.pendingAt,
		Level:        d.level,
	}, true
}
