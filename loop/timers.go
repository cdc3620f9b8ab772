package loop

import (
	"container/heap"
	"time"
)

type TimerKind int

const (
	OneShot TimerKind = iota
	Repeating
)

func (k TimerKind) String() string {
	if k == Repeating {
		return "repeating"
	}
	return "oneshot"
}

type TimerState int

const (
	TimerScheduled TimerState = iota
	TimerFiring
	TimerCancelled
	TimerFired
)

func (s TimerState) String() string {
	switch s {
	case TimerScheduled:
		return "scheduled"
	case TimerFiring:
		return "firing"
	case TimerCancelled:
		return "cancelled"
	case TimerFired:
		return "fired"
	}
	return "unknown"
}

// Timer is a handle to a scheduled callback. Its fields belong to the
// runtime and are guarded by Runtime.mu.
type Timer struct {
	rt       *Runtime
	id       uint64
	kind     TimerKind
	due      time.Duration
	period   time.Duration
	seq      uint64 // creation order, breaks ties between equal due times
	callback func()
	state    TimerState
	index    int // position in the heap, -1 when not queued

	// check is set on the internal timers that end a debounce quiet period.
	check *pinEntry
}

func (t *Timer) ID() uint64 { return t.id }

func (t *Timer) Kind() TimerKind { return t.kind }

func (t *Timer) State() TimerState {
	t.rt.mu.Lock()
	defer t.rt.mu.Unlock()
	return t.state
}

// Due is the runtime timestamp of the next firing.
func (t *Timer) Due() time.Duration {
	t.rt.mu.Lock()
	defer t.rt.mu.Unlock()
	return t.due
}

func (t *Timer) Cancel() error {
	return t.rt.Cancel(t)
}

// timerHeap orders timers by due time, then creation order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

func (h *timerHeap) push(t *Timer) { heap.Push(h, t) }

func (h *timerHeap) pop() *Timer { return heap.Pop(h).(*Timer) }

func (h *timerHeap) fix(t *Timer) { heap.Fix(h, t.index) }

func (h *timerHeap) remove(t *Timer) {
	if t.index >= 0 {
		heap.Remove(h, t.index)
	}
}

func (h timerHeap) peek() *Timer {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

func (r *Runtime) takeSeq() uint64 {
	seq := r.nextSeq
	r.nextSeq++
	return seq
}

// Schedule queues callback to run after delay and, when repeating, every
// period after that. A zero delay runs on the next dispatcher pass, never
// inside Schedule.
func (r *Runtime) Schedule(delay time.Duration, repeating bool, period time.Duration, callback func()) (*Timer, error) {
	const op = "schedule"

	if callback == nil {
		return nil, configError(op, -1, "callback is nil")
	}
	if delay < 0 {
		return nil, configError(op, -1, "negative delay %s", delay)
	}
	if repeating && period <= 0 {
		return nil, configError(op, -1, "repeating timer needs a positive period, got %s", period)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, stateError(op, -1, "runtime closed")
	}
	if r.opts.MaxTimers > 0 && r.liveTimers >= r.opts.MaxTimers {
		return nil, newError(ErrCapacity, op, -1, "no free timer slots (limit %d)", r.opts.MaxTimers)
	}

	t := &Timer{
		rt:       r,
		id:       r.nextTimerID,
		kind:     OneShot,
		due:      r.now() + delay,
		seq:      r.takeSeq(),
		callback: callback,
		state:    TimerScheduled,
	}
	if repeating {
		t.kind = Repeating
		t.period = period
	}
	r.nextTimerID++
	r.liveTimers++
	r.timers.push(t)

	// The new timer may be earlier than what the dispatcher sleeps on.
	r.signal()

	return t, nil
}

func (r *Runtime) SetTimeout(callback func(), delay time.Duration) (*Timer, error) {
	return r.Schedule(delay, false, 0, callback)
}

func (r *Runtime) SetInterval(callback func(), period time.Duration) (*Timer, error) {
	return r.Schedule(period, true, period, callback)
}

func (r *Runtime) ClearTimeout(t *Timer) error {
	return r.Cancel(t)
}

func (r *Runtime) ClearInterval(t *Timer) error {
	return r.Cancel(t)
}

// nextDue advances a repeating timer from its previous due time by whole
// periods to the first instant strictly after now. Missed periods collapse.
func nextDue(due, period, now time.Duration) time.Duration {
	next := due + period
	if next > now {
		return next
	}
	missed := (now - due) / period
	return due + (missed+1)*period
}

// nextDeadline reports how long the dispatcher may sleep before the
// earliest timer is due.
func (r *Runtime) nextDeadline() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.timers.peek()
	if t == nil {
		return 0, false
	}
	return t.due - r.now(), true
}
