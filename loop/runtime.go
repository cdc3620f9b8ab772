// Package loop is the GPIO and software timer event runtime. Edges captured
// in interrupt context are queued in a bounded ring and turned into callback
// invocations by a single dispatcher goroutine, which also fires one-shot and
// repeating timers. Callbacks never overlap and never run in interrupt
// context, and no callback runs after its pin or timer has been released.
package loop

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/ringbuffer"
)

var llog zerolog.Logger

func init() {
	llog = log.With().Str("component", "loop").Logger()
}

const (
	DefaultRingCapacity = 64
	DefaultDrainBatch   = 32
)

type Options struct {
	// RingCapacity bounds the number of captured edges waiting for the
	// dispatcher. Edges beyond it are dropped and counted.
	RingCapacity int
	// DrainBatch bounds how many edges one pass consumes so that an
	// interrupt storm cannot starve timers.
	DrainBatch int
	// MaxTimers limits live user timers. Zero means no limit.
	MaxTimers int
	Clock     Clock
	// Observer, when set, is told about every callback invocation. It runs
	// on the dispatcher goroutine and must not block.
	Observer func(Dispatch)
}

// Dispatch describes one callback invocation.
type Dispatch struct {
	Kind     string        `json:"kind"` // "pin" or "timer"
	Pin      int           `json:"pin,omitempty"`
	TimerID  uint64        `json:"timer_id,omitempty"`
	At       time.Duration `json:"at"`
	Took     time.Duration `json:"took"`
	Panicked bool          `json:"panicked,omitempty"`
}

type Runtime struct {
	driver gpio.Driver
	clock  Clock
	epoch  time.Time
	opts   Options

	// Shared with interrupt context.
	events  *ringbuffer.Ring[EdgeEvent]
	enabled []atomic.Bool
	faults  atomic.Uint64
	wake    chan struct{}

	// mu guards the registry, the timer heap and everything hanging off
	// them. It is never held while a user callback runs.
	mu   sync.Mutex
	idle *sync.Cond // broadcast whenever an in-flight callback or close finishes

	reg           registry
	timers        timerHeap
	nextSeq       uint64
	nextTimerID   uint64
	liveTimers    int
	inflightPin   *pinEntry
	inflightTimer *Timer
	closed        bool

	state      atomic.Int32
	running    atomic.Bool
	dispatcher atomic.Uint64 // goroutine id of the dispatcher while it runs
	quit       chan struct{}
	quitOnce   sync.Once

	// Dispatcher-only bookkeeping for surfacing interrupt-side problems.
	reportedDropped uint64
	reportedFaults  uint64
	dropWarnings    *rate.Limiter
}

func New(driver gpio.Driver, opts Options) *Runtime {
	if opts.RingCapacity <= 0 {
		opts.RingCapacity = DefaultRingCapacity
	}
	if opts.DrainBatch <= 0 {
		opts.DrainBatch = DefaultDrainBatch
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}

	r := &Runtime{
		driver:       driver,
		clock:        opts.Clock,
		epoch:        opts.Clock.Now(),
		opts:         opts,
		events:       ringbuffer.New[EdgeEvent](opts.RingCapacity),
		enabled:      make([]atomic.Bool, driver.PinCount()),
		wake:         make(chan struct{}, 1),
		reg:          newRegistry(driver.PinCount()),
		nextTimerID:  1,
		quit:         make(chan struct{}),
		dropWarnings: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	r.idle = sync.NewCond(&r.mu)
	driver.SetEdgeHandler(r.captureEdge)

	llog.Debug().
		Int("pins", driver.PinCount()).
		Int("ring_capacity", opts.RingCapacity).
		Int("drain_batch", opts.DrainBatch).
		Msg("Runtime created")

	return r
}

// now is the runtime-relative monotonic timestamp used for edges and timers.
func (r *Runtime) now() time.Duration {
	return r.clock.Now().Sub(r.epoch)
}

// Now reports the runtime's current timestamp.
func (r *Runtime) Now() time.Duration {
	return r.now()
}

func (r *Runtime) Driver() gpio.Driver {
	return r.driver
}

type Stats struct {
	State   State  `json:"state"`
	Dropped uint64 `json:"dropped"`
	Faults  uint64 `json:"faults"`
	Queued  int    `json:"queued"`
	Pins    int    `json:"pins"`
	Timers  int    `json:"timers"`
}

func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	pins, timers := len(r.reg.pins), r.liveTimers
	r.mu.Unlock()

	return Stats{
		State:   r.State(),
		Dropped: r.events.Dropped(),
		Faults:  r.faults.Load(),
		Queued:  r.events.Len(),
		Pins:    pins,
		Timers:  timers,
	}
}

// Health returns an ErrCapacity error while the dropped edge counter is
// non-zero.
func (r *Runtime) Health() error {
	if n := r.events.Dropped(); n > 0 {
		return fmt.Errorf("%w: %d edge events dropped, ring capacity %d", ErrCapacity, n, r.events.Cap())
	}
	return nil
}

// ResetDropped clears the dropped edge counter and returns its old value.
func (r *Runtime) ResetDropped() uint64 {
	n := r.events.ResetDropped()
	if n > 0 {
		llog.Info().Uint64("dropped", n).Msg("Dropped edge counter reset")
	}
	return n
}
