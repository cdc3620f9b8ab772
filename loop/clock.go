package loop

import (
	"sync"
	"time"
)

// Clock is the runtime's time source. Now is called from interrupt context,
// so implementations must be safe for concurrent use and must not block.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to. Pair it with Runtime.Poll to step a
// runtime through time deterministically.
type ManualClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

func NewManualClock() *ManualClock {
	start := time.Unix(0, 0)
	return &ManualClock{start: start, now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to d after its starting instant. Moving backwards
// panics; runtime timestamps are monotonic.
func (c *ManualClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.start.Add(d)
	if next.Before(c.now) {
		panic("loop: manual clock moved backwards")
	}
	c.now = next
}
