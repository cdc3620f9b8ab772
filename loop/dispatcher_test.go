package loop_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
)

// handlerDriver exposes the edge handler the runtime registers so tests can
// call it the way a misbehaving interrupt would.
type handlerDriver struct {
	*gpio.Sim
	handler gpio.EdgeHandler
}

func (d *handlerDriver) SetEdgeHandler(h gpio.EdgeHandler) {
	d.handler = h
	d.Sim.SetEdgeHandler(h)
}

func TestDispatcher(t *testing.T) {
	t.Run("EveryUndebouncedEdgeFiresInArrivalOrder", func(t *testing.T) {
		rt, sim, _ := newManualRuntime(t, loop.Options{})

		var order []int
		for _, n := range []int{1, 2} {
			n := n
			pin, err := rt.Setup(n, buttonConfig)
			require.NoError(t, err)
			require.NoError(t, pin.AttachISR(func() { order = append(order, n) }))
		}

		require.NoError(t, sim.Drive(1, false))
		require.NoError(t, sim.Drive(2, false))
		require.NoError(t, sim.Drive(1, true))
		require.NoError(t, sim.Drive(1, false))
		require.NoError(t, sim.Drive(2, true))

		require.NoError(t, rt.Poll())
		assert.Equal(t, []int{1, 2, 1, 1, 2}, order)
	})

	t.Run("RingOverflowCountsDrops", func(t *testing.T) {
		rt, sim, _ := newManualRuntime(t, loop.Options{RingCapacity: 8})
		pin, err := rt.Setup(4, buttonConfig)
		require.NoError(t, err)

		count := 0
		require.NoError(t, pin.AttachISR(func() { count++ }))

		level := true
		for i := 0; i < 20; i++ {
			level = !level
			require.NoError(t, sim.Drive(4, level))
		}

		stats := rt.Stats()
		assert.Equal(t, uint64(12), stats.Dropped)
		assert.Equal(t, 8, stats.Queued)
		assert.ErrorIs(t, rt.Health(), loop.ErrCapacity)

		require.NoError(t, rt.Poll())
		assert.Equal(t, 8, count)

		assert.Equal(t, uint64(12), rt.ResetDropped())
		assert.NoError(t, rt.Health())
	})

	t.Run("DrainBatchDoesNotStarveTimers", func(t *testing.T) {
		rt, sim, _ := newManualRuntime(t, loop.Options{DrainBatch: 4})
		pin, err := rt.Setup(4, buttonConfig)
		require.NoError(t, err)

		edges := 0
		require.NoError(t, pin.AttachISR(func() { edges++ }))
		fired := false
		_, err = rt.SetTimeout(func() { fired = true }, 0)
		require.NoError(t, err)

		level := true
		for i := 0; i < 10; i++ {
			level = !level
			require.NoError(t, sim.Drive(4, level))
		}

		require.NoError(t, rt.Poll())
		assert.Equal(t, 4, edges)
		assert.True(t, fired)

		require.NoError(t, rt.Poll())
		require.NoError(t, rt.Poll())
		assert.Equal(t, 10, edges)
	})

	t.Run("PanickingCallbackDoesNotStopLoop", func(t *testing.T) {
		var seen []loop.Dispatch
		rt, _, _ := newManualRuntime(t, loop.Options{
			Observer: func(d loop.Dispatch) { seen = append(seen, d) },
		})

		_, err := rt.SetTimeout(func() { panic("boom") }, 0)
		require.NoError(t, err)
		ran := false
		_, err = rt.SetTimeout(func() { ran = true }, 0)
		require.NoError(t, err)

		require.NoError(t, rt.Poll())
		assert.True(t, ran)
		require.Len(t, seen, 2)
		assert.True(t, seen[0].Panicked)
		assert.Equal(t, "timer", seen[0].Kind)
		assert.False(t, seen[1].Panicked)
	})

	t.Run("EdgesForReconfiguredPinAreDiscarded", func(t *testing.T) {
		rt, sim, clock := newManualRuntime(t, loop.Options{})

		old, err := rt.Setup(6, buttonConfig)
		require.NoError(t, err)
		require.NoError(t, old.AttachISR(func() { t.Fatal("old handle fired") }))
		require.NoError(t, sim.Drive(6, false))

		clock.Set(5 * ms)
		fresh, err := rt.Setup(6, buttonConfig)
		require.NoError(t, err)
		count := 0
		require.NoError(t, fresh.AttachISR(func() { count++ }))

		require.NoError(t, rt.Poll())
		assert.Equal(t, 0, count)
		assert.True(t, old.Closed())

		_, err = old.Read()
		assert.ErrorIs(t, err, loop.ErrResourceState)
	})

	t.Run("DetachedPinsIgnoreEdges", func(t *testing.T) {
		rt, sim, _ := newManualRuntime(t, loop.Options{})
		pin, err := rt.Setup(3, buttonConfig)
		require.NoError(t, err)

		count := 0
		require.NoError(t, pin.AttachISR(func() { count++ }))
		require.NoError(t, sim.Drive(3, false))
		require.NoError(t, pin.DetachISR())
		require.NoError(t, pin.DetachISR())
		require.NoError(t, sim.Drive(3, true))

		require.NoError(t, rt.Poll())
		assert.Equal(t, 0, count)
		assert.Equal(t, 0, rt.Stats().Queued)
	})

	t.Run("InterruptFaultsAreCounted", func(t *testing.T) {
		d := &handlerDriver{Sim: gpio.NewSim(8)}
		rt := loop.New(d, loop.Options{Clock: loop.NewManualClock()})
		defer rt.Close()

		d.handler(99, true)
		d.handler(-1, false)

		require.NoError(t, rt.Poll())
		assert.Equal(t, uint64(2), rt.Stats().Faults)
	})

	t.Run("RunWakesForEdgesAndTimers", func(t *testing.T) {
		rt, sim := newRunningRuntime(t, loop.Options{})

		pin, err := rt.Setup(2, buttonConfig)
		require.NoError(t, err)
		edge := make(chan struct{}, 1)
		require.NoError(t, pin.AttachISR(func() { edge <- struct{}{} }))

		require.NoError(t, sim.Drive(2, false))
		waitFor(t, edge, "edge callback")

		start := time.Now()
		fired := make(chan struct{})
		_, err = rt.SetTimeout(func() { close(fired) }, 20*ms)
		require.NoError(t, err)
		waitFor(t, fired, "timer callback")
		assert.GreaterOrEqual(t, time.Since(start), 20*ms)
	})

	t.Run("CallbacksNeverOverlap", func(t *testing.T) {
		rt, sim := newRunningRuntime(t, loop.Options{RingCapacity: 256})

		var mu sync.Mutex
		active, maxActive, calls := 0, 0, 0
		enter := func() {
			mu.Lock()
			active++
			calls++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			active--
			mu.Unlock()
		}

		for _, n := range []int{1, 2, 3} {
			pin, err := rt.Setup(n, buttonConfig)
			require.NoError(t, err)
			require.NoError(t, pin.AttachISR(enter))
		}
		_, err := rt.SetInterval(enter, ms)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, n := range []int{1, 2, 3} {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				level := true
				for i := 0; i < 40; i++ {
					level = !level
					sim.Drive(n, level)
					time.Sleep(50 * time.Microsecond)
				}
			}(n)
		}
		wg.Wait()

		require.Eventually(t, func() bool {
			return rt.Stats().Queued == 0
		}, time.Second, ms)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, maxActive)
		assert.Greater(t, calls, 0)
	})

	t.Run("PollRefusedWhileRunning", func(t *testing.T) {
		rt, _ := newRunningRuntime(t, loop.Options{})

		require.Eventually(t, func() bool {
			return rt.Poll() != nil
		}, time.Second, ms)
		assert.ErrorIs(t, rt.Poll(), loop.ErrResourceState)
	})
}
