package loop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/pinloop/loop"
)

func TestTimers(t *testing.T) {
	t.Run("ZeroDelayFiresOnNextPassOnly", func(t *testing.T) {
		rt, _, _ := newManualRuntime(t, loop.Options{})

		count := 0
		timer, err := rt.SetTimeout(func() { count++ }, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.Equal(t, loop.TimerScheduled, timer.State())

		require.NoError(t, rt.Poll())
		assert.Equal(t, 1, count)
		assert.Equal(t, loop.TimerFired, timer.State())

		require.NoError(t, rt.Poll())
		assert.Equal(t, 1, count)
	})

	t.Run("TimersCreatedByCallbacksWaitForNextPass", func(t *testing.T) {
		rt, _, _ := newManualRuntime(t, loop.Options{})

		inner := 0
		_, err := rt.SetTimeout(func() {
			_, err := rt.SetTimeout(func() { inner++ }, 0)
			assert.NoError(t, err)
		}, 0)
		require.NoError(t, err)

		require.NoError(t, rt.Poll())
		assert.Equal(t, 0, inner)

		require.NoError(t, rt.Poll())
		assert.Equal(t, 1, inner)
	})

	t.Run("TimersCreatedByPinCallbacksWaitForNextPass", func(t *testing.T) {
		rt, sim, _ := newManualRuntime(t, loop.Options{})
		pin, err := rt.Setup(3, buttonConfig)
		require.NoError(t, err)

		inner := 0
		require.NoError(t, pin.AttachISR(func() {
			_, err := rt.SetTimeout(func() { inner++ }, 0)
			assert.NoError(t, err)
		}))
		require.NoError(t, sim.Drive(3, false))

		require.NoError(t, rt.Poll())
		assert.Equal(t, 0, inner)

		require.NoError(t, rt.Poll())
		assert.Equal(t, 1, inner)
	})

	t.Run("FiresInDueOrderThenCreationOrder", func(t *testing.T) {
		rt, _, clock := newManualRuntime(t, loop.Options{})

		var order []string
		add := func(name string, delay time.Duration) {
			_, err := rt.SetTimeout(func() { order = append(order, name) }, delay)
			require.NoError(t, err)
		}
		add("c1", 5*ms)
		add("a", 3*ms)
		add("c2", 5*ms)
		add("b", 4*ms)
		add("c3", 5*ms)
		add("late", 6*ms)

		pollAt(t, rt, clock, 5*ms)
		assert.Equal(t, []string{"a", "b", "c1", "c2", "c3"}, order)
	})

	t.Run("RepeatingDoesNotDrift", func(t *testing.T) {
		rt, _, clock := newManualRuntime(t, loop.Options{})
		const period = 10 * ms

		count := 0
		timer, err := rt.SetInterval(func() { count++ }, period)
		require.NoError(t, err)

		for k := 1; k <= 150; k++ {
			// Dispatch latency varies per period but never accumulates.
			jitter := time.Duration(k%4) * ms
			pollAt(t, rt, clock, time.Duration(k)*period+jitter)

			require.Equal(t, k, count)
			require.Equal(t, time.Duration(k+1)*period, timer.Due())
		}
	})

	t.Run("MissedPeriodsCoalesce", func(t *testing.T) {
		rt, _, clock := newManualRuntime(t, loop.Options{})

		count := 0
		timer, err := rt.SetInterval(func() { count++ }, 10*ms)
		require.NoError(t, err)

		pollAt(t, rt, clock, 35*ms)
		assert.Equal(t, 1, count)
		assert.Equal(t, 40*ms, timer.Due())

		pollAt(t, rt, clock, 40*ms)
		assert.Equal(t, 2, count)
		assert.Equal(t, 50*ms, timer.Due())

		// Landing exactly on a period boundary still moves strictly past now.
		pollAt(t, rt, clock, 80*ms)
		assert.Equal(t, 3, count)
		assert.Equal(t, 90*ms, timer.Due())
	})

	t.Run("IntervalCancelledAfterThirdFiring", func(t *testing.T) {
		rt, _, clock := newManualRuntime(t, loop.Options{})

		count := 0
		timer, err := rt.SetInterval(func() { count++ }, time.Second)
		require.NoError(t, err)

		for s := 1; s <= 3; s++ {
			pollAt(t, rt, clock, time.Duration(s)*time.Second)
		}
		require.Equal(t, 3, count)
		require.NoError(t, rt.ClearInterval(timer))

		pollAt(t, rt, clock, 4*time.Second)
		pollAt(t, rt, clock, 10*time.Second)
		assert.Equal(t, 3, count)
		assert.Equal(t, loop.TimerCancelled, timer.State())
	})

	t.Run("IntervalCancelledFromOwnCallback", func(t *testing.T) {
		rt, _, clock := newManualRuntime(t, loop.Options{})

		count := 0
		var timer *loop.Timer
		timer, err := rt.SetInterval(func() {
			count++
			if count == 3 {
				assert.NoError(t, rt.ClearInterval(timer))
			}
		}, time.Second)
		require.NoError(t, err)

		for s := 1; s <= 6; s++ {
			pollAt(t, rt, clock, time.Duration(s)*time.Second)
		}
		assert.Equal(t, 3, count)
		assert.Equal(t, 0, rt.Stats().Timers)
	})

	t.Run("CancelIsIdempotent", func(t *testing.T) {
		rt, _, _ := newManualRuntime(t, loop.Options{})

		oneshot, err := rt.SetTimeout(func() {}, 0)
		require.NoError(t, err)
		require.NoError(t, rt.Poll())
		require.Equal(t, loop.TimerFired, oneshot.State())

		assert.NoError(t, rt.ClearTimeout(oneshot))
		assert.Equal(t, loop.TimerFired, oneshot.State())

		pending, err := rt.SetTimeout(func() { t.Fatal("cancelled timer fired") }, ms)
		require.NoError(t, err)
		assert.NoError(t, pending.Cancel())
		assert.NoError(t, pending.Cancel())
		assert.Equal(t, loop.TimerCancelled, pending.State())

		assert.NoError(t, rt.ClearTimeout(nil))
	})

	t.Run("RejectsBadArguments", func(t *testing.T) {
		rt, _, _ := newManualRuntime(t, loop.Options{})

		_, err := rt.SetTimeout(func() {}, -ms)
		assert.ErrorIs(t, err, loop.ErrConfiguration)

		_, err = rt.SetInterval(func() {}, 0)
		assert.ErrorIs(t, err, loop.ErrConfiguration)

		_, err = rt.SetTimeout(nil, ms)
		assert.ErrorIs(t, err, loop.ErrConfiguration)
	})

	t.Run("TimerLimit", func(t *testing.T) {
		rt, _, _ := newManualRuntime(t, loop.Options{MaxTimers: 2})

		for i := 0; i < 2; i++ {
			_, err := rt.SetTimeout(func() {}, 0)
			require.NoError(t, err)
		}
		_, err := rt.SetTimeout(func() {}, 0)
		assert.ErrorIs(t, err, loop.ErrCapacity)

		require.NoError(t, rt.Poll())
		_, err = rt.SetTimeout(func() {}, 0)
		assert.NoError(t, err)
	})

	t.Run("IDsStartAtOne", func(t *testing.T) {
		rt, _, _ := newManualRuntime(t, loop.Options{})

		first, err := rt.SetTimeout(func() {}, ms)
		require.NoError(t, err)
		second, err := rt.SetInterval(func() {}, ms)
		require.NoError(t, err)

		assert.Equal(t, uint64(1), first.ID())
		assert.Equal(t, uint64(2), second.ID())
		assert.Equal(t, loop.Repeating, second.Kind())
	})

	t.Run("TimerFromAnotherRuntime", func(t *testing.T) {
		a, _, _ := newManualRuntime(t, loop.Options{})
		b, _, _ := newManualRuntime(t, loop.Options{})

		timer, err := a.SetTimeout(func() {}, ms)
		require.NoError(t, err)
		assert.ErrorIs(t, b.ClearTimeout(timer), loop.ErrResourceState)
	})
}
