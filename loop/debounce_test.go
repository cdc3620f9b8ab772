package loop_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/pinloop/loop"
)

func TestDebounce(t *testing.T) {
	t.Run("BurstYieldsOneCallbackAfterQuietPeriod", func(t *testing.T) {
		tests := []struct {
			name        string
			pollBetween bool
		}{
			{"dispatcher keeps up", true},
			{"dispatcher lags", false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rt, sim, clock := newManualRuntime(t, loop.Options{})
				pin, err := rt.Setup(5, debounced(100*ms))
				require.NoError(t, err)

				var calls []time.Duration
				require.NoError(t, pin.AttachISR(func() { calls = append(calls, rt.Now()) }))

				level := true
				for _, at := range []time.Duration{0, 10 * ms, 30 * ms} {
					clock.Set(at)
					level = !level
					require.NoError(t, sim.Drive(5, level))
					if tt.pollBetween {
						require.NoError(t, rt.Poll())
					}
				}

				pollAt(t, rt, clock, 50*ms)
				pollAt(t, rt, clock, 129*ms)
				assert.Empty(t, calls)

				pollAt(t, rt, clock, 130*ms)
				assert.Equal(t, []time.Duration{130 * ms}, calls)

				pollAt(t, rt, clock, time.Second)
				assert.Len(t, calls, 1)
			})
		}
	})

	t.Run("AnyBurstShorterThanWindowCoalesces", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))

		for round := 0; round < 50; round++ {
			window := time.Duration(10+rng.Intn(190)) * ms

			rt, sim, clock := newManualRuntime(t, loop.Options{})
			pin, err := rt.Setup(7, debounced(window))
			require.NoError(t, err)

			var calls []time.Duration
			require.NoError(t, pin.AttachISR(func() { calls = append(calls, rt.Now()) }))

			now := time.Duration(0)
			level := true
			edges := 1 + rng.Intn(12)
			for i := 0; i < edges; i++ {
				if i > 0 {
					now += time.Duration(rng.Int63n(int64(window)))
				}
				clock.Set(now)
				level = !level
				require.NoError(t, sim.Drive(7, level))
				require.NoError(t, rt.Poll())
			}
			last := now

			pollAt(t, rt, clock, last+window-ms)
			require.Empty(t, calls, "round %d fired early", round)

			pollAt(t, rt, clock, last+window)
			require.Equal(t, []time.Duration{last + window}, calls, "round %d", round)

			info, ok := pin.Debounce()
			require.True(t, ok)
			assert.Equal(t, level, info.Level)
			assert.False(t, info.Pending)
			assert.Equal(t, last+window, info.LastAccepted)

			rt.Close()
		}
	})

	t.Run("SeparatedEdgesEachFire", func(t *testing.T) {
		rt, sim, clock := newManualRuntime(t, loop.Options{})
		pin, err := rt.Setup(5, debounced(50*ms))
		require.NoError(t, err)

		count := 0
		require.NoError(t, pin.AttachISR(func() { count++ }))

		require.NoError(t, sim.Drive(5, false))
		pollAt(t, rt, clock, 60*ms)
		assert.Equal(t, 1, count)

		clock.Set(200 * ms)
		require.NoError(t, sim.Drive(5, true))
		pollAt(t, rt, clock, 250*ms)
		assert.Equal(t, 2, count)
	})

	t.Run("DetachDiscardsPendingEdge", func(t *testing.T) {
		rt, sim, clock := newManualRuntime(t, loop.Options{})
		pin, err := rt.Setup(5, debounced(100*ms))
		require.NoError(t, err)

		count := 0
		require.NoError(t, pin.AttachISR(func() { count++ }))
		require.NoError(t, sim.Drive(5, false))
		pollAt(t, rt, clock, 10*ms)

		require.NoError(t, pin.DetachISR())
		require.NoError(t, pin.AttachISR(func() { count += 100 }))
		pollAt(t, rt, clock, 500*ms)

		assert.Equal(t, 0, count)
	})

	t.Run("ClosedPinNeverFiresPendingEdge", func(t *testing.T) {
		rt, sim, clock := newManualRuntime(t, loop.Options{})
		pin, err := rt.Setup(5, debounced(100*ms))
		require.NoError(t, err)

		count := 0
		require.NoError(t, pin.AttachISR(func() { count++ }))
		require.NoError(t, sim.Drive(5, false))
		pollAt(t, rt, clock, 10*ms)

		require.NoError(t, pin.Close())
		pollAt(t, rt, clock, 500*ms)

		assert.Equal(t, 0, count)
		assert.Equal(t, 0, rt.Stats().Timers)
	})

	t.Run("OrderedAgainstUserTimers", func(t *testing.T) {
		rt, sim, clock := newManualRuntime(t, loop.Options{})
		pin, err := rt.Setup(5, debounced(100*ms))
		require.NoError(t, err)

		var order []string
		require.NoError(t, pin.AttachISR(func() { order = append(order, "pin") }))

		_, err = rt.SetTimeout(func() { order = append(order, "before") }, 90*ms)
		require.NoError(t, err)
		_, err = rt.SetTimeout(func() { order = append(order, "after") }, 110*ms)
		require.NoError(t, err)

		require.NoError(t, sim.Drive(5, false))
		pollAt(t, rt, clock, 200*ms)

		assert.Equal(t, []string{"before", "pin", "after"}, order)
	})
}
