package loop_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
)

const ms = time.Millisecond

// newManualRuntime returns a runtime on a simulated 40 pin board whose clock
// only moves when the test moves it. Drive it with Poll.
func newManualRuntime(t *testing.T, opts loop.Options) (*loop.Runtime, *gpio.Sim, *loop.ManualClock) {
	t.Helper()

	sim := gpio.NewSim(40)
	clock := loop.NewManualClock()
	opts.Clock = clock
	rt := loop.New(sim, opts)
	t.Cleanup(func() { rt.Close() })

	return rt, sim, clock
}

// newRunningRuntime starts Run on its own goroutine with the system clock.
func newRunningRuntime(t *testing.T, opts loop.Options) (*loop.Runtime, *gpio.Sim) {
	t.Helper()

	sim := gpio.NewSim(40)
	rt := loop.New(sim, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		rt.Close()
	})

	return rt, sim
}

// pollAt moves the clock to d and runs one dispatcher pass.
func pollAt(t *testing.T, rt *loop.Runtime, clock *loop.ManualClock, d time.Duration) {
	t.Helper()
	clock.Set(d)
	require.NoError(t, rt.Poll())
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

var buttonConfig = loop.PinConfig{
	Mode:      gpio.ModeInput,
	Pull:      gpio.PullUp,
	Interrupt: gpio.EdgeBoth,
}

func debounced(window time.Duration) loop.PinConfig {
	cfg := buttonConfig
	cfg.Debounce = window
	return cfg
}
