package loop

// closePin detaches the callback, waits out an in-flight invocation and
// resets the pin. Called with r.mu held; the lock is released while waiting.
// Closing an already closed entry is a no-op.
func (r *Runtime) closePin(e *pinEntry) {
	switch e.state {
	case PinClosed:
		return
	case pinClosing:
		// Another goroutine is mid-close. The dispatcher cannot wait for it
		// since that closer may itself be waiting on the dispatcher.
		if r.onDispatcher() {
			return
		}
		for e.state != PinClosed {
			r.idle.Wait()
		}
		return
	}

	// From here no new invocation can start for e.
	e.state = pinClosing
	e.callback = nil
	r.setInterruptEnabled(e.pin, false)
	r.cancelDebounce(e)

	if !r.onDispatcher() {
		for r.inflightPin == e {
			r.idle.Wait()
		}
	}

	if err := r.driver.Reset(e.pin); err != nil {
		llog.Err(err).Int("pin", e.pin).Msg("Pin reset failed")
	}
	e.state = PinClosed
	r.reg.release(e)
	r.idle.Broadcast()

	llog.Debug().Int("pin", e.pin).Msg("Pin closed")
}

// Cancel stops a timer. A Scheduled timer never fires; a Firing one finishes
// its current invocation (Cancel waits for it unless called from that very
// callback) and is not rescheduled. Cancelling a Fired or Cancelled timer is
// a no-op.
func (r *Runtime) Cancel(t *Timer) error {
	if t == nil {
		return nil
	}
	if t.rt != r {
		return stateError("cancel", -1, "timer %d belongs to another runtime", t.id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch t.state {
	case TimerScheduled:
		r.timers.remove(t)
		t.state = TimerCancelled
		t.callback = nil
		r.liveTimers--

	case TimerFiring:
		t.state = TimerCancelled
		r.liveTimers--
		if !r.onDispatcher() {
			for r.inflightTimer == t {
				r.idle.Wait()
			}
		}
		t.callback = nil
	}
	return nil
}

// Close releases every pin and timer and stops Run. The runtime cannot be
// used afterwards; a second Close is a no-op.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	entries := make([]*pinEntry, 0, len(r.reg.pins))
	for _, e := range r.reg.pins {
		entries = append(entries, e)
	}
	for _, e := range entries {
		r.closePin(e)
	}
	for len(r.timers) > 0 {
		t := r.timers.pop()
		t.state = TimerCancelled
		t.callback = nil
	}
	if t := r.inflightTimer; t != nil && t.state == TimerFiring {
		t.state = TimerCancelled
	}
	r.liveTimers = 0
	r.mu.Unlock()

	r.driver.SetEdgeHandler(nil)
	r.quitOnce.Do(func() { close(r.quit) })

	llog.Info().Msg("Runtime closed")
	return nil
}
