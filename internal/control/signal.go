// Package control provides the run signal shared between an engine run and
// the surface controlling it. The signal is injected by value wherever it is
// needed; there is no process-global.
package control

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
)

// ErrStopped is returned from Check when a stop has been requested. Callers
// treat it as a first-class cancellation outcome, not a fault.
var ErrStopped = eris.New("run stopped by control signal")

// DefaultPollInterval is how often a paused Check rechecks the signal.
const DefaultPollInterval = 200 * time.Millisecond

const (
	stateRunning int32 = iota
	statePaused
	stateStopped
)

// Signal is a tri-state run flag: running, paused, or stop-requested.
// All methods are safe for concurrent use.
type Signal struct {
	state        atomic.Int32
	pollInterval time.Duration
}

// NewSignal returns a signal in the running state. pollInterval governs how
// often a paused Check wakes to recheck; zero means DefaultPollInterval.
func NewSignal(pollInterval time.Duration) *Signal {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Signal{pollInterval: pollInterval}
}

// Pause suspends the run at its next suspension point. A no-op once stopped.
func (s *Signal) Pause() {
	s.state.CompareAndSwap(stateRunning, statePaused)
}

// Resume lifts a pause. A no-op once stopped.
func (s *Signal) Resume() {
	s.state.CompareAndSwap(statePaused, stateRunning)
}

// Stop requests a graceful stop. Stop is sticky: Pause and Resume no longer
// change the state afterwards.
func (s *Signal) Stop() {
	s.state.Store(stateStopped)
}

// Reset returns the signal to the running state, clearing any pause or stop.
// A stop request is scoped to one run; the engine resets the signal when a
// new run begins.
func (s *Signal) Reset() {
	s.state.Store(stateRunning)
}

// Paused reports whether the signal is currently paused.
func (s *Signal) Paused() bool {
	return s.state.Load() == statePaused
}

// Stopped reports whether a stop has been requested.
func (s *Signal) Stopped() bool {
	return s.state.Load() == stateStopped
}

// Check is the suspension point. It returns ErrStopped if a stop was
// requested, blocks while paused, and returns the context error if the
// context is cancelled while waiting.
func (s *Signal) Check(ctx context.Context) error {
	for {
		switch s.state.Load() {
		case stateStopped:
			return ErrStopped
		case stateRunning:
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "control check")
			}
			return nil
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "control check")
		case <-timer.C:
		}
	}
}
