package agent

import (
	"context"
	"sync"
)

// SteeringState is the current control state of a running Loop turn.
type SteeringState int

const (
	SteeringRunning SteeringState = iota
	SteeringPaused
	SteeringStopped
)

// SteeringHandle lets a caller pause, resume, or stop an in-flight Run. The
// loop checks it at stable suspension points: between turns, between
// streaming chunks, and before each tool dispatch. Stop is cooperative — any
// in-flight tool call is allowed to finish (or is cancelled via its own
// executor handle), but no further tool call is issued.
type SteeringHandle struct {
	mu       sync.Mutex
	state    SteeringState
	reason   string
	resumeCh chan struct{}
	cancel   context.CancelFunc
	onChange func(state SteeringState, reason string)
}

// NewSteeringHandle creates a handle in the Running state, bound to cancel
// for cooperative cancellation of the underlying run context.
func NewSteeringHandle(cancel context.CancelFunc) *SteeringHandle {
	return &SteeringHandle{
		state:    SteeringRunning,
		resumeCh: make(chan struct{}),
		cancel:   cancel,
	}
}

// SetOnChange installs a callback invoked whenever Pause or Resume changes
// the handle's state, so a driving loop can mirror the transition onto its
// event channel (AgentEventPaused/AgentEventResumed) without polling State.
// The callback runs outside the handle's lock.
func (h *SteeringHandle) SetOnChange(fn func(state SteeringState, reason string)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

func (h *SteeringHandle) notify(state SteeringState, reason string) {
	h.mu.Lock()
	fn := h.onChange
	h.mu.Unlock()
	if fn != nil {
		fn(state, reason)
	}
}

// Pause transitions to Paused. Subsequent WaitIfPaused calls block until
// Resume or Stop.
func (h *SteeringHandle) Pause() {
	h.mu.Lock()
	if h.state != SteeringRunning {
		h.mu.Unlock()
		return
	}
	h.state = SteeringPaused
	h.mu.Unlock()
	h.notify(SteeringPaused, "")
}

// Resume transitions back to Running, releasing any goroutine blocked in
// WaitIfPaused.
func (h *SteeringHandle) Resume() {
	h.mu.Lock()
	if h.state != SteeringPaused {
		h.mu.Unlock()
		return
	}
	h.state = SteeringRunning
	close(h.resumeCh)
	h.resumeCh = make(chan struct{})
	h.mu.Unlock()
	h.notify(SteeringRunning, "")
}

// Stop transitions to Stopped and cancels the run's context. Stopped is
// terminal: no further Pause/Resume has any effect.
func (h *SteeringHandle) Stop(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == SteeringStopped {
		return
	}
	wasPaused := h.state == SteeringPaused
	h.state = SteeringStopped
	h.reason = reason
	if wasPaused {
		close(h.resumeCh)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// State reports the current state and, if Stopped, the stop reason.
func (h *SteeringHandle) State() (SteeringState, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.reason
}

// WaitIfPaused blocks the caller while the handle is Paused, returning early
// if ctx is cancelled or Stop is called. It is a no-op when Running or
// already Stopped.
func (h *SteeringHandle) WaitIfPaused(ctx context.Context) {
	for {
		h.mu.Lock()
		state := h.state
		ch := h.resumeCh
		h.mu.Unlock()

		if state != SteeringPaused {
			return
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

// Stopped reports whether Stop has been called.
func (h *SteeringHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == SteeringStopped
}
