package agent

import (
	"context"
	"testing"
	"time"
)

func TestSteeringPauseResume(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewSteeringHandle(cancel)

	h.Pause()
	if state, _ := h.State(); state != SteeringPaused {
		t.Fatalf("expected Paused, got %v", state)
	}

	done := make(chan struct{})
	go func() {
		h.WaitIfPaused(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitIfPaused returned before Resume was called")
	case <-time.After(20 * time.Millisecond):
	}

	h.Resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after Resume")
	}

	if state, _ := h.State(); state != SteeringRunning {
		t.Fatalf("expected Running after Resume, got %v", state)
	}
}

func TestSteeringStopIsTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewSteeringHandle(cancel)

	h.Stop("user requested stop")

	if !h.Stopped() {
		t.Fatal("expected Stopped to report true")
	}
	state, reason := h.State()
	if state != SteeringStopped {
		t.Fatalf("expected SteeringStopped, got %v", state)
	}
	if reason != "user requested stop" {
		t.Fatalf("expected stop reason to be preserved, got %q", reason)
	}
	if ctx.Err() == nil {
		t.Fatal("expected bound context to be cancelled by Stop")
	}

	h.Resume()
	if state, _ := h.State(); state != SteeringStopped {
		t.Fatal("expected Resume to have no effect once Stopped")
	}
}

func TestSteeringStopWhilePausedReleasesWaiters(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewSteeringHandle(cancel)
	h.Pause()

	done := make(chan struct{})
	go func() {
		h.WaitIfPaused(context.Background())
		close(done)
	}()

	h.Stop("shutting down")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after Stop while paused")
	}
}
