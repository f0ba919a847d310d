package agent

import "testing"

func TestToolLoopDetectsRepeatedCall(t *testing.T) {
	var s toolLoopState
	args := map[string]interface{}{"path": "foo.txt"}

	for i := 0; i < loopWarningThreshold-1; i++ {
		hash := s.record("read_file", args)
		s.recordResult(hash, "same output")
		if level, _ := s.detect("read_file", hash); level != "" {
			t.Fatalf("iteration %d: expected no warning yet, got %q", i, level)
		}
	}

	hash := s.record("read_file", args)
	s.recordResult(hash, "same output")
	level, msg := s.detect("read_file", hash)
	if level != "warning" {
		t.Fatalf("expected warning after %d identical calls, got %q", loopWarningThreshold, level)
	}
	if msg == "" {
		t.Fatal("expected non-empty warning message")
	}
}

func TestToolLoopEscalatesToCritical(t *testing.T) {
	var s toolLoopState
	args := map[string]interface{}{"path": "foo.txt"}

	var level string
	for i := 0; i < loopCriticalThreshold; i++ {
		hash := s.record("read_file", args)
		s.recordResult(hash, "same output")
		level, _ = s.detect("read_file", hash)
	}
	if level != "critical" {
		t.Fatalf("expected critical after %d identical calls, got %q", loopCriticalThreshold, level)
	}
}

func TestToolLoopResetsOnDifferentArgs(t *testing.T) {
	var s toolLoopState
	h1 := s.record("read_file", map[string]interface{}{"path": "a.txt"})
	s.recordResult(h1, "out")
	h2 := s.record("read_file", map[string]interface{}{"path": "b.txt"})
	if h1 == h2 {
		t.Fatal("expected different hashes for different args")
	}
	if level, _ := s.detect("read_file", h2); level != "" {
		t.Fatalf("expected no warning for a fresh call, got %q", level)
	}
}

func TestToolLoopResetsOnDifferentResult(t *testing.T) {
	var s toolLoopState
	args := map[string]interface{}{"path": "a.txt"}

	hash := s.record("read_file", args)
	s.recordResult(hash, "result one")
	hash = s.record("read_file", args)
	s.recordResult(hash, "result two")

	if level, _ := s.detect("read_file", hash); level != "" {
		t.Fatalf("expected no warning when results differ each time, got %q", level)
	}
}
