package mcp

import "testing"

func TestMapToEnvSlice(t *testing.T) {
	out := mapToEnvSlice(map[string]string{"FOO": "bar"})
	if len(out) != 1 || out[0] != "FOO=bar" {
		t.Fatalf("unexpected env slice: %v", out)
	}
	if mapToEnvSlice(nil) != nil {
		t.Fatal("expected nil for empty map")
	}
}

func TestToSet(t *testing.T) {
	s := toSet([]string{"a", "b", "a"})
	if len(s) != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", len(s))
	}
	if toSet(nil) != nil {
		t.Fatal("expected nil for empty slice")
	}
}

func TestJoinErrors(t *testing.T) {
	if got := joinErrors([]string{"a", "b"}); got != "a; b" {
		t.Fatalf("unexpected join: %q", got)
	}
}
