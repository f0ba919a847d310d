package providers

import (
	"context"
	"testing"
)

type fakeProvider struct{ name string }

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return &ChatResponse{}, nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) Name() string         { return f.name }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	p := &fakeProvider{name: "fake"}
	r.Register("fake", p)

	got, err := r.Get("fake")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != p {
		t.Fatal("expected Get to return the registered provider")
	}
}

func TestRegistryGetUnknownReturnsError(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected an error for an unregistered provider name")
	}
}

func TestRegistryNamesListsRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &fakeProvider{name: "a"})
	r.Register("b", &fakeProvider{name: "b"})

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
}
