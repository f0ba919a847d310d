package subagent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSpawnRunsImmediatelyUnderConcurrencyLimit(t *testing.T) {
	o := NewOrchestrator(Config{MaxConcurrent: 2, DefaultMaxTurns: 10})

	done := make(chan struct{})
	agent, err := o.Spawn(context.Background(), SpawnRequest{Type: TypeExplore, Prompt: "look around"}, func(ctx context.Context, a *Agent) (string, error) {
		close(done)
		return "looked around", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run func never invoked")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a, ok := o.Get(agent.ID); ok && a.State == StateCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("agent never reached completed state")
}

func TestSpawnQueuesBeyondConcurrencyLimit(t *testing.T) {
	o := NewOrchestrator(Config{MaxConcurrent: 1, DefaultMaxTurns: 10, QueueTimeout: 2 * time.Second})

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.Spawn(context.Background(), SpawnRequest{Type: TypeExplore}, func(ctx context.Context, a *Agent) (string, error) {
			<-release
			return "first", nil
		})
		if err != nil {
			t.Errorf("first spawn failed: %v", err)
		}
	}()

	// Give the first spawn time to claim the only concurrency slot.
	time.Sleep(50 * time.Millisecond)

	var secondRan bool
	var mu sync.Mutex
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.Spawn(context.Background(), SpawnRequest{Type: TypeReview}, func(ctx context.Context, a *Agent) (string, error) {
			mu.Lock()
			secondRan = true
			mu.Unlock()
			return "second", nil
		})
		if err != nil {
			t.Errorf("second spawn failed: %v", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	stats := o.QueueStats()
	if stats.QueueLength != 1 {
		t.Fatalf("expected second spawn queued, got queue length %d", stats.QueueLength)
	}

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !secondRan {
		t.Fatal("queued spawn never ran after slot freed")
	}
}

func TestPriorityQueueOrdersHigherPriorityFirst(t *testing.T) {
	o := NewOrchestrator(Config{MaxConcurrent: 1, DefaultMaxTurns: 10, QueueTimeout: 2 * time.Second})

	release := make(chan struct{})
	go o.Spawn(context.Background(), SpawnRequest{Type: TypeExplore}, func(ctx context.Context, a *Agent) (string, error) {
		<-release
		return "", nil
	})
	time.Sleep(50 * time.Millisecond)

	var order []string
	var mu sync.Mutex
	record := func(label string) RunFunc {
		return func(ctx context.Context, a *Agent) (string, error) {
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return "", nil
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); o.Spawn(context.Background(), SpawnRequest{Type: TypeExplore, Priority: PriorityLow}, record("low")) }()
	time.Sleep(20 * time.Millisecond)
	go func() { defer wg.Done(); o.Spawn(context.Background(), SpawnRequest{Type: TypeExplore, Priority: PriorityCritical}, record("critical")) }()
	time.Sleep(20 * time.Millisecond)

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "critical" {
		t.Fatalf("expected critical-priority spawn to run first, got %v", order)
	}
}

func TestToolGatingPerType(t *testing.T) {
	cases := []struct {
		typ     Type
		tool    string
		allowed bool
	}{
		{TypeReview, "write_file", false},
		{TypeReview, "read_file", true},
		{TypeImplement, "write_file", true},
		{TypeExplore, "spawn", false},
		{TypeCustom, "anything_goes", true},
		{TypeCustom, "spawn", false},
	}
	for _, c := range cases {
		if got := IsToolAllowed(c.typ, c.tool); got != c.allowed {
			t.Errorf("IsToolAllowed(%s, %s) = %v, want %v", c.typ, c.tool, got, c.allowed)
		}
	}
}

func TestCancelPendingRemovesFromQueue(t *testing.T) {
	o := NewOrchestrator(Config{MaxConcurrent: 1, DefaultMaxTurns: 10, QueueTimeout: 5 * time.Second})

	release := make(chan struct{})
	go o.Spawn(context.Background(), SpawnRequest{Type: TypeExplore}, func(ctx context.Context, a *Agent) (string, error) {
		<-release
		return "", nil
	})
	time.Sleep(50 * time.Millisecond)

	var queuedID string
	go func() {
		a, _ := o.Spawn(context.Background(), SpawnRequest{Type: TypeExplore}, func(ctx context.Context, a *Agent) (string, error) {
			return "", nil
		})
		if a != nil {
			queuedID = a.ID
		}
	}()
	time.Sleep(50 * time.Millisecond)

	o.mu.RLock()
	for _, q := range o.queue {
		queuedID = q.agentID
	}
	o.mu.RUnlock()

	if queuedID == "" {
		t.Fatal("expected a queued agent id")
	}
	if !o.Cancel(queuedID, "no longer needed") {
		t.Fatal("expected Cancel to succeed")
	}
	a, ok := o.Get(queuedID)
	if !ok || a.State != StateCancelled {
		t.Fatalf("expected cancelled state, got %+v", a)
	}
	close(release)
}

func TestDiscoveryStoreDedupesByCategoryAndContent(t *testing.T) {
	s := NewStore()
	if !s.Publish("agent-1", CategoryFinding, "found a TODO in main.go") {
		t.Fatal("expected first publish to succeed")
	}
	if s.Publish("agent-2", CategoryFinding, "found a TODO in main.go") {
		t.Fatal("expected duplicate publish to be rejected")
	}
	if !s.Publish("agent-2", CategoryWarning, "found a TODO in main.go") {
		t.Fatal("expected same content under a different category to be accepted")
	}
	if s.Count() != 2 {
		t.Fatalf("expected 2 distinct discoveries, got %d", s.Count())
	}
	if len(s.ByCategory(CategoryFinding)) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(s.ByCategory(CategoryFinding)))
	}
}

func TestDiscoveryStoreConcurrentPublish(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Publish("agent", CategoryFinding, fmt.Sprintf("finding-%d", i%10))
		}(i)
	}
	wg.Wait()
	if s.Count() != 10 {
		t.Fatalf("expected 10 distinct findings after dedup, got %d", s.Count())
	}
}
