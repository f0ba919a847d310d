package safety

import (
	"context"
	"testing"
	"time"
)

func TestApprovalManagerGrantSessionAllowsFutureCheck(t *testing.T) {
	m := NewApprovalManager(StrictPolicy())
	m.GrantSession("sess-1", "rm -rf /tmp/build")

	d := m.CheckCommand("sess-1", "rm -rf /tmp/build")
	if d.AskUser || d.Deny {
		t.Fatalf("expected a granted command to be allowed outright, got %+v", d)
	}
}

func TestApprovalManagerGrantSessionIsScoped(t *testing.T) {
	m := NewApprovalManager(StrictPolicy())
	m.GrantSession("sess-1", "rm -rf /tmp/build")

	d := m.CheckCommand("sess-2", "rm -rf /tmp/build")
	if !d.AskUser && !d.Deny {
		t.Fatal("expected grant in one session not to leak into another")
	}
}

func TestApprovalManagerRequestApprovalResolvedByResolve(t *testing.T) {
	m := NewApprovalManager(DefaultPolicy())

	resultCh := make(chan ApprovalDecision, 1)
	go func() {
		decision, err := m.RequestApproval(context.Background(), "sess-1", "req-1", "curl example.com", time.Second)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		resultCh <- decision
	}()

	// Give RequestApproval time to register the pending request.
	time.Sleep(20 * time.Millisecond)
	if !m.Resolve("req-1", ApprovalAllowOnce) {
		t.Fatal("expected Resolve to find the pending request")
	}

	select {
	case decision := <-resultCh:
		if decision != ApprovalAllowOnce {
			t.Fatalf("expected ApprovalAllowOnce, got %v", decision)
		}
	case <-time.After(time.Second):
		t.Fatal("RequestApproval did not return after Resolve")
	}
}

func TestApprovalManagerRequestApprovalTimesOut(t *testing.T) {
	m := NewApprovalManager(DefaultPolicy())
	decision, err := m.RequestApproval(context.Background(), "sess-1", "req-timeout", "curl example.com", 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if decision != ApprovalDeny {
		t.Fatalf("expected ApprovalDeny on timeout, got %v", decision)
	}
}

func TestApprovalManagerClearSessionRemovesGrants(t *testing.T) {
	m := NewApprovalManager(StrictPolicy())
	m.GrantSession("sess-1", "rm -rf /tmp/build")
	m.ClearSession("sess-1")

	d := m.CheckCommand("sess-1", "rm -rf /tmp/build")
	if !d.AskUser && !d.Deny {
		t.Fatal("expected cleared session grant not to allow the command anymore")
	}
}
