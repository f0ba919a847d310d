package tools

import (
	"testing"
	"time"

	"github.com/opencoder/agentruntime/internal/safety"
)

func TestExecApprovalManagerCheckCommandAllowsReadOnly(t *testing.T) {
	e := NewExecApprovalManager(safety.NewApprovalManager(safety.DefaultPolicy()))
	if got := e.CheckCommand("ls -la"); got != "allow" {
		t.Fatalf("expected allow for a read-only command, got %q", got)
	}
}

func TestExecApprovalManagerRequestApprovalUsesPrompt(t *testing.T) {
	mgr := safety.NewApprovalManager(safety.StrictPolicy())
	e := NewExecApprovalManager(mgr)
	e.Prompt = func(command string) ApprovalDecision { return ApprovalAllowSession }

	decision, err := e.RequestApproval("rm -rf /tmp/build", "agent-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != ApprovalAllowSession {
		t.Fatalf("expected ApprovalAllowSession, got %v", decision)
	}

	// A session grant made through Prompt should be visible to CheckCommand
	// under the same "" session scope.
	if got := e.CheckCommand("rm -rf /tmp/build"); got != "allow" {
		t.Fatalf("expected the granted command to now be allowed, got %q", got)
	}
}

func TestExecApprovalManagerRequestApprovalDenyDoesNotGrant(t *testing.T) {
	mgr := safety.NewApprovalManager(safety.StrictPolicy())
	e := NewExecApprovalManager(mgr)
	e.Prompt = func(command string) ApprovalDecision { return ApprovalDeny }

	decision, err := e.RequestApproval("rm -rf /tmp/build", "agent-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != ApprovalDeny {
		t.Fatalf("expected ApprovalDeny, got %v", decision)
	}
	if got := e.CheckCommand("rm -rf /tmp/build"); got == "allow" {
		t.Fatal("expected a denied prompt not to grant session access")
	}
}
