package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opencoder/agentruntime/internal/safety"
)

// ApprovalDecision mirrors safety.ApprovalDecision for callers inside this
// package that predate the safety package split.
type ApprovalDecision = safety.ApprovalDecision

const (
	ApprovalDeny         = safety.ApprovalDeny
	ApprovalAllowOnce    = safety.ApprovalAllowOnce
	ApprovalAllowSession = safety.ApprovalAllowSession
)

// ExecApprovalManager adapts safety.ApprovalManager to the calling
// convention ExecTool uses: CheckCommand(command) string and
// RequestApproval(command, agentID, timeout).
type ExecApprovalManager struct {
	mgr *safety.ApprovalManager

	// Prompt, if set, resolves an AskUser decision directly (e.g. an
	// interactive terminal form) instead of waiting on mgr.Resolve being
	// called from elsewhere.
	Prompt func(command string) ApprovalDecision
}

// NewExecApprovalManager wraps a safety.ApprovalManager for ExecTool.
func NewExecApprovalManager(mgr *safety.ApprovalManager) *ExecApprovalManager {
	return &ExecApprovalManager{mgr: mgr}
}

// CheckCommand classifies command against the active policy. Session-scoped
// grants are tracked under a single "" session since ExecTool carries no
// session identity, matching the scope RequestApproval grants into.
func (e *ExecApprovalManager) CheckCommand(command string) string {
	d := e.mgr.CheckCommand("", command)
	switch {
	case d.Deny:
		return "deny"
	case d.AskUser:
		return "ask"
	default:
		return "allow"
	}
}

// RequestApproval blocks until the command is resolved or timeout elapses.
// When Prompt is set it resolves the decision directly; otherwise it waits
// for an external caller to deliver the decision via the underlying
// ApprovalManager's Resolve method.
func (e *ExecApprovalManager) RequestApproval(command, agentID string, timeout time.Duration) (ApprovalDecision, error) {
	if e.Prompt != nil {
		decision := e.Prompt(command)
		if decision == safety.ApprovalAllowSession {
			e.mgr.GrantSession("", command)
		}
		return decision, nil
	}
	requestID := fmt.Sprintf("%s-%s", agentID, uuid.New().String())
	return e.mgr.RequestApproval(context.Background(), "", requestID, command, timeout)
}
