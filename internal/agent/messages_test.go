package agent

import (
	"strings"
	"testing"

	"github.com/opencoder/agentruntime/internal/providers"
)

func TestLastUserTurnsKeepsOnlyRecentTurns(t *testing.T) {
	history := []providers.Message{
		{Role: "user", Content: "turn1"},
		{Role: "assistant", Content: "reply1"},
		{Role: "user", Content: "turn2"},
		{Role: "assistant", Content: "reply2"},
		{Role: "user", Content: "turn3"},
		{Role: "assistant", Content: "reply3"},
	}

	trimmed := lastUserTurns(history, 2)
	if len(trimmed) != 4 {
		t.Fatalf("expected 4 messages (2 turns), got %d", len(trimmed))
	}
	if trimmed[0].Content != "turn2" {
		t.Fatalf("expected first kept message to be turn2, got %q", trimmed[0].Content)
	}
}

func TestLastUserTurnsReturnsAllWhenFewerThanLimit(t *testing.T) {
	history := []providers.Message{
		{Role: "user", Content: "turn1"},
		{Role: "assistant", Content: "reply1"},
	}
	trimmed := lastUserTurns(history, 5)
	if len(trimmed) != len(history) {
		t.Fatalf("expected all messages returned, got %d", len(trimmed))
	}
}

func TestLastUserTurnsZeroLimitReturnsAll(t *testing.T) {
	history := []providers.Message{
		{Role: "user", Content: "turn1"},
		{Role: "assistant", Content: "reply1"},
	}
	trimmed := lastUserTurns(history, 0)
	if len(trimmed) != len(history) {
		t.Fatalf("expected all messages returned for limit 0, got %d", len(trimmed))
	}
}

func TestBuildSystemPromptIncludesWorkspaceAndSandbox(t *testing.T) {
	l := &Loop{
		workspace:              "/home/user/project",
		sandboxEnabled:         true,
		sandboxContainerDir:    "/workspace",
		sandboxWorkspaceAccess: "read-write",
	}
	prompt := l.buildSystemPrompt("", "")
	if !strings.Contains(prompt, "/home/user/project") {
		t.Fatal("expected workspace path in system prompt")
	}
	if !strings.Contains(prompt, "sandboxed container") {
		t.Fatal("expected sandbox note in system prompt")
	}
}

func TestBuildSystemPromptIncludesSummaryAndExtra(t *testing.T) {
	l := &Loop{}
	prompt := l.buildSystemPrompt("earlier work summary", "extra task framing")
	if !strings.Contains(prompt, "earlier work summary") {
		t.Fatal("expected summary section in system prompt")
	}
	if !strings.Contains(prompt, "extra task framing") {
		t.Fatal("expected extra system prompt text included")
	}
}

func TestBuildMessagesOrdersSystemHistoryUser(t *testing.T) {
	l := &Loop{}
	history := []providers.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	messages := l.buildMessages(history, "", "new question", "", 0)

	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Fatalf("expected first message to be system, got %q", messages[0].Role)
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "new question" {
		t.Fatalf("expected last message to be the new user turn, got %+v", last)
	}
}
