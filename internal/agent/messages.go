package agent

import (
	"fmt"
	"strings"

	"github.com/opencoder/agentruntime/internal/providers"
)

// buildSystemPrompt assembles the system message: base identity, workspace
// and sandbox facts, the running session summary (if any), and any
// extra prompt text the caller wants injected (sub-agent task framing,
// skill instructions, etc).
func (l *Loop) buildSystemPrompt(summary, extraSystemPrompt string) string {
	var b strings.Builder

	b.WriteString("You are a coding agent with access to a local workspace and a set of tools. ")
	b.WriteString("Use tools to read, write, and run code; explain your reasoning briefly; ")
	b.WriteString("prefer small, verifiable steps over large speculative changes.\n")

	if l.workspace != "" {
		fmt.Fprintf(&b, "\nWorkspace: %s\n", l.workspace)
	}

	if l.sandboxEnabled {
		fmt.Fprintf(&b, "Shell and file tools run inside a sandboxed container (%s access: %s).\n",
			l.sandboxContainerDir, l.sandboxWorkspaceAccess)
	}

	if summary != "" {
		b.WriteString("\n## Summary of earlier conversation\n\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	if extraSystemPrompt != "" {
		b.WriteString("\n")
		b.WriteString(extraSystemPrompt)
		b.WriteString("\n")
	}

	return b.String()
}

// buildMessages assembles the full provider message list: system prompt,
// prior history, and the current user turn.
func (l *Loop) buildMessages(history []providers.Message, summary, userMessage, extraSystemPrompt string, historyLimit int) []providers.Message {
	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{
		Role:    "system",
		Content: l.buildSystemPrompt(summary, extraSystemPrompt),
	})

	trimmed := history
	if historyLimit > 0 {
		trimmed = lastUserTurns(history, historyLimit)
	}
	messages = append(messages, trimmed...)

	messages = append(messages, providers.Message{
		Role:    "user",
		Content: userMessage,
	})
	return messages
}

// lastUserTurns keeps only the messages from the last n user turns onward,
// preserving every assistant/tool message that followed each kept user
// message so tool-call/tool-result pairs never get split.
func lastUserTurns(history []providers.Message, n int) []providers.Message {
	if n <= 0 {
		return history
	}
	userIdx := make([]int, 0, n)
	for i, m := range history {
		if m.Role == "user" {
			userIdx = append(userIdx, i)
		}
	}
	if len(userIdx) <= n {
		return history
	}
	start := userIdx[len(userIdx)-n]
	return history[start:]
}
