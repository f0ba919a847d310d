package contextmgr

import "time"

// HandoffPackage bundles everything a fresh session needs to continue where
// a degraded or completing one left off: its structured summary, the files
// still open, any tool calls that hadn't resolved, and a tail of raw
// messages for verbatim context the summary might have smoothed over.
type HandoffPackage struct {
	Summary          *StructuredSummary
	OpenFiles        []string
	PendingToolCalls []string
	RecentMessages   []Message
	CreatedAt        time.Time
	Reason           string
}

// tailMessageCount bounds how many raw messages a handoff carries verbatim.
const tailMessageCount = 20

// BuildHandoff assembles a HandoffPackage from the current window state.
func BuildHandoff(w *Window, summary *StructuredSummary, openFiles, pendingToolCalls []string, reason string, now time.Time) HandoffPackage {
	tail := w.Messages
	if len(tail) > tailMessageCount {
		tail = tail[len(tail)-tailMessageCount:]
	}
	recent := make([]Message, len(tail))
	copy(recent, tail)

	return HandoffPackage{
		Summary:          summary,
		OpenFiles:        openFiles,
		PendingToolCalls: pendingToolCalls,
		RecentMessages:   recent,
		CreatedAt:        now,
		Reason:           reason,
	}
}

// ToMarkdown renders the handoff package as a seed document for a new
// session's system prompt.
func (h HandoffPackage) ToMarkdown() string {
	md := "# Handoff\n\n"
	if h.Reason != "" {
		md += "Reason: " + h.Reason + "\n\n"
	}
	if h.Summary != nil {
		md += h.Summary.ToMarkdown()
	}
	if len(h.OpenFiles) > 0 {
		md += "\n### Open files\n"
		for _, f := range h.OpenFiles {
			md += "- " + f + "\n"
		}
	}
	if len(h.PendingToolCalls) > 0 {
		md += "\n### Pending tool calls\n"
		for _, c := range h.PendingToolCalls {
			md += "- " + c + "\n"
		}
	}
	return md
}
