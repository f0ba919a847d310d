package contextmgr

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// CompressionCheckpoint owns the messages and tool results it evicted
// outright, with no back-references into the live window, so it can be
// restored independently and in any order relative to other checkpoints.
type CompressionCheckpoint struct {
	ID                 uuid.UUID
	Timestamp          time.Time
	OriginalMessages   []Message
	OriginalToolResults []ToolResult
	TokenCount         int
	Summary            *StructuredSummary
}

func (c CompressionCheckpoint) MessageCount() int    { return len(c.OriginalMessages) }
func (c CompressionCheckpoint) ToolResultCount() int { return len(c.OriginalToolResults) }

// CompressionStats accumulates across all restorations performed on a
// Window's lifetime.
type CompressionStats struct {
	TotalRestorations     int
	TotalMessagesRestored int
	TotalTokensRestored   int
}

// Window owns the live message/tool-result history plus any checkpoints
// evicted from it, and implements compression and recovery.
type Window struct {
	Config      WindowConfig
	Messages    []Message
	ToolResults []ToolResult
	Checkpoints []CompressionCheckpoint
	Stats       CompressionStats
}

// NewWindow creates an empty Window for the given config.
func NewWindow(cfg WindowConfig) *Window {
	return &Window{Config: cfg}
}

// UsedTokens sums the token cost of every live message and tool result.
func (w *Window) UsedTokens() int {
	total := 0
	for _, m := range w.Messages {
		total += m.TokenCount
	}
	for _, t := range w.ToolResults {
		total += t.TokenCount
	}
	return total
}

// WindowStatus reports current occupancy.
func (w *Window) WindowStatus() WindowStatus {
	used := w.UsedTokens()
	return WindowStatus{
		UsedTokens:      used,
		AvailableTokens: w.Config.AvailableTokens(),
		UsagePercent:    w.Config.UsageRatio(used) * 100,
		MessageCount:    len(w.Messages),
	}
}

// NeedsManagement reports whether the window has crossed its summarization
// threshold and should be compressed.
func (w *Window) NeedsManagement() bool {
	return w.Config.NeedsSummarization(w.UsedTokens())
}

// PreRotStatus evaluates pre-rot degradation for the current window state.
func (w *Window) PreRotStatus() PreRotStatus {
	ratio := w.Config.UsageRatio(w.UsedTokens())
	needsTruncation := ratio >= 1.0
	return Status(w.Config.PreRot, ratio, w.Messages, needsTruncation)
}

// AddMessage appends a message to the live window.
func (w *Window) AddMessage(m Message) {
	w.Messages = append(w.Messages, m)
}

// AddToolResult appends a tool result to the live window.
func (w *Window) AddToolResult(t ToolResult) {
	w.ToolResults = append(w.ToolResults, t)
}

// Compress evicts the eldest non-system messages until the live message
// count is at or below MinPreservedMessages, folding what it evicts into a
// new CompressionCheckpoint (and StructuredSummary skeleton the caller can
// enrich before storing). It enforces MaxCheckpoints (oldest dropped
// outright, losing recoverability) and MaxBackupTokens (stops evicting once
// the checkpoint store would exceed the cap).
func (w *Window) Compress(summary *StructuredSummary, now time.Time) *CompressionCheckpoint {
	if len(w.Messages) <= w.Config.MinPreservedMessages {
		return nil
	}

	var evicted []Message
	kept := make([]Message, 0, len(w.Messages))
	evictedTokens := 0
	backupBudget := w.Config.MaxBackupTokens - w.checkpointedTokens()

	for _, m := range w.Messages {
		stillOverBudget := len(w.Messages)-len(evicted) > w.Config.MinPreservedMessages
		canEvict := m.Role != RoleSystem && stillOverBudget && evictedTokens+m.TokenCount <= backupBudget
		if canEvict {
			evicted = append(evicted, m)
			evictedTokens += m.TokenCount
			continue
		}
		kept = append(kept, m)
	}

	if len(evicted) == 0 {
		return nil
	}

	ckpt := CompressionCheckpoint{
		ID:               uuid.New(),
		Timestamp:        now,
		OriginalMessages: evicted,
		TokenCount:       evictedTokens,
		Summary:          summary,
	}

	w.Messages = kept
	w.Checkpoints = append(w.Checkpoints, ckpt)

	if w.Config.MaxCheckpoints > 0 && len(w.Checkpoints) > w.Config.MaxCheckpoints {
		overflow := len(w.Checkpoints) - w.Config.MaxCheckpoints
		w.Checkpoints = w.Checkpoints[overflow:]
	}

	return &ckpt
}

func (w *Window) checkpointedTokens() int {
	total := 0
	for _, c := range w.Checkpoints {
		total += c.TokenCount
	}
	return total
}

// HasRecoverableContent reports whether any checkpoint can still be restored.
func (w *Window) HasRecoverableContent() bool {
	return len(w.Checkpoints) > 0
}

// RestoreCheckpoint re-inserts checkpoint idx's messages and tool results
// back into the live window, ordered by timestamp against what's already
// there, and removes the checkpoint. Returns false if idx is out of range.
func (w *Window) RestoreCheckpoint(idx int) bool {
	if idx < 0 || idx >= len(w.Checkpoints) {
		return false
	}
	ckpt := w.Checkpoints[idx]
	w.Checkpoints = append(w.Checkpoints[:idx], w.Checkpoints[idx+1:]...)

	for _, m := range ckpt.OriginalMessages {
		pos := sort.Search(len(w.Messages), func(i int) bool {
			return w.Messages[i].CreatedAt.After(m.CreatedAt)
		})
		w.Messages = append(w.Messages, Message{})
		copy(w.Messages[pos+1:], w.Messages[pos:])
		w.Messages[pos] = m
	}
	for _, t := range ckpt.OriginalToolResults {
		pos := sort.Search(len(w.ToolResults), func(i int) bool {
			return w.ToolResults[i].ExecutedAt.After(t.ExecutedAt)
		})
		w.ToolResults = append(w.ToolResults, ToolResult{})
		copy(w.ToolResults[pos+1:], w.ToolResults[pos:])
		w.ToolResults[pos] = t
	}

	w.Stats.TotalRestorations++
	w.Stats.TotalMessagesRestored += ckpt.MessageCount()
	w.Stats.TotalTokensRestored += ckpt.TokenCount

	return true
}

// RestoreAllCheckpoints restores every remaining checkpoint, oldest first,
// and returns the count restored. The resulting message multiset exactly
// matches what was present before any compression ran.
func (w *Window) RestoreAllCheckpoints() int {
	count := 0
	for len(w.Checkpoints) > 0 {
		if !w.RestoreCheckpoint(0) {
			break
		}
		count++
	}
	return count
}
