package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/opencoder/agentruntime/internal/contextmgr"
	"github.com/opencoder/agentruntime/internal/providers"
	"github.com/opencoder/agentruntime/pkg/protocol"
)

// summarizePrompt asks the model to compress the conversation so far into a
// structured handoff the next turn can resume from.
const summarizePrompt = `Summarize this conversation so it can be resumed later with minimal context. ` +
	`Cover: what was asked, what decisions were made and why, what files were touched and how, ` +
	`what tools were used and what they found, and any open questions. Be concise; prefer bullet points.`

// windowFor returns the contextmgr.Window tracking sessionKey's live
// messages and compression checkpoints, creating one on first use.
func (l *Loop) windowFor(sessionKey string) *contextmgr.Window {
	l.windowsMu.Lock()
	defer l.windowsMu.Unlock()
	if l.windows == nil {
		l.windows = make(map[string]*contextmgr.Window)
	}
	w, ok := l.windows[sessionKey]
	if !ok {
		w = contextmgr.NewWindow(l.windowCfg)
		l.windows[sessionKey] = w
	}
	return w
}

// maybeCompress syncs the session's history into its contextmgr.Window and,
// if the window reports it needs management, runs a real
// Window.Compress: the evicted messages are folded into a
// CompressionCheckpoint the window keeps (so RestoreCheckpoint/
// RestoreAllCheckpoints can undo it later), and only the kept tail is
// written back to the session. The checkpoint's StructuredSummary is filled
// in from one LLM summarization call, same prompt the ad hoc version used,
// but now the truncation itself is the window's accounting, not a fixed
// "last 4 messages" guess.
func (l *Loop) maybeCompress(ctx context.Context, req RunRequest, history []providers.Message) {
	w := l.windowFor(req.SessionKey)
	now := time.Now().UTC()

	w.Messages = make([]contextmgr.Message, 0, len(history))
	for i, m := range history {
		// Distinct, increasing timestamps keep history order recoverable when
		// a checkpoint is restored by timestamp.
		w.Messages = append(w.Messages, contextmgr.NewMessage(contextmgr.Role(m.Role), m.Content, now.Add(time.Duration(i))))
	}

	if !w.NeedsManagement() {
		return
	}

	summary := l.summarizeForCompression(ctx, req, history)

	before := len(w.Messages)
	ckpt := w.Compress(summary, now)
	if ckpt == nil {
		return
	}
	keepLast := len(w.Messages)

	l.sessions.SetSummary(req.SessionKey, summary.ToMarkdown())
	l.sessions.TruncateHistory(req.SessionKey, keepLast)
	l.sessions.IncrementCompaction(req.SessionKey)

	l.emit(AgentEvent{
		Type:    protocol.AgentEventCompressed,
		AgentID: l.id,
		RunID:   req.RunID,
		Payload: map[string]interface{}{
			"before":     before,
			"after":      keepLast,
			"saved":      before - keepLast,
			"checkpoint": ckpt.ID.String(),
		},
	})

	slog.Info("context compaction: window compressed",
		"agent", l.id, "session", req.SessionKey, "checkpoint", ckpt.ID, "before", before, "after", keepLast, "at", now)
}

// summarizeForCompression asks the model for a compaction summary and folds
// the response into a StructuredSummary for the checkpoint. Falls back to an
// empty summary (the checkpoint itself still holds the original messages,
// recoverable in full) if the call fails.
func (l *Loop) summarizeForCompression(ctx context.Context, req RunRequest, history []providers.Message) *contextmgr.StructuredSummary {
	summary := contextmgr.NewStructuredSummary("")

	summaryReq := providers.ChatRequest{
		Messages: append(append([]providers.Message{}, history...), providers.Message{
			Role:    "user",
			Content: summarizePrompt,
		}),
		Model: l.model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   2048,
			providers.OptTemperature: 0.2,
		},
	}

	resp, err := l.provider.Chat(ctx, summaryReq)
	if err != nil {
		slog.Warn("context compaction: summarize call failed", "agent", l.id, "session", req.SessionKey, "error", err)
		return summary
	}
	summary.CurrentTask = resp.Content
	return summary
}

// RestoreLastCheckpoint reverses the most recent compaction recorded for
// sessionKey, re-inserting its evicted messages back into the live session
// history. Returns false if there is nothing to restore.
func (l *Loop) RestoreLastCheckpoint(sessionKey string) bool {
	w := l.windowFor(sessionKey)
	if !w.HasRecoverableContent() {
		return false
	}
	if !w.RestoreCheckpoint(len(w.Checkpoints) - 1) {
		return false
	}
	l.syncWindowToSession(sessionKey, w)
	return true
}

// RestoreAllCheckpoints reverses every compaction recorded for sessionKey,
// oldest first, returning the count restored. The session's history ends up
// matching what it held before any compression ran.
func (l *Loop) RestoreAllCheckpoints(sessionKey string) int {
	w := l.windowFor(sessionKey)
	count := w.RestoreAllCheckpoints()
	if count > 0 {
		l.syncWindowToSession(sessionKey, w)
	}
	return count
}

// syncWindowToSession rewrites sessionKey's stored history to match w's live
// messages, used after a restore brings evicted messages back in.
func (l *Loop) syncWindowToSession(sessionKey string, w *contextmgr.Window) {
	l.sessions.Reset(sessionKey)
	for _, m := range w.Messages {
		l.sessions.AddMessage(sessionKey, providers.Message{Role: string(m.Role), Content: m.Content})
	}
	l.sessions.Save(sessionKey)
}

// preRotStatus reports pre-rot degradation for the session's current
// history, used to decide whether a sub-agent should hand off rather than
// keep working in a decaying context.
func (l *Loop) preRotStatus(history []providers.Message) contextmgr.PreRotStatus {
	used := 0
	msgs := make([]contextmgr.Message, 0, len(history))
	now := time.Now().UTC()
	for _, m := range history {
		tc := contextmgr.EstimateMessageTokens(m.Content)
		used += tc
		msgs = append(msgs, contextmgr.Message{
			Role:      contextmgr.Role(m.Role),
			Content:   m.Content,
			CreatedAt: now,
		})
	}
	ratio := l.windowCfg.UsageRatio(used)
	return contextmgr.Status(l.windowCfg.PreRot, ratio, msgs, false)
}

// buildHandoff renders a HandoffPackage summarizing the session for a
// parent agent or a fresh continuation session, used when PreRotAction
// escalates to ForceHandoff.
func (l *Loop) buildHandoff(summary *contextmgr.StructuredSummary, openFiles, pendingToolCalls []string, reason string) string {
	w := contextmgr.NewWindow(l.windowCfg)
	pkg := contextmgr.BuildHandoff(w, summary, openFiles, pendingToolCalls, reason, time.Now().UTC())
	return pkg.ToMarkdown()
}
