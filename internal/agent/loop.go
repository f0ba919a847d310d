package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/opencoder/agentruntime/internal/config"
	"github.com/opencoder/agentruntime/internal/contextmgr"
	"github.com/opencoder/agentruntime/internal/providers"
	"github.com/opencoder/agentruntime/internal/store"
	"github.com/opencoder/agentruntime/internal/tools"
	"github.com/opencoder/agentruntime/internal/tracing"
	"github.com/opencoder/agentruntime/pkg/protocol"
)

// Loop is the agent execution loop for one agent instance.
// Think -> Act -> Observe cycle with tool execution, matching spec.md
// section 4.E's turn grammar.
type Loop struct {
	id            string
	provider      providers.Provider
	model         string
	maxIterations int
	maxConcurrentTools int
	workspace     string

	sessions        store.SessionStore
	tools           *tools.Registry
	toolPolicy      *tools.PolicyEngine    // optional: filters tools sent to LLM
	agentToolPolicy *config.ToolPolicySpec // per-agent tool policy (nil = no restrictions)
	activeRuns      atomic.Int32           // number of currently executing runs

	// isSubagent/isLeafAgent narrow the tool policy for agents spawned by
	// the SubAgentOrchestrator (see internal/subagent).
	isSubagent  bool
	isLeafAgent bool

	windowCfg contextmgr.WindowConfig

	// windows holds one contextmgr.Window per session, carrying the
	// compression checkpoints a compacted session can later be restored
	// from. Keyed by session key, same in-memory-map-plus-mutex style as
	// PolicyEngine/SubagentManager.
	windowsMu sync.Mutex
	windows   map[string]*contextmgr.Window

	// Sandbox info, surfaced in the system prompt.
	sandboxEnabled         bool
	sandboxContainerDir    string
	sandboxWorkspaceAccess string

	// Event callback for broadcasting agent events (turn.start, text, tool.start, etc.)
	onEvent func(event AgentEvent)

	// Security: input scanning and message size limit.
	inputGuard      *InputGuard
	injectionAction string // "log", "warn" (default), "block", "off"
	maxMessageChars int    // 0 = use default (32000)

	// Global builtin tool settings (from config, lower priority than per-agent)
	builtinToolSettings tools.BuiltinToolSettings

	// Thinking level for extended thinking support.
	thinkingLevel string
}

// AgentEvent is emitted during agent execution, matching spec.md §4.E's and
// §6's AgentEvent grammar.
type AgentEvent struct {
	Type    string      `json:"type"`
	AgentID string      `json:"agentId"`
	RunID   string      `json:"runId"`
	Payload interface{} `json:"payload,omitempty"`
}

func (l *Loop) emit(e AgentEvent) {
	if l.onEvent != nil {
		l.onEvent(e)
	}
}

// LoopConfig configures a new Loop.
type LoopConfig struct {
	ID                 string
	Provider           providers.Provider
	Model              string
	ContextWindow      int // 0 = ForModel(Model) default; else overrides WindowConfig.MaxTokens
	MaxIterations      int
	MaxConcurrentTools int
	Workspace          string
	Sessions           store.SessionStore
	Tools              *tools.Registry
	ToolPolicy         *tools.PolicyEngine
	AgentToolPolicy    *config.ToolPolicySpec
	OnEvent            func(AgentEvent)

	IsSubagent  bool
	IsLeafAgent bool

	// Sandbox info (injected into system prompt)
	SandboxEnabled         bool
	SandboxContainerDir    string // e.g. "/workspace"
	SandboxWorkspaceAccess string // "none", "ro", "rw"

	// Security: input guard for injection detection, max message size.
	InputGuard      *InputGuard // nil = auto-create when InjectionAction != "off"
	InjectionAction string      // "log", "warn" (default), "block", "off"
	MaxMessageChars int         // 0 = use default (32000)

	BuiltinToolSettings tools.BuiltinToolSettings

	// ThinkingLevel: "off", "low", "medium", "high".
	ThinkingLevel string
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.MaxConcurrentTools <= 0 {
		cfg.MaxConcurrentTools = 4
	}

	windowCfg := contextmgr.ForModel(cfg.Model)
	if cfg.ContextWindow > 0 {
		windowCfg.MaxTokens = cfg.ContextWindow
	}

	action := cfg.InjectionAction
	switch action {
	case "log", "warn", "block", "off":
	default:
		action = "warn"
	}

	guard := cfg.InputGuard
	if guard == nil && action != "off" {
		guard = NewInputGuard()
	}

	return &Loop{
		id:                     cfg.ID,
		provider:               cfg.Provider,
		model:                  cfg.Model,
		maxIterations:          cfg.MaxIterations,
		maxConcurrentTools:     cfg.MaxConcurrentTools,
		workspace:              cfg.Workspace,
		sessions:               cfg.Sessions,
		tools:                  cfg.Tools,
		toolPolicy:             cfg.ToolPolicy,
		agentToolPolicy:        cfg.AgentToolPolicy,
		isSubagent:             cfg.IsSubagent,
		isLeafAgent:            cfg.IsLeafAgent,
		windowCfg:              windowCfg,
		sandboxEnabled:         cfg.SandboxEnabled,
		sandboxContainerDir:    cfg.SandboxContainerDir,
		sandboxWorkspaceAccess: cfg.SandboxWorkspaceAccess,
		onEvent:                cfg.OnEvent,
		inputGuard:             guard,
		injectionAction:        action,
		maxMessageChars:        cfg.MaxMessageChars,
		builtinToolSettings:    cfg.BuiltinToolSettings,
		thinkingLevel:          cfg.ThinkingLevel,
	}
}

// RunRequest is the input for processing one user turn through the agent.
type RunRequest struct {
	SessionKey        string // session identifier; also the sandbox routing key
	Message           string // user message
	Media             []string // local file paths to images (already sanitized)
	RunID             string   // unique run identifier
	UserID            string   // external user ID, used for per-user workspace isolation
	Stream            bool     // whether to stream response chunks
	ExtraSystemPrompt string   // optional: injected into system prompt (sub-agent task framing, etc.)
	HistoryLimit      int      // max user turns to keep in context (0 = unlimited)
	Steering          *SteeringHandle // optional: pause/resume/stop control for this run
}

// RunResult is the output of a completed agent run.
type RunResult struct {
	Content    string           `json:"content"`
	RunID      string           `json:"runId"`
	Iterations int              `json:"iterations"`
	Usage      *providers.Usage `json:"usage,omitempty"`
	Media      []MediaResult    `json:"media,omitempty"`
	Stopped    bool             `json:"stopped,omitempty"`
	StopReason string           `json:"stopReason,omitempty"`
}

// MediaResult represents a media file produced by a tool during the agent run.
type MediaResult struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
	AsVoice     bool   `json:"as_voice,omitempty"`
}

// Run processes a single user turn through the agent loop, blocking until
// completion, a steering Stop, or the turn limit.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	l.activeRuns.Add(1)
	defer l.activeRuns.Add(-1)

	if req.RunID == "" {
		req.RunID = store.GenNewID().String()
	}

	l.emit(AgentEvent{Type: protocol.AgentEventRunStarted, AgentID: l.id, RunID: req.RunID})

	result, err := l.runLoop(ctx, req)
	if err != nil {
		l.emit(AgentEvent{
			Type:    protocol.AgentEventRunFailed,
			AgentID: l.id,
			RunID:   req.RunID,
			Payload: map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	l.emit(AgentEvent{Type: protocol.AgentEventRunCompleted, AgentID: l.id, RunID: req.RunID})
	return result, nil
}

func (l *Loop) runLoop(ctx context.Context, req RunRequest) (*RunResult, error) {
	// Inject per-agent vision/imagegen config for read_image/create_image tools.
	if l.agentToolPolicy != nil {
		if l.agentToolPolicy.Vision != nil {
			ctx = tools.WithVisionConfig(ctx, l.agentToolPolicy.Vision)
		}
		if l.agentToolPolicy.ImageGen != nil {
			ctx = tools.WithImageGenConfig(ctx, l.agentToolPolicy.ImageGen)
		}
	}
	if l.builtinToolSettings != nil {
		ctx = tools.WithBuiltinToolSettings(ctx, l.builtinToolSettings)
	}
	// Sandbox key routes exec/filesystem/session tools to the right container.
	ctx = tools.WithToolSandboxKey(ctx, req.SessionKey)

	// Per-user workspace isolation: each user gets a subdirectory within
	// the agent's workspace.
	if l.workspace != "" {
		effectiveWorkspace := l.workspace
		if req.UserID != "" {
			effectiveWorkspace = filepath.Join(l.workspace, sanitizePathSegment(req.UserID))
			if err := os.MkdirAll(effectiveWorkspace, 0755); err != nil {
				slog.Warn("failed to create user workspace directory", "workspace", effectiveWorkspace, "user", req.UserID, "error", err)
			}
		}
		ctx = tools.WithToolWorkspace(ctx, effectiveWorkspace)
	}

	// Security: scan user message for injection patterns.
	if l.inputGuard != nil {
		if matches := l.inputGuard.Scan(req.Message); len(matches) > 0 {
			matchStr := strings.Join(matches, ",")
			switch l.injectionAction {
			case "block":
				slog.Warn("security.injection_blocked", "agent", l.id, "user", req.UserID, "patterns", matchStr)
				return nil, fmt.Errorf("message blocked: potential prompt injection detected (%s)", matchStr)
			case "log":
				slog.Info("security.injection_detected", "agent", l.id, "user", req.UserID, "patterns", matchStr)
			default:
				slog.Warn("security.injection_detected", "agent", l.id, "user", req.UserID, "patterns", matchStr)
			}
		}
	}

	// Security: truncate oversized user messages gracefully.
	maxChars := l.maxMessageChars
	if maxChars <= 0 {
		maxChars = 32_000
	}
	if len(req.Message) > maxChars {
		originalLen := len(req.Message)
		req.Message = req.Message[:maxChars] +
			fmt.Sprintf("\n\n[System: Message was truncated from %d to %d characters due to size limit. "+
				"Please ask the user to send shorter messages or use the read_file tool for large content.]",
				originalLen, maxChars)
		slog.Warn("security.message_truncated", "agent", l.id, "user", req.UserID, "original_len", originalLen, "truncated_to", maxChars)
	}

	// Cache the agent's effective context window on the session.
	if l.sessions.GetContextWindow(req.SessionKey) <= 0 {
		l.sessions.SetContextWindow(req.SessionKey, l.windowCfg.MaxTokens)
	}

	history := l.sessions.GetHistory(req.SessionKey)
	summary := l.sessions.GetSummary(req.SessionKey)

	messages := l.buildMessages(history, summary, req.Message, req.ExtraSystemPrompt, req.HistoryLimit)

	// Attach vision images to the current user message only; never persisted
	// in session history.
	if len(req.Media) > 0 {
		if images := loadImages(req.Media); len(images) > 0 {
			messages[len(messages)-1].Images = images
			ctx = tools.WithMediaImages(ctx, images)
			slog.Info("vision: attached images to user message", "count", len(images), "agent", l.id, "session", req.SessionKey)
		}
		for _, p := range req.Media {
			if err := os.Remove(p); err != nil {
				slog.Debug("vision: failed to clean temp media file", "path", p, "error", err)
			}
		}
	}

	// Buffer new messages; flushed to the session only after the run
	// completes, so concurrent runs never see each other's in-progress state.
	pendingMsgs := []providers.Message{{Role: "user", Content: req.Message}}

	var loopDetector toolLoopState
	var totalUsage providers.Usage
	iteration := 0
	var finalContent string
	var mediaResults []MediaResult
	var stopped bool
	var stopReason string

	steer := req.Steering
	if steer != nil {
		steer.SetOnChange(func(state SteeringState, reason string) {
			switch state {
			case SteeringPaused:
				l.emit(AgentEvent{Type: protocol.AgentEventPaused, AgentID: l.id, RunID: req.RunID})
			case SteeringRunning:
				l.emit(AgentEvent{Type: protocol.AgentEventResumed, AgentID: l.id, RunID: req.RunID})
			}
		})
	}

	for iteration < l.maxIterations {
		if steer != nil {
			steer.WaitIfPaused(ctx)
			if steer.Stopped() {
				_, stopReason = steer.State()
				stopped = true
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iteration++
		turnCtx, turnSpan := tracing.StartTurn(ctx, req.SessionKey, iteration)
		l.emit(AgentEvent{Type: protocol.AgentEventTurnStart, AgentID: l.id, RunID: req.RunID, Payload: map[string]int{"turn": iteration}})

		slog.Debug("agent iteration", "agent", l.id, "iteration", iteration, "messages", len(messages))

		var toolDefs []providers.ToolDefinition
		if l.toolPolicy != nil {
			toolDefs = l.toolPolicy.FilterTools(l.tools, l.id, l.provider.Name(), l.agentToolPolicy, nil, l.isSubagent, l.isLeafAgent)
		} else {
			toolDefs = l.tools.AllDefinitions()
		}

		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
			Model:    l.model,
			Options: map[string]interface{}{
				providers.OptMaxTokens:   8192,
				providers.OptTemperature: 0.7,
			},
		}
		if l.thinkingLevel != "" && l.thinkingLevel != "off" {
			if tc, ok := l.provider.(providers.ThinkingCapable); ok && tc.SupportsThinking() {
				chatReq.Options[providers.OptThinkingLevel] = l.thinkingLevel
			} else {
				slog.Debug("thinking_level ignored: provider does not support thinking", "provider", l.provider.Name(), "level", l.thinkingLevel)
			}
		}

		llmCtx, llmSpan := tracing.StartLLMCall(turnCtx, l.provider.Name(), l.model, iteration)

		var resp *providers.ChatResponse
		var err error
		if req.Stream {
			resp, err = l.provider.ChatStream(llmCtx, chatReq, func(chunk providers.StreamChunk) {
				if steer != nil {
					steer.WaitIfPaused(llmCtx)
				}
				if chunk.Thinking != "" {
					l.emit(AgentEvent{Type: protocol.AgentEventThinking, AgentID: l.id, RunID: req.RunID, Payload: map[string]string{"content": chunk.Thinking}})
				}
				if chunk.Content != "" {
					l.emit(AgentEvent{Type: protocol.AgentEventText, AgentID: l.id, RunID: req.RunID, Payload: map[string]string{"content": chunk.Content}})
				}
			})
		} else {
			resp, err = l.provider.Chat(llmCtx, chatReq)
		}

		if err != nil {
			llmSpan.End()
			turnSpan.End()
			perr := providers.Classify(err)
			l.emit(AgentEvent{Type: protocol.AgentEventError, AgentID: l.id, RunID: req.RunID, Payload: map[string]string{"error": perr.Error()}})
			return nil, fmt.Errorf("LLM call failed (iteration %d): %w", iteration, perr)
		}
		llmSpan.End()

		if resp.Usage != nil {
			totalUsage.PromptTokens += resp.Usage.PromptTokens
			totalUsage.CompletionTokens += resp.Usage.CompletionTokens
			totalUsage.TotalTokens += resp.Usage.TotalTokens
			totalUsage.ThinkingTokens += resp.Usage.ThinkingTokens
			l.emit(AgentEvent{Type: protocol.AgentEventUsage, AgentID: l.id, RunID: req.RunID, Payload: map[string]int{
				"input_tokens": resp.Usage.PromptTokens, "output_tokens": resp.Usage.CompletionTokens,
			}})
		}

		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			l.emit(AgentEvent{Type: protocol.AgentEventTurnComplete, AgentID: l.id, RunID: req.RunID, Payload: map[string]int{"turn": iteration}})
			turnSpan.End()
			break
		}

		assistantMsg := providers.Message{
			Role:                "assistant",
			Content:             resp.Content,
			ToolCalls:           resp.ToolCalls,
			RawAssistantContent: resp.RawAssistantContent,
		}
		messages = append(messages, assistantMsg)
		pendingMsgs = append(pendingMsgs, assistantMsg)

		if steer != nil {
			steer.WaitIfPaused(turnCtx)
			if steer.Stopped() {
				_, stopReason = steer.State()
				stopped = true
				turnSpan.End()
				break
			}
		}

		calls := make([]tools.Call, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			calls[i] = tools.Call{Index: i, ID: tc.ID, Name: tc.Name, Args: tc.Arguments}
			l.emit(AgentEvent{Type: protocol.AgentEventToolStart, AgentID: l.id, RunID: req.RunID, Payload: map[string]interface{}{"name": tc.Name, "id": tc.ID}})
			argsJSON, _ := json.Marshal(tc.Arguments)
			slog.Info("tool call", "agent", l.id, "tool", tc.Name, "args_len", len(argsJSON))
		}

		dispatchCtx, dispatchSpan := tracing.StartToolCall(turnCtx, fmt.Sprintf("batch[%d]", len(calls)), "")
		results := tools.ExecuteSmartParallel(dispatchCtx, l.tools, calls, l.maxConcurrentTools, nil)
		dispatchSpan.End()

		var loopStuck bool
		for _, r := range results {
			argsHash := loopDetector.record(calls[r.Index].Name, calls[r.Index].Args)
			loopDetector.recordResult(argsHash, r.Result.ForLLM)

			if r.Result.IsError {
				errMsg := r.Result.ForLLM
				if len(errMsg) > 200 {
					errMsg = errMsg[:200] + "..."
				}
				slog.Warn("tool error", "agent", l.id, "tool", r.Result.Provider, "error", errMsg)
			}

			l.emit(AgentEvent{
				Type: protocol.AgentEventToolComplete, AgentID: l.id, RunID: req.RunID,
				Payload: map[string]interface{}{"name": calls[r.Index].Name, "id": r.ID, "is_error": r.Result.IsError},
			})

			if mr := parseMediaResult(r.Result.ForLLM); mr != nil {
				mediaResults = append(mediaResults, *mr)
			}

			toolMsg := providers.Message{Role: "tool", Content: r.Result.ForLLM, ToolCallID: r.ID}
			messages = append(messages, toolMsg)
			pendingMsgs = append(pendingMsgs, toolMsg)

			if level, msg := loopDetector.detect(calls[r.Index].Name, argsHash); level != "" {
				if level == "critical" {
					slog.Warn("tool loop critical", "agent", l.id, "tool", calls[r.Index].Name, "message", msg)
					finalContent = "I was unable to complete this task — I got stuck repeatedly calling " + calls[r.Index].Name + " without making progress. Please try rephrasing your request."
					loopStuck = true
					break
				}
				slog.Warn("tool loop warning", "agent", l.id, "tool", calls[r.Index].Name, "message", msg)
				messages = append(messages, providers.Message{Role: "user", Content: msg})
			}
		}

		turnSpan.End()
		if loopStuck {
			break
		}
	}

	if !stopped && iteration >= l.maxIterations && finalContent == "" {
		return nil, fmt.Errorf("turn limit exceeded (%d iterations)", l.maxIterations)
	}

	finalContent = SanitizeAssistantContent(finalContent)
	isSilent := IsSilentReply(finalContent)

	if finalContent == "" && !stopped {
		finalContent = "..."
	}

	if !stopped {
		pendingMsgs = append(pendingMsgs, providers.Message{Role: "assistant", Content: finalContent})
	}

	for _, msg := range pendingMsgs {
		l.sessions.AddMessage(req.SessionKey, msg)
	}

	l.sessions.UpdateMetadata(req.SessionKey, l.model, l.provider.Name(), "")
	l.sessions.AccumulateTokens(req.SessionKey, int64(totalUsage.PromptTokens), int64(totalUsage.CompletionTokens))

	if totalUsage.PromptTokens > 0 {
		msgCount := len(history) + len(pendingMsgs)
		l.sessions.SetLastPromptTokens(req.SessionKey, totalUsage.PromptTokens, msgCount)
	}

	l.sessions.Save(req.SessionKey)

	if isSilent {
		slog.Info("agent loop: NO_REPLY detected, suppressing delivery", "agent", l.id, "session", req.SessionKey)
		finalContent = ""
	}

	if stopped {
		l.emit(AgentEvent{Type: protocol.AgentEventStopped, AgentID: l.id, RunID: req.RunID, Payload: map[string]string{"reason": stopReason}})
	} else {
		l.emit(AgentEvent{Type: protocol.AgentEventDone, AgentID: l.id, RunID: req.RunID})
		l.maybeCompress(ctx, req, l.sessions.GetHistory(req.SessionKey))
	}

	return &RunResult{
		Content:    finalContent,
		RunID:      req.RunID,
		Iterations: iteration,
		Usage:      &totalUsage,
		Media:      mediaResults,
		Stopped:    stopped,
		StopReason: stopReason,
	}, nil
}

// parseMediaResult extracts a MediaResult from a tool result string containing "MEDIA:" prefix.
// Handles formats: "MEDIA:/path/to/file" and "[[audio_as_voice]]\nMEDIA:/path/to/file".
// Returns nil if no MEDIA: prefix is found.
func parseMediaResult(toolOutput string) *MediaResult {
	s := toolOutput
	asVoice := false

	if strings.Contains(s, "[[audio_as_voice]]") {
		asVoice = true
		s = strings.ReplaceAll(s, "[[audio_as_voice]]", "")
		s = strings.TrimSpace(s)
	}

	idx := strings.Index(s, "MEDIA:")
	if idx < 0 {
		return nil
	}
	path := strings.TrimSpace(s[idx+6:])
	if path == "" {
		return nil
	}
	if nl := strings.IndexByte(path, '\n'); nl >= 0 {
		path = strings.TrimSpace(path[:nl])
	}

	return &MediaResult{
		Path:        path,
		ContentType: mimeFromExt(filepath.Ext(path)),
		AsVoice:     asVoice,
	}
}

// mimeFromExt returns a MIME type for common media file extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// sanitizePathSegment makes a userID safe for use as a directory name.
func sanitizePathSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
