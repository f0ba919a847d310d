package contextmgr

import "time"

// Role identifies the speaker of a context message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn held in the context window.
type Message struct {
	Role        Role
	Content     string
	CreatedAt   time.Time
	TokenCount  int
	Summarized  bool // true once its content has been folded into a checkpoint summary
}

// NewMessage builds a Message with its token count pre-computed.
func NewMessage(role Role, content string, at time.Time) Message {
	return Message{Role: role, Content: content, CreatedAt: at, TokenCount: EstimateMessageTokens(content)}
}

// ToolResult is a recorded tool execution, tracked separately from chat
// Messages so compression/restore can move the two independently.
type ToolResult struct {
	ToolName   string
	CallID     string
	Output     string
	TokenCount int
	ExecutedAt time.Time
}

// WindowConfig bounds how much of the context window is usable and when
// summarization should kick in, with presets per model family.
type WindowConfig struct {
	MaxTokens               int
	ReservedForResponse     int // tokens held back for the model's own output
	SummarizationThreshold  float64 // usage ratio at which auto-compression triggers
	MinPreservedMessages    int     // never evict below this many recent messages
	MaxCheckpoints          int
	MaxBackupTokens         int // cap on tokens retained across all checkpoints combined
	PreRot                  PreRotConfig
}

// DefaultWindowConfig is a reasonable general-purpose profile.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxTokens:              200_000,
		ReservedForResponse:    8_192,
		SummarizationThreshold: 0.85,
		MinPreservedMessages:   10,
		MaxCheckpoints:         20,
		MaxBackupTokens:        400_000,
		PreRot:                 ConservativePreRotConfig(),
	}
}

// ForModel returns a WindowConfig tuned for a known model family, falling
// back to DefaultWindowConfig for anything unrecognized.
func ForModel(model string) WindowConfig {
	switch model {
	case "claude-sonnet-4-5-20250929", "claude-opus-4-1-20250805":
		cfg := DefaultWindowConfig()
		cfg.MaxTokens = 200_000
		return cfg
	case "gpt-4o", "gpt-4.1":
		cfg := DefaultWindowConfig()
		cfg.MaxTokens = 128_000
		return cfg
	default:
		return DefaultWindowConfig()
	}
}

// AvailableTokens is MaxTokens minus the reserve held back for the response.
func (c WindowConfig) AvailableTokens() int {
	avail := c.MaxTokens - c.ReservedForResponse
	if avail < 0 {
		return 0
	}
	return avail
}

// UsageRatio reports usedTokens as a fraction of AvailableTokens, clamped to
// [0, 1].
func (c WindowConfig) UsageRatio(usedTokens int) float64 {
	avail := c.AvailableTokens()
	if avail <= 0 {
		return 1
	}
	ratio := float64(usedTokens) / float64(avail)
	if ratio > 1 {
		return 1
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}

// NeedsSummarization reports whether usedTokens has crossed the
// summarization threshold.
func (c WindowConfig) NeedsSummarization(usedTokens int) bool {
	return c.UsageRatio(usedTokens) >= c.SummarizationThreshold
}

// WindowStatus is a point-in-time snapshot of window occupancy.
type WindowStatus struct {
	UsedTokens      int
	AvailableTokens int
	UsagePercent    float64
	MessageCount    int
}
