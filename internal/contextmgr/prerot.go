package contextmgr

import "fmt"

// PreRotLevel classifies how degraded the context window has become.
type PreRotLevel int

const (
	PreRotHealthy PreRotLevel = iota
	PreRotWarning
	PreRotCritical
	PreRotDegraded
	PreRotFull
)

func (l PreRotLevel) String() string {
	switch l {
	case PreRotHealthy:
		return "healthy"
	case PreRotWarning:
		return "warning"
	case PreRotCritical:
		return "critical"
	case PreRotDegraded:
		return "degraded"
	default:
		return "full"
	}
}

// PreRotAction is what the pipeline recommends once a level is reached.
type PreRotAction int

const (
	ActionNone PreRotAction = iota
	ActionWarn
	ActionSuggestHandoff
	ActionCompress
	ActionForceHandoff
)

// PreRotConfig tunes the usage-ratio thresholds and the action taken at
// each one.
type PreRotConfig struct {
	Enabled             bool
	WarningThreshold    float64
	CriticalThreshold   float64
	DegradationThreshold float64
	WarningAction       PreRotAction
	CriticalAction      PreRotAction
}

// ConservativePreRotConfig warns early and compresses before quality drops
// much.
func ConservativePreRotConfig() PreRotConfig {
	return PreRotConfig{
		Enabled:              true,
		WarningThreshold:     0.50,
		CriticalThreshold:    0.75,
		DegradationThreshold: 0.90,
		WarningAction:        ActionWarn,
		CriticalAction:       ActionCompress,
	}
}

// AggressivePreRotConfig lets the window run hotter before acting.
func AggressivePreRotConfig() PreRotConfig {
	return PreRotConfig{
		Enabled:              true,
		WarningThreshold:     0.70,
		CriticalThreshold:    0.88,
		DegradationThreshold: 0.96,
		WarningAction:        ActionNone,
		CriticalAction:       ActionSuggestHandoff,
	}
}

// DisabledPreRotConfig turns pre-rot detection off entirely.
func DisabledPreRotConfig() PreRotConfig {
	return PreRotConfig{Enabled: false}
}

// PreRotStatus is the full result of evaluating pre-rot for a window state.
type PreRotStatus struct {
	UsagePercent          float64
	Level                 PreRotLevel
	EstimatedQuality      float64
	RecommendedAction     PreRotAction
	MessagesSinceSignificant int
	HandoffRecommended    bool
	HandoffReason         string
}

// EstimateQuality implements the piecewise-linear quality curve: 1.0 up to
// 25% usage, decaying to 0.85 at 50%, 0.60 at 75%, and down to 0.10 at full
// usage, floored at 0.10.
func EstimateQuality(usageRatio float64) float64 {
	switch {
	case usageRatio <= 0.25:
		return 1.0
	case usageRatio <= 0.50:
		// 1.0 -> 0.85 over [0.25, 0.50]
		return 1.0 - (usageRatio-0.25)*(0.15/0.25)
	case usageRatio <= 0.75:
		// 0.85 -> 0.60 over [0.50, 0.75]
		return 0.85 - (usageRatio-0.50)*(0.25/0.25)
	default:
		// 0.60 -> 0.10 over [0.75, 1.0]
		q := 0.60 - (usageRatio-0.75)*(0.50/0.25)
		if q < 0.10 {
			q = 0.10
		}
		return q
	}
}

// CountMessagesSinceSignificant counts trailing messages (most recent first)
// whose token count is below the "significant" threshold, stopping at the
// first message that meets or exceeds it.
func CountMessagesSinceSignificant(messages []Message) int {
	const significantTokens = 500
	count := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].TokenCount >= significantTokens {
			break
		}
		count++
	}
	return count
}

// Status computes the PreRotStatus for the given config, usage ratio, and
// message history.
func Status(cfg PreRotConfig, usageRatio float64, messages []Message, needsTruncation bool) PreRotStatus {
	if !cfg.Enabled {
		return PreRotStatus{
			UsagePercent:      usageRatio * 100,
			Level:             PreRotHealthy,
			EstimatedQuality:  1.0,
			RecommendedAction: ActionNone,
		}
	}

	level := PreRotHealthy
	switch {
	case needsTruncation:
		level = PreRotFull
	case usageRatio >= cfg.DegradationThreshold:
		level = PreRotDegraded
	case usageRatio >= cfg.CriticalThreshold:
		level = PreRotCritical
	case usageRatio >= cfg.WarningThreshold:
		level = PreRotWarning
	}

	quality := EstimateQuality(usageRatio)

	var action PreRotAction
	switch level {
	case PreRotHealthy:
		action = ActionNone
	case PreRotWarning:
		action = cfg.WarningAction
	case PreRotCritical, PreRotDegraded:
		action = cfg.CriticalAction
	case PreRotFull:
		action = ActionForceHandoff
	}

	handoffRecommended, reason := shouldRecommendHandoff(level, usageRatio)

	return PreRotStatus{
		UsagePercent:             usageRatio * 100,
		Level:                    level,
		EstimatedQuality:         quality,
		RecommendedAction:        action,
		MessagesSinceSignificant: CountMessagesSinceSignificant(messages),
		HandoffRecommended:       handoffRecommended,
		HandoffReason:            reason,
	}
}

func shouldRecommendHandoff(level PreRotLevel, usageRatio float64) (bool, string) {
	switch level {
	case PreRotHealthy:
		return false, ""
	case PreRotWarning:
		if usageRatio > 0.30 {
			return false, "consider preparing a handoff summary"
		}
		return false, ""
	case PreRotCritical:
		return true, fmt.Sprintf("context at %.0f%% capacity, handoff recommended to maintain quality", usageRatio*100)
	case PreRotDegraded:
		return true, "context heavily degraded, quality likely compromised; handoff recommended"
	default:
		return true, "context full, handoff required"
	}
}
