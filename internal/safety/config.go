package safety

// ParseRiskLevel maps a RiskLevel.String() form back to its RiskLevel,
// falling back to ok=false for an empty or unrecognized name so callers can
// keep a preset's default threshold.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch s {
	case "read_only":
		return RiskReadOnly, true
	case "safe_write":
		return RiskSafeWrite, true
	case "caution":
		return RiskCaution, true
	case "dangerous":
		return RiskDangerous, true
	case "forbidden":
		return RiskForbidden, true
	case "interactive":
		return RiskInteractive, true
	default:
		return RiskUnknown, false
	}
}

// PolicyFromConfig builds a Policy starting from DefaultPolicy and applying
// any overrides present in the arguments, mirroring the config surface
// config.SafetyConfig exposes without this package importing internal/config.
func PolicyFromConfig(approvalThreshold, denyThreshold string, allowNetwork, allowPipeRedirect bool, customDenyPatterns []string) Policy {
	p := DefaultPolicy()
	if lvl, ok := ParseRiskLevel(approvalThreshold); ok {
		p.ApprovalThreshold = lvl
	}
	if lvl, ok := ParseRiskLevel(denyThreshold); ok {
		p.DenyThreshold = lvl
	}
	p.AllowNetwork = allowNetwork
	p.AllowPipeRedirect = allowPipeRedirect
	p.CustomDenyPatterns = customDenyPatterns
	return p
}
