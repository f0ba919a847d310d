package safety

import "strings"

// defaultDenyEnvPatterns are suffix/substring matches on environment variable
// names that are stripped from spawned subprocess environments by default —
// the common shapes credentials and tokens take.
var defaultDenyEnvPatterns = []string{
	"_KEY", "_TOKEN", "_SECRET", "_PASSWORD", "AWS_", "_CREDENTIALS",
}

// FilterEnv returns the subset of base ("KEY=value" entries, as from
// os.Environ()) that may be passed to a spawned process, honoring an
// explicit allow-list (if non-empty, only these names pass) and an
// explicit deny-list layered on top of the default secret-shaped patterns.
func FilterEnv(base []string, allow, deny []string) []string {
	allowSet := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowSet[a] = true
	}
	denySet := make(map[string]bool, len(deny))
	for _, d := range deny {
		denySet[d] = true
	}

	out := make([]string, 0, len(base))
	for _, kv := range base {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if len(allowSet) > 0 && !allowSet[name] {
			continue
		}
		if denySet[name] {
			continue
		}
		if matchesSecretPattern(name) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func matchesSecretPattern(name string) bool {
	upper := strings.ToUpper(name)
	for _, p := range defaultDenyEnvPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
