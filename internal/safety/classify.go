// Package safety classifies commands and tool calls by risk and decides
// whether they may run, must be denied, or require a user decision.
package safety

import (
	"regexp"
	"strings"
)

// RiskLevel orders command risk from read-only to outright forbidden.
type RiskLevel int

const (
	RiskReadOnly RiskLevel = iota
	RiskSafeWrite
	RiskCaution
	RiskDangerous
	RiskForbidden
	RiskInteractive
	RiskUnknown
)

func (r RiskLevel) String() string {
	switch r {
	case RiskReadOnly:
		return "read_only"
	case RiskSafeWrite:
		return "safe_write"
	case RiskCaution:
		return "caution"
	case RiskDangerous:
		return "dangerous"
	case RiskForbidden:
		return "forbidden"
	case RiskInteractive:
		return "interactive"
	default:
		return "unknown"
	}
}

// RiskAnalysis is the outcome of classifying a single command or tool call.
type RiskAnalysis struct {
	Level   RiskLevel
	Score   int // 0-10
	Reasons []string

	// RequiresConfirmation reports whether this risk level warrants a user
	// decision before running, independent of any policy's ApprovalThreshold
	// (RiskReadOnly and RiskSafeWrite are the only levels that don't).
	RequiresConfirmation bool

	// MatchedRule names the specific pattern, command, or path that drove
	// this classification (e.g. "rm -rf /", "git push", ".ssh"); for an
	// unrecognized command it is the base command, and it is empty for the
	// read-only fallback that matched nothing in particular.
	MatchedRule string
}

// requiresConfirmation reports whether level needs a user decision before
// the command runs; only read-only and local-write commands are exempt.
func requiresConfirmation(level RiskLevel) bool {
	return level != RiskReadOnly && level != RiskSafeWrite
}

// PermissionDecision is what the pipeline resolves a RiskAnalysis into.
type PermissionDecision struct {
	Allow        bool
	AllowSession bool // caller should remember this as "allowed for the rest of the session"
	AskUser      bool
	Deny         bool
	Reason       string
}

func allow() PermissionDecision { return PermissionDecision{Allow: true} }
func allowSession(reason string) PermissionDecision {
	return PermissionDecision{Allow: true, AllowSession: true, Reason: reason}
}
func ask(reason string) PermissionDecision { return PermissionDecision{AskUser: true, Reason: reason} }
func deny(reason string) PermissionDecision { return PermissionDecision{Deny: true, Reason: reason} }

// forbiddenPatterns are substring matches that are always denied regardless
// of policy, mirroring shell_policy.rs's default_denied_commands and the
// teacher's defaultDenyPatterns.
var forbiddenPatterns = []string{
	"rm -rf /", "rm -rf /*", "rm -rf ~", "rm -rf .",
	":(){ :|:& };:",
	"mkfs", "dd if=/dev/zero", "dd if=/dev/random", "> /dev/sda",
	"del /f /s /q c:\\", "rd /s /q c:\\",
	"shutdown", "reboot", "halt", "poweroff", "init 0", "init 6",
	"chmod 777 /", "chown root",
	"nc -e", "ncat -e", "bash -i >& /dev/tcp",
	"passwd", "visudo", "/etc/shadow", "authorized_keys",
	"apt-get remove --purge", "yum remove", "pip uninstall -y", "npm uninstall -g",
}

// criticalPatterns raise risk to RiskDangerous with score 9 even when not
// on the hard deny list outright (assess_risk in shell_policy.rs).
var criticalPatterns = []string{
	"rm -rf", "rm -fr", "rm -r -f", "mkfs", "dd if=",
	"format c:", "del /f /s /q c:", "> /dev/sd", "chmod 777 /",
}

var sensitivePaths = []string{
	"/etc", "/boot", "/root", "/var/log", "/usr/bin", "/usr/sbin",
	"c:\\windows", ".ssh", ".gnupg", ".aws", ".azure", ".kube", ".docker",
	".env", ".bashrc", ".zshrc", ".profile",
}

var networkCommands = []string{
	"curl", "wget", "fetch", "nc", "ncat", "netcat", "ssh", "scp", "rsync",
	"ftp", "sftp", "telnet",
}

var pipeRedirectPatterns = []string{" | ", " > ", " >> ", " < ", " 2>"}

var highRiskCommands = map[string]bool{
	"rm": true, "rmdir": true, "del": true, "rd": true, "unlink": true, "truncate": true,
}

var mediumRiskCommands = []string{
	"git push", "git reset", "git checkout", "git clean",
	"npm publish", "cargo publish",
	"chmod", "chown", "chgrp",
	"kill", "pkill", "killall",
}

var lowRiskCommands = []string{
	"mv", "cp", "mkdir", "touch", "git add", "git commit", "npm install", "yarn add",
}

var readOnlyBaseCommands = map[string]bool{
	"ls": true, "dir": true, "pwd": true, "cd": true, "cat": true, "head": true,
	"tail": true, "less": true, "more": true, "find": true, "grep": true,
	"rg": true, "ag": true, "tree": true, "file": true, "stat": true, "wc": true,
	"echo": true, "printf": true, "date": true, "whoami": true, "hostname": true,
	"env": true, "which": true, "where": true, "type": true,
}

var interactiveCommands = map[string]bool{
	"vim": true, "vi": true, "nano": true, "emacs": true, "less": true,
	"top": true, "htop": true, "ssh": true, "python": true, "python3": true,
	"node": true, "irb": true, "psql": true, "mysql": true, "sqlite3": true,
}

// Policy tunes the thresholds and allow/deny overrides used by Classify and
// Evaluate. The three presets below mirror ShellPolicy::default/strict/permissive.
type Policy struct {
	DeniedCommands     []string
	AllowedCommands    []string
	DeniedPaths        []string
	AllowedPaths       []string
	AllowNetwork       bool
	AllowPipeRedirect  bool
	ApprovalThreshold  RiskLevel // at/above this level (and below DenyThreshold), ask the user
	DenyThreshold      RiskLevel // at/above this level, deny outright
	CustomDenyPatterns []string
}

// DefaultPolicy matches ShellPolicy::default(): permissive enough for normal
// coding work, still asks before anything destructive.
func DefaultPolicy() Policy {
	return Policy{
		AllowNetwork:      true,
		AllowPipeRedirect: true,
		ApprovalThreshold: RiskDangerous,
		DenyThreshold:     RiskForbidden,
	}
}

// StrictPolicy matches ShellPolicy::strict(): asks much more readily and
// refuses network/pipe use outright.
func StrictPolicy() Policy {
	return Policy{
		AllowNetwork:      false,
		AllowPipeRedirect: false,
		ApprovalThreshold: RiskCaution,
		DenyThreshold:     RiskDangerous,
	}
}

// PermissivePolicy matches ShellPolicy::permissive(): only outright forbidden
// commands are blocked, everything else runs.
func PermissivePolicy() Policy {
	return Policy{
		AllowNetwork:      true,
		AllowPipeRedirect: true,
		ApprovalThreshold: RiskForbidden,
		DenyThreshold:     RiskForbidden,
	}
}

func extractBaseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func containsAny(haystack string, needles []string) (string, bool) {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return n, true
		}
	}
	return "", false
}

// Classify assigns a RiskAnalysis to a raw shell command. It does not
// consult policy allow/deny overrides; use Evaluate for the full decision.
func Classify(command string) RiskAnalysis {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return RiskAnalysis{Level: RiskReadOnly, Score: 0}
	}

	if m, ok := containsAny(trimmed, forbiddenPatterns); ok {
		return RiskAnalysis{Level: RiskForbidden, Score: 10, Reasons: []string{"matches forbidden pattern: " + m}, RequiresConfirmation: requiresConfirmation(RiskForbidden), MatchedRule: m}
	}
	if m, ok := containsAny(trimmed, criticalPatterns); ok {
		return RiskAnalysis{Level: RiskDangerous, Score: 9, Reasons: []string{"matches critical pattern: " + m}, RequiresConfirmation: requiresConfirmation(RiskDangerous), MatchedRule: m}
	}

	base := extractBaseCommand(trimmed)

	if p, ok := containsAny(trimmed, sensitivePaths); ok {
		if isWriteOrDelete(base) {
			return RiskAnalysis{Level: RiskDangerous, Score: 8, Reasons: []string{"write/delete under sensitive path " + p}, RequiresConfirmation: requiresConfirmation(RiskDangerous), MatchedRule: p}
		}
		return RiskAnalysis{Level: RiskCaution, Score: 5, Reasons: []string{"read under sensitive path " + p}, RequiresConfirmation: requiresConfirmation(RiskCaution), MatchedRule: p}
	}

	if interactiveCommands[base] {
		return RiskAnalysis{Level: RiskInteractive, Score: 4, Reasons: []string{"launches an interactive program: " + base}, RequiresConfirmation: requiresConfirmation(RiskInteractive), MatchedRule: base}
	}

	if _, ok := containsAny(trimmed, networkCommands); ok {
		return RiskAnalysis{Level: RiskCaution, Score: 4, Reasons: []string{"network command: " + base}, RequiresConfirmation: requiresConfirmation(RiskCaution), MatchedRule: base}
	}
	if _, ok := containsAny(trimmed, pipeRedirectPatterns); ok {
		return RiskAnalysis{Level: RiskCaution, Score: 3, Reasons: []string{"uses pipe/redirect"}, RequiresConfirmation: requiresConfirmation(RiskCaution), MatchedRule: "pipe/redirect"}
	}

	if highRiskCommands[base] {
		hasForceFlag := strings.Contains(trimmed, "-r") || strings.Contains(trimmed, "-f") ||
			strings.Contains(trimmed, "/s") || strings.Contains(trimmed, "/q")
		if hasForceFlag {
			return RiskAnalysis{Level: RiskDangerous, Score: 7, Reasons: []string{"recursive/forced delete: " + base}, RequiresConfirmation: requiresConfirmation(RiskDangerous), MatchedRule: base}
		}
		return RiskAnalysis{Level: RiskCaution, Score: 5, Reasons: []string{"delete command: " + base}, RequiresConfirmation: requiresConfirmation(RiskCaution), MatchedRule: base}
	}

	if m, ok := containsAny(trimmed, mediumRiskCommands); ok {
		return RiskAnalysis{Level: RiskCaution, Score: 4, Reasons: []string{"mutates shared state: " + m}, RequiresConfirmation: requiresConfirmation(RiskCaution), MatchedRule: m}
	}

	if m, ok := containsAny(trimmed, lowRiskCommands); ok {
		return RiskAnalysis{Level: RiskSafeWrite, Score: 2, Reasons: []string{"local write: " + m}, RequiresConfirmation: requiresConfirmation(RiskSafeWrite), MatchedRule: m}
	}

	if readOnlyBaseCommands[base] {
		return RiskAnalysis{Level: RiskReadOnly, Score: 0}
	}

	return RiskAnalysis{Level: RiskUnknown, Score: 3, Reasons: []string{"unrecognized command: " + base}, RequiresConfirmation: requiresConfirmation(RiskUnknown), MatchedRule: base}
}

func isWriteOrDelete(base string) bool {
	switch base {
	case "rm", "rmdir", "del", "rd", "unlink", "truncate", "mv", "cp", "mkdir",
		"touch", "chmod", "chown", "echo", "tee", "sed", "dd":
		return true
	}
	return false
}

// Evaluate folds policy allow/deny overrides and thresholds on top of
// Classify to produce the final PermissionDecision, matching
// ShellPolicy::validate's 8-step algorithm.
func Evaluate(command string, p Policy) (RiskAnalysis, PermissionDecision) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return RiskAnalysis{Level: RiskReadOnly}, allow()
	}

	if m, ok := containsAny(trimmed, p.DeniedCommands); ok {
		return RiskAnalysis{Level: RiskForbidden, Score: 10, Reasons: []string{"denylisted: " + m}, RequiresConfirmation: requiresConfirmation(RiskForbidden), MatchedRule: m}, deny("command matches a configured deny rule: " + m)
	}
	for _, pattern := range p.CustomDenyPatterns {
		re, err := regexp.Compile(pattern)
		if err == nil && re.MatchString(trimmed) {
			return RiskAnalysis{Level: RiskForbidden, Score: 10, Reasons: []string{"custom deny pattern: " + pattern}, RequiresConfirmation: requiresConfirmation(RiskForbidden), MatchedRule: pattern}, deny("command matches custom deny pattern")
		}
	}

	analysis := Classify(trimmed)

	if analysis.Level == RiskForbidden {
		return analysis, deny(strings.Join(analysis.Reasons, "; "))
	}

	if len(p.DeniedPaths) > 0 {
		if pth, ok := containsAny(trimmed, p.DeniedPaths); ok {
			allowedOverride := false
			if len(p.AllowedPaths) > 0 {
				if _, ok := containsAny(trimmed, p.AllowedPaths); ok {
					allowedOverride = true
				}
			}
			if !allowedOverride {
				base := extractBaseCommand(trimmed)
				if isWriteOrDelete(base) {
					return analysis, deny("write/delete under configured deny path: " + pth)
				}
				return analysis, ask("read under configured deny path: " + pth)
			}
		}
	}

	if !p.AllowNetwork {
		if m, ok := containsAny(trimmed, networkCommands); ok {
			return analysis, ask("network access requires approval: " + m)
		}
	}
	if !p.AllowPipeRedirect {
		if _, ok := containsAny(trimmed, pipeRedirectPatterns); ok {
			return analysis, ask("pipe/redirect requires approval")
		}
	}

	if analysis.Level >= p.DenyThreshold {
		return analysis, deny(strings.Join(analysis.Reasons, "; "))
	}
	if analysis.Level >= p.ApprovalThreshold {
		return analysis, ask(strings.Join(analysis.Reasons, "; "))
	}
	if analysis.Level == RiskInteractive {
		return analysis, ask(strings.Join(analysis.Reasons, "; "))
	}

	if len(p.AllowedCommands) > 0 {
		base := extractBaseCommand(trimmed)
		found := false
		for _, a := range p.AllowedCommands {
			if strings.EqualFold(a, base) {
				found = true
				break
			}
		}
		if found {
			return analysis, allow()
		}
	}

	return analysis, allow()
}
