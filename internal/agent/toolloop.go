package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

const (
	loopWarningThreshold  = 3
	loopCriticalThreshold = 5
)

// toolLoopState detects a model calling the same tool with the same
// arguments and getting the same result repeatedly, with no progress. One
// instance is scoped to a single Run.
type toolLoopState struct {
	mu             sync.Mutex
	lastCallHash   string
	lastResultHash string
	streak         int
}

// record hashes name+args into a stable key, resetting the repeat streak
// whenever the call changes from the previous one.
func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	argsJSON, _ := json.Marshal(args)
	sum := sha256.Sum256([]byte(name + ":" + string(argsJSON)))
	hash := hex.EncodeToString(sum[:8])

	if hash != s.lastCallHash {
		s.lastCallHash = hash
		s.lastResultHash = ""
		s.streak = 0
	}
	return hash
}

// recordResult hashes the tool's output against the call identified by
// argsHash, incrementing the streak only when both the call and its result
// are identical to the previous occurrence.
func (s *toolLoopState) recordResult(argsHash, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if argsHash != s.lastCallHash {
		return
	}
	sum := sha256.Sum256([]byte(result))
	resultHash := hex.EncodeToString(sum[:8])

	if resultHash == s.lastResultHash && s.streak > 0 {
		s.streak++
	} else {
		s.lastResultHash = resultHash
		s.streak = 1
	}
}

// detect reports whether the current call+result streak has crossed a
// warning or critical repetition threshold. level is "" when there's
// nothing to report, "warning" to nudge the model, or "critical" to abort
// the run.
func (s *toolLoopState) detect(name, argsHash string) (level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if argsHash != s.lastCallHash {
		return "", ""
	}
	switch {
	case s.streak >= loopCriticalThreshold:
		return "critical", fmt.Sprintf("tool %q called %d times in a row with identical arguments and results", name, s.streak)
	case s.streak >= loopWarningThreshold:
		return "warning", fmt.Sprintf("You have called %q %d times in a row with identical arguments and gotten the same result each time. Try a different approach instead of repeating this call.", name, s.streak)
	default:
		return "", ""
	}
}
