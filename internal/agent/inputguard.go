package agent

import "regexp"

// injectionPatterns flag common prompt-injection phrasing in user input —
// heuristics, not a security boundary; SafetyPipeline's command classifier
// is what actually gates dangerous actions.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)disregard (all )?(previous|prior|above)`),
	regexp.MustCompile(`(?i)you are now (in )?(developer|debug|jailbreak|dan) mode`),
	regexp.MustCompile(`(?i)reveal (your )?(system prompt|instructions)`),
	regexp.MustCompile(`(?i)print (your )?(system prompt|instructions)`),
	regexp.MustCompile(`(?i)act as (if you (are|were)|an?) (unrestricted|unfiltered|uncensored)`),
	regexp.MustCompile(`(?i)\bpretend (you have no|there are no) (restrictions|rules|guidelines)`),
}

// InputGuard scans user-supplied text for prompt-injection phrasing before
// it reaches the model.
type InputGuard struct {
	patterns []*regexp.Regexp
}

// NewInputGuard creates a guard using the default pattern set.
func NewInputGuard() *InputGuard {
	return &InputGuard{patterns: injectionPatterns}
}

// Scan returns the regular-expression source of every pattern that matched text.
func (g *InputGuard) Scan(text string) []string {
	var matches []string
	for _, p := range g.patterns {
		if p.MatchString(text) {
			matches = append(matches, p.String())
		}
	}
	return matches
}
