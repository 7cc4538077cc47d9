package command

import "strings"

// Outcome classifies a match attempt.
type Outcome int

const (
	// Matched means a command fired.
	Matched Outcome = iota
	// NoMatch means no pattern was contained in the utterance.
	NoMatch
	// LowConfidence means the utterance was filtered before any pattern
	// was consulted.
	LowConfidence
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NoMatch:
		return "no_match"
	case LowConfidence:
		return "low_confidence"
	}
	return "unknown"
}

// MatchResult is the decision for one utterance. Command and Pattern are
// set only when Outcome is Matched.
type MatchResult struct {
	Outcome Outcome
	Command *Spec
	Pattern string
}

// Matcher decides which command an utterance fires. It is a pure function
// of its inputs: no I/O, no telemetry, safe for concurrent use.
type Matcher struct {
	table         *Table
	minConfidence float64
	preferLast    bool
}

// NewMatcher builds a matcher over a loaded table. tieBreak "last" makes
// later-loaded commands win equal-length pattern ties; anything else keeps
// the default first-loaded-wins.
func NewMatcher(table *Table, minConfidence float64, tieBreak string) *Matcher {
	return &Matcher{
		table:         table,
		minConfidence: minConfidence,
		preferLast:    tieBreak == "last",
	}
}

// Match tests an utterance against every pattern of every command.
// Confidence below the threshold filters the utterance before the pattern
// table is consulted at all. Among contained patterns the longest wins;
// equal lengths fall back to load order.
func (m *Matcher) Match(text string, confidence float64) MatchResult {
	if confidence < m.minConfidence {
		return MatchResult{Outcome: LowConfidence}
	}

	normalized := Normalize(text)
	if normalized == "" {
		return MatchResult{Outcome: NoMatch}
	}

	var (
		best        *Spec
		bestPattern string
	)
	for _, spec := range m.table.Specs() {
		for _, pattern := range spec.Patterns {
			if !strings.Contains(normalized, pattern) {
				continue
			}
			if best == nil || len(pattern) > len(bestPattern) ||
				(m.preferLast && len(pattern) == len(bestPattern) && spec != best) {
				best = spec
				bestPattern = pattern
			}
		}
	}

	if best == nil {
		return MatchResult{Outcome: NoMatch}
	}
	return MatchResult{Outcome: Matched, Command: best, Pattern: bestPattern}
}
