// Package teammatch is the single arbiter of "are these the same team"
// across the engine (§4.1). Every component that needs to compare a team
// name from one source (model/game feed) against a team name from another
// (venue contract) goes through Match — duplicated heuristics are forbidden
// by spec.
package teammatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/arbtwo/marketfusion/internal/domain"
)

// Method names the heuristic that produced a match, most specific first.
type Method string

const (
	MethodExact      Method = "exact"
	MethodAlias      Method = "alias"
	MethodNickname   Method = "nickname"
	MethodContains   Method = "contains"
	MethodFuzzy      Method = "fuzzy"
	MethodNone       Method = "none"
)

// Result is the scored outcome of comparing two free-form team strings (§4.1).
type Result struct {
	IsMatch    bool
	Confidence float64
	Method     Method
}

// Thresholds configures the minimum confidence required for a match to be
// considered usable in a given context (entry vs exit checks can differ).
type Thresholds struct {
	Entry float64
	Exit  float64
}

// DefaultThresholds matches the spec's defaults (0.70 for both).
var DefaultThresholds = Thresholds{Entry: 0.70, Exit: 0.70}

// Matcher resolves sport-specific alias tables (abbreviations, nicknames)
// and performs the confidence-scored comparison.
type Matcher struct {
	thresholds Thresholds
	aliases    map[domain.Sport]map[string]string // canonical-lowercase -> abbreviation set membership handled via AliasMatch
}

func New(thresholds Thresholds, aliases map[domain.Sport]map[string]string) *Matcher {
	if aliases == nil {
		aliases = map[domain.Sport]map[string]string{}
	}
	return &Matcher{thresholds: thresholds, aliases: aliases}
}

// Match compares two free-form team name strings for the given sport and
// returns the highest-confidence method that applies. Confidence below the
// minConfidence argument forces IsMatch=false, but Confidence/Method are
// still reported for callers that want to try a lower bar (e.g. position
// exit scans recent rows at a configurable minimum).
func (m *Matcher) Match(sport domain.Sport, a, b string, minConfidence float64) Result {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return Result{Method: MethodNone}
	}

	if na == nb {
		return finalize(1.00, MethodExact, minConfidence)
	}

	if aliasTable, ok := m.aliases[sport]; ok {
		if canonA, ok := aliasTable[na]; ok {
			na = canonA
		}
		if canonB, ok := aliasTable[nb]; ok {
			nb = canonB
		}
		if na == nb {
			return finalize(0.95, MethodAlias, minConfidence)
		}
	}

	if lastWord(na) == lastWord(nb) && lastWord(na) != "" {
		return finalize(0.85, MethodNickname, minConfidence)
	}

	if withLengthGuard(na, nb) {
		return finalize(0.70, MethodContains, minConfidence)
	}

	if score := tokenOverlap(na, nb); score > 0 {
		return finalize(score, MethodFuzzy, minConfidence)
	}

	return Result{Method: MethodNone}
}

// EntryMatch/ExitMatch apply the matcher's configured default thresholds.
func (m *Matcher) EntryMatch(sport domain.Sport, a, b string) Result {
	return m.Match(sport, a, b, m.thresholds.Entry)
}

func (m *Matcher) ExitMatch(sport domain.Sport, a, b string) Result {
	return m.Match(sport, a, b, m.thresholds.Exit)
}

func finalize(confidence float64, method Method, minConfidence float64) Result {
	return Result{
		IsMatch:    confidence >= minConfidence,
		Confidence: confidence,
		Method:     method,
	}
}

func normalize(s string) string {
	s = stripDiacritics(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

func stripDiacritics(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if !unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// withLengthGuard implements "one-contains-other with length guard": the
// shorter string must be at least half the length of the longer, so "a"
// inside "atlanta" doesn't spuriously match.
func withLengthGuard(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if !strings.Contains(long, short) {
		return false
	}
	return float64(len(short)) >= float64(len(long))*0.5
}

// tokenOverlap is the fuzzy fallback: fraction of shared whitespace tokens,
// capped at 0.60 per spec ("fuzzy token overlap (<= 0.60)").
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}
	shared := 0
	for _, t := range ta {
		if setB[t] {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	denom := len(ta)
	if len(tb) > denom {
		denom = len(tb)
	}
	score := float64(shared) / float64(denom) * 0.60
	if score > 0.60 {
		score = 0.60
	}
	return score
}
