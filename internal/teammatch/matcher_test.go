package teammatch

import (
	"testing"

	"github.com/arbtwo/marketfusion/internal/domain"
)

func TestMatchExact(t *testing.T) {
	m := New(DefaultThresholds, nil)
	res := m.Match(domain.NBA, "Lakers", "lakers", 0.70)
	if !res.IsMatch || res.Method != MethodExact || res.Confidence != 1.0 {
		t.Errorf("exact match (case/whitespace insensitive) = %+v", res)
	}
}

func TestMatchAlias(t *testing.T) {
	aliases := map[domain.Sport]map[string]string{
		domain.NBA: {"lal": "los angeles lakers", "lakers": "los angeles lakers"},
	}
	m := New(DefaultThresholds, aliases)
	res := m.Match(domain.NBA, "LAL", "Lakers", 0.70)
	if !res.IsMatch || res.Method != MethodAlias {
		t.Errorf("alias match = %+v, want IsMatch via MethodAlias", res)
	}
}

func TestMatchNickname(t *testing.T) {
	m := New(DefaultThresholds, nil)
	res := m.Match(domain.NFL, "Kansas City Chiefs", "KC Chiefs", 0.70)
	if !res.IsMatch || res.Method != MethodNickname {
		t.Errorf("shared last word should match via nickname, got %+v", res)
	}
}

func TestMatchContainsWithLengthGuard(t *testing.T) {
	m := New(DefaultThresholds, nil)
	// "york" (4 chars) is contained in "new york jets" (13 chars); 4 < 13*0.5
	// fails the contains guard, the last words differ so there is no nickname
	// match, and the fuzzy fallback (1/3 token overlap) doesn't clear the
	// 0.70 bar either, so this should not match at all.
	res := m.Match(domain.NFL, "york", "new york jets", 0.70)
	if res.IsMatch {
		t.Errorf("short substring should not match at the 0.70 bar, got %+v", res)
	}
}

func TestMatchFuzzyCappedAt60(t *testing.T) {
	m := New(DefaultThresholds, nil)
	res := m.Match(domain.Soccer, "FC Manchester United", "FC Manchester City", 0.0)
	if res.Method != MethodFuzzy {
		t.Errorf("partial token overlap should fall through to fuzzy, got method=%v", res.Method)
	}
	if res.Confidence > 0.60 {
		t.Errorf("fuzzy confidence = %v, must be capped at 0.60", res.Confidence)
	}
}

func TestMatchNoneForUnrelatedNames(t *testing.T) {
	m := New(DefaultThresholds, nil)
	res := m.Match(domain.NHL, "Bruins", "Avalanche", 0.70)
	if res.IsMatch || res.Method != MethodNone {
		t.Errorf("unrelated team names should not match, got %+v", res)
	}
}

func TestMatchEmptyInputsReturnNone(t *testing.T) {
	m := New(DefaultThresholds, nil)
	if res := m.Match(domain.NBA, "", "Lakers", 0.70); res.Method != MethodNone {
		t.Errorf("empty input should yield MethodNone, got %+v", res)
	}
}

func TestMatchConfidenceBelowThresholdIsMatchFalse(t *testing.T) {
	m := New(DefaultThresholds, nil)
	// Nickname match (0.85) still reports Confidence/Method even when the
	// caller's minConfidence bar rejects it.
	res := m.Match(domain.NFL, "Kansas City Chiefs", "KC Chiefs", 0.99)
	if res.IsMatch {
		t.Error("confidence below minConfidence must report IsMatch=false")
	}
	if res.Confidence != 0.85 || res.Method != MethodNickname {
		t.Errorf("Confidence/Method should still be reported: %+v", res)
	}
}

func TestEntryAndExitMatchUseConfiguredThresholds(t *testing.T) {
	// "FC Manchester United" vs "FC Manchester City" share 2 of 3 tokens and
	// differ in their last word: fuzzy confidence = 2/3 * 0.60 = 0.40.
	m := New(Thresholds{Entry: 0.30, Exit: 0.90}, nil)
	res := m.EntryMatch(domain.Soccer, "FC Manchester United", "FC Manchester City")
	if !res.IsMatch {
		t.Errorf("entry threshold 0.30 should accept a 0.40-confidence fuzzy match, got %+v", res)
	}
	res = m.ExitMatch(domain.Soccer, "FC Manchester United", "FC Manchester City")
	if res.IsMatch {
		t.Errorf("exit threshold 0.90 should reject the same fuzzy match, got %+v", res)
	}
}

func TestDiacriticsNormalized(t *testing.T) {
	m := New(DefaultThresholds, nil)
	res := m.Match(domain.Soccer, "Atlético Madrid", "Atletico Madrid", 0.70)
	if !res.IsMatch || res.Method != MethodExact {
		t.Errorf("diacritic-only difference should match exactly, got %+v", res)
	}
}
