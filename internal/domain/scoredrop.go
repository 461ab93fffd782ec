package domain

import "time"

// ScoreDropTracker detects and confirms spurious score decreases from a
// game-state feed before they are allowed to drive a signal. Ported from
// the teacher's internal/core/state/game/score_drop.go — not named in
// spec.md, but a transient feed correction that isn't excluded by any
// Non-goal and materially affects signal correctness (a false drop would
// otherwise swing home_win_prob and emit a spurious signal).
type ScoreDropTracker struct {
	pending   bool
	data      *scoreDropRecord
	Rejected  [2]int // [home, away] most recently rejected, for logging
}

type scoreDropRecord struct {
	firstSeen time.Time
	homeScore int
	awayScore int
}

// CheckDrop returns one of: "accept", "pending", "confirmed", "rejected", "new_drop".
func (t *ScoreDropTracker) CheckDrop(curHome, curAway, newHome, newAway, confirmSec int) string {
	prevTotal := curHome + curAway
	newTotal := newHome + newAway
	isIndividualDrop := newHome < curHome || newAway < curAway

	if newTotal >= prevTotal && !isIndividualDrop {
		if t.pending {
			if t.data != nil {
				t.Rejected = [2]int{t.data.homeScore, t.data.awayScore}
			}
			t.Clear()
			return "rejected"
		}
		return "accept"
	}

	now := time.Now()
	if t.data != nil {
		if newHome == t.data.homeScore && newAway == t.data.awayScore {
			if now.Sub(t.data.firstSeen) >= time.Duration(confirmSec)*time.Second {
				t.Clear()
				return "confirmed"
			}
		} else {
			t.data = &scoreDropRecord{firstSeen: now, homeScore: newHome, awayScore: newAway}
		}
		t.pending = true
		return "pending"
	}

	t.data = &scoreDropRecord{firstSeen: now, homeScore: newHome, awayScore: newAway}
	t.pending = true
	return "new_drop"
}

func (t *ScoreDropTracker) Clear() {
	t.pending = false
	t.data = nil
}

func (t *ScoreDropTracker) Pending() bool {
	return t.pending
}
