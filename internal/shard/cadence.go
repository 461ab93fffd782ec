package shard

import (
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
)

// PollingCadence holds the three configured intervals a GameContext polls
// at, selected per-game by CrunchTime/halftime status (§4.6).
type PollingCadence struct {
	Default    time.Duration
	Halftime   time.Duration
	CrunchTime time.Duration
}

// IsCrunchTime implements the §4.6 definition exactly: |score_diff| <= 8
// AND (game_progress > 0.85 OR period >= sport.periods).
func IsCrunchTime(state domain.GameState, sport domain.Sport) bool {
	diff := state.ScoreDiff()
	if diff < 0 {
		diff = -diff
	}
	if diff > 8 {
		return false
	}
	return state.GameProgress > 0.85 || state.Period >= sport.Periods()
}

// Interval picks the effective poll interval for the current state.
func (c PollingCadence) Interval(state domain.GameState, sport domain.Sport) time.Duration {
	if IsCrunchTime(state, sport) {
		return c.CrunchTime
	}
	if state.Status == domain.StatusHalftime {
		return c.Halftime
	}
	return c.Default
}
