package shard

import (
	"testing"
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
)

func TestIsCrunchTimeCloseGameLateInFinalPeriod(t *testing.T) {
	state := domain.GameState{HomeScore: 100, AwayScore: 95, Period: 4, GameProgress: 0.90}
	if !IsCrunchTime(state, domain.NBA) {
		t.Error("expected crunch time for a close game deep into the final period")
	}
}

func TestIsCrunchTimeBlowoutIsNeverCrunchTime(t *testing.T) {
	state := domain.GameState{HomeScore: 120, AwayScore: 80, Period: 4, GameProgress: 0.95}
	if IsCrunchTime(state, domain.NBA) {
		t.Error("a 40-point blowout should never be crunch time regardless of progress")
	}
}

func TestIsCrunchTimeCloseButEarlyIsNotCrunchTime(t *testing.T) {
	state := domain.GameState{HomeScore: 20, AwayScore: 18, Period: 1, GameProgress: 0.20}
	if IsCrunchTime(state, domain.NBA) {
		t.Error("a close score early in the game should not trigger crunch time")
	}
}

func TestIsCrunchTimeOvertimePeriodAtOrPastSportPeriodsIsCrunchTime(t *testing.T) {
	state := domain.GameState{HomeScore: 100, AwayScore: 98, Period: 5, GameProgress: 0.5}
	if !IsCrunchTime(state, domain.NBA) {
		t.Error("period >= sport.Periods() should count as crunch time even with low GameProgress")
	}
}

func TestPollingCadenceIntervalSelectsCrunchTime(t *testing.T) {
	c := PollingCadence{Default: time.Minute, Halftime: 30 * time.Second, CrunchTime: 5 * time.Second}
	state := domain.GameState{HomeScore: 100, AwayScore: 98, Period: 4, GameProgress: 0.9}
	if got := c.Interval(state, domain.NBA); got != 5*time.Second {
		t.Errorf("Interval() = %v, want CrunchTime (5s)", got)
	}
}

func TestPollingCadenceIntervalSelectsHalftime(t *testing.T) {
	c := PollingCadence{Default: time.Minute, Halftime: 30 * time.Second, CrunchTime: 5 * time.Second}
	state := domain.GameState{HomeScore: 40, AwayScore: 38, Period: 2, GameProgress: 0.5, Status: domain.StatusHalftime}
	if got := c.Interval(state, domain.NBA); got != 30*time.Second {
		t.Errorf("Interval() = %v, want Halftime (30s)", got)
	}
}

func TestPollingCadenceIntervalDefaultsOtherwise(t *testing.T) {
	c := PollingCadence{Default: time.Minute, Halftime: 30 * time.Second, CrunchTime: 5 * time.Second}
	state := domain.GameState{HomeScore: 10, AwayScore: 8, Period: 1, GameProgress: 0.1, Status: domain.StatusInProgress}
	if got := c.Interval(state, domain.NBA); got != time.Minute {
		t.Errorf("Interval() = %v, want Default (1m)", got)
	}
}
