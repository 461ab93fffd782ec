package domain

import "time"

// GameStatus is the closed set of lifecycle states a GameState can report.
type GameStatus string

const (
	StatusScheduled  GameStatus = "scheduled"
	StatusInProgress GameStatus = "in_progress"
	StatusHalftime   GameStatus = "halftime"
	StatusEndPeriod  GameStatus = "end_period"
	StatusFinal      GameStatus = "final"
)

// GameInfo is the immutable descriptor of a game (§3).
type GameInfo struct {
	GameID        string
	Sport         Sport
	HomeTeam      string
	AwayTeam      string
	HomeAbbr      string
	AwayAbbr      string
	ScheduledTime time.Time
	Venue         string
	Broadcast     string
	Status        GameStatus
}

// FootballSituation carries down/distance/redzone context (§3), only
// populated for NFL/NCAAF.
type FootballSituation struct {
	Down         int
	YardsToGo    int
	YardLine     int
	Redzone      bool
	Possession   string // team abbreviation on offense
}

// GameState is a time-indexed snapshot of one game (§3).
//
// Invariants: HomeScore/AwayScore >= 0; Period >= 1; once Status == final
// no further mutation of this value is permitted by the owning GameShard.
type GameState struct {
	GameID            string
	Sport             Sport
	HomeScore         int
	AwayScore         int
	Period            int
	TimeRemainingSec  float64
	Status            GameStatus
	Football          *FootballSituation
	GameProgress      float64 // derived, in [0,1]
	ObservedAt        time.Time
}

// IsFinal reports whether this snapshot represents a completed game,
// applying the §7 completion heuristic: explicit "final" status, or
// end_period with zero clock at or past the sport's period count.
func (gs GameState) IsFinal(sport Sport) bool {
	if gs.Status == StatusFinal {
		return true
	}
	if gs.Status == StatusEndPeriod && gs.TimeRemainingSec <= 0 && gs.Period >= sport.Periods() {
		return true
	}
	return false
}

// ScoreDiff returns home minus away.
func (gs GameState) ScoreDiff() int {
	return gs.HomeScore - gs.AwayScore
}

// PlayType is a closed, sport-spanning set of play categories.
type PlayType string

const (
	PlayScore        PlayType = "score"
	PlayTurnover     PlayType = "turnover"
	PlayPenalty      PlayType = "penalty"
	PlayTimeout      PlayType = "timeout"
	PlaySubstitution PlayType = "substitution"
	PlayOther        PlayType = "other"
)

// Play is a monotonic, sequenced event within one game (§3).
type Play struct {
	GameID         string
	PlayID         string
	SequenceNumber int64
	Period         int
	Clock          string
	Type           PlayType
	Text           string
	HomeScoreDelta int
	AwayScoreDelta int
	IsScoring      bool
	IsTurnover     bool
	TouchdownKind  string // empty unless relevant
}
