package domain

import "time"

// SignalType is the closed set of signal origins (§3).
type SignalType string

const (
	SignalWinProbShift     SignalType = "win_prob_shift"
	SignalMarketMispricing SignalType = "market_mispricing"
	SignalCrossMarketArb   SignalType = "cross_market_arb"
	SignalFuturesPrefix    SignalType = "futures" // futures_* family, out of core scope
)

// Direction is buy or sell, in the YES-contract sense.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Signal is the output of GameShard's signal-generation path (§3, §4.6).
type Signal struct {
	SignalID    string
	SignalType  SignalType
	GameID      string
	Sport       Sport
	Team        string // the team the model favors
	Direction   Direction
	ModelProb   float64
	MarketProb  float64 // zero value + synthetic flag distinguishes "missing"
	Synthetic   bool
	EdgePct     float64
	Confidence  float64
	Reason      string
	PlayID      string
	CreatedAt   time.Time

	// Arbitrage-only fields, populated when SignalType == SignalCrossMarketArb.
	ArbLegs []ArbLeg
}

// ArbLeg is one leg of a cross-venue arbitrage pair (§4.6, §4.8).
type ArbLeg struct {
	Platform     Platform
	MarketID     string
	ContractTeam string
	Side         string // "yes" or "no"
	PriceCents   int
}
