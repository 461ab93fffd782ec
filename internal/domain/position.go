package domain

import "time"

// PositionStatus is the closed lifecycle for a tracked position (§3).
type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionExiting PositionStatus = "exiting"
	PositionClosed  PositionStatus = "closed"
	PositionSettled PositionStatus = "settled"
)

// ExitReason records why a position was closed — not part of the closed
// RejectReason taxonomy (§7), but the analogous closed set for exits.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitSettlement ExitReason = "settlement"
	ExitPush       ExitReason = "push" // ambiguous settlement, §7
	ExitOpposite   ExitReason = "opposite_signal"
)

// Position is a filled result tracked end-to-end by PositionTracker (§3).
// Only PositionTracker writes this value once created.
type Position struct {
	PositionID string
	GameID     string
	Sport      Sport
	Platform   Platform
	MarketID   string
	ContractTeam string
	Side       OrderSide

	EntryPrice float64
	Size       float64
	EntryFees  float64
	EntryAt    time.Time

	Status PositionStatus

	ExitPrice  float64
	ExitFees   float64
	ExitAt     time.Time
	ExitReason ExitReason
	RealizedPnL float64

	// DebounceCount tracks consecutive exit-trigger polls, for the optional
	// debounce-before-exit behavior (§4.9).
	DebounceCount int
}

// PnL computes realized profit/loss for a BUY or SELL position closing at
// exitPrice, net of fees already recorded.
func (p Position) PnL(exitPrice float64) float64 {
	var gross float64
	switch p.Side {
	case OrderYes:
		gross = (exitPrice - p.EntryPrice) * p.Size
	case OrderNo:
		gross = (p.EntryPrice - exitPrice) * p.Size
	}
	return gross - p.EntryFees - p.ExitFees
}
