// Package risk implements RiskController and CircuitBreaker (§4.10): the
// pre-trade exposure/latency gate SignalProcessor consults, and the
// trip/cooldown state machine. Only the arbitrage fast path checks the
// breaker before acting; the execution retry loop only records errors and
// successes into it, and directional signals are not gated by it.
package risk

import (
	"sync"
	"time"

	"github.com/arbtwo/marketfusion/internal/bankroll"
	"github.com/arbtwo/marketfusion/internal/config"
	"github.com/arbtwo/marketfusion/internal/domain"
)

// Controller enforces daily loss, per-game, and per-sport exposure limits,
// plus a signal-latency ceiling, against a live exposure ledger it owns.
// Exposure is recorded by ExecutionService on fill and released by
// PositionTracker on close — Controller itself never infers exposure from
// prices.
type Controller struct {
	limits   config.RiskLimits
	bankroll *bankroll.Ledger

	mu           sync.Mutex
	gameExposure map[string]float64 // game_id -> dollars at risk
	sportExposure map[domain.Sport]float64
}

func New(limits config.RiskLimits, ledger *bankroll.Ledger) *Controller {
	return &Controller{
		limits:        limits,
		bankroll:      ledger,
		gameExposure:  make(map[string]float64),
		sportExposure: make(map[domain.Sport]float64),
	}
}

// RecordOpen adds amount to the game's and sport's tracked exposure —
// called by ExecutionService immediately after a fill.
func (c *Controller) RecordOpen(gameID string, sport domain.Sport, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameExposure[gameID] += amount
	c.sportExposure[sport] += amount
}

// RecordClose releases amount from tracked exposure — called by
// PositionTracker on close, before or after settlement.
func (c *Controller) RecordClose(gameID string, sport domain.Sport, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameExposure[gameID] -= amount
	c.sportExposure[sport] -= amount
	if c.gameExposure[gameID] < 0 {
		c.gameExposure[gameID] = 0
	}
	if c.sportExposure[sport] < 0 {
		c.sportExposure[sport] = 0
	}
}

// Check evaluates every pre-trade gate for a prospective order of notional
// dollars on gameID/sport, created at signalCreatedAt. Returns ReasonNone
// when the order may proceed.
func (c *Controller) Check(gameID string, sport domain.Sport, notional float64, signalCreatedAt time.Time) domain.RejectReason {
	if c.bankroll.DailyPnL() <= -c.limits.MaxDailyLoss {
		return domain.ReasonRiskBreach
	}

	sl, ok := c.limits.SportLimit(string(sport))
	if ok && sl.MaxLatencyMs > 0 {
		latency := time.Since(signalCreatedAt).Milliseconds()
		if latency > sl.MaxLatencyMs {
			return domain.ReasonStaleData
		}
	}

	c.mu.Lock()
	gameExp := c.gameExposure[gameID]
	sportExp := c.sportExposure[sport]
	c.mu.Unlock()

	if ok {
		if sl.MaxGameExposure > 0 && gameExp+notional > sl.MaxGameExposure {
			return domain.ReasonRiskBreach
		}
		if sl.MaxSportExposure > 0 && sportExp+notional > sl.MaxSportExposure {
			return domain.ReasonRiskBreach
		}
	}

	return domain.ReasonNone
}
