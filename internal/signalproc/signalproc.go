// Package signalproc implements SignalProcessor (§4.7): the gate between a
// raw Signal and an ExecutionRequest, applying edge/probability/duplicate/
// cooldown/risk/fee/sizing checks in sequence before emitting.
package signalproc

import (
	"math"

	"github.com/arbtwo/marketfusion/internal/bankroll"
	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/risk"
	"github.com/arbtwo/marketfusion/internal/teammatch"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// PriceSource resolves the freshest team-aware MarketPrice for a
// (game, market_type, platform, team), inverting the opposite team's quote
// when needed — the same lookup GameShard performs internally (§4.7 step 7).
// cmd/engine backs it with the shards' in-memory game prices; nothing here
// reads the persisted market_prices store.
type PriceSource interface {
	TeamPrice(gameID string, marketType domain.MarketType, platform domain.Platform, targetTeam string, minConfidence float64) (domain.MarketPrice, bool)
}

// Positions answers the duplicate/opposite-direction checks against open
// positions (§4.7 steps 4-5).
type Positions interface {
	OpenPosition(platform domain.Platform, marketID string, side domain.OrderSide) (domain.Position, bool)
	OppositePosition(gameID, team string, side domain.OrderSide) (domain.Position, bool)
}

// Cooldowns answers whether a game is currently suppressed (§4.7 step 6).
type Cooldowns interface {
	InCooldown(gameID string) bool
}

// Tunables bundles the config knobs this package needs.
type Tunables struct {
	MinEdgePct         float64
	MaxBuyProb         float64
	MinSellProb        float64
	MatchMinConfidence float64
	KellyFraction      float64
	MaxPositionPct     float64
	HedgingAllowed     bool
}

// Processor wires the gate's dependencies together.
type Processor struct {
	bus       *bus.Bus
	prices    PriceSource
	positions Positions
	cooldowns Cooldowns
	riskCtl   *risk.Controller
	ledger    *bankroll.Ledger
	matcher   *teammatch.Matcher
	tunables  Tunables
}

func New(b *bus.Bus, prices PriceSource, positions Positions, cooldowns Cooldowns, riskCtl *risk.Controller, ledger *bankroll.Ledger, matcher *teammatch.Matcher, t Tunables) *Processor {
	p := &Processor{bus: b, prices: prices, positions: positions, cooldowns: cooldowns, riskCtl: riskCtl, ledger: ledger, matcher: matcher, tunables: t}
	b.Subscribe(bus.SignalsNew, p.onSignal)
	return p
}

func (p *Processor) onSignal(msg any) error {
	sig, ok := msg.(domain.Signal)
	if !ok {
		return nil
	}
	if sig.SignalType == domain.SignalCrossMarketArb {
		p.handleArb(sig)
		return nil
	}
	p.handleDirectional(sig)
	return nil
}

// handleDirectional runs the full §4.7 gate for a win_prob_shift or
// market_mispricing signal.
func (p *Processor) handleDirectional(sig domain.Signal) {
	reject := func(reason domain.RejectReason) {
		telemetry.Metrics.SignalsRejected.Inc()
		telemetry.Debugf("signalproc: rejected signal=%s reason=%s", sig.SignalID, reason)
	}

	// 1. synthetic rejection
	if sig.Synthetic || sig.MarketProb == 0 {
		reject(domain.ReasonEmptyBook)
		return
	}
	// 2. min edge
	if sig.EdgePct < p.tunables.MinEdgePct {
		reject(domain.ReasonEdgeBelowMin)
		return
	}
	// 3. probability guardrails
	if sig.Direction == domain.Buy && sig.ModelProb > p.tunables.MaxBuyProb {
		reject(domain.ReasonProbabilityGuardrail)
		return
	}
	if sig.Direction == domain.Sell && sig.ModelProb < p.tunables.MinSellProb {
		reject(domain.ReasonProbabilityGuardrail)
		return
	}

	side := domain.OrderYes
	if sig.Direction == domain.Sell {
		side = domain.OrderNo
	}

	// 4. duplicate check
	platform, marketID := p.resolveVenue(sig)
	if marketID == "" {
		reject(domain.ReasonUnknown)
		return
	}
	if _, open := p.positions.OpenPosition(platform, marketID, side); open && !p.tunables.HedgingAllowed {
		reject(domain.ReasonDuplicate)
		return
	}

	// 5. opposite-direction check — a signal against an open opposing
	// position is rejected; the opposing position stays open, and nothing
	// closes it in response to the signal.
	if _, opposite := p.positions.OppositePosition(sig.GameID, sig.Team, side); opposite {
		reject(domain.ReasonDuplicate)
		return
	}

	// 6. cooldown
	if p.cooldowns.InCooldown(sig.GameID) {
		reject(domain.ReasonCooldown)
		return
	}

	// 7. team-aware price fetch
	price, ok := p.prices.TeamPrice(sig.GameID, domain.MarketMoneyline, platform, sig.Team, p.tunables.MatchMinConfidence)
	if !ok {
		reject(domain.ReasonTeamMismatch)
		return
	}

	// 8. risk check
	notional := p.notionalEstimate(price)
	if reason := p.riskCtl.Check(sig.GameID, sig.Sport, notional, sig.CreatedAt); reason != domain.ReasonNone {
		reject(reason)
		return
	}

	// 9. fee-aware TP gate, Venue K only
	if platform == domain.PlatformKalshi {
		if !p.feeAwareTakeProfitPositive(price, side) {
			reject(domain.ReasonRiskBreach)
			return
		}
	}

	// 10. sizing
	dollars := p.kellySize(sig.ModelProb, sig.EdgePct, price)
	if dollars < 1 {
		reject(domain.ReasonInsufficientBalance)
		return
	}

	req := domain.ExecutionRequest{
		IdempotencyKey:  sig.SignalID,
		Platform:        platform,
		MarketID:        marketID,
		Side:            side,
		LimitPrice:      limitPrice(price, side),
		Size:            dollars,
		ContractTeam:    sig.Team,
		SignalID:        sig.SignalID,
		SignalCreatedAt: sig.CreatedAt,
		GameID:          sig.GameID,
		Sport:           sig.Sport,
	}
	telemetry.Metrics.SignalsEmitted.Inc()
	p.bus.Publish(bus.ExecutionRequests, req)
}

// handleArb translates a cross-venue arb signal's two ArbLegs directly into
// a two-leg ExecutionRequest pair sharing an ArbOpportunityKey, skipping
// the directional gate entirely (§4.6 arb detection already checked
// compatibility and the circuit breaker).
func (p *Processor) handleArb(sig domain.Signal) {
	if len(sig.ArbLegs) != 2 {
		return
	}
	for _, leg := range sig.ArbLegs {
		side := domain.OrderYes
		if leg.Side == "no" {
			side = domain.OrderNo
		}
		req := domain.ExecutionRequest{
			IdempotencyKey:    sig.SignalID + ":" + string(leg.Platform),
			Platform:          leg.Platform,
			MarketID:          leg.MarketID,
			Side:              side,
			LimitPrice:        float64(leg.PriceCents) / 100,
			Size:              1, // one unit per leg; ExecutionService uses Size as given
			ContractTeam:      leg.ContractTeam,
			SignalID:          sig.SignalID,
			SignalCreatedAt:   sig.CreatedAt,
			GameID:            sig.GameID,
			Sport:             sig.Sport,
			ArbOpportunityKey: sig.SignalID,
		}
		telemetry.Metrics.SignalsEmitted.Inc()
		p.bus.Publish(bus.ExecutionRequests, req)
	}
}

func (p *Processor) resolveVenue(sig domain.Signal) (domain.Platform, string) {
	for _, platform := range []domain.Platform{domain.PlatformKalshi, domain.PlatformPolymarket} {
		if price, ok := p.prices.TeamPrice(sig.GameID, domain.MarketMoneyline, platform, sig.Team, p.tunables.MatchMinConfidence); ok {
			return platform, price.MarketID
		}
	}
	return "", ""
}

func (p *Processor) notionalEstimate(price domain.MarketPrice) float64 {
	return p.ledger.Available() * p.tunables.MaxPositionPct
}

// feeAwareTakeProfitPositive estimates net P&L at a modest take-profit move
// after Venue K's per-contract fee and rejects when it would not clear
// zero (§4.7 step 9).
func (p *Processor) feeAwareTakeProfitPositive(price domain.MarketPrice, side domain.OrderSide) bool {
	entryCents := price.YesAsk * 100
	if side == domain.OrderNo {
		entryCents = (1 - price.YesBid) * 100
	}
	const assumedTPMovePct = 10.0
	exitCents := entryCents + assumedTPMovePct
	if exitCents > 99 {
		exitCents = 99
	}
	fee := domain.KalshiFeeCents(int(entryCents))
	grossCents := exitCents - entryCents
	return grossCents-fee > 0
}

// kellySize implements fractional Kelly sizing (§4.7 step 10): full Kelly
// = edge_frac / (p(1-p)), capped at 0.5, times kelly_fraction, times
// available balance, capped by max_position_pct.
func (p *Processor) kellySize(modelProb, edgePct float64, price domain.MarketPrice) float64 {
	edgeFrac := edgePct / 100
	denom := modelProb * (1 - modelProb)
	if denom <= 0 {
		return 0
	}
	fullKelly := edgeFrac / denom
	if fullKelly > 0.5 {
		fullKelly = 0.5
	}
	if fullKelly < 0 {
		fullKelly = 0
	}
	kelly := fullKelly * p.tunables.KellyFraction

	available := p.ledger.Available()
	dollars := available * kelly
	capped := available * p.tunables.MaxPositionPct
	if dollars > capped {
		dollars = capped
	}
	return math.Round(dollars*100) / 100
}

func limitPrice(price domain.MarketPrice, side domain.OrderSide) float64 {
	if side == domain.OrderYes {
		return price.YesAsk
	}
	return 1 - price.YesBid
}
