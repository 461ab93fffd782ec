package shard

import (
	"fmt"
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/teammatch"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// Tunables bundles the subset of config.Config the signal-generation path
// needs, kept separate from the config package to avoid an import cycle
// between shard and config.
type Tunables struct {
	MarketDataTTL       time.Duration
	MinDeltaPct         float64 // 0.02
	MarketSignalEdgePct float64 // 5.0 — WS-driven extra gate
	RequiredEdgeFeesPct float64
	MatchMinConfidence  float64
	HysteresisMultiple  float64 // 2.0
	Matcher             *teammatch.Matcher
	IDSeq               func() string
}

// OnStateUpdate implements §4.6 "Signal generation from game state": given
// the previous and newly clamped home win prob, decide whether to emit a
// win_prob_shift signal.
func (gc *GameContext) OnStateUpdate(prevProb float64, hadPrev bool, newProb float64, t Tunables) *domain.Signal {
	if !hadPrev {
		return nil
	}
	delta := newProb - prevProb
	if abs(delta) < t.MinDeltaPct {
		return nil
	}

	targetTeam := gc.Info.AwayTeam
	targetProb := 1 - newProb
	if delta > 0 {
		targetTeam = gc.Info.HomeTeam
		targetProb = newProb
	}

	price, ok := gc.resolveTeamPrice(domain.MarketMoneyline, targetTeam, t)
	if !ok {
		return nil
	}
	if !price.IsFresh(time.Now(), t.MarketDataTTL) || price.IsEmpty() {
		return nil
	}

	sig := gc.buildSignal(domain.SignalWinProbShift, targetTeam, targetProb, price, t)
	return gc.applyHysteresis(sig, t)
}

// OnPriceUpdate implements the WS-driven market-mispricing path: same
// team-aware edge calculation against the incoming price, gated at |edge| >= 5%.
func (gc *GameContext) OnPriceUpdate(price domain.MarketPrice, t Tunables) *domain.Signal {
	if !gc.HasWinProb {
		return nil
	}
	targetTeam := gc.Info.HomeTeam
	targetProb := gc.LastWinProb
	if price.ContractTeam != "" && price.ContractTeam != gc.Info.HomeTeam {
		targetTeam = gc.Info.AwayTeam
		targetProb = 1 - gc.LastWinProb
	}

	sig := gc.buildSignal(domain.SignalMarketMispricing, targetTeam, targetProb, price, t)
	if sig == nil {
		return nil
	}
	if abs(sig.EdgePct) < t.MarketSignalEdgePct {
		return nil
	}
	return gc.applyHysteresis(sig, t)
}

// resolveTeamPrice implements the §4.6 team-identity price lookup: find the
// stored price for targetTeam; if the stored row is for the other team on
// the same binary market, invert its quote after confirming the row isn't
// simply mis-tagged — a fuzzy match against targetTeam itself would mean
// the row IS targetTeam's price and needs no inversion at all.
func (gc *GameContext) resolveTeamPrice(mtype domain.MarketType, targetTeam string, t Tunables) (domain.MarketPrice, bool) {
	var other *domain.MarketPrice
	for i := range gc.Prices {
		p := gc.Prices[i]
		if p.MarketType != mtype {
			continue
		}
		if t.Matcher != nil {
			if res := t.Matcher.EntryMatch(gc.Sport, p.ContractTeam, targetTeam); res.IsMatch {
				return p, true
			}
		} else if p.ContractTeam == targetTeam {
			return p, true
		}
		if p.ContractTeam != "" {
			cp := p
			other = &cp
		}
	}
	if other == nil {
		return domain.MarketPrice{}, false
	}
	return other.Invert(targetTeam), true
}

func (gc *GameContext) buildSignal(stype domain.SignalType, targetTeam string, targetProb float64, price domain.MarketPrice, t Tunables) *domain.Signal {
	targetProb = domain.ClampWinProb(targetProb)

	buyEdge := domain.EdgePct(domain.Buy, targetProb, price.YesBid, price.YesAsk)
	sellEdge := domain.EdgePct(domain.Sell, targetProb, price.YesBid, price.YesAsk)

	dir := domain.Buy
	edge := buyEdge
	if sellEdge > buyEdge {
		dir = domain.Sell
		edge = sellEdge
	}

	required := domain.RequiredEdgePct(t.RequiredEdgeFeesPct, (price.YesAsk-price.YesBid)*100)
	if edge < required {
		return nil
	}

	id := price.MarketID
	if t.IDSeq != nil {
		id = t.IDSeq()
	}

	return &domain.Signal{
		SignalID:   id,
		SignalType: stype,
		GameID:     gc.GameID,
		Sport:      gc.Sport,
		Team:       targetTeam,
		Direction:  dir,
		ModelProb:  targetProb,
		MarketProb: price.Mid(),
		EdgePct:    edge,
		Reason:     fmt.Sprintf("%s edge=%.2f required=%.2f", stype, edge, required),
		CreatedAt:  time.Now(),
	}
}

// applyHysteresis implements §4.6: a direction flip against an existing
// active signal needs double the required edge; same-direction repeats are
// idempotent (no emit).
func (gc *GameContext) applyHysteresis(sig *domain.Signal, t Tunables) *domain.Signal {
	if sig == nil {
		return nil
	}
	if gc.ActiveSignal == nil {
		gc.ActiveSignal = sig
		return sig
	}
	if gc.ActiveSignal.Direction == sig.Direction {
		return nil // same-direction signals are idempotent
	}
	multiple := t.HysteresisMultiple
	if multiple == 0 {
		multiple = 2.0
	}
	if abs(sig.EdgePct) < multiple*t.RequiredEdgeFeesPct {
		telemetry.Debugf("shard: game %s suppressing direction flip, edge %.2f below hysteresis bar", gc.GameID, sig.EdgePct)
		return nil
	}
	gc.ActiveSignal = sig
	return sig
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
