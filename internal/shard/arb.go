package shard

import (
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
)

// CircuitBreaker abstracts the risk package's breaker so the arb fast path
// can consult it without importing internal/risk.
type CircuitBreaker interface {
	Allow() bool
}

// DetectArb implements the cross-venue arbitrage check (§4.6): compare the
// four best quotes (Venue K yes/no, Venue P yes/no) for a matching contract
// pair and flag when the combined cost of buying both sides below 100c.
// Only moneyline/spread/total pairs whose ParsedMarket is Compatible are
// considered — player props and mismatched lines never arb against each
// other.
func (gc *GameContext) DetectArb(mtype domain.MarketType, kalshi, poly domain.MarketPrice, parsedKalshi, parsedPoly domain.ParsedMarket, breaker CircuitBreaker, t Tunables) *domain.Signal {
	if breaker != nil && !breaker.Allow() {
		return nil
	}
	if kalshi.IsEmpty() || poly.IsEmpty() || kalshi.IsCrossed() || poly.IsCrossed() {
		return nil
	}
	if !parsedKalshi.Compatible(parsedPoly) {
		return nil
	}

	kalshiYesCents := int(kalshi.YesAsk * 100)
	kalshiNoCents := int((1 - kalshi.YesBid) * 100)
	polyYesCents := int(poly.YesAsk * 100)
	polyNoCents := int((1 - poly.YesBid) * 100)

	// Two combinations: buy YES on one venue + buy NO (the complementary
	// side) on the other. A combined cost under 100c locks in the
	// difference regardless of outcome.
	type combo struct {
		legs     []domain.ArbLeg
		costCent int
	}
	combos := []combo{
		{
			legs: []domain.ArbLeg{
				{Platform: domain.PlatformKalshi, MarketID: kalshi.MarketID, ContractTeam: kalshi.ContractTeam, Side: "yes", PriceCents: kalshiYesCents},
				{Platform: domain.PlatformPolymarket, MarketID: poly.MarketID, ContractTeam: poly.ContractTeam, Side: "no", PriceCents: polyNoCents},
			},
			costCent: kalshiYesCents + polyNoCents,
		},
		{
			legs: []domain.ArbLeg{
				{Platform: domain.PlatformPolymarket, MarketID: poly.MarketID, ContractTeam: poly.ContractTeam, Side: "yes", PriceCents: polyYesCents},
				{Platform: domain.PlatformKalshi, MarketID: kalshi.MarketID, ContractTeam: kalshi.ContractTeam, Side: "no", PriceCents: kalshiNoCents},
			},
			costCent: polyYesCents + kalshiNoCents,
		},
	}

	var best *combo
	for i := range combos {
		c := &combos[i]
		if c.costCent >= 100 {
			continue
		}
		if best == nil || c.costCent < best.costCent {
			best = c
		}
	}
	if best == nil {
		return nil
	}

	id := kalshi.MarketID + ":" + poly.MarketID
	if t.IDSeq != nil {
		id = t.IDSeq()
	}

	return &domain.Signal{
		SignalID:   id,
		SignalType: domain.SignalCrossMarketArb,
		GameID:     gc.GameID,
		Sport:      gc.Sport,
		EdgePct:    float64(100-best.costCent) / 100 * 100,
		Reason:     "cross-venue combined cost below 100c",
		CreatedAt:  time.Now(),
		ArbLegs:    best.legs,
	}
}
