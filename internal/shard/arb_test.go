package shard

import (
	"testing"
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
)

type fakeBreaker struct{ allow bool }

func (f fakeBreaker) Allow() bool { return f.allow }

func priceAt(platform domain.Platform, team string, bid, ask float64) domain.MarketPrice {
	return domain.MarketPrice{
		MarketID: string(platform) + "-" + team, Platform: platform, ContractTeam: team,
		MarketType: domain.MarketMoneyline, YesBid: bid, YesAsk: ask, Timestamp: time.Now(),
	}
}

func TestDetectArbFindsProfitableCombo(t *testing.T) {
	gc := newTestGC()
	// kalshi yes ask 45c, poly yes bid 60c -> poly "no" = 1-0.60=0.40=40c.
	// kalshi yes (45c) + poly no (40c) = 85c < 100c: a real arb.
	kalshi := priceAt(domain.PlatformKalshi, "Lakers", 0.43, 0.45)
	poly := priceAt(domain.PlatformPolymarket, "Lakers", 0.60, 0.62)
	parsed := domain.ParsedMarket{MarketType: domain.MarketMoneyline, Team: "Lakers"}

	sig := gc.DetectArb(domain.MarketMoneyline, kalshi, poly, parsed, parsed, nil, Tunables{})
	if sig == nil {
		t.Fatal("expected an arb signal for an 85c combined cost")
	}
	if sig.SignalType != domain.SignalCrossMarketArb {
		t.Errorf("SignalType = %v, want cross_market_arb", sig.SignalType)
	}
	if len(sig.ArbLegs) != 2 {
		t.Fatalf("got %d legs, want 2", len(sig.ArbLegs))
	}
	if sig.EdgePct <= 0 {
		t.Errorf("EdgePct = %v, want > 0", sig.EdgePct)
	}
}

func TestDetectArbNoArbWhenCombinedCostAtOrAboveHundred(t *testing.T) {
	gc := newTestGC()
	kalshi := priceAt(domain.PlatformKalshi, "Lakers", 0.55, 0.58)
	poly := priceAt(domain.PlatformPolymarket, "Lakers", 0.55, 0.58)
	parsed := domain.ParsedMarket{MarketType: domain.MarketMoneyline, Team: "Lakers"}

	if sig := gc.DetectArb(domain.MarketMoneyline, kalshi, poly, parsed, parsed, nil, Tunables{}); sig != nil {
		t.Errorf("expected no arb for efficiently priced books, got %+v", sig)
	}
}

func TestDetectArbBreakerBlocksSignal(t *testing.T) {
	gc := newTestGC()
	kalshi := priceAt(domain.PlatformKalshi, "Lakers", 0.43, 0.45)
	poly := priceAt(domain.PlatformPolymarket, "Lakers", 0.60, 0.62)
	parsed := domain.ParsedMarket{MarketType: domain.MarketMoneyline, Team: "Lakers"}

	sig := gc.DetectArb(domain.MarketMoneyline, kalshi, poly, parsed, parsed, fakeBreaker{allow: false}, Tunables{})
	if sig != nil {
		t.Error("expected the circuit breaker to suppress an otherwise-profitable arb")
	}
}

func TestDetectArbIncompatibleParsedMarketsReturnsNil(t *testing.T) {
	gc := newTestGC()
	kalshi := priceAt(domain.PlatformKalshi, "Lakers", 0.43, 0.45)
	poly := priceAt(domain.PlatformPolymarket, "Lakers", 0.60, 0.62)
	lineA, lineB := 5.5, 6.5

	sig := gc.DetectArb(domain.MarketSpread, kalshi, poly,
		domain.ParsedMarket{MarketType: domain.MarketSpread, Team: "Lakers", Line: &lineA},
		domain.ParsedMarket{MarketType: domain.MarketSpread, Team: "Lakers", Line: &lineB},
		nil, Tunables{})
	if sig != nil {
		t.Errorf("expected nil for mismatched spread lines, got %+v", sig)
	}
}

func TestDetectArbCrossedBookReturnsNil(t *testing.T) {
	gc := newTestGC()
	kalshi := priceAt(domain.PlatformKalshi, "Lakers", 0.50, 0.45) // bid >= ask
	poly := priceAt(domain.PlatformPolymarket, "Lakers", 0.60, 0.62)
	parsed := domain.ParsedMarket{MarketType: domain.MarketMoneyline, Team: "Lakers"}

	if sig := gc.DetectArb(domain.MarketMoneyline, kalshi, poly, parsed, parsed, nil, Tunables{}); sig != nil {
		t.Errorf("expected nil for a crossed book, got %+v", sig)
	}
}
