package shard

import (
	"testing"
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
)

func newTestGC() *GameContext {
	gc := NewGameContext("g1", domain.NBA, domain.GameInfo{HomeTeam: "Lakers", AwayTeam: "Celtics"})
	gc.Close() // the background goroutine isn't needed; tests mutate fields directly
	return gc
}

func freshPrice(team string, bid, ask float64) domain.MarketPrice {
	return domain.MarketPrice{
		MarketID: "m1", Platform: domain.PlatformKalshi, ContractTeam: team,
		MarketType: domain.MarketMoneyline, YesBid: bid, YesAsk: ask, Timestamp: time.Now(),
	}
}

func TestOnStateUpdateNoPreviousProbReturnsNil(t *testing.T) {
	gc := newTestGC()
	if sig := gc.OnStateUpdate(0, false, 0.6, Tunables{MinDeltaPct: 0.02}); sig != nil {
		t.Errorf("expected nil with no prior prob, got %+v", sig)
	}
}

func TestOnStateUpdateBelowMinDeltaReturnsNil(t *testing.T) {
	gc := newTestGC()
	if sig := gc.OnStateUpdate(0.50, true, 0.505, Tunables{MinDeltaPct: 0.02}); sig != nil {
		t.Errorf("expected nil for a sub-threshold shift, got %+v", sig)
	}
}

func TestOnStateUpdateEmitsWinProbShiftForHomeTeam(t *testing.T) {
	gc := newTestGC()
	gc.SetPrice(freshPrice("Lakers", 0.55, 0.58))

	tun := Tunables{MinDeltaPct: 0.02, RequiredEdgeFeesPct: 1.0}
	// newProb=0.70 beats prevProb=0.50 by 0.20 > MinDeltaPct; shifting toward
	// the home team (Lakers), whose buy edge is 0.70-0.58=0.12 (12pp) against
	// a required bar of 1.0 + (0.58-0.55)*100/2 + 1.0 = 3.5pp.
	sig := gc.OnStateUpdate(0.50, true, 0.70, tun)
	if sig == nil {
		t.Fatal("expected a win_prob_shift signal")
	}
	if sig.SignalType != domain.SignalWinProbShift {
		t.Errorf("SignalType = %v, want win_prob_shift", sig.SignalType)
	}
	if sig.Team != "Lakers" {
		t.Errorf("Team = %q, want Lakers", sig.Team)
	}
	if sig.Direction != domain.Buy {
		t.Errorf("Direction = %v, want buy", sig.Direction)
	}
}

func TestOnStateUpdateStalePriceReturnsNil(t *testing.T) {
	gc := newTestGC()
	stale := freshPrice("Lakers", 0.55, 0.58)
	stale.Timestamp = time.Now().Add(-time.Hour)
	gc.SetPrice(stale)

	sig := gc.OnStateUpdate(0.50, true, 0.70, Tunables{MinDeltaPct: 0.02, MarketDataTTL: time.Minute})
	if sig != nil {
		t.Errorf("expected nil for a stale price, got %+v", sig)
	}
}

func TestOnStateUpdateInsufficientEdgeReturnsNil(t *testing.T) {
	gc := newTestGC()
	// a wide market (bid 0.40/ask 0.60) needs a large edge to clear the bar;
	// a 0.02 swing to 0.52 isn't nearly enough.
	gc.SetPrice(freshPrice("Lakers", 0.40, 0.60))
	sig := gc.OnStateUpdate(0.50, true, 0.52, Tunables{MinDeltaPct: 0.01, RequiredEdgeFeesPct: 1.0})
	if sig != nil {
		t.Errorf("expected nil when edge is below the required bar, got %+v", sig)
	}
}

func TestOnPriceUpdateNoWinProbYetReturnsNil(t *testing.T) {
	gc := newTestGC()
	if sig := gc.OnPriceUpdate(freshPrice("Lakers", 0.4, 0.45), Tunables{MarketSignalEdgePct: 5.0}); sig != nil {
		t.Errorf("expected nil before any win-prob state has been seen, got %+v", sig)
	}
}

func TestOnPriceUpdateBelowMarketSignalGateReturnsNil(t *testing.T) {
	gc := newTestGC()
	gc.HasWinProb = true
	gc.LastWinProb = 0.55
	// buy edge = 0.55-0.53=2pp, below the 5pp WS-driven gate.
	sig := gc.OnPriceUpdate(freshPrice("Lakers", 0.50, 0.53), Tunables{MarketSignalEdgePct: 5.0, RequiredEdgeFeesPct: 1.0})
	if sig != nil {
		t.Errorf("expected nil below the market-signal edge gate, got %+v", sig)
	}
}

func TestOnPriceUpdateEmitsMarketMispricingAboveGate(t *testing.T) {
	gc := newTestGC()
	gc.HasWinProb = true
	gc.LastWinProb = 0.75
	// buy edge = 0.75-0.60=15pp, well above both the required-edge bar and
	// the 5pp WS gate.
	sig := gc.OnPriceUpdate(freshPrice("Lakers", 0.55, 0.60), Tunables{MarketSignalEdgePct: 5.0, RequiredEdgeFeesPct: 1.0})
	if sig == nil {
		t.Fatal("expected a market_mispricing signal")
	}
	if sig.SignalType != domain.SignalMarketMispricing || sig.Team != "Lakers" {
		t.Errorf("signal = %+v, want market_mispricing for Lakers", sig)
	}
}

func TestOnPriceUpdateAwayTeamPriceFlipsTargetToAway(t *testing.T) {
	gc := newTestGC()
	gc.HasWinProb = true
	gc.LastWinProb = 0.75 // home win prob; away implied prob = 0.25
	// a price explicitly tagged for the away team: sell edge should be
	// evaluated against (1-0.75)=0.25, not the raw home prob.
	sig := gc.OnPriceUpdate(freshPrice("Celtics", 0.05, 0.08), Tunables{MarketSignalEdgePct: 5.0, RequiredEdgeFeesPct: 1.0})
	if sig == nil {
		t.Fatal("expected a signal for the away-team-tagged price")
	}
	if sig.Team != "Celtics" {
		t.Errorf("Team = %q, want Celtics", sig.Team)
	}
}

func TestApplyHysteresisSameDirectionIsIdempotent(t *testing.T) {
	gc := newTestGC()
	first := &domain.Signal{Direction: domain.Buy, EdgePct: 10}
	gc.applyHysteresis(first, Tunables{})
	second := &domain.Signal{Direction: domain.Buy, EdgePct: 12}
	if got := gc.applyHysteresis(second, Tunables{}); got != nil {
		t.Errorf("expected nil for a same-direction repeat, got %+v", got)
	}
}

func TestApplyHysteresisDirectionFlipNeedsDoubleEdge(t *testing.T) {
	gc := newTestGC()
	gc.ActiveSignal = &domain.Signal{Direction: domain.Buy, EdgePct: 10}

	weak := &domain.Signal{Direction: domain.Sell, EdgePct: 3}
	if got := gc.applyHysteresis(weak, Tunables{RequiredEdgeFeesPct: 2, HysteresisMultiple: 2.0}); got != nil {
		t.Errorf("expected the flip to be suppressed below the hysteresis bar, got %+v", got)
	}

	strong := &domain.Signal{Direction: domain.Sell, EdgePct: 5}
	if got := gc.applyHysteresis(strong, Tunables{RequiredEdgeFeesPct: 2, HysteresisMultiple: 2.0}); got == nil {
		t.Error("expected the flip to go through once edge clears 2x the required bar")
	}
}

func TestTeamPriceInvertsForOppositeTeamWithoutMatcher(t *testing.T) {
	gc := newTestGC()
	gc.SetPrice(freshPrice("Lakers", 0.60, 0.65))

	p, ok := gc.TeamPrice(domain.MarketMoneyline, domain.PlatformKalshi, "Celtics", nil, 0.7)
	if !ok {
		t.Fatal("expected TeamPrice to find and invert the stored quote")
	}
	if p.ContractTeam != "Celtics" {
		t.Errorf("ContractTeam = %q, want Celtics", p.ContractTeam)
	}
	if p.YesBid != 1-0.65 || p.YesAsk != 1-0.60 {
		t.Errorf("inverted bid/ask = %v/%v, want %v/%v", p.YesBid, p.YesAsk, 1-0.65, 1-0.60)
	}
}

func TestTeamPriceMissingMarketReturnsFalse(t *testing.T) {
	gc := newTestGC()
	if _, ok := gc.TeamPrice(domain.MarketMoneyline, domain.PlatformKalshi, "Lakers", nil, 0.7); ok {
		t.Error("expected ok=false with no price stored for this (type, platform)")
	}
}
