package orderbook

import (
	"testing"

	"github.com/arbtwo/marketfusion/internal/domain"
)

func TestApplySnapshotFoldsNoSide(t *testing.T) {
	b := New()

	// A resting NO ask at 40 is a YES bid at 60; a resting NO bid at 55 is
	// a YES ask at 45.
	gap := b.ApplySnapshot(
		map[int]int{50: 10},
		map[int]int{70: 5},
		map[int]int{55: 20},
		map[int]int{40: 15},
		1,
	)
	if gap {
		t.Fatal("first snapshot should never report a gap")
	}

	if got := b.BestYesBid(); got != 60 {
		t.Errorf("best yes bid = %d, want 60 (folded NO ask)", got)
	}
	if got := b.BestYesAsk(); got != 45 {
		t.Errorf("best yes ask = %d, want 45 (folded NO bid)", got)
	}
}

func TestApplySnapshotZeroQtyOmitted(t *testing.T) {
	b := New()
	b.ApplySnapshot(
		map[int]int{50: 0, 55: 10},
		map[int]int{60: 0, 65: 5},
		nil, nil, 1,
	)
	if got := b.BestYesBid(); got != 55 {
		t.Errorf("best yes bid = %d, want 55 (zero-qty level dropped)", got)
	}
	if got := b.BestYesAsk(); got != 65 {
		t.Errorf("best yes ask = %d, want 65 (zero-qty level dropped)", got)
	}
}

func TestApplyDeltaAddsRemovesLevels(t *testing.T) {
	b := New()
	b.ApplySnapshot(map[int]int{50: 10}, map[int]int{60: 10}, nil, nil, 1)

	b.ApplyDelta(55, 20, domain.SideYesBid, 2)
	if got := b.BestYesBid(); got != 55 {
		t.Errorf("best yes bid = %d, want 55 after positive delta", got)
	}

	// Driving a level to <=0 removes it rather than leaving a non-positive entry.
	b.ApplyDelta(55, -20, domain.SideYesBid, 3)
	if got := b.BestYesBid(); got != 50 {
		t.Errorf("best yes bid = %d, want 50 after level removed", got)
	}
}

func TestApplyDeltaNoSideFoldsToComplement(t *testing.T) {
	b := New()
	b.ApplySnapshot(nil, nil, nil, nil, 1)

	// A NO ask delta at price 30 becomes a YES bid delta at 70.
	b.ApplyDelta(30, 10, domain.SideNoAsk, 2)
	if got := b.BestYesBid(); got != 70 {
		t.Errorf("best yes bid = %d, want 70 (NO ask folded)", got)
	}

	// A NO bid delta at price 80 becomes a YES ask delta at 20.
	b.ApplyDelta(80, 10, domain.SideNoBid, 3)
	if got := b.BestYesAsk(); got != 20 {
		t.Errorf("best yes ask = %d, want 20 (NO bid folded)", got)
	}
}

func TestSeqGapDetection(t *testing.T) {
	b := New()
	if gap := b.ApplySnapshot(nil, nil, nil, nil, 10); gap {
		t.Fatal("first observed seq is never a gap")
	}
	if gap := b.ApplyDelta(50, 1, domain.SideYesBid, 11); gap {
		t.Error("sequential seq should not report a gap")
	}
	if gap := b.ApplyDelta(50, 1, domain.SideYesBid, 20); !gap {
		t.Error("skipped seq should report a gap")
	}
	// A gap still advances lastSeq and keeps applying in arrival order (§5).
	if gap := b.ApplyDelta(50, 1, domain.SideYesBid, 21); gap {
		t.Error("seq should have advanced past the gap")
	}
}

func TestCrossedBook(t *testing.T) {
	b := New()
	b.ApplySnapshot(map[int]int{60: 1}, map[int]int{55: 1}, nil, nil, 1)
	if !b.Crossed() {
		t.Error("bid >= ask should report crossed")
	}
	// Mid() still averages both sides even when crossed; SyntheticMid exists
	// for callers that need a non-crossed observability-only quote instead.
	if got := b.Mid(); got != 57.5 {
		t.Errorf("Mid() = %v, want 57.5", got)
	}
}

func TestMidAndSpreadEmptySides(t *testing.T) {
	b := New()
	if got := b.Mid(); got != -1 {
		t.Errorf("Mid() on empty book = %v, want -1", got)
	}
	if got := b.SpreadCents(); got != -1 {
		t.Errorf("SpreadCents() on empty book = %v, want -1", got)
	}
	if _, _, ok := b.SyntheticMid(); ok {
		t.Error("SyntheticMid() on fully empty book should report ok=false")
	}
}

func TestSyntheticMidOneSided(t *testing.T) {
	b := New()
	b.ApplySnapshot(map[int]int{50: 1}, nil, nil, nil, 1)
	bid, ask, ok := b.SyntheticMid()
	if !ok {
		t.Fatal("one-sided book should still produce a synthetic mid")
	}
	if bid != 49 || ask != 51 {
		t.Errorf("synthetic mid = (%d,%d), want (49,51)", bid, ask)
	}
}

func TestLevelsRoundTrip(t *testing.T) {
	b := New()
	b.ApplySnapshot(
		map[int]int{50: 10, 48: 5},
		map[int]int{60: 7, 65: 3},
		nil, nil, 1,
	)
	bids, asks := b.Levels()

	b2 := New()
	bidMap := make(map[int]int, len(bids))
	for _, l := range bids {
		bidMap[l.PriceCents] = l.Qty
	}
	askMap := make(map[int]int, len(asks))
	for _, l := range asks {
		askMap[l.PriceCents] = l.Qty
	}
	b2.ApplySnapshot(bidMap, askMap, nil, nil, 1)

	if b.BestYesBid() != b2.BestYesBid() || b.BestYesAsk() != b2.BestYesAsk() {
		t.Error("re-applying Levels() as a snapshot should reproduce best bid/ask")
	}
	if b.LiquiditySum() != b2.LiquiditySum() {
		t.Error("re-applying Levels() as a snapshot should reproduce total liquidity")
	}
}

func TestLiquiditySum(t *testing.T) {
	b := New()
	b.ApplySnapshot(
		map[int]int{50: 10, 48: 5},
		map[int]int{60: 7},
		nil, nil, 1,
	)
	if got := b.LiquiditySum(); got != 22 {
		t.Errorf("LiquiditySum() = %d, want 22", got)
	}
}
