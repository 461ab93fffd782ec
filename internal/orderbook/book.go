// Package orderbook implements the per-market LocalOrderBook (§4.2).
package orderbook

import (
	"sort"
	"sync"

	"github.com/arbtwo/marketfusion/internal/domain"
)

// Book is a single venue market's yes_bids/yes_asks ledger, keyed by
// price-in-cents -> quantity. NO-side deltas are folded into the YES book
// via the complement price (100 - p) before being applied.
//
// A Book is single-writer per (market_id, platform) per §5 — the owning
// VenueMonitor's price loop is the only mutator. The mutex here guards
// against the rare case a caller wants a concurrent read (e.g. a metrics
// scrape) while the owner mutates.
type Book struct {
	mu   sync.RWMutex
	bids map[int]int // price cents -> qty
	asks map[int]int

	lastSeq   int64
	haveSeq   bool
}

func New() *Book {
	return &Book{
		bids: make(map[int]int),
		asks: make(map[int]int),
	}
}

// ApplySnapshot replaces book state wholesale. NO-side entries (noBids map
// of price->qty, representing resting NO orders) become YES asks at the
// complement price. Snapshots are versioned by seq; the returned gap reports
// whether this snapshot's seq indicates a missed update.
func (b *Book) ApplySnapshot(yesBids, yesAsks, noBids, noAsks map[int]int, seq int64) (gap bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gap = b.checkSeq(seq)

	bids := make(map[int]int, len(yesBids)+len(noAsks))
	asks := make(map[int]int, len(yesAsks)+len(noBids))

	for p, q := range yesBids {
		if q > 0 {
			bids[p] = q
		}
	}
	for p, q := range yesAsks {
		if q > 0 {
			asks[p] = q
		}
	}
	// A resting NO ask at price p is a resting YES bid at 100-p.
	for p, q := range noAsks {
		if q > 0 {
			bids[100-p] += q
		}
	}
	// A resting NO bid at price p is a resting YES ask at 100-p.
	for p, q := range noBids {
		if q > 0 {
			asks[100-p] += q
		}
	}

	b.bids = bids
	b.asks = asks
	return gap
}

// ApplyDelta adds delta to the per-price quantity for side. If the resulting
// quantity is <= 0 the level is removed; new levels only appear with a
// positive delta (§4.2). Returns whether seq indicates a gap.
func (b *Book) ApplyDelta(priceCents, delta int, side domain.BookSide, seq int64) (gap bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gap = b.checkSeq(seq)

	switch side {
	case domain.SideYesBid:
		applyLevel(b.bids, priceCents, delta)
	case domain.SideYesAsk:
		applyLevel(b.asks, priceCents, delta)
	case domain.SideNoAsk:
		// NO ask at p == YES bid at 100-p.
		applyLevel(b.bids, 100-priceCents, delta)
	case domain.SideNoBid:
		// NO bid at p == YES ask at 100-p.
		applyLevel(b.asks, 100-priceCents, delta)
	}
	return gap
}

func applyLevel(m map[int]int, price, delta int) {
	q := m[price] + delta
	if q <= 0 {
		delete(m, price)
		return
	}
	m[price] = q
}

// checkSeq returns true if seq is not exactly lastSeq+1 (a gap), and always
// advances lastSeq to seq regardless, per §5 "gaps trigger resubscribe, not
// reorder" — the caller resubscribes; the book keeps applying in arrival order.
func (b *Book) checkSeq(seq int64) bool {
	if !b.haveSeq {
		b.haveSeq = true
		b.lastSeq = seq
		return false
	}
	gap := seq != b.lastSeq+1
	b.lastSeq = seq
	return gap
}

// BestYesBid returns the highest resting bid price in cents, or -1 if none.
func (b *Book) BestYesBid() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maxKey(b.bids)
}

// BestYesAsk returns the lowest resting ask price in cents, or -1 if none.
func (b *Book) BestYesAsk() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return minKey(b.asks)
}

// Crossed reports whether best bid >= best ask (unusable for execution, §4.2).
func (b *Book) Crossed() bool {
	bid, ask := b.BestYesBid(), b.BestYesAsk()
	if bid < 0 || ask < 0 {
		return false
	}
	return bid >= ask
}

// Mid returns (bid+ask)/2 in cents, or -1 if either side is empty. When
// crossed, callers needing a quote for observability only should instead
// use SyntheticMid, which reports ±1 cent around the midpoint.
func (b *Book) Mid() float64 {
	bid, ask := b.BestYesBid(), b.BestYesAsk()
	if bid < 0 || ask < 0 {
		return -1
	}
	return float64(bid+ask) / 2
}

// SyntheticMid reports a synthetic ±1-cent spread around the midpoint for
// observability when the book is crossed or one-sided; never used for execution.
func (b *Book) SyntheticMid() (bidCents, askCents int, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, ask := maxKey(b.bids), minKey(b.asks)
	var mid float64
	switch {
	case bid >= 0 && ask >= 0:
		mid = float64(bid+ask) / 2
	case bid >= 0:
		mid = float64(bid)
	case ask >= 0:
		mid = float64(ask)
	default:
		return 0, 0, false
	}
	return int(mid) - 1, int(mid) + 1, true
}

// SpreadCents returns best ask - best bid, or -1 if either side is empty.
func (b *Book) SpreadCents() int {
	bid, ask := b.BestYesBid(), b.BestYesAsk()
	if bid < 0 || ask < 0 {
		return -1
	}
	return ask - bid
}

// LiquiditySum sums qty across both sides, a coarse depth proxy.
func (b *Book) LiquiditySum() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, q := range b.bids {
		total += q
	}
	for _, q := range b.asks {
		total += q
	}
	return total
}

// Levels returns a sorted snapshot of (price,qty) for both sides, used by
// the round-trip invariant test (§8): serialize + re-apply as a snapshot
// must reproduce the same best bid/ask and total liquidity.
func (b *Book) Levels() (bids, asks []domain.BookLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bids = toLevels(b.bids)
	asks = toLevels(b.asks)
	return
}

func toLevels(m map[int]int) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(m))
	for p, q := range m {
		out = append(out, domain.BookLevel{PriceCents: p, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out
}

func maxKey(m map[int]int) int {
	best := -1
	for k := range m {
		if k > best {
			best = k
		}
	}
	return best
}

func minKey(m map[int]int) int {
	best := -1
	for k := range m {
		if best == -1 || k < best {
			best = k
		}
	}
	return best
}
