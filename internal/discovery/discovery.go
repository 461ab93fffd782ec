// Package discovery implements Market Discovery (§4.5): for a given game
// and market type, pick the venue market whose parsed title best matches
// the game, and assemble the {market_type: {platform: market_id}} map the
// orchestrator hands to a GameShard.
package discovery

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/parser"
)

// Candidate is one venue-side market title/ticker under consideration.
type Candidate struct {
	MarketID string
	Title    string
	Volume   float64
	Platform domain.Platform
}

// Source abstracts a venue's catalog lookup so Discoverer stays
// venue-agnostic; Kalshi and Polymarket each implement this over their
// own REST client.
type Source interface {
	Candidates(ctx context.Context, game domain.GameInfo, marketType domain.MarketType) ([]Candidate, error)
}

type Discoverer struct {
	kalshi Source
	poly   Source
}

func New(kalshi, poly Source) *Discoverer {
	return &Discoverer{kalshi: kalshi, poly: poly}
}

const (
	volumeDivisorKalshi = 10_000
	volumeDivisorPoly   = 100_000
)

// best scores every candidate and returns the market_id of the highest
// scorer, or ok=false if none score positive.
func (d *Discoverer) best(game domain.GameInfo, marketType domain.MarketType, candidates []Candidate, divisor float64) (string, bool) {
	var bestID string
	bestScore := 0.0
	found := false

	for _, c := range candidates {
		if parser.IsMultiGameOrParlay(c.MarketID) {
			continue
		}
		score := parser.DiscoveryScore(c.Title, game.HomeTeam, game.AwayTeam, marketType, c.Volume, divisor)
		if score > bestScore || !found {
			bestScore = score
			bestID = c.MarketID
			found = score > 0
		}
	}
	if !found {
		return "", false
	}
	return bestID, true
}

// DiscoverMoneyline is the single-market fallback discovery path.
func (d *Discoverer) DiscoverMoneyline(ctx context.Context, game domain.GameInfo) (map[domain.MarketType]map[domain.Platform]string, error) {
	return d.discoverTypes(ctx, game, []domain.MarketType{domain.MarketMoneyline}, false)
}

// DiscoverMulti discovers every market type, keeping a type only when both
// platforms produced a result — this guarantees the cross-venue arb path
// always has a valid pair to compare (§4.5).
func (d *Discoverer) DiscoverMulti(ctx context.Context, game domain.GameInfo) (map[domain.MarketType]map[domain.Platform]string, error) {
	types := []domain.MarketType{domain.MarketMoneyline, domain.MarketSpread, domain.MarketTotal}
	return d.discoverTypes(ctx, game, types, true)
}

// discoverTypes fetches both venues' candidates for every market type
// concurrently: each (type, venue) pair is an independent REST round trip,
// and a single slow catalog fetch shouldn't serialize behind the others.
func (d *Discoverer) discoverTypes(ctx context.Context, game domain.GameInfo, types []domain.MarketType, requireBoth bool) (map[domain.MarketType]map[domain.Platform]string, error) {
	out := make(map[domain.MarketType]map[domain.Platform]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, mtype := range types {
		mtype := mtype
		g.Go(func() error {
			byPlatform := map[domain.Platform]string{}

			if d.kalshi != nil {
				cands, err := d.kalshi.Candidates(gctx, game, mtype)
				if err == nil {
					if id, ok := d.best(game, mtype, cands, volumeDivisorKalshi); ok {
						byPlatform[domain.PlatformKalshi] = id
					}
				}
			}
			if d.poly != nil {
				cands, err := d.poly.Candidates(gctx, game, mtype)
				if err == nil {
					if id, ok := d.best(game, mtype, cands, volumeDivisorPoly); ok {
						byPlatform[domain.PlatformPolymarket] = id
					}
				}
			}

			if requireBoth && (byPlatform[domain.PlatformKalshi] == "" || byPlatform[domain.PlatformPolymarket] == "") {
				return nil
			}
			if len(byPlatform) == 0 {
				return nil
			}

			// Venue K moneyline tickers are per-team; keep the discovered
			// ticker only if it parses as {DATE}{AWAY}{HOME}-{TEAM}, which is
			// what parser.KalshiTicker.Complement needs to build the other
			// team's ticker. An unparseable ticker is dropped. The complement
			// itself is not added to the map here.
			if mtype == domain.MarketMoneyline {
				if t, ok := byPlatform[domain.PlatformKalshi]; ok {
					if _, parsed := parser.ParseKalshiTicker(t); !parsed {
						delete(byPlatform, domain.PlatformKalshi)
					}
				}
			}

			mu.Lock()
			out[mtype] = byPlatform
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-venue errors are already swallowed above; nothing to propagate

	return out, nil
}
