package kalshihttp

import (
	"context"

	"github.com/arbtwo/marketfusion/internal/discovery"
	"github.com/arbtwo/marketfusion/internal/domain"
)

// seriesTickers maps a sport to the Kalshi series ticker prefix its game
// markets are filed under — the catalog's only sport-scoping knob.
var seriesTickers = map[domain.Sport]string{
	domain.NFL:    "KXNFLGAME",
	domain.NCAAF:  "KXNCAAFGAME",
	domain.NBA:    "KXNBAGAME",
	domain.NCAAB:  "KXNCAABGAME",
	domain.NHL:    "KXNHLGAME",
	domain.MLB:    "KXMLBGAME",
	domain.MLS:    "KXMLSGAME",
	domain.Soccer: "KXSOCCERGAME",
}

// Candidates implements discovery.Source over the catalog endpoint.
func (c *Client) Candidates(ctx context.Context, game domain.GameInfo, marketType domain.MarketType) ([]discovery.Candidate, error) {
	series, ok := seriesTickers[game.Sport]
	if !ok {
		return nil, nil
	}
	markets, err := c.GetMarkets(ctx, series)
	if err != nil {
		return nil, err
	}
	out := make([]discovery.Candidate, 0, len(markets))
	for _, m := range markets {
		out = append(out, discovery.Candidate{
			MarketID: m.Ticker,
			Title:    m.Title,
			Volume:   float64(m.Volume),
			Platform: domain.PlatformKalshi,
		})
	}
	return out, nil
}
