package polyhttp

import (
	"context"
	"strconv"

	"github.com/arbtwo/marketfusion/internal/discovery"
	"github.com/arbtwo/marketfusion/internal/domain"
)

// Candidates implements discovery.Source over the gamma catalog, searching
// by the home team's display name — Venue P's markets aren't pre-sorted by
// sport/series the way Venue K's are, so the query has to be free text.
func (c *Client) Candidates(ctx context.Context, game domain.GameInfo, marketType domain.MarketType) ([]discovery.Candidate, error) {
	markets, err := c.GetMarkets(ctx, game.HomeTeam)
	if err != nil {
		return nil, err
	}
	out := make([]discovery.Candidate, 0, len(markets))
	for _, m := range markets {
		if !m.Active || m.Closed {
			continue
		}
		vol, _ := strconv.ParseFloat(m.Volume, 64)
		out = append(out, discovery.Candidate{
			MarketID: m.ConditionID,
			Title:    m.Question,
			Volume:   vol,
			Platform: domain.PlatformPolymarket,
		})
	}
	return out, nil
}
