package kalshihttp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
)

// Market is a single Venue K market from the catalog API.
type Market struct {
	Ticker            string `json:"ticker"`
	EventTicker       string `json:"event_ticker"`
	Title             string `json:"title"`
	Subtitle          string `json:"subtitle"`
	Status            string `json:"status"`
	CloseTime         string `json:"close_time"`
	Volume            int64  `json:"volume"`
	YesAskDollars     string `json:"yes_ask_dollars"`
	YesBidDollars     string `json:"yes_bid_dollars"`
	NoAskDollars      string `json:"no_ask_dollars"`
	NoBidDollars      string `json:"no_bid_dollars"`
	MutuallyExclusive bool   `json:"mutually_exclusive"`
}

func (m Market) yesAsk() float64 { return dollarsToProb(m.YesAskDollars) }
func (m Market) yesBid() float64 { return dollarsToProb(m.YesBidDollars) }

func dollarsToProb(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return math.Round(v*100) / 100
}

// ToMarketPrice converts a catalog row into a domain.MarketPrice for the
// given game/team, stamped with the current time since the catalog
// endpoint carries no per-quote timestamp.
func (m Market) ToMarketPrice(gameID, contractTeam string, mtype domain.MarketType) domain.MarketPrice {
	return domain.MarketPrice{
		MarketID:     m.Ticker,
		Platform:     domain.PlatformKalshi,
		ContractTeam: contractTeam,
		GameID:       gameID,
		MarketType:   mtype,
		MarketTitle:  m.Title,
		YesBid:       m.yesBid(),
		YesAsk:       m.yesAsk(),
		Volume:       float64(m.Volume),
		Status:       kalshiStatus(m.Status),
		Timestamp:    time.Now(),
	}
}

func kalshiStatus(s string) domain.MarketStatus {
	switch s {
	case "closed":
		return domain.MarketClosed
	case "settled":
		return domain.MarketSettled
	default:
		return domain.MarketOpen
	}
}

type getMarketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// GetMarkets pages through the catalog for a series (sport event group).
func (c *Client) GetMarkets(ctx context.Context, seriesTicker string) ([]Market, error) {
	var all []Market
	cursor := ""
	for {
		path := fmt.Sprintf("/trade-api/v2/markets?status=open&series_ticker=%s&limit=1000", seriesTicker)
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		body, status, err := c.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if status != 200 {
			return nil, fmt.Errorf("get markets: status=%d body=%s", status, string(body))
		}
		var resp getMarketsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal markets: %w", err)
		}
		all = append(all, resp.Markets...)
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return all, nil
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	path := fmt.Sprintf("/trade-api/v2/markets/%s", ticker)
	body, status, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("get market: status=%d body=%s", status, string(body))
	}
	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal market: %w", err)
	}
	return &resp.Market, nil
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// GetBalanceCents returns the account balance in cents.
func (c *Client) GetBalanceCents(ctx context.Context) (int64, error) {
	body, status, err := c.Get(ctx, "/trade-api/v2/portfolio/balance")
	if err != nil {
		return 0, err
	}
	if status != 200 {
		return 0, fmt.Errorf("get balance: status=%d", status)
	}
	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}
