// Package polyhttp is the Venue P REST client: a gamma-style catalog read
// plus the CLOB book/order endpoints, retried on transport errors and 5xx
// responses, adapted from the 0xtitan6-polymarket-mm reference client (§6).
// Requests are not rate-limited; only the Venue K client carries a limiter.
package polyhttp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arbtwo/marketfusion/internal/telemetry"
	"github.com/arbtwo/marketfusion/internal/venue/polyauth"
)

type Client struct {
	gamma  *resty.Client
	clob   *resty.Client
	auth   *polyauth.Auth
	dryRun bool
}

func NewClient(gammaURL, clobURL string, auth *polyauth.Auth, dryRun bool) *Client {
	mk := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(10 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= 500
			}).
			SetHeader("Content-Type", "application/json")
	}

	return &Client{
		gamma:  mk(gammaURL),
		clob:   mk(clobURL),
		auth:   auth,
		dryRun: dryRun,
	}
}

// GammaMarket is one row of the catalog response used for discovery (§4.5).
type GammaMarket struct {
	ConditionID string   `json:"conditionId"`
	Question    string   `json:"question"`
	Volume      string   `json:"volume"`
	ClobTokenID []string `json:"clobTokenIds"`
	Outcomes    []string `json:"outcomes"`
	Active      bool     `json:"active"`
	Closed      bool     `json:"closed"`
}

// GetMarkets fetches active markets matching a free-text query (usually a
// team/league slug) from the gamma catalog.
func (c *Client) GetMarkets(ctx context.Context, query string) ([]GammaMarket, error) {
	telemetry.Metrics.VenueRequests.Polymarket.Inc()

	var result []GammaMarket
	resp, err := c.gamma.R().
		SetContext(ctx).
		SetQueryParam("active", "true").
		SetQueryParam("closed", "false").
		SetQueryParam("search", query).
		SetResult(&result).
		Get("/markets")
	if err != nil {
		telemetry.Metrics.VenueErrors.Polymarket.Inc()
		return nil, fmt.Errorf("gamma get markets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		telemetry.Metrics.VenueErrors.Polymarket.Inc()
		return nil, fmt.Errorf("gamma get markets: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// BookResponse is the CLOB L2 book for one token_id.
type BookResponse struct {
	Market string      `json:"market"`
	AssetID string     `json:"asset_id"`
	Bids    []BookLevel `json:"bids"`
	Asks    []BookLevel `json:"asks"`
}

type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// GetOrderBook fetches the CLOB book for a single token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*BookResponse, error) {
	telemetry.Metrics.VenueRequests.Polymarket.Inc()

	var result BookResponse
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		telemetry.Metrics.VenueErrors.Polymarket.Inc()
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		telemetry.Metrics.VenueErrors.Polymarket.Inc()
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// CheckGeoRestriction verifies this process's public egress is not in a
// restricted region. A failure here is fatal (§4.3) — the caller must treat
// a non-nil error, or allowed=false, as domain.ReasonGeoViolation and halt
// the process rather than degrade to a warning.
func (c *Client) CheckGeoRestriction(ctx context.Context, geoCheckURL string) (allowed bool, err error) {
	var result struct {
		Blocked bool `json:"blocked"`
	}
	resp, err := resty.New().SetTimeout(10 * time.Second).R().
		SetContext(ctx).
		SetResult(&result).
		Get(geoCheckURL)
	if err != nil {
		return false, fmt.Errorf("geo check request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("geo check: status %d", resp.StatusCode())
	}
	return !result.Blocked, nil
}
