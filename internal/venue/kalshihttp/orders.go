package kalshihttp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// CreateOrderRequest is the payload for POST /trade-api/v2/portfolio/orders.
type CreateOrderRequest struct {
	Ticker          string `json:"ticker"`
	Action          string `json:"action"` // "buy" or "sell"
	Side            string `json:"side"`   // "yes" or "no"
	Type            string `json:"type"`   // "limit" or "market"
	CountFP         string `json:"count_fp,omitempty"`
	YesPriceDollars string `json:"yes_price_dollars,omitempty"`
	NoPriceDollars  string `json:"no_price_dollars,omitempty"`
	ClientID        string `json:"client_order_id,omitempty"`
	TimeInForce     string `json:"time_in_force,omitempty"`
	ExpirationTS    int64  `json:"expiration_ts,omitempty"`
}

type OrderDetail struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	Side           string `json:"side"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	FillCount      int    `json:"fill_count"`
	RemainingCount int    `json:"remaining_count"`
	TakerFees      int    `json:"taker_fees"`
	MakerFees      int    `json:"maker_fees"`
	TakerFillCost  int    `json:"taker_fill_cost"`
	MakerFillCost  int    `json:"maker_fill_cost"`
}

type CreateOrderResponse struct {
	Order OrderDetail `json:"order"`
}

func (c *Client) PlaceOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	body, status, err := c.Post(ctx, "/trade-api/v2/portfolio/orders", req)
	if err != nil {
		telemetry.Metrics.VenueOrderErrors.Kalshi.Inc()
		return nil, err
	}
	if status < 200 || status >= 300 {
		telemetry.Metrics.VenueOrderErrors.Kalshi.Inc()
		return nil, fmt.Errorf("order rejected: status=%d body=%s", status, string(body))
	}

	var resp CreateOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal order response: %w", err)
	}

	telemetry.Metrics.VenueOrders.Kalshi.Inc()
	telemetry.Infof("kalshihttp: order placed ticker=%s side=%s count=%s -> %s",
		req.Ticker, req.Side, req.CountFP, resp.Order.OrderID)

	return &resp, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	path := fmt.Sprintf("/trade-api/v2/portfolio/orders/%s", orderID)
	body, status, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("get order: status=%d body=%s", status, string(body))
	}
	var resp struct {
		Order OrderDetail `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &resp.Order, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/trade-api/v2/portfolio/orders/%s", orderID)
	_, status, err := c.Delete(ctx, path)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("cancel failed: status=%d", status)
	}
	return nil
}

// ReadTokens returns the current number of available read rate-limit tokens.
func (c *Client) ReadTokens() float64 {
	return c.readLimiter.Tokens()
}
