package polyhttp

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// Side mirrors the CLOB's two order sides.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// UserOrder is a high-level order before on-chain amount conversion.
type UserOrder struct {
	TokenID    string
	Price      decimal.Decimal
	Size       decimal.Decimal
	Side       Side
	Expiration int64
	FeeRateBps int64
}

// SignedOrder is the on-chain payload shape the CLOB API expects.
type SignedOrder struct {
	Maker       string `json:"maker"`
	Signer      string `json:"signer"`
	Taker       string `json:"taker"`
	TokenID     string `json:"tokenId"`
	MakerAmount string `json:"makerAmount"`
	TakerAmount string `json:"takerAmount"`
	Side        Side   `json:"side"`
	Expiration  string `json:"expiration"`
	Nonce       string `json:"nonce"`
	FeeRateBps  string `json:"feeRateBps"`
}

type OrderPayload struct {
	Order SignedOrder `json:"order"`
	Owner string      `json:"owner"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
}

const usdcDecimals = 6

// priceToAmounts converts a human-readable price/size pair into on-chain
// maker/taker amounts scaled to USDC's 6 decimals.
func priceToAmounts(price, size decimal.Decimal, side Side) (maker, taker *big.Int) {
	scale := decimal.New(1, usdcDecimals)
	switch side {
	case Buy:
		cost := size.Mul(price)
		return cost.Mul(scale).Truncate(0).BigInt(), size.Mul(scale).Truncate(0).BigInt()
	default: // Sell
		revenue := size.Mul(price)
		return size.Mul(scale).Truncate(0).BigInt(), revenue.Mul(scale).Truncate(0).BigInt()
	}
}

func (c *Client) buildOrderPayload(order UserOrder) OrderPayload {
	makerAmt, takerAmt := priceToAmounts(order.Price, order.Size, order.Side)

	return OrderPayload{
		Order: SignedOrder{
			Maker:       c.auth.FunderAddress().Hex(),
			Signer:      c.auth.Address().Hex(),
			Taker:       "0x0000000000000000000000000000000000000000",
			TokenID:     order.TokenID,
			MakerAmount: makerAmt.String(),
			TakerAmount: takerAmt.String(),
			Side:        order.Side,
			Expiration:  fmt.Sprintf("%d", order.Expiration),
			Nonce:       "0",
			FeeRateBps:  fmt.Sprintf("%d", order.FeeRateBps),
		},
	}
}

// PostOrder places a single signed order against the CLOB. In dry-run mode
// it returns a synthetic success without making an HTTP call, mirroring
// the engine's paper-trading mode for Venue K.
func (c *Client) PostOrder(ctx context.Context, order UserOrder) (*OrderResponse, error) {
	if c.dryRun {
		return &OrderResponse{Success: true, OrderID: "paper-" + order.TokenID, Status: "matched"}, nil
	}

	payload := c.buildOrderPayload(order)

	headers, err := c.auth.L2Headers(http.MethodPost, "/order", "")
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}

	var result OrderResponse
	start := time.Now()
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	telemetry.Metrics.VenueRequests.Polymarket.Inc()
	if err != nil {
		telemetry.Metrics.VenueOrderErrors.Polymarket.Inc()
		return nil, fmt.Errorf("post order: %w", err)
	}
	if resp.StatusCode() >= 300 {
		telemetry.Metrics.VenueOrderErrors.Polymarket.Inc()
		return nil, fmt.Errorf("post order: status %d: %s", resp.StatusCode(), resp.String())
	}

	telemetry.Metrics.VenueOrders.Polymarket.Inc()
	telemetry.Debugf("polyhttp: order placed token=%s side=%s -> %s (%s)",
		order.TokenID, order.Side, result.OrderID, time.Since(start))

	return &result, nil
}

// CancelOrder cancels a single resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		return nil
	}
	headers, err := c.auth.L2Headers(http.MethodDelete, "/order", "")
	if err != nil {
		return fmt.Errorf("sign cancel: %w", err)
	}
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(map[string]string{"orderID": orderID}).
		Delete("/order")
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("cancel order: status %d", resp.StatusCode())
	}
	return nil
}
