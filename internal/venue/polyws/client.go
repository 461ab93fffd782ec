// Package polyws is the Venue P WebSocket client: subscribes by token_id,
// receives {book, price_change, last_trade_price, tick_size_change} events,
// and sends a mandatory heartbeat every 5s while connected (§6). Reconnect
// uses exponential backoff with jitter and replays the full active
// subscription set (§5), mirroring the Venue K WS client's shape.
package polyws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbtwo/marketfusion/internal/telemetry"
)

const heartbeatInterval = 5 * time.Second

// Update is one parsed Venue P book/price event.
type Update struct {
	TokenID  string
	Kind     string // "book", "price_change", "last_trade_price", "tick_size_change"
	Snapshot bool
	Bids     map[string]string // price(decimal string) -> size
	Asks     map[string]string
	Price    string
	Side     string
}

type Handler func(Update)

type Client struct {
	url     string
	handler Handler
	conn    *websocket.Conn
	done    chan struct{}

	mu       sync.Mutex
	tokenIDs map[string]bool
}

func NewClient(wsURL string, handler Handler) *Client {
	return &Client{
		url:      wsURL,
		handler:  handler,
		done:     make(chan struct{}),
		tokenIDs: make(map[string]bool),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.heartbeatLoop(ctx)
	go c.runLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	u, _ := url.Parse(c.url)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	telemetry.Metrics.VenueRequests.Polymarket.Inc()
	return nil
}

// SubscribeTokens adds token_ids and subscribes on the live connection.
func (c *Client) SubscribeTokens(tokenIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []string
	for _, t := range tokenIDs {
		if !c.tokenIDs[t] {
			c.tokenIDs[t] = true
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 || c.conn == nil {
		return nil
	}
	return c.sendSubscribe(fresh)
}

func (c *Client) sendSubscribe(tokenIDs []string) error {
	cmd := map[string]any{
		"type":       "market",
		"assets_ids": tokenIDs,
	}
	return c.conn.WriteJSON(cmd)
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tokenIDs) == 0 {
		return
	}
	all := make([]string, 0, len(c.tokenIDs))
	for t := range c.tokenIDs {
		all = append(all, t)
	}
	if err := c.sendSubscribe(all); err != nil {
		telemetry.Warnf("polyws: resubscribe failed: %v", err)
	}
}

// heartbeatLoop sends an unconditional ping every 5s while connected — Venue
// P terminates the connection if it doesn't see one (§4.3).
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				telemetry.Warnf("polyws: heartbeat failed: %v", err)
			}
		}
	}
}

func (c *Client) runLoop(ctx context.Context) {
	defer close(c.done)

	first := true
	for {
		if first {
			telemetry.Infof("polyws: connected to %s", c.url)
			first = false
		} else {
			telemetry.Infof("polyws: reconnected")
			telemetry.Metrics.VenueReconnects.Polymarket.Inc()
		}

		c.resubscribeAll()
		c.readLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		backoff := 1 * time.Second
		const maxBackoff = 30 * time.Second
		for attempt := 1; ; attempt++ {
			jitter := time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
			wait := backoff + jitter
			telemetry.Warnf("polyws: reconnecting (attempt %d) in %s", attempt, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if err := c.dial(ctx); err != nil {
				telemetry.Warnf("polyws: dial failed: %v", err)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			break
		}
	}
}

func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			telemetry.Warnf("polyws: read error: %v", err)
			telemetry.Metrics.VenueErrors.Polymarket.Inc()
			return
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		for _, u := range parseMessage(msg) {
			c.handler(u)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) Done() <-chan struct{} { return c.done }

type rawEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Side      string `json:"side"`
	Bids      []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

func parseMessage(data []byte) []Update {
	var events []rawEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single rawEvent
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil
		}
		events = []rawEvent{single}
	}

	out := make([]Update, 0, len(events))
	for _, e := range events {
		if e.AssetID == "" {
			continue
		}
		u := Update{TokenID: e.AssetID, Kind: e.EventType, Price: e.Price, Side: e.Side}
		if e.EventType == "book" {
			u.Snapshot = true
			u.Bids = make(map[string]string, len(e.Bids))
			for _, b := range e.Bids {
				u.Bids[b.Price] = b.Size
			}
			u.Asks = make(map[string]string, len(e.Asks))
			for _, a := range e.Asks {
				u.Asks[a.Price] = a.Size
			}
		}
		out = append(out, u)
	}
	return out
}
