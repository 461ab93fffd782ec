// Package kalshiws is the Venue K WebSocket client: subscribes to the
// orderbook-delta channel keyed by ticker, reconnects with backoff and
// resubscribes the full active set on every reconnect (§4.3, §5), adapted
// from the teacher's kalshi_ws package.
package kalshiws

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbtwo/marketfusion/internal/telemetry"
	"github.com/arbtwo/marketfusion/internal/venue/kalshiauth"
)

// Update is one parsed book event handed to the owning VenueMonitor, which
// exclusively owns the LocalOrderBook for this ticker (§5).
type Update struct {
	Ticker   string
	Seq      int64
	Snapshot bool
	YesBids  map[int]int
	YesAsks  map[int]int
	NoBids   map[int]int
	NoAsks   map[int]int

	// Delta fields, populated when Snapshot is false.
	PriceCents int
	Delta      int
	Side       string // "yes_bid", "yes_ask", "no_bid", "no_ask"
}

// Handler receives parsed book updates on the client's read goroutine.
// Implementations must not block — hand off to the owning monitor's inbox.
type Handler func(Update)

type Client struct {
	url     string
	signer  *kalshiauth.Signer
	handler Handler
	conn    *websocket.Conn
	done    chan struct{}

	mu      sync.Mutex
	tickers map[string]bool
	subID   int
}

func NewClient(wsURL string, signer *kalshiauth.Signer, handler Handler) *Client {
	return &Client{
		url:     wsURL,
		signer:  signer,
		handler: handler,
		done:    make(chan struct{}),
		tickers: make(map[string]bool),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.runLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	parsed, _ := url.Parse(c.url)
	wsPath := parsed.Path
	if wsPath == "" {
		wsPath = "/trade-api/ws/v2"
	}
	header := c.signer.Headers("GET", wsPath)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	telemetry.Metrics.VenueRequests.Kalshi.Inc()
	return nil
}

// SubscribeTickers adds tickers and subscribes on the live connection.
// Safe to call from any goroutine at any time. If the connection is not
// yet established the tickers are stored and subscribed on connect.
func (c *Client) SubscribeTickers(tickers []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var newTickers []string
	for _, t := range tickers {
		if !c.tickers[t] {
			c.tickers[t] = true
			newTickers = append(newTickers, t)
		}
	}

	if len(newTickers) == 0 || c.conn == nil {
		return nil
	}

	return c.sendSubscribe(newTickers)
}

func (c *Client) runLoop(ctx context.Context) {
	defer close(c.done)

	first := true
	for {
		if first {
			telemetry.Infof("kalshiws: connected to %s", c.url)
			first = false
		} else {
			telemetry.Infof("kalshiws: reconnected")
			telemetry.Metrics.VenueReconnects.Kalshi.Inc()
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
			telemetry.Warnf("kalshiws: reconnecting (attempt %d) in %s", attempt, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.dial(ctx); err != nil {
				telemetry.Warnf("kalshiws: dial failed: %v", err)
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

// resubscribeAll sends a subscribe for every known ticker. Called after
// every successful connection/reconnection so the full active set is
// replayed, never just the delta since disconnect (§5).
func (c *Client) resubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tickers) == 0 {
		return
	}

	all := make([]string, 0, len(c.tickers))
	for t := range c.tickers {
		all = append(all, t)
	}

	if err := c.sendSubscribe(all); err != nil {
		telemetry.Warnf("kalshiws: resubscribe failed: %v", err)
	}
}

func (c *Client) sendSubscribe(tickers []string) error {
	c.subID++
	cmd := subscribeCmd{
		ID:  c.subID,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels:            []string{"orderbook_delta"},
			MarketTickers:       tickers,
			SendInitialSnapshot: true,
		},
	}
	telemetry.Debugf("kalshiws: subscribing to %d tickers (sid=%d)", len(tickers), c.subID)
	return c.conn.WriteJSON(cmd)
}

type subscribeCmd struct {
	ID     int             `json:"id"`
	Cmd    string          `json:"cmd"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels            []string `json:"channels"`
	MarketTickers       []string `json:"market_tickers,omitempty"`
	SendInitialSnapshot bool     `json:"send_initial_snapshot,omitempty"`
}

func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	defer conn.Close()

	const pingWait = 30 * time.Second

	conn.SetReadDeadline(time.Now().Add(pingWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pingWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			telemetry.Warnf("kalshiws: read error: %v", err)
			telemetry.Metrics.VenueErrors.Kalshi.Inc()
			return
		}

		conn.SetReadDeadline(time.Now().Add(pingWait))
		for _, u := range ParseMessage(msg) {
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

func (c *Client) Done() <-chan struct{} {
	return c.done
}
