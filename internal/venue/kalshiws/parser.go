package kalshiws

import (
	"encoding/json"

	"github.com/arbtwo/marketfusion/internal/telemetry"
)

type wsMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

type snapshotMsg struct {
	MarketTicker string         `json:"market_ticker"`
	Seq          int64          `json:"seq"`
	YesBids      map[string]int `json:"yes_bid"` // price(cents as string) -> qty
	YesAsks      map[string]int `json:"yes_ask"`
	NoBids       map[string]int `json:"no_bid"`
	NoAsks       map[string]int `json:"no_ask"`
}

type deltaMsg struct {
	MarketTicker string `json:"market_ticker"`
	Seq          int64  `json:"seq"`
	Price        int    `json:"price"`
	Delta        int    `json:"delta"`
	Side         string `json:"side"`
}

// ParseMessage converts a raw WebSocket frame into zero or more Updates.
func ParseMessage(data []byte) []Update {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.Warnf("kalshiws: parse error: %v", err)
		return nil
	}

	switch msg.Type {
	case "orderbook_snapshot":
		return parseSnapshot(msg.Msg)
	case "orderbook_delta":
		return parseDelta(msg.Msg)
	case "subscribed", "unsubscribed", "ok":
		return nil
	case "error":
		telemetry.Warnf("kalshiws: server error: %s", string(msg.Msg))
		return nil
	default:
		return nil
	}
}

func parseSnapshot(raw json.RawMessage) []Update {
	var s snapshotMsg
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if s.MarketTicker == "" {
		return nil
	}
	return []Update{{
		Ticker:   s.MarketTicker,
		Seq:      s.Seq,
		Snapshot: true,
		YesBids:  keysToInt(s.YesBids),
		YesAsks:  keysToInt(s.YesAsks),
		NoBids:   keysToInt(s.NoBids),
		NoAsks:   keysToInt(s.NoAsks),
	}}
}

func parseDelta(raw json.RawMessage) []Update {
	var d deltaMsg
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	if d.MarketTicker == "" {
		return nil
	}
	return []Update{{
		Ticker:     d.MarketTicker,
		Seq:        d.Seq,
		PriceCents: d.Price,
		Delta:      d.Delta,
		Side:       d.Side,
	}}
}

func keysToInt(m map[string]int) map[int]int {
	if m == nil {
		return nil
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		var p int
		for _, c := range k {
			if c < '0' || c > '9' {
				p = 0
				break
			}
			p = p*10 + int(c-'0')
		}
		out[p] = v
	}
	return out
}
