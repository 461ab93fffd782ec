// Package monitor implements the Venue Monitor (§4.3): one instance per
// venue, exclusively owning the LocalOrderBooks it subscribes to and
// tracking the current active set of venue-side identifiers per
// (game_id, market_type) so stale messages from superseded assignments are
// dropped rather than mis-routed.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/orderbook"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// Assignment is one venue-side identifier the orchestrator wants this
// monitor watching for a (game_id, market_type).
type Assignment struct {
	GameID     string
	MarketType domain.MarketType
	Platform   domain.Platform
	Identifier string // Venue K ticker, or Venue P condition_id/token_id
	TeamName   string // "" for Venue P pre-resolution; filled once tokens resolve
}

// activeKey identifies one tracked (game, market_type, identifier) entry.
type activeKey struct {
	gameID     string
	marketType domain.MarketType
	identifier string
}

// Monitor is single-writer per LocalOrderBook (its own price loop); the
// active-set map is single-writer from the assignment listener with
// eventually-consistent reads from the price loop (§5).
type Monitor struct {
	platform domain.Platform
	bus      *bus.Bus

	mu     sync.RWMutex
	active map[activeKey]bool
	books  map[domain.BookKey]*orderbook.Book
	// identToGame resolves an inbound venue identifier back to (game_id, market_type, team).
	identToGame map[string]Assignment
}

func New(platform domain.Platform, b *bus.Bus) *Monitor {
	return &Monitor{
		platform:    platform,
		bus:         b,
		active:      make(map[activeKey]bool),
		books:       make(map[domain.BookKey]*orderbook.Book),
		identToGame: make(map[string]Assignment),
	}
}

// ApplyAssignments replaces the active set. Called from the
// markets:assignments subscriber — single writer per §5.
func (m *Monitor) ApplyAssignments(assignments []Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = make(map[activeKey]bool, len(assignments))
	m.identToGame = make(map[string]Assignment, len(assignments))
	for _, a := range assignments {
		if a.Platform != m.platform {
			continue
		}
		m.active[activeKey{a.GameID, a.MarketType, a.Identifier}] = true
		m.identToGame[a.Identifier] = a
	}
}

// isActive reports whether identifier is still in the current active set
// for the given game/type — the §4.3 stale-drop check.
func (m *Monitor) isActive(identifier string) (Assignment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.identToGame[identifier]
	if !ok {
		return Assignment{}, false
	}
	return a, m.active[activeKey{a.GameID, a.MarketType, identifier}]
}

func (m *Monitor) bookFor(marketID string) *orderbook.Book {
	key := domain.BookKey{MarketID: marketID, Platform: m.platform}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[key]
	if !ok {
		b = orderbook.New()
		m.books[key] = b
	}
	return b
}

// HandleKalshiUpdate processes one parsed Venue K WS update: drops it if
// the ticker is no longer in the active set, otherwise mutates the book and
// publishes a fresh MarketPrice (§4.3 steps 1-4).
func (m *Monitor) HandleKalshiUpdate(ticker string, seq int64, snapshot bool,
	yesBids, yesAsks, noBids, noAsks map[int]int, priceCents, delta int, side domain.BookSide) {

	assign, ok := m.isActive(ticker)
	if !ok {
		return // stale: orchestrator re-routed this ticker elsewhere
	}

	book := m.bookFor(ticker)
	var gap bool
	if snapshot {
		gap = book.ApplySnapshot(yesBids, yesAsks, noBids, noAsks, seq)
	} else {
		gap = book.ApplyDelta(priceCents, delta, side, seq)
	}
	if gap {
		telemetry.Warnf("monitor: sequence gap ticker=%s seq=%d — resubscribe needed", ticker, seq)
	}

	m.publishPrice(assign, ticker, book, 0)
}

// HandlePolyUpdate processes one parsed Venue P WS update for a token_id.
func (m *Monitor) HandlePolyUpdate(tokenID string, seq int64, snapshot bool,
	yesBids, yesAsks map[int]int, priceCents, delta int, side domain.BookSide, volume float64) {

	assign, ok := m.isActive(tokenID)
	if !ok {
		return
	}

	book := m.bookFor(tokenID)
	var gap bool
	if snapshot {
		gap = book.ApplySnapshot(yesBids, yesAsks, nil, nil, seq)
	} else {
		gap = book.ApplyDelta(priceCents, delta, side, seq)
	}
	if gap {
		telemetry.Warnf("monitor: sequence gap token=%s seq=%d — resubscribe needed", tokenID, seq)
	}

	m.publishPrice(assign, tokenID, book, volume)
}

func (m *Monitor) publishPrice(assign Assignment, marketID string, book *orderbook.Book, volume float64) {
	team := assign.TeamName
	if team == "" && m.platform == domain.PlatformPolymarket {
		team = "home" // §4.6: Venue-P contract with missing contract_team assumes home, logged
		telemetry.Warnf("monitor: poly market_id=%s missing contract_team, assuming home", marketID)
	}

	bid, ask := book.BestYesBid(), book.BestYesAsk()
	price := domain.MarketPrice{
		MarketID:     marketID,
		Platform:     m.platform,
		ContractTeam: team,
		GameID:       assign.GameID,
		MarketType:   assign.MarketType,
		Volume:       volume,
		Liquidity:    float64(book.LiquiditySum()),
		Status:       domain.MarketOpen,
		Timestamp:    time.Now(),
	}
	if bid >= 0 {
		price.YesBid = float64(bid) / 100
	}
	if ask >= 0 {
		price.YesAsk = float64(ask) / 100
	}

	m.bus.Publish(bus.GamePrice(assign.GameID), price)
}

// PollFallback runs a REST poll at pollInterval to fill gaps when WS data
// is stale beyond ttl (§4.3 step 5). fetch returns the freshest known price
// for marketID, or ok=false if unavailable.
func (m *Monitor) PollFallback(ctx context.Context, pollInterval, ttl time.Duration,
	lastUpdate func(marketID string) time.Time,
	fetch func(ctx context.Context, marketID string) (domain.MarketPrice, bool)) {

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			idents := make([]string, 0, len(m.identToGame))
			for ident := range m.identToGame {
				idents = append(idents, ident)
			}
			m.mu.RUnlock()

			now := time.Now()
			for _, ident := range idents {
				if now.Sub(lastUpdate(ident)) < ttl {
					continue
				}
				price, ok := fetch(ctx, ident)
				if !ok {
					continue
				}
				m.bus.Publish(bus.GamePrice(price.GameID), price)
			}
		}
	}
}
