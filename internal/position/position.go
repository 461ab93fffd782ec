// Package position implements PositionTracker (§4.9): the exit monitor
// that watches every open Position for take-profit/stop-loss triggers,
// settles positions when their game ends, and sweeps orphans a restart
// might have left dangling.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/arbtwo/marketfusion/internal/bankroll"
	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/risk"
	"github.com/arbtwo/marketfusion/internal/shard"
	"github.com/arbtwo/marketfusion/internal/store"
	"github.com/arbtwo/marketfusion/internal/teammatch"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// PriceSource resolves the freshest team-matching quote for an exit check,
// scoped to a recency window the caller enforces separately.
type PriceSource interface {
	TeamPrice(gameID string, marketType domain.MarketType, platform domain.Platform, targetTeam string, minConfidence float64) (domain.MarketPrice, bool)
}

// Tunables bundles PositionTracker's config knobs (§4.9).
type Tunables struct {
	CheckInterval          time.Duration
	MinHoldSeconds         int
	MatchMinConfidence     float64
	StalenessTTL           time.Duration
	TakeProfitPct          float64
	DefaultStopLossPct     float64
	DebounceCount          int
	OrphanSweepInterval    time.Duration
	OrphanSweepStartupWait time.Duration
	CooldownWin            time.Duration
	CooldownLoss           time.Duration
}

// Cooldowns is the write side of the §4.7 cooldown gate — PositionTracker
// sets cooldowns when it closes a position; SignalProcessor reads them.
type Cooldowns interface {
	SetCooldown(gameID string, until time.Time)
}

// Tracker owns every live Position end to end: entry bookkeeping on fill,
// exit-trigger polling, settlement on game end, and orphan recovery.
type Tracker struct {
	bus       *bus.Bus
	prices    PriceSource
	matcher   *teammatch.Matcher
	ledger    *bankroll.Ledger
	riskCtl   *risk.Controller
	cooldowns Cooldowns
	store     *store.Store
	tunables  Tunables

	mu        sync.Mutex
	positions map[string]*domain.Position // position_id -> position
}

func New(b *bus.Bus, prices PriceSource, matcher *teammatch.Matcher, ledger *bankroll.Ledger, riskCtl *risk.Controller, cooldowns Cooldowns, st *store.Store, t Tunables) *Tracker {
	tr := &Tracker{
		bus: b, prices: prices, matcher: matcher, ledger: ledger, riskCtl: riskCtl,
		cooldowns: cooldowns, store: st, tunables: t,
		positions: make(map[string]*domain.Position),
	}
	b.Subscribe(bus.ExecutionResults, tr.onExecutionResult)
	b.Subscribe(bus.GamesEnded, tr.onGameEnded)
	return tr
}

// Run drives the exit-check loop and the periodic orphan sweep until ctx
// is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	go t.orphanSweepLoop(ctx)

	ticker := time.NewTicker(t.tunables.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkExits()
		}
	}
}

// onExecutionResult opens a new tracked Position for a filled request; it
// takes no action on rejections/failures/partials.
func (t *Tracker) onExecutionResult(msg any) error {
	res, ok := msg.(domain.ExecutionResult)
	if !ok || res.Status != domain.ExecFilled {
		return nil
	}
	pos := &domain.Position{
		PositionID:   res.IdempotencyKey,
		GameID:       res.GameID,
		Sport:        res.Sport,
		Platform:     res.Platform,
		MarketID:     res.MarketID,
		ContractTeam: res.ContractTeam,
		Side:         res.Side,
		EntryPrice:   res.AvgPrice,
		Size:         res.FilledQty,
		EntryFees:    res.Fees,
		EntryAt:      time.Now(),
		Status:       domain.PositionOpen,
	}
	t.mu.Lock()
	t.positions[pos.PositionID] = pos
	t.mu.Unlock()

	if t.store != nil {
		t.store.SavePosition(*pos)
	}
	t.bus.Publish(bus.PositionUpdates, *pos)
	return nil
}

// checkExits scans every open position for a take-profit or stop-loss
// trigger (§4.9).
func (t *Tracker) checkExits() {
	t.mu.Lock()
	candidates := make([]*domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		if p.Status == domain.PositionOpen {
			candidates = append(candidates, p)
		}
	}
	t.mu.Unlock()

	for _, p := range candidates {
		t.checkOne(p)
	}
}

func (t *Tracker) checkOne(p *domain.Position) {
	if time.Since(p.EntryAt) < time.Duration(t.tunables.MinHoldSeconds)*time.Second {
		return
	}

	price, ok := t.prices.TeamPrice(p.GameID, domain.MarketMoneyline, p.Platform, p.ContractTeam, t.tunables.MatchMinConfidence)
	if !ok {
		return
	}
	if !price.IsFresh(time.Now(), t.tunables.StalenessTTL) {
		return
	}
	if price.IsCrossed() || price.IsEmpty() {
		return
	}
	spread := price.YesAsk - price.YesBid
	if spread > 0.5 {
		return
	}

	move := t.signedMove(p, price)
	stopLoss := p.Sport.StopLossPct(t.tunables.DefaultStopLossPct)

	var reason domain.ExitReason
	switch {
	case move >= t.tunables.TakeProfitPct:
		reason = domain.ExitTakeProfit
	case move <= -stopLoss:
		reason = domain.ExitStopLoss
	default:
		t.mu.Lock()
		p.DebounceCount = 0
		t.mu.Unlock()
		return
	}

	if t.tunables.DebounceCount > 1 {
		t.mu.Lock()
		p.DebounceCount++
		count := p.DebounceCount
		t.mu.Unlock()
		if count < t.tunables.DebounceCount {
			return
		}
	}

	exitPrice := price.YesBid
	if p.Side == domain.OrderNo {
		exitPrice = 1 - price.YesAsk
	}
	t.close(p, exitPrice, 0, reason)
}

// signedMove returns the favorable price move since entry, signed so that
// positive is always profitable regardless of side.
func (t *Tracker) signedMove(p *domain.Position, price domain.MarketPrice) float64 {
	if p.Side == domain.OrderYes {
		return price.YesBid - p.EntryPrice
	}
	return p.EntryPrice - price.YesAsk
}

// onGameEnded settles every open position on the ended game at a binary
// 0.0/1.0 outcome per team identity, with no slippage or fees (§4.9).
func (t *Tracker) onGameEnded(msg any) error {
	ended, ok := msg.(shard.GameEnded)
	if !ok {
		return nil
	}
	homeWon := ended.HomeScore > ended.AwayScore

	t.mu.Lock()
	var open []*domain.Position
	for _, p := range t.positions {
		if p.GameID == ended.GameID && p.Status == domain.PositionOpen {
			open = append(open, p)
		}
	}
	t.mu.Unlock()

	for _, p := range open {
		if ended.HomeScore == ended.AwayScore {
			t.close(p, p.EntryPrice, 0, domain.ExitPush)
			continue
		}
		isHomeTeam := t.matcher.ExitMatch(ended.Sport, p.ContractTeam, ended.HomeTeam).IsMatch
		outcome := 0.0
		if (isHomeTeam && homeWon) || (!isHomeTeam && !homeWon) {
			outcome = 1.0
		}
		t.close(p, outcome, 0, domain.ExitSettlement)
	}
	return nil
}

// close finalizes a position, credits the bankroll, releases risk exposure,
// and records the §4.7 cooldown.
func (t *Tracker) close(p *domain.Position, exitPrice, exitFees float64, reason domain.ExitReason) {
	pnl := p.PnL(exitPrice)

	t.mu.Lock()
	p.Status = domain.PositionClosed
	p.ExitPrice = exitPrice
	p.ExitFees = exitFees
	p.ExitAt = time.Now()
	p.ExitReason = reason
	p.RealizedPnL = pnl
	t.mu.Unlock()

	entryNotional := p.Size
	t.ledger.ApplyClose(pnl)
	t.ledger.Credit(entryNotional)
	if t.riskCtl != nil {
		t.riskCtl.RecordClose(p.GameID, p.Sport, entryNotional)
	}

	cooldown := t.tunables.CooldownLoss
	if pnl >= 0 {
		cooldown = t.tunables.CooldownWin
	}
	if t.cooldowns != nil {
		t.cooldowns.SetCooldown(p.GameID, time.Now().Add(cooldown))
	}

	if t.store != nil {
		t.store.SavePosition(*p)
	}
	telemetry.Infof("position: closed id=%s game=%s reason=%s pnl=%.2f", p.PositionID, p.GameID, reason, pnl)
	t.bus.Publish(bus.PositionUpdates, *p)
}

// orphanSweepLoop periodically reconciles positions the store has marked
// open against games that have already finished or gone stale — covering
// a restart that missed a GamesEnded event (§4.9).
func (t *Tracker) orphanSweepLoop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(t.tunables.OrphanSweepStartupWait):
	}

	ticker := time.NewTicker(t.tunables.OrphanSweepInterval)
	defer ticker.Stop()
	for {
		t.sweepOrphans()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) sweepOrphans() {
	if t.store == nil {
		return
	}
	orphans := t.store.OpenPositionsForFinishedGames()
	for _, p := range orphans {
		telemetry.Warnf("position: orphan sweep found dangling open position id=%s game=%s", p.PositionID, p.GameID)
		t.mu.Lock()
		t.positions[p.PositionID] = &p
		t.mu.Unlock()
		t.close(&p, p.EntryPrice, 0, domain.ExitSettlement)
	}
}

// OpenPosition implements signalproc.Positions: reports whether a position
// already exists for this exact (platform, market, side).
func (t *Tracker) OpenPosition(platform domain.Platform, marketID string, side domain.OrderSide) (domain.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.positions {
		if p.Status == domain.PositionOpen && p.Platform == platform && p.MarketID == marketID && p.Side == side {
			return *p, true
		}
	}
	return domain.Position{}, false
}

// OppositePosition implements signalproc.Positions: reports whether an open
// position exists on the same game/team but the opposing side.
func (t *Tracker) OppositePosition(gameID, team string, side domain.OrderSide) (domain.Position, bool) {
	opposite := domain.OrderNo
	if side == domain.OrderNo {
		opposite = domain.OrderYes
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.positions {
		if p.Status == domain.PositionOpen && p.GameID == gameID && p.ContractTeam == team && p.Side == opposite {
			return *p, true
		}
	}
	return domain.Position{}, false
}
