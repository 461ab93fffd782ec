// Package shard implements GameShard (§4.6): each shard owns up to
// max_games concurrent GameContexts, polls game state at a per-game
// cadence, consumes Venue Monitor price updates, generates trading and
// arbitrage signals, and reports its health back to the Orchestrator.
package shard

import (
	"context"
	"sync"
	"time"

	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/orchestrator"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// StateSource fetches the latest game state and any new plays since the
// last poll. The state feed's internals (box-score provider, webhook, etc.)
// are out of scope here (§6) — GameShard only needs this enumeration.
type StateSource interface {
	FetchState(ctx context.Context, gameID string) (domain.GameState, []domain.Play, error)
}

// WinProbModel computes home_win_prob for a state snapshot. Model internals
// are explicitly out of scope (§4.6, §6); GameShard only consumes the
// clamped output.
type WinProbModel interface {
	HomeWinProb(ctx context.Context, state domain.GameState) (float64, error)
}

// GameEnded is the synthetic settlement event published on games:ended.
type GameEnded struct {
	GameID    string
	Sport     domain.Sport
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	Timestamp time.Time
}

type entry struct {
	gc         *GameContext
	unsubPrice func()
	cancel     context.CancelFunc
}

// Shard is one GameShard instance.
type Shard struct {
	ID       string
	bus      *bus.Bus
	maxGames int

	cadence  PollingCadence
	tunables Tunables
	source   StateSource
	model    WinProbModel
	breaker  CircuitBreaker

	mu    sync.Mutex
	games map[string]*entry

	unsubCmd func()
}

func New(id string, b *bus.Bus, maxGames int, cadence PollingCadence, tunables Tunables, source StateSource, model WinProbModel, breaker CircuitBreaker) *Shard {
	s := &Shard{
		ID:       id,
		bus:      b,
		maxGames: maxGames,
		cadence:  cadence,
		tunables: tunables,
		source:   source,
		model:    model,
		breaker:  breaker,
		games:    make(map[string]*entry),
	}
	s.unsubCmd = b.Subscribe(bus.ShardCommand(id), s.onCommand)
	return s
}

func (s *Shard) onCommand(msg any) error {
	switch cmd := msg.(type) {
	case orchestrator.CommandAddGame:
		s.AddGame(cmd.GameID, cmd.Sport, cmd.HomeTeam, cmd.AwayTeam, cmd.MarketIDsByType)
	case orchestrator.CommandRemoveGame:
		s.RemoveGame(cmd.GameID)
	}
	return nil
}

// AddGame creates a GameContext for gameID, subscribes it to its price
// channel, and starts its state-poll loop. No-op if at capacity or already
// owned.
func (s *Shard) AddGame(gameID string, sport domain.Sport, homeTeam, awayTeam string, marketIDsByType map[domain.MarketType]map[domain.Platform]string) {
	s.mu.Lock()
	if len(s.games) >= s.maxGames {
		s.mu.Unlock()
		telemetry.Warnf("shard %s: at capacity (%d), refusing game %s", s.ID, s.maxGames, gameID)
		return
	}
	if _, exists := s.games[gameID]; exists {
		s.mu.Unlock()
		return
	}

	gc := NewGameContext(gameID, sport, domain.GameInfo{GameID: gameID, Sport: sport, HomeTeam: homeTeam, AwayTeam: awayTeam})
	gc.MarketIDsByType = marketIDsByType

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{gc: gc, cancel: cancel}
	s.games[gameID] = e
	s.mu.Unlock()

	e.unsubPrice = s.bus.Subscribe(bus.GamePrice(gameID), func(msg any) error {
		price, ok := msg.(domain.MarketPrice)
		if !ok {
			return nil
		}
		gc.Send(func() { s.handlePrice(gc, price) })
		return nil
	})

	go s.pollLoop(ctx, gc)

	telemetry.Infof("shard %s: added game %s (%s)", s.ID, gameID, sport)
}

// RemoveGame tears down a game's subscriptions and goroutines.
func (s *Shard) RemoveGame(gameID string) {
	s.mu.Lock()
	e, ok := s.games[gameID]
	if ok {
		delete(s.games, gameID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	e.cancel()
	if e.unsubPrice != nil {
		e.unsubPrice()
	}
	e.gc.Close()
	telemetry.Infof("shard %s: removed game %s", s.ID, gameID)
}

// pollLoop drives state polling at the game's current cadence, re-reading
// the interval after every poll since cadence depends on the freshly
// observed state.
func (s *Shard) pollLoop(ctx context.Context, gc *GameContext) {
	timer := time.NewTimer(s.cadence.Default)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(s.pollOnce(ctx, gc))
		}
	}
}

// pollOnce fetches state off the game's goroutine (FetchState/HomeWinProb
// may block on network I/O) then applies the result on gc's goroutine,
// returning the next poll interval computed from the resulting state.
func (s *Shard) pollOnce(ctx context.Context, gc *GameContext) time.Duration {
	state, plays, err := s.source.FetchState(ctx, gc.GameID)
	if err != nil {
		telemetry.Warnf("shard %s: state fetch failed game=%s: %v", s.ID, gc.GameID, err)
		return s.cadence.Default
	}

	prob, probErr := s.model.HomeWinProb(ctx, state)
	haveProb := probErr == nil
	if haveProb {
		prob = domain.ClampWinProb(prob)
	} else {
		telemetry.Warnf("shard %s: win-prob model failed game=%s: %v", s.ID, gc.GameID, probErr)
	}

	next := make(chan time.Duration, 1)
	gc.Send(func() {
		s.applyState(gc, state, plays, prob, haveProb)
		next <- s.cadence.Interval(gc.State, gc.Sport)
	})

	select {
	case d := <-next:
		return d
	case <-time.After(5 * time.Second):
		return s.cadence.Default
	}
}

func (s *Shard) applyState(gc *GameContext, state domain.GameState, plays []domain.Play, prob float64, haveProb bool) {
	prevProb, hadPrev := gc.LastWinProb, gc.HasWinProb
	gc.State = state
	gc.Info.Status = state.Status

	if haveProb {
		if !gc.InCooldown(time.Now()) {
			if sig := gc.OnStateUpdate(prevProb, hadPrev, prob, s.tunables); sig != nil {
				s.bus.Publish(bus.SignalsNew, *sig)
				telemetry.Infof("shard %s: emitted %s game=%s team=%s edge=%.2f", s.ID, sig.SignalType, gc.GameID, sig.Team, sig.EdgePct)
			}
		}
		gc.LastWinProb = prob
		gc.HasWinProb = true
	}

	_ = plays // play-level signal enrichment is not part of the core edge calc

	if state.IsFinal(gc.Sport) || state.GameProgress >= 0.98 {
		s.settle(gc, state)
	}
}

func (s *Shard) handlePrice(gc *GameContext, price domain.MarketPrice) {
	gc.SetPrice(price)

	if gc.InCooldown(time.Now()) {
		return
	}
	if sig := gc.OnPriceUpdate(price, s.tunables); sig != nil {
		s.bus.Publish(bus.SignalsNew, *sig)
		telemetry.Infof("shard %s: emitted %s game=%s team=%s edge=%.2f", s.ID, sig.SignalType, gc.GameID, sig.Team, sig.EdgePct)
	}

	s.checkArb(gc, price.MarketType)
}

// checkArb looks for a usable Venue K + Venue P pair for mtype and runs the
// cross-venue detector if both sides are present.
func (s *Shard) checkArb(gc *GameContext, mtype domain.MarketType) {
	kalshi, hasK := gc.PriceFor(mtype, domain.PlatformKalshi)
	poly, hasP := gc.PriceFor(mtype, domain.PlatformPolymarket)
	if !hasK || !hasP {
		return
	}
	if gc.InCooldown(time.Now()) {
		return
	}

	parsedK := domain.ParsedMarket{MarketType: mtype, Team: kalshi.ContractTeam}
	parsedP := domain.ParsedMarket{MarketType: mtype, Team: poly.ContractTeam}

	if sig := gc.DetectArb(mtype, kalshi, poly, parsedK, parsedP, s.breaker, s.tunables); sig != nil {
		telemetry.Metrics.ArbOpportunities.Inc()
		s.bus.Publish(bus.SignalsNew, *sig)
		telemetry.Infof("shard %s: arb detected game=%s type=%s edge=%.2f", s.ID, gc.GameID, mtype, sig.EdgePct)
	}
}

// settle implements §4.6's settlement trigger: emit games:ended then
// remove the game, even when the orchestrator concurrently issues a
// remove_game for the same reason.
func (s *Shard) settle(gc *GameContext, state domain.GameState) {
	s.bus.Publish(bus.GamesEnded, GameEnded{
		GameID:    gc.GameID,
		Sport:     gc.Sport,
		HomeTeam:  gc.Info.HomeTeam,
		AwayTeam:  gc.Info.AwayTeam,
		HomeScore: state.HomeScore,
		AwayScore: state.AwayScore,
		Timestamp: time.Now(),
	})
	go s.RemoveGame(gc.GameID)
}

// InCooldown implements signalproc.Cooldowns: whether this shard's game is
// currently suppressing new signals. Returns false for a game this shard
// doesn't own (callers broadcast across all shards and most games belong to
// a different one).
func (s *Shard) InCooldown(gameID string) bool {
	s.mu.Lock()
	e, ok := s.games[gameID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return e.gc.InCooldown(time.Now())
}

// SetCooldown implements position.Cooldowns: PositionTracker has already
// picked the win/loss duration, so this just applies the resulting
// deadline directly on the game's own goroutine.
func (s *Shard) SetCooldown(gameID string, until time.Time) {
	s.mu.Lock()
	e, ok := s.games[gameID]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.gc.Send(func() { e.gc.CooldownUntil = until })
}

// TeamPrice implements signalproc.PriceSource / position.PriceSource for
// games this shard owns: a synchronous round trip onto the game's goroutine
// since GameContext state is otherwise single-writer. Returns ok=false for
// a game this shard doesn't own — callers fan this out across every shard.
func (s *Shard) TeamPrice(gameID string, mtype domain.MarketType, platform domain.Platform, targetTeam string, minConfidence float64) (domain.MarketPrice, bool) {
	s.mu.Lock()
	e, ok := s.games[gameID]
	s.mu.Unlock()
	if !ok {
		return domain.MarketPrice{}, false
	}

	type result struct {
		price domain.MarketPrice
		ok    bool
	}
	out := make(chan result, 1)
	e.gc.Send(func() {
		p, ok := e.gc.TeamPrice(mtype, platform, targetTeam, s.tunables.Matcher, minConfidence)
		out <- result{p, ok}
	})
	select {
	case r := <-out:
		return r.price, r.ok
	case <-time.After(2 * time.Second):
		return domain.MarketPrice{}, false
	}
}

// FreshestTeamPrice implements execution.PriceLookup: the same lookup at
// the shard's own configured match-confidence bar, since ExecutionService
// has no tunable of its own for it.
func (s *Shard) FreshestTeamPrice(gameID string, mtype domain.MarketType, platform domain.Platform, team string) (domain.MarketPrice, bool) {
	return s.TeamPrice(gameID, mtype, platform, team, s.tunables.MatchMinConfidence)
}

// Heartbeat publishes this shard's current health to its heartbeat channel.
func (s *Shard) Heartbeat() {
	s.mu.Lock()
	games := make([]string, 0, len(s.games))
	for id := range s.games {
		games = append(games, id)
	}
	count := len(s.games)
	s.mu.Unlock()

	s.bus.Publish(bus.ShardHeartbeat(s.ID), orchestrator.Heartbeat{
		ShardID:   s.ID,
		GameCount: count,
		MaxGames:  s.maxGames,
		Games:     games,
		Timestamp: time.Now(),
	})
}

// Run starts the heartbeat ticker until ctx is done.
func (s *Shard) Run(ctx context.Context, heartbeatInterval time.Duration) {
	s.Heartbeat()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.unsubCmd()
			return
		case <-ticker.C:
			s.Heartbeat()
		}
	}
}
