package shard

import (
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/teammatch"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// priceKey indexes a game's known prices by (market_type, platform) per §3.
type priceKey struct {
	marketType domain.MarketType
	platform   domain.Platform
}

// GameContext is the single source of truth for one game, exclusively
// owned by one GameShard (§3 "Ownership and lifecycle"). All mutation is
// serialized through an inbox channel — one goroutine drains it, so no
// mutexes are needed on any field. Adapted from the teacher's
// GameContext/inbox pattern, generalized from Kalshi-ticker-keyed state to
// the spec's multi-venue (market_type, platform) price index.
type GameContext struct {
	GameID string
	Sport  domain.Sport

	State       domain.GameState
	Info        domain.GameInfo
	LastWinProb float64 // home win prob, clamped [0.05, 0.95]
	HasWinProb  bool

	Prices map[priceKey]domain.MarketPrice

	// MarketIDsByType is the venue assignment the orchestrator last sent.
	MarketIDsByType map[domain.MarketType]map[domain.Platform]string

	ActiveSignal  *domain.Signal
	CooldownUntil time.Time

	ScoreDrop domain.ScoreDropTracker

	inbox chan func()
	stop  chan struct{}
}

func NewGameContext(gameID string, sport domain.Sport, info domain.GameInfo) *GameContext {
	gc := &GameContext{
		GameID:          gameID,
		Sport:           sport,
		Info:            info,
		Prices:          make(map[priceKey]domain.MarketPrice),
		MarketIDsByType: make(map[domain.MarketType]map[domain.Platform]string),
		inbox:           make(chan func(), 256),
		stop:            make(chan struct{}),
	}
	go gc.run()
	return gc
}

func (gc *GameContext) run() {
	defer close(gc.stop)
	for fn := range gc.inbox {
		fn()
	}
}

// Send enqueues a closure to run on the game's goroutine. Non-blocking:
// drops the closure and logs a warning if the inbox is full, so a stuck
// game never blocks the shard's command listener or WS fanout (§5).
func (gc *GameContext) Send(fn func()) {
	select {
	case gc.inbox <- fn:
	default:
		telemetry.Metrics.InboxOverflows.Inc()
		telemetry.Warnf("shard: game %s inbox full (cap=%d), dropping event", gc.GameID, cap(gc.inbox))
	}
}

// Close shuts down the game's goroutine and waits for it to drain.
func (gc *GameContext) Close() {
	close(gc.inbox)
	<-gc.stop
}

// SetPrice indexes the latest price by (market_type, platform). Must be
// called from the game's goroutine.
func (gc *GameContext) SetPrice(p domain.MarketPrice) {
	gc.Prices[priceKey{p.MarketType, p.Platform}] = p
}

// PriceFor returns the last known price for (market_type, platform), if any.
func (gc *GameContext) PriceFor(mtype domain.MarketType, platform domain.Platform) (domain.MarketPrice, bool) {
	p, ok := gc.Prices[priceKey{mtype, platform}]
	return p, ok
}

// TeamPrice resolves the stored (market_type, platform) price for
// targetTeam, inverting the stored quote when it belongs to the other side
// of the same binary market. Exposed for SignalProcessor/ExecutionService/
// PositionTracker, which live outside the game's goroutine and so must
// reach this through Shard's synchronous wrapper. Must be called from the
// game's own goroutine.
func (gc *GameContext) TeamPrice(mtype domain.MarketType, platform domain.Platform, targetTeam string, matcher *teammatch.Matcher, minConfidence float64) (domain.MarketPrice, bool) {
	p, ok := gc.Prices[priceKey{mtype, platform}]
	if !ok || p.ContractTeam == "" {
		return domain.MarketPrice{}, false
	}
	if matcher != nil {
		if res := matcher.Match(gc.Sport, p.ContractTeam, targetTeam, minConfidence); res.IsMatch {
			return p, true
		}
		return p.Invert(targetTeam), true
	}
	if p.ContractTeam == targetTeam {
		return p, true
	}
	return p.Invert(targetTeam), true
}

// InCooldown reports whether signal generation is currently suppressed (§4.6).
func (gc *GameContext) InCooldown(now time.Time) bool {
	return gc.CooldownUntil.After(now)
}

// SetCooldown sets cooldown_until per the win/loss durations (§4.6).
func (gc *GameContext) SetCooldown(now time.Time, won bool, winMinutes, lossMinutes int) {
	if won {
		gc.CooldownUntil = now.Add(time.Duration(winMinutes) * time.Minute)
	} else {
		gc.CooldownUntil = now.Add(time.Duration(lossMinutes) * time.Minute)
	}
}
