// Package orchestrator implements the Orchestrator (§4.4): enumerates live
// games, assigns them to GameShards by available capacity, redistributes
// assignments away from unhealthy shards, and publishes Venue-P/Venue-K
// assignments to the venue monitors.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/discovery"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/monitor"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// Scoreboard is the external live-game feed, out of scope for its own
// implementation (§6) — the orchestrator only needs the enumeration.
type Scoreboard interface {
	LiveGames(ctx context.Context) ([]domain.GameInfo, error)
}

type shardHealth struct {
	shardID      string
	gameCount    int
	maxGames     int
	games        []string
	lastHeartbeat time.Time
}

// Heartbeat is the payload a GameShard publishes on shard:{id}:heartbeat.
type Heartbeat struct {
	ShardID   string
	GameCount int
	MaxGames  int
	Games     []string
	Timestamp time.Time
}

// CommandAddGame / CommandRemoveGame are the two shard:{id}:command payload kinds.
type CommandAddGame struct {
	Type          string // "add_game"
	GameID        string
	Sport         domain.Sport
	HomeTeam      string
	AwayTeam      string
	MarketIDsByType map[domain.MarketType]map[domain.Platform]string
}

type CommandRemoveGame struct {
	Type   string // "remove_game"
	GameID string
}

// AssignmentMsg is the markets:assignments payload: which venue's active
// set changed and the assignments now in force for it.
type AssignmentMsg struct {
	Type        string // "kalshi_assign" or "polymarket_assign"
	Assignments []monitor.Assignment
}

type Orchestrator struct {
	bus        *bus.Bus
	scoreboard Scoreboard
	disc       *discovery.Discoverer
	shardTimeout time.Duration

	shards    map[string]*shardHealth
	assigned  map[string]string // game_id -> shard_id
	gameTypes map[string]map[domain.MarketType]map[domain.Platform]string
}

func New(b *bus.Bus, scoreboard Scoreboard, disc *discovery.Discoverer, shardTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		bus:          b,
		scoreboard:   scoreboard,
		disc:         disc,
		shardTimeout: shardTimeout,
		shards:       make(map[string]*shardHealth),
		assigned:     make(map[string]string),
		gameTypes:    make(map[string]map[domain.MarketType]map[domain.Platform]string),
	}
}

// RegisterShard subscribes to one shard's heartbeat channel — the
// orchestrator never holds per-game mutable state beyond the assignment
// map, so a restart rebuilds health purely from these heartbeats (§4.4).
func (o *Orchestrator) RegisterShard(shardID string) {
	o.shards[shardID] = &shardHealth{shardID: shardID, lastHeartbeat: time.Now()}
	o.bus.Subscribe(bus.ShardHeartbeat(shardID), func(msg any) error {
		hb, ok := msg.(Heartbeat)
		if !ok {
			return nil
		}
		o.onHeartbeat(hb)
		return nil
	})
}

func (o *Orchestrator) onHeartbeat(hb Heartbeat) {
	sh, ok := o.shards[hb.ShardID]
	if !ok {
		sh = &shardHealth{shardID: hb.ShardID}
		o.shards[hb.ShardID] = sh
	}
	sh.gameCount = hb.GameCount
	sh.maxGames = hb.MaxGames
	sh.games = hb.Games
	sh.lastHeartbeat = time.Now()
}

// Run drives the discovery loop every interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	o.redistributeUnhealthy()

	games, err := o.scoreboard.LiveGames(ctx)
	if err != nil {
		telemetry.Warnf("orchestrator: scoreboard fetch failed: %v", err)
		return
	}

	live := make(map[string]domain.GameInfo, len(games))
	for _, g := range games {
		live[g.GameID] = g
	}

	for gameID := range o.assigned {
		if _, stillLive := live[gameID]; !stillLive {
			o.removeGame(gameID)
		}
	}

	for gameID, game := range live {
		if _, known := o.assigned[gameID]; known {
			continue
		}
		o.addGame(ctx, game)
	}
}

func (o *Orchestrator) addGame(ctx context.Context, game domain.GameInfo) {
	shardID, ok := o.pickShard()
	if !ok {
		telemetry.Warnf("orchestrator: no available shard capacity for game %s", game.GameID)
		return
	}

	byType, err := o.disc.DiscoverMulti(ctx, game)
	if err != nil || len(byType) == 0 {
		byType, err = o.disc.DiscoverMoneyline(ctx, game)
		if err != nil {
			telemetry.Warnf("orchestrator: discovery failed for game %s: %v", game.GameID, err)
			return
		}
	}

	o.assigned[game.GameID] = shardID
	o.gameTypes[game.GameID] = byType

	o.bus.Publish(bus.ShardCommand(shardID), CommandAddGame{
		Type:            "add_game",
		GameID:          game.GameID,
		Sport:           game.Sport,
		HomeTeam:        game.HomeTeam,
		AwayTeam:        game.AwayTeam,
		MarketIDsByType: byType,
	})

	o.publishAssignments(game, byType)
}

func (o *Orchestrator) removeGame(gameID string) {
	shardID, ok := o.assigned[gameID]
	if !ok {
		return
	}
	delete(o.assigned, gameID)
	delete(o.gameTypes, gameID)
	o.bus.Publish(bus.ShardCommand(shardID), CommandRemoveGame{Type: "remove_game", GameID: gameID})
}

// redistributeUnhealthy releases every game owned by a shard that has
// missed heartbeats for shardTimeout and zeroes that shard's capacity until
// its next heartbeat, so the next assignment pass places the freed games on
// a healthy shard (§4.4 step 5).
func (o *Orchestrator) redistributeUnhealthy() {
	now := time.Now()
	for shardID, sh := range o.shards {
		if now.Sub(sh.lastHeartbeat) <= o.shardTimeout {
			continue
		}
		telemetry.Warnf("orchestrator: shard %s unhealthy, redistributing %d games", shardID, len(sh.games))
		for _, gameID := range sh.games {
			delete(o.assigned, gameID)
		}
		sh.games = nil
		sh.gameCount = 0
		sh.maxGames = 0
	}
}

// pickShard returns the shard with the most available capacity, breaking
// ties on the lexicographically smallest shard_id (§4.4).
func (o *Orchestrator) pickShard() (string, bool) {
	type candidate struct {
		id        string
		available int
	}
	var candidates []candidate
	for id, sh := range o.shards {
		if sh.maxGames == 0 {
			continue
		}
		avail := sh.maxGames - sh.gameCount
		if avail > 0 {
			candidates = append(candidates, candidate{id, avail})
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].available != candidates[j].available {
			return candidates[i].available > candidates[j].available
		}
		return candidates[i].id < candidates[j].id
	})
	return candidates[0].id, true
}

func (o *Orchestrator) publishAssignments(game domain.GameInfo, byType map[domain.MarketType]map[domain.Platform]string) {
	var kalshiAssigns, polyAssigns []monitor.Assignment
	for mtype, byPlatform := range byType {
		if ticker, ok := byPlatform[domain.PlatformKalshi]; ok {
			kalshiAssigns = append(kalshiAssigns, monitor.Assignment{
				GameID: game.GameID, MarketType: mtype, Platform: domain.PlatformKalshi, Identifier: ticker,
			})
		}
		if condID, ok := byPlatform[domain.PlatformPolymarket]; ok {
			polyAssigns = append(polyAssigns, monitor.Assignment{
				GameID: game.GameID, MarketType: mtype, Platform: domain.PlatformPolymarket, Identifier: condID,
			})
		}
	}
	if len(kalshiAssigns) > 0 {
		o.bus.Publish(bus.MarketsAssignments, AssignmentMsg{"kalshi_assign", kalshiAssigns})
	}
	if len(polyAssigns) > 0 {
		o.bus.Publish(bus.MarketsAssignments, AssignmentMsg{"polymarket_assign", polyAssigns})
	}
}
