package main

import (
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/shard"
)

// shardGroup fans the per-shard lookups SignalProcessor/ExecutionService/
// PositionTracker need out across every shard, since a game is owned by
// exactly one at a time and none of those three components otherwise know
// which.
type shardGroup []*shard.Shard

func (g shardGroup) TeamPrice(gameID string, mtype domain.MarketType, platform domain.Platform, targetTeam string, minConfidence float64) (domain.MarketPrice, bool) {
	for _, sh := range g {
		if p, ok := sh.TeamPrice(gameID, mtype, platform, targetTeam, minConfidence); ok {
			return p, ok
		}
	}
	return domain.MarketPrice{}, false
}

func (g shardGroup) FreshestTeamPrice(gameID string, mtype domain.MarketType, platform domain.Platform, team string) (domain.MarketPrice, bool) {
	for _, sh := range g {
		if p, ok := sh.FreshestTeamPrice(gameID, mtype, platform, team); ok {
			return p, ok
		}
	}
	return domain.MarketPrice{}, false
}

func (g shardGroup) InCooldown(gameID string) bool {
	for _, sh := range g {
		if sh.InCooldown(gameID) {
			return true
		}
	}
	return false
}

func (g shardGroup) SetCooldown(gameID string, until time.Time) {
	for _, sh := range g {
		sh.SetCooldown(gameID, until)
	}
}
