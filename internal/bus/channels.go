package bus

import "fmt"

// Channel name builders for the §6 channel table. Keeping these in one
// place means every publisher/subscriber pair agrees on the exact string.
func ShardCommand(shardID string) string   { return fmt.Sprintf("shard:%s:command", shardID) }
func ShardHeartbeat(shardID string) string { return fmt.Sprintf("shard:%s:heartbeat", shardID) }
func GamePrice(gameID string) string       { return fmt.Sprintf("game:%s:price", gameID) }
func GameState(gameID string) string       { return fmt.Sprintf("game:%s:state", gameID) }

const (
	MarketsAssignments = "markets:assignments"
	SignalsNew         = "signals:new"
	ExecutionRequests  = "execution:requests"
	ExecutionResults   = "execution:results"
	PositionUpdates    = "position:updates"
	GamesEnded         = "games:ended"
	DiscoveryRequests  = "discovery:requests"
	DiscoveryResults   = "discovery:results"
	SystemAlerts       = "system:alerts"
)
