// Package espnfeed implements the external scoreboard/state collaborator
// the spec's own data-flow diagram names explicitly (ESPN scoreboard ->
// Orchestrator): live-game enumeration and per-game state polling, adapted
// from the teacher's resty-based venue client idiom rather than its
// GoalServe/Genius webhook adapters, since this engine is sport-agnostic
// and ESPN's public scoreboard covers all of them through one shape.
package espnfeed

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// leaguePaths maps a domain.Sport to ESPN's public scoreboard path segment.
var leaguePaths = map[domain.Sport]string{
	domain.NFL:    "football/nfl",
	domain.NCAAF:  "football/college-football",
	domain.NBA:    "basketball/nba",
	domain.NCAAB:  "basketball/mens-college-basketball",
	domain.NHL:    "hockey/nhl",
	domain.MLB:    "baseball/mlb",
	domain.MLS:    "soccer/usa.1",
	domain.Soccer: "soccer/uefa.champions",
}

// Client polls ESPN's public scoreboard/summary JSON endpoints for the
// configured sports.
type Client struct {
	http   *resty.Client
	sports []domain.Sport

	mu        sync.Mutex
	gameSport map[string]domain.Sport // game_id -> sport, learned from LiveGames

	// sf collapses concurrent FetchState calls for the same game into one
	// HTTP round-trip: a GameShard's poll loop and an exit-side state check
	// can land on the same gameID in the same instant, and ESPN's public
	// endpoint has no per-key caching of its own.
	sf singleflight.Group
}

func New(sports []domain.Sport) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL("https://site.api.espn.com/apis/site/v2/sports").
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(300 * time.Millisecond),
		sports:    sports,
		gameSport: make(map[string]domain.Sport),
	}
}

type scoreboardResponse struct {
	Events []struct {
		ID   string `json:"id"`
		Date string `json:"date"`
		Competitions []struct {
			Venue struct {
				FullName string `json:"fullName"`
			} `json:"venue"`
			Competitors []struct {
				HomeAway string `json:"homeAway"`
				Team     struct {
					DisplayName string `json:"displayName"`
					Abbreviation string `json:"abbreviation"`
				} `json:"team"`
				Score string `json:"score"`
			} `json:"competitors"`
			Status struct {
				Period int `json:"period"`
				Clock  float64 `json:"displayClock"`
				Type   struct {
					Name  string `json:"name"`
					State string `json:"state"`
				} `json:"type"`
			} `json:"status"`
		} `json:"competitions"`
	} `json:"events"`
}

// LiveGames implements orchestrator.Scoreboard: enumerates every game on
// each configured sport's scoreboard, whatever its status (scheduled, in
// progress or final).
func (c *Client) LiveGames(ctx context.Context) ([]domain.GameInfo, error) {
	var out []domain.GameInfo
	for _, sport := range c.sports {
		path, ok := leaguePaths[sport]
		if !ok {
			continue
		}
		var resp scoreboardResponse
		r, err := c.http.R().SetContext(ctx).SetResult(&resp).Get(fmt.Sprintf("/%s/scoreboard", path))
		if err != nil {
			telemetry.Warnf("espnfeed: scoreboard fetch sport=%s: %v", sport, err)
			continue
		}
		if r.StatusCode() != 200 {
			telemetry.Warnf("espnfeed: scoreboard sport=%s status=%d", sport, r.StatusCode())
			continue
		}

		for _, ev := range resp.Events {
			info := domain.GameInfo{GameID: ev.ID, Sport: sport}
			info.ScheduledTime, _ = time.Parse(time.RFC3339, ev.Date)
			if len(ev.Competitions) > 0 {
				comp := ev.Competitions[0]
				info.Venue = comp.Venue.FullName
				for _, team := range comp.Competitors {
					if team.HomeAway == "home" {
						info.HomeTeam = team.Team.DisplayName
						info.HomeAbbr = team.Team.Abbreviation
					} else {
						info.AwayTeam = team.Team.DisplayName
						info.AwayAbbr = team.Team.Abbreviation
					}
				}
				info.Status = mapStatus(comp.Status.Type.State)
			}
			out = append(out, info)

			c.mu.Lock()
			c.gameSport[ev.ID] = sport
			c.mu.Unlock()
		}
	}
	return out, nil
}

// FetchState implements shard.StateSource: a single-game summary poll.
// ESPN's summary endpoint doesn't expose a stable play-by-play sequence
// number across sports, so Plays is always empty here — signal generation
// in this engine runs off win-prob shift, not play-level text parsing.
func (c *Client) FetchState(ctx context.Context, gameID string) (domain.GameState, []domain.Play, error) {
	c.mu.Lock()
	sport, ok := c.gameSport[gameID]
	c.mu.Unlock()
	if !ok {
		return domain.GameState{}, nil, fmt.Errorf("espnfeed: unknown game %s", gameID)
	}
	path := leaguePaths[sport]

	v, err, _ := c.sf.Do(gameID, func() (any, error) {
		var resp scoreboardResponse
		r, err := c.http.R().SetContext(ctx).SetResult(&resp).
			SetQueryParam("event", gameID).
			Get(fmt.Sprintf("/%s/scoreboard", path))
		if err != nil {
			return nil, fmt.Errorf("espnfeed: fetch state: %w", err)
		}
		if r.StatusCode() != 200 || len(resp.Events) == 0 {
			return nil, fmt.Errorf("espnfeed: no event found for %s", gameID)
		}

		ev := resp.Events[0]
		if len(ev.Competitions) == 0 {
			return nil, fmt.Errorf("espnfeed: no competition for %s", gameID)
		}
		comp := ev.Competitions[0]

		state := domain.GameState{
			GameID:     gameID,
			Sport:      sport,
			Period:     comp.Status.Period,
			Status:     mapStatus(comp.Status.Type.State),
			ObservedAt: time.Now(),
		}
		for _, team := range comp.Competitors {
			score, _ := strconv.Atoi(team.Score)
			if team.HomeAway == "home" {
				state.HomeScore = score
			} else {
				state.AwayScore = score
			}
		}
		if sport.Periods() > 0 {
			state.GameProgress = float64(state.Period-1) / float64(sport.Periods())
		}
		return state, nil
	})
	if err != nil {
		return domain.GameState{}, nil, err
	}
	return v.(domain.GameState), nil, nil
}

func mapStatus(espnState string) domain.GameStatus {
	switch espnState {
	case "pre":
		return domain.StatusScheduled
	case "in":
		return domain.StatusInProgress
	case "post":
		return domain.StatusFinal
	default:
		return domain.StatusScheduled
	}
}

// WinProbModel is a simple logistic placeholder standing in for the
// external per-sport model the spec treats as an opaque collaborator
// (home_win_prob internals are explicitly out of scope): score
// differential decayed by time remaining, squashed through a logistic and
// clamped by the caller via domain.ClampWinProb.
type WinProbModel struct{}

func (WinProbModel) HomeWinProb(ctx context.Context, state domain.GameState) (float64, error) {
	periods := float64(state.Sport.Periods())
	if periods <= 0 {
		periods = 1
	}
	progress := (float64(state.Period-1) + (1 - clampProgress(state.TimeRemainingSec))) / periods
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	diff := float64(state.ScoreDiff())
	weight := 0.15 + 0.65*progress // late-game swings matter more
	logit := diff * weight
	return 1 / (1 + math.Exp(-logit)), nil
}

func clampProgress(secRemaining float64) float64 {
	const assumedPeriodLengthSec = 900.0 // 15 min, close enough across sports for decay shape
	v := secRemaining / assumedPeriodLengthSec
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
