// Package store persists §6's durable state (games, prices, signals,
// positions, bankroll) to SQLite, adapting the teacher's FIFO-capped
// tracking.Store pattern to the cross-venue domain. A single *sql.DB with
// MaxOpenConns(1) serializes writes; readers query the same handle.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/telemetry"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}

	telemetry.Infof("store: opened %s", path)
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS games (
	game_id        TEXT PRIMARY KEY,
	sport          TEXT NOT NULL,
	home_team      TEXT NOT NULL,
	away_team      TEXT NOT NULL,
	scheduled_time TEXT NOT NULL,
	status         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS game_states (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id            TEXT NOT NULL,
	home_score         INTEGER NOT NULL,
	away_score         INTEGER NOT NULL,
	period             INTEGER NOT NULL,
	time_remaining_sec REAL NOT NULL,
	status             TEXT NOT NULL,
	observed_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_game_states_game ON game_states(game_id);

CREATE TABLE IF NOT EXISTS plays (
	game_id         TEXT NOT NULL,
	play_id         TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	type            TEXT NOT NULL,
	text            TEXT NOT NULL,
	is_scoring      INTEGER NOT NULL,
	PRIMARY KEY (game_id, play_id)
);

CREATE TABLE IF NOT EXISTS market_prices (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	market_id     TEXT NOT NULL,
	platform      TEXT NOT NULL,
	contract_team TEXT NOT NULL,
	game_id       TEXT NOT NULL,
	yes_bid       REAL NOT NULL,
	yes_ask       REAL NOT NULL,
	observed_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_market_prices_lookup ON market_prices(game_id, platform, contract_team, observed_at);

CREATE TABLE IF NOT EXISTS trading_signals (
	signal_id    TEXT PRIMARY KEY,
	game_id      TEXT NOT NULL,
	sport        TEXT NOT NULL,
	signal_type  TEXT NOT NULL,
	direction    TEXT NOT NULL,
	edge_pct     REAL NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_trades (
	position_id    TEXT PRIMARY KEY,
	game_id        TEXT NOT NULL,
	sport          TEXT NOT NULL,
	platform       TEXT NOT NULL,
	market_id      TEXT NOT NULL,
	contract_team  TEXT NOT NULL,
	side           TEXT NOT NULL,
	entry_price    REAL NOT NULL,
	size           REAL NOT NULL,
	entry_fees     REAL NOT NULL,
	entry_at       TEXT NOT NULL,
	status         TEXT NOT NULL,
	exit_price     REAL,
	exit_fees      REAL,
	exit_at        TEXT,
	exit_reason    TEXT,
	realized_pnl   REAL
);

CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
	opportunity_key TEXT PRIMARY KEY,
	game_id         TEXT NOT NULL,
	combined_cost   REAL NOT NULL,
	detected_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bankroll (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	current_balance REAL NOT NULL,
	piggybank       REAL NOT NULL,
	peak            REAL NOT NULL,
	trough          REAL NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS futures_games (
	game_id        TEXT PRIMARY KEY,
	sport          TEXT NOT NULL,
	scheduled_time TEXT NOT NULL
);
`

// SaveGame upserts a game's static descriptor.
func (s *Store) SaveGame(info domain.GameInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO games (game_id, sport, home_team, away_team, scheduled_time, status)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT(game_id) DO UPDATE SET status=excluded.status`,
		info.GameID, info.Sport, info.HomeTeam, info.AwayTeam,
		info.ScheduledTime.UTC().Format(time.RFC3339), info.Status,
	); err != nil {
		telemetry.Warnf("store: save game %s: %v", info.GameID, err)
	}
}

// SaveGameState appends one observed snapshot.
func (s *Store) SaveGameState(st domain.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO game_states (game_id, home_score, away_score, period, time_remaining_sec, status, observed_at)
		 VALUES (?,?,?,?,?,?,?)`,
		st.GameID, st.HomeScore, st.AwayScore, st.Period, st.TimeRemainingSec, st.Status,
		st.ObservedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		telemetry.Warnf("store: save game state %s: %v", st.GameID, err)
	}
}

// SaveMarketPrice appends one observed quote to market_prices. Nothing in
// this package reads the table back; the freshest-team-price lookups run
// on the shards' in-memory prices.
func (s *Store) SaveMarketPrice(p domain.MarketPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO market_prices (market_id, platform, contract_team, game_id, yes_bid, yes_ask, observed_at)
		 VALUES (?,?,?,?,?,?,?)`,
		p.MarketID, p.Platform, p.ContractTeam, p.GameID, p.YesBid, p.YesAsk,
		p.Timestamp.UTC().Format(time.RFC3339Nano),
	); err != nil {
		telemetry.Warnf("store: save market price %s: %v", p.MarketID, err)
	}
}

// SaveSignal records a signal at emission time, independent of whether it
// survives SignalProcessor's gate.
func (s *Store) SaveSignal(sig domain.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO trading_signals (signal_id, game_id, sport, signal_type, direction, edge_pct, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		sig.SignalID, sig.GameID, sig.Sport, sig.SignalType, sig.Direction, sig.EdgePct,
		sig.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		telemetry.Warnf("store: save signal %s: %v", sig.SignalID, err)
	}
}

// SavePosition upserts a position's full current state, called on open and
// again on every status transition through close.
func (s *Store) SavePosition(p domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exitPrice, exitFees, realizedPnL sql.NullFloat64
	var exitAt sql.NullString
	var exitReason sql.NullString
	if p.Status == domain.PositionClosed || p.Status == domain.PositionSettled {
		exitPrice = sql.NullFloat64{Float64: p.ExitPrice, Valid: true}
		exitFees = sql.NullFloat64{Float64: p.ExitFees, Valid: true}
		realizedPnL = sql.NullFloat64{Float64: p.RealizedPnL, Valid: true}
		exitAt = sql.NullString{String: p.ExitAt.UTC().Format(time.RFC3339Nano), Valid: true}
		exitReason = sql.NullString{String: string(p.ExitReason), Valid: true}
	}

	if _, err := s.db.Exec(
		`INSERT INTO paper_trades (position_id, game_id, sport, platform, market_id, contract_team, side,
			entry_price, size, entry_fees, entry_at, status, exit_price, exit_fees, exit_at, exit_reason, realized_pnl)
		 VALUES (?,?,?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?)
		 ON CONFLICT(position_id) DO UPDATE SET
			status=excluded.status, exit_price=excluded.exit_price, exit_fees=excluded.exit_fees,
			exit_at=excluded.exit_at, exit_reason=excluded.exit_reason, realized_pnl=excluded.realized_pnl`,
		p.PositionID, p.GameID, p.Sport, p.Platform, p.MarketID, p.ContractTeam, p.Side,
		p.EntryPrice, p.Size, p.EntryFees, p.EntryAt.UTC().Format(time.RFC3339Nano), p.Status,
		exitPrice, exitFees, exitAt, exitReason, realizedPnL,
	); err != nil {
		telemetry.Warnf("store: save position %s: %v", p.PositionID, err)
	}
}

// OpenPositionsForFinishedGames returns every paper_trades row still marked
// open whose game is already marked final — PositionTracker's orphan sweep
// target for a restart that missed the original games:ended event.
func (s *Store) OpenPositionsForFinishedGames() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT pt.position_id, pt.game_id, pt.sport, pt.platform, pt.market_id, pt.contract_team, pt.side,
			pt.entry_price, pt.size, pt.entry_fees, pt.entry_at
		 FROM paper_trades pt
		 JOIN games g ON g.game_id = pt.game_id
		 WHERE pt.status = 'open' AND g.status = 'final'`)
	if err != nil {
		telemetry.Warnf("store: orphan sweep query: %v", err)
		return nil
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var entryAt string
		if err := rows.Scan(&p.PositionID, &p.GameID, &p.Sport, &p.Platform, &p.MarketID, &p.ContractTeam, &p.Side,
			&p.EntryPrice, &p.Size, &p.EntryFees, &entryAt); err != nil {
			continue
		}
		p.EntryAt, _ = time.Parse(time.RFC3339Nano, entryAt)
		p.Status = domain.PositionOpen
		out = append(out, p)
	}
	return out
}

// SaveBankroll upserts the single-row bankroll snapshot.
func (s *Store) SaveBankroll(b domain.Bankroll) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO bankroll (id, current_balance, piggybank, peak, trough, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET current_balance=excluded.current_balance,
			piggybank=excluded.piggybank, peak=excluded.peak, trough=excluded.trough, updated_at=excluded.updated_at`,
		b.CurrentBalance, b.PiggybankBalance, b.Peak, b.Trough, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		telemetry.Warnf("store: save bankroll: %v", err)
	}
}

// SaveArbOpportunity records a detected cross-venue arb for post-hoc review.
func (s *Store) SaveArbOpportunity(opportunityKey, gameID string, combinedCost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO arbitrage_opportunities (opportunity_key, game_id, combined_cost, detected_at)
		 VALUES (?,?,?,?)`,
		opportunityKey, gameID, combinedCost, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		telemetry.Warnf("store: save arb opportunity %s: %v", opportunityKey, err)
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
