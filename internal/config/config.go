package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide set of environment-configurable knobs (§4, §10).
// Every component reads its settings from here rather than touching os.Getenv
// directly, so a single .env / process environment drives the whole engine.
type Config struct {
	// Venue K (Kalshi analogue)
	KalshiMode    string // "demo" or "prod"
	KalshiBaseURL string
	KalshiWSURL   string
	KalshiKeyID   string
	KalshiKeyFile string // path to RSA PEM private key

	// Venue P (Polymarket analogue)
	PolyGammaURL    string
	PolyClobURL     string
	PolyWSURL       string
	PolyPrivateKey  string // hex-encoded EVM private key for L1 EIP-712 signing
	PolyAPIKey      string
	PolyAPISecret   string
	PolyAPIPassword string
	PolyRestrictedGeoCheckURL string

	// Risk / limits
	RiskLimitsPath string

	// Discovery / orchestration
	DiscoveryIntervalSec int
	ShardTimeoutSec      int
	MaxGamesPerShard     int

	// GameShard polling cadence
	DefaultPollIntervalSec  int
	HalftimePollIntervalSec int
	CrunchTimePollIntervalSec int
	MarketDataTTLSec        int

	// SignalProcessor
	MinEdgePct            float64
	MaxBuyProb            float64
	MinSellProb           float64
	TeamMatchMinConfidence float64
	KellyFraction          float64
	MaxPositionPct         float64

	// ExecutionService
	SlippagePct   float64
	ExecMaxRetries int
	ExecTimeoutSec int

	// PositionTracker
	ExitCheckIntervalSec         int
	MinHoldSeconds               int
	ExitTeamMatchMinConfidence   float64
	PriceStalenessTTLSec         int
	TakeProfitPct                float64
	DefaultStopLossPct           float64
	ExitDebounceCount            int
	OrphanSweepIntervalSec       int
	OrphanSweepStartupDelaySec   int

	// Cooldown
	CooldownWinMinutes  int
	CooldownLossMinutes int

	// Bankroll
	InitialBalance float64

	// Score-feed correction
	ScoreDropConfirmSec int

	// Storage
	StorePath string

	// Fanout (inter-process relay)
	FanoutPort int
	FanoutAddr string

	// Rate limiting
	RateDivisor int

	// Telemetry
	LogLevel string
	MetricsAddr string
}

func Load() *Config {
	_ = godotenv.Load()

	mode := envStr("KALSHI_MODE", "prod")

	var keyID, keyFile, baseURL, wsURL string
	if mode == "prod" {
		keyID = envStr("PROD_KEYID", "")
		keyFile = envStr("PROD_KEYFILE", "")
		baseURL = envStr("KALSHI_BASE_URL", "https://api.elections.kalshi.com")
		wsURL = envStr("KALSHI_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2")
	} else {
		keyID = envStr("DEMO_KEYID", "")
		keyFile = envStr("DEMO_KEYFILE", "")
		baseURL = envStr("KALSHI_BASE_URL", "https://demo-api.kalshi.co")
		wsURL = envStr("KALSHI_WS_URL", "wss://demo-api.kalshi.co/trade-api/ws/v2")
	}

	return &Config{
		KalshiMode:    mode,
		KalshiBaseURL: baseURL,
		KalshiWSURL:   wsURL,
		KalshiKeyID:   keyID,
		KalshiKeyFile: keyFile,

		PolyGammaURL:    envStr("POLY_GAMMA_URL", "https://gamma-api.polymarket.com"),
		PolyClobURL:     envStr("POLY_CLOB_URL", "https://clob.polymarket.com"),
		PolyWSURL:       envStr("POLY_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolyPrivateKey:  envStr("POLY_PRIVATE_KEY", ""),
		PolyAPIKey:      envStr("POLY_API_KEY", ""),
		PolyAPISecret:   envStr("POLY_API_SECRET", ""),
		PolyAPIPassword: envStr("POLY_API_PASSPHRASE", ""),
		PolyRestrictedGeoCheckURL: envStr("POLY_GEO_CHECK_URL", "https://gamma-api.polymarket.com/geo"),

		RiskLimitsPath: envStr("RISK_LIMITS_PATH", "internal/config/risk_limits.yaml"),

		DiscoveryIntervalSec: envInt("DISCOVERY_INTERVAL_SEC", 30),
		ShardTimeoutSec:      envInt("SHARD_TIMEOUT_SEC", 30),
		MaxGamesPerShard:     envInt("MAX_GAMES_PER_SHARD", 25),

		DefaultPollIntervalSec:    envInt("DEFAULT_POLL_INTERVAL_SEC", 10),
		HalftimePollIntervalSec:   envInt("HALFTIME_POLL_INTERVAL_SEC", 30),
		CrunchTimePollIntervalSec: envInt("CRUNCH_TIME_POLL_INTERVAL_SEC", 3),
		MarketDataTTLSec:          envInt("MARKET_DATA_TTL_SEC", 15),

		MinEdgePct:             envFloat("MIN_EDGE_PCT", 3.0),
		MaxBuyProb:             envFloat("MAX_BUY_PROB", 0.95),
		MinSellProb:            envFloat("MIN_SELL_PROB", 0.05),
		TeamMatchMinConfidence: envFloat("TEAM_MATCH_MIN_CONFIDENCE", 0.70),
		KellyFraction:          envFloat("KELLY_FRACTION", 0.25),
		MaxPositionPct:         envFloat("MAX_POSITION_PCT", 0.05),

		SlippagePct:    envFloat("SLIPPAGE_PCT", 0.01),
		ExecMaxRetries: envInt("EXEC_MAX_RETRIES", 3),
		ExecTimeoutSec: envInt("EXEC_TIMEOUT_SEC", 20),

		ExitCheckIntervalSec:       envInt("EXIT_CHECK_INTERVAL_SEC", 1),
		MinHoldSeconds:             envInt("MIN_HOLD_SECONDS", 30),
		ExitTeamMatchMinConfidence: envFloat("EXIT_TEAM_MATCH_MIN_CONFIDENCE", 0.70),
		PriceStalenessTTLSec:       envInt("PRICE_STALENESS_TTL_SEC", 30),
		TakeProfitPct:              envFloat("TAKE_PROFIT_PCT", 0.10),
		DefaultStopLossPct:         envFloat("DEFAULT_STOP_LOSS_PCT", 0.05),
		ExitDebounceCount:          envInt("EXIT_DEBOUNCE_COUNT", 1),
		OrphanSweepIntervalSec:     envInt("ORPHAN_SWEEP_INTERVAL_SEC", 300),
		OrphanSweepStartupDelaySec: envInt("ORPHAN_SWEEP_STARTUP_DELAY_SEC", 60),

		CooldownWinMinutes:  envInt("COOLDOWN_WIN_MINUTES", 3),
		CooldownLossMinutes: envInt("COOLDOWN_LOSS_MINUTES", 5),

		InitialBalance: envFloat("INITIAL_BALANCE", 1000.0),

		ScoreDropConfirmSec: envInt("SCORE_DROP_CONFIRM_SEC", 15),

		StorePath: envStr("STORE_PATH", "data/marketfusion.db"),

		FanoutPort:  envInt("FANOUT_PORT", 9100),
		FanoutAddr:  envStr("FANOUT_ADDR", "localhost:9100"),
		RateDivisor: envInt("RATE_DIVISOR", 1),

		LogLevel:    envStr("LOG_LEVEL", "info"),
		MetricsAddr: envStr("METRICS_ADDR", ":9400"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// DiscoveryInterval etc. expose the int-seconds config fields as time.Duration
// for callers that want to pass them straight to time.NewTicker.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.DiscoveryIntervalSec) * time.Second
}

func (c *Config) ShardTimeout() time.Duration {
	return time.Duration(c.ShardTimeoutSec) * time.Second
}
