// cmd/engine wires every component over the in-process bus: the common
// single-process deployment where "independent processes communicating
// exclusively through the messaging bus" are goroutines of one binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/arbtwo/marketfusion/internal/bankroll"
	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/config"
	"github.com/arbtwo/marketfusion/internal/discovery"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/espnfeed"
	"github.com/arbtwo/marketfusion/internal/execution"
	"github.com/arbtwo/marketfusion/internal/monitor"
	"github.com/arbtwo/marketfusion/internal/orchestrator"
	"github.com/arbtwo/marketfusion/internal/position"
	"github.com/arbtwo/marketfusion/internal/risk"
	"github.com/arbtwo/marketfusion/internal/shard"
	"github.com/arbtwo/marketfusion/internal/signalproc"
	"github.com/arbtwo/marketfusion/internal/store"
	"github.com/arbtwo/marketfusion/internal/teammatch"
	"github.com/arbtwo/marketfusion/internal/telemetry"
	"github.com/arbtwo/marketfusion/internal/venue/kalshiauth"
	"github.com/arbtwo/marketfusion/internal/venue/kalshihttp"
	"github.com/arbtwo/marketfusion/internal/venue/kalshiws"
	"github.com/arbtwo/marketfusion/internal/venue/polyauth"
	"github.com/arbtwo/marketfusion/internal/venue/polyhttp"
	"github.com/arbtwo/marketfusion/internal/venue/polyws"
)

// tradedSports is the set of leagues this deployment watches: every
// domain.Sport except Tennis and MMA, which have no espnfeed scoreboard path.
var tradedSports = []domain.Sport{
	domain.NFL, domain.NBA, domain.NHL, domain.MLB, domain.NCAAF, domain.NCAAB, domain.MLS, domain.Soccer,
}

const numShards = 4

func main() {
	startedAt := time.Now()
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("starting marketfusion engine")

	riskLimits, err := config.LoadRiskLimits(cfg.RiskLimitsPath)
	if err != nil {
		telemetry.Errorf("risk limits: %v", err)
		os.Exit(1)
	}

	b := bus.New()

	// ── Venue K (Kalshi analogue) ──────────────────────────────
	kalshiSigner, err := kalshiauth.NewSignerFromFile(cfg.KalshiKeyID, cfg.KalshiKeyFile)
	if err != nil {
		telemetry.Errorf("kalshi auth: %v", err)
		os.Exit(1)
	}
	kalshiClient := kalshihttp.NewClient(cfg.KalshiBaseURL, kalshiSigner, cfg.RateDivisor)

	// ── Venue P (Polymarket analogue) ──────────────────────────
	polyAuth, err := polyauth.NewAuth(cfg.PolyPrivateKey, "", 137, polyauth.Credentials{
		APIKey: cfg.PolyAPIKey, Secret: cfg.PolyAPISecret, Passphrase: cfg.PolyAPIPassword,
	})
	if err != nil {
		telemetry.Errorf("polymarket auth: %v", err)
		os.Exit(1)
	}
	polyClient := polyhttp.NewClient(cfg.PolyGammaURL, cfg.PolyClobURL, polyAuth, cfg.KalshiMode != "prod")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// §4.3: Venue-P is geo-restricted in several US states; a process that
	// can't legally trade there should refuse to start rather than place
	// orders it'll have rejected anyway.
	if allowed, err := polyClient.CheckGeoRestriction(ctx, cfg.PolyRestrictedGeoCheckURL); err != nil {
		telemetry.Warnf("polymarket geo check failed, proceeding cautiously: %v", err)
	} else if !allowed {
		telemetry.Errorf("polymarket geo-restricted from this egress, refusing to start")
		os.Exit(1)
	}

	// ── Shared state: bankroll, risk, storage, team matching ───
	ledger := bankroll.New(cfg.InitialBalance)
	riskCtl := risk.New(riskLimits, ledger)
	breaker := risk.NewCircuitBreaker(riskLimits, ledger)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		telemetry.Errorf("store open: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	matcher := teammatch.New(teammatch.Thresholds{
		Entry: cfg.TeamMatchMinConfidence,
		Exit:  cfg.ExitTeamMatchMinConfidence,
	}, nil)

	// ── External collaborators (§6 scoreboard/state, explicitly
	// out-of-scope for internals — ESPN's public API stands in) ──
	espnClient := espnfeed.New(tradedSports)
	winProb := espnfeed.WinProbModel{}

	// ── Discovery + Orchestrator ────────────────────────────────
	discoverer := discovery.New(kalshiClient, polyClient)
	orch := orchestrator.New(b, espnClient, discoverer, cfg.ShardTimeout())

	// ── GameShards ──────────────────────────────────────────────
	cadence := shard.PollingCadence{
		Default:    time.Duration(cfg.DefaultPollIntervalSec) * time.Second,
		Halftime:   time.Duration(cfg.HalftimePollIntervalSec) * time.Second,
		CrunchTime: time.Duration(cfg.CrunchTimePollIntervalSec) * time.Second,
	}
	shardTunables := shard.Tunables{
		MarketDataTTL:       time.Duration(cfg.MarketDataTTLSec) * time.Second,
		MinDeltaPct:         0.02,
		MarketSignalEdgePct: 5.0,
		RequiredEdgeFeesPct: cfg.MinEdgePct,
		MatchMinConfidence:  cfg.TeamMatchMinConfidence,
		HysteresisMultiple:  2.0,
		Matcher:             matcher,
		IDSeq:               newIDSeq(),
	}

	shards := make(shardGroup, 0, numShards)
	for i := 0; i < numShards; i++ {
		id := fmt.Sprintf("shard-%d", i)
		sh := shard.New(id, b, cfg.MaxGamesPerShard, cadence, shardTunables, espnClient, winProb, breaker)
		orch.RegisterShard(id)
		shards = append(shards, sh)
	}

	// ── Venue Monitors ──────────────────────────────────────────
	kalshiMonitor := monitor.New(domain.PlatformKalshi, b)
	polyMonitor := monitor.New(domain.PlatformPolymarket, b)
	b.Subscribe(bus.MarketsAssignments, func(msg any) error {
		am, ok := msg.(orchestrator.AssignmentMsg)
		if !ok {
			return nil
		}
		switch am.Type {
		case "kalshi_assign":
			kalshiMonitor.ApplyAssignments(am.Assignments)
		case "polymarket_assign":
			polyMonitor.ApplyAssignments(am.Assignments)
		}
		return nil
	})

	kalshiWS := kalshiws.NewClient(cfg.KalshiWSURL, kalshiSigner, func(u kalshiws.Update) {
		kalshiMonitor.HandleKalshiUpdate(u.Ticker, u.Seq, u.Snapshot, u.YesBids, u.YesAsks, u.NoBids, u.NoAsks, u.PriceCents, u.Delta, domain.BookSide(u.Side))
	})
	polyAdapter := newPolyUpdateAdapter(polyMonitor)
	polyWS := polyws.NewClient(cfg.PolyWSURL, polyAdapter.handle)

	// ── SignalProcessor / ExecutionService / PositionTracker ───
	signalTunables := signalproc.Tunables{
		MinEdgePct:         cfg.MinEdgePct,
		MaxBuyProb:         cfg.MaxBuyProb,
		MinSellProb:        cfg.MinSellProb,
		MatchMinConfidence: cfg.TeamMatchMinConfidence,
		KellyFraction:      cfg.KellyFraction,
		MaxPositionPct:     cfg.MaxPositionPct,
		HedgingAllowed:     false,
	}

	positionTunables := position.Tunables{
		CheckInterval:          time.Duration(cfg.ExitCheckIntervalSec) * time.Second,
		MinHoldSeconds:         cfg.MinHoldSeconds,
		MatchMinConfidence:     cfg.ExitTeamMatchMinConfidence,
		StalenessTTL:           time.Duration(cfg.PriceStalenessTTLSec) * time.Second,
		TakeProfitPct:          cfg.TakeProfitPct,
		DefaultStopLossPct:     cfg.DefaultStopLossPct,
		DebounceCount:          cfg.ExitDebounceCount,
		OrphanSweepInterval:    time.Duration(cfg.OrphanSweepIntervalSec) * time.Second,
		OrphanSweepStartupWait: time.Duration(cfg.OrphanSweepStartupDelaySec) * time.Second,
		CooldownWin:            time.Duration(cfg.CooldownWinMinutes) * time.Minute,
		CooldownLoss:           time.Duration(cfg.CooldownLossMinutes) * time.Minute,
	}

	positions := position.New(b, shards, matcher, ledger, riskCtl, shards, st, positionTunables)
	_ = signalproc.New(b, shards, positions, shards, riskCtl, ledger, matcher, signalTunables)

	execTunables := execution.Tunables{
		SlippagePct: cfg.SlippagePct,
		MaxRetries:  cfg.ExecMaxRetries,
		Timeout:     time.Duration(cfg.ExecTimeoutSec) * time.Second,
		PaperMode:   cfg.KalshiMode != "prod",
	}
	_ = execution.New(b, shards, ledger, riskCtl, breaker, kalshiClient, polyClient, execTunables)

	// ── Start everything ────────────────────────────────────────
	for _, sh := range shards {
		go sh.Run(ctx, 5*time.Second)
	}
	go orch.Run(ctx, cfg.DiscoveryInterval())
	go positions.Run(ctx)

	go func() {
		if err := kalshiWS.Connect(ctx); err != nil {
			telemetry.Warnf("kalshi ws: %v", err)
		}
	}()
	go func() {
		if err := polyWS.Connect(ctx); err != nil {
			telemetry.Warnf("polymarket ws: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("shutting down marketfusion engine, started %s", telemetry.Uptime(startedAt))
	cancel()
	telemetry.Infof("shutdown complete  %s", telemetry.SummarizeCounts(map[string]int64{
		"orders": telemetry.Metrics.OrdersSent.Value(),
		"errors": telemetry.Metrics.OrderErrors.Value(),
		"arbs":   telemetry.Metrics.ArbOpportunities.Value(),
	}))
}

func newIDSeq() func() string {
	return func() string {
		return uuid.NewString()
	}
}

// polyUpdateAdapter translates polyws.Update's decimal-string book shape
// into the integer-cents shape monitor.HandlePolyUpdate expects. Venue P's
// "book" event is a full snapshot; its "price_change"/"last_trade_price"/
// "tick_size_change" events carry no depth/size information in this parsed
// shape, so they're logged but not applied — a partial re-snapshot built
// from a bare price would misrepresent depth the client never resubscribes
// to recover.
type polyUpdateAdapter struct {
	monitor *monitor.Monitor

	mu   sync.Mutex
	seqs map[string]int64
}

func newPolyUpdateAdapter(m *monitor.Monitor) *polyUpdateAdapter {
	return &polyUpdateAdapter{monitor: m, seqs: make(map[string]int64)}
}

func (a *polyUpdateAdapter) handle(u polyws.Update) {
	if u.Kind != "book" {
		telemetry.Debugf("polyws: ignoring depth-less event kind=%s token=%s", u.Kind, u.TokenID)
		return
	}
	a.mu.Lock()
	a.seqs[u.TokenID]++
	seq := a.seqs[u.TokenID]
	a.mu.Unlock()

	a.monitor.HandlePolyUpdate(u.TokenID, seq, true, decimalLevelsToCents(u.Bids), decimalLevelsToCents(u.Asks), 0, 0, "", 0)
}

func decimalLevelsToCents(levels map[string]string) map[int]int {
	if levels == nil {
		return nil
	}
	out := make(map[int]int, len(levels))
	for priceStr, sizeStr := range levels {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(sizeStr, 64)
		if err != nil {
			continue
		}
		out[int(price*100+0.5)] = int(size + 0.5)
	}
	return out
}
