// cmd/fanout is the data-producing half of the split-process deployment:
// venue clients, Venue Monitors, and the Orchestrator publish onto a local
// bus, and a fanout.Server relays the global (non-per-game) channels to
// any number of downstream trading processes connected over WebSocket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/config"
	"github.com/arbtwo/marketfusion/internal/discovery"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/espnfeed"
	"github.com/arbtwo/marketfusion/internal/fanout"
	"github.com/arbtwo/marketfusion/internal/monitor"
	"github.com/arbtwo/marketfusion/internal/orchestrator"
	"github.com/arbtwo/marketfusion/internal/telemetry"
	"github.com/arbtwo/marketfusion/internal/venue/kalshiauth"
	"github.com/arbtwo/marketfusion/internal/venue/kalshihttp"
	"github.com/arbtwo/marketfusion/internal/venue/polyauth"
	"github.com/arbtwo/marketfusion/internal/venue/polyhttp"
)

var tradedSports = []domain.Sport{
	domain.NFL, domain.NBA, domain.NHL, domain.MLB, domain.NCAAF, domain.NCAAB, domain.MLS, domain.Soccer,
}

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("starting marketfusion fanout relay")

	b := bus.New()

	kalshiSigner, err := kalshiauth.NewSignerFromFile(cfg.KalshiKeyID, cfg.KalshiKeyFile)
	if err != nil {
		telemetry.Errorf("kalshi auth: %v", err)
		os.Exit(1)
	}
	kalshiClient := kalshihttp.NewClient(cfg.KalshiBaseURL, kalshiSigner, cfg.RateDivisor)

	polyAuth, err := polyauth.NewAuth(cfg.PolyPrivateKey, "", 137, polyauth.Credentials{
		APIKey: cfg.PolyAPIKey, Secret: cfg.PolyAPISecret, Passphrase: cfg.PolyAPIPassword,
	})
	if err != nil {
		telemetry.Errorf("polymarket auth: %v", err)
		os.Exit(1)
	}
	polyClient := polyhttp.NewClient(cfg.PolyGammaURL, cfg.PolyClobURL, polyAuth, cfg.KalshiMode != "prod")

	espnClient := espnfeed.New(tradedSports)
	discoverer := discovery.New(kalshiClient, polyClient)
	orch := orchestrator.New(b, espnClient, discoverer, cfg.ShardTimeout())

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

	// Only the global, non-per-game channels are relayed: shard commands/
	// heartbeats and per-game prices are parameterized by a runtime id this
	// server never enumerates up front, so they stay process-local (§6).
	server := fanout.NewServer(b,
		bus.MarketsAssignments,
		bus.SignalsNew,
		bus.ExecutionRequests,
		bus.ExecutionResults,
		bus.PositionUpdates,
		bus.GamesEnded,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orch.Run(ctx, cfg.DiscoveryInterval())
	go func() {
		if err := server.ListenAndServe(cfg.FanoutAddr); err != nil {
			telemetry.Errorf("fanout: server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("shutting down fanout relay...")
	cancel()
}
