// cmd/healthcheck exposes telemetry.Metrics over a standard Prometheus
// /metrics endpoint. The registry itself is process-local atomics, not
// reachable across processes, so this binary is meant to run inside the
// same process as cmd/engine (e.g. as an additional goroutine) rather than
// scrape it remotely; split out as its own entry point to demonstrate the
// client_golang wiring standalone.
package main

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbtwo/marketfusion/internal/config"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// registryCollector adapts telemetry.Metrics' atomic counters/gauges to the
// Prometheus collector interface, sampled fresh on every scrape rather than
// pushed, since telemetry's registry has no subscription hook of its own.
type registryCollector struct {
	descs map[string]*prometheus.Desc
}

func newRegistryCollector() *registryCollector {
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, nil, nil)
	}
	return &registryCollector{descs: map[string]*prometheus.Desc{
		"marketfusion_orders_sent_total":        mk("marketfusion_orders_sent_total", "Orders submitted to either venue."),
		"marketfusion_order_errors_total":       mk("marketfusion_order_errors_total", "Order submissions that failed."),
		"marketfusion_signals_emitted_total":    mk("marketfusion_signals_emitted_total", "Signals emitted by GameShards."),
		"marketfusion_signals_rejected_total":   mk("marketfusion_signals_rejected_total", "Signals rejected by SignalProcessor's gate."),
		"marketfusion_arb_opportunities_total":  mk("marketfusion_arb_opportunities_total", "Cross-venue arbitrage opportunities detected."),
		"marketfusion_circuit_breaker_trips":    mk("marketfusion_circuit_breaker_trips", "Times the risk circuit breaker has tripped."),
		"marketfusion_active_games":             mk("marketfusion_active_games", "Games currently owned by a GameShard."),
		"marketfusion_inbox_overflows_total":    mk("marketfusion_inbox_overflows_total", "Dropped events from a full GameContext inbox."),
	}}
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	counter := func(name string, v int64) {
		ch <- prometheus.MustNewConstMetric(c.descs[name], prometheus.CounterValue, float64(v))
	}
	gauge := func(name string, v int64) {
		ch <- prometheus.MustNewConstMetric(c.descs[name], prometheus.GaugeValue, float64(v))
	}

	counter("marketfusion_orders_sent_total", telemetry.Metrics.OrdersSent.Value())
	counter("marketfusion_order_errors_total", telemetry.Metrics.OrderErrors.Value())
	counter("marketfusion_signals_emitted_total", telemetry.Metrics.SignalsEmitted.Value())
	counter("marketfusion_signals_rejected_total", telemetry.Metrics.SignalsRejected.Value())
	counter("marketfusion_arb_opportunities_total", telemetry.Metrics.ArbOpportunities.Value())
	counter("marketfusion_circuit_breaker_trips", telemetry.Metrics.CircuitBreakerTrips.Value())
	gauge("marketfusion_active_games", telemetry.Metrics.ActiveGames.Value())
	counter("marketfusion_inbox_overflows_total", telemetry.Metrics.InboxOverflows.Value())
}

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(newRegistryCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	telemetry.Infof("healthcheck: serving /metrics on %s", cfg.MetricsAddr)
	if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
		telemetry.Errorf("healthcheck: server stopped: %v", err)
		os.Exit(1)
	}
}
