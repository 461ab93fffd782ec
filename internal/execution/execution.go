// Package execution implements ExecutionService (§4.8): consumes
// ExecutionRequest under an idempotency-keyed lock, fills in paper mode or
// submits to the live venue clients, and emits exactly one ExecutionResult
// for each request it processes; a request whose key is already in flight
// is discarded without a result.
package execution

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/arbtwo/marketfusion/internal/bankroll"
	"github.com/arbtwo/marketfusion/internal/bus"
	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/risk"
	"github.com/arbtwo/marketfusion/internal/telemetry"
	"github.com/arbtwo/marketfusion/internal/venue/kalshihttp"
	"github.com/arbtwo/marketfusion/internal/venue/polyhttp"
)

// PriceLookup resolves the freshest team-matching MarketPrice for a
// request, team-preferred with fallback to any recent row for the market.
type PriceLookup interface {
	FreshestTeamPrice(gameID string, marketType domain.MarketType, platform domain.Platform, team string) (domain.MarketPrice, bool)
}

// Tunables bundles the execution-relevant config knobs.
type Tunables struct {
	SlippagePct float64
	MaxRetries  int
	Timeout     time.Duration
	PaperMode   bool
}

// Service is the ExecutionService instance.
type Service struct {
	bus      *bus.Bus
	prices   PriceLookup
	ledger   *bankroll.Ledger
	riskCtl  *risk.Controller
	breaker  *risk.CircuitBreaker
	kalshi   *kalshihttp.Client
	poly     *polyhttp.Client
	tunables Tunables

	mu        sync.Mutex
	inFlight  map[string]bool
}

func New(b *bus.Bus, prices PriceLookup, ledger *bankroll.Ledger, riskCtl *risk.Controller, breaker *risk.CircuitBreaker, kalshi *kalshihttp.Client, poly *polyhttp.Client, t Tunables) *Service {
	s := &Service{
		bus: b, prices: prices, ledger: ledger, riskCtl: riskCtl, breaker: breaker,
		kalshi: kalshi, poly: poly, tunables: t,
		inFlight: make(map[string]bool),
	}
	b.Subscribe(bus.ExecutionRequests, s.onRequest)
	return s
}

func (s *Service) onRequest(msg any) error {
	req, ok := msg.(domain.ExecutionRequest)
	if !ok {
		return nil
	}
	go s.process(req)
	return nil
}

// process runs one request under its idempotency lock and publishes exactly
// one ExecutionResult for it. A duplicate of an in-flight key is discarded
// without a result; the key is released when processing finishes.
func (s *Service) process(req domain.ExecutionRequest) {
	if !s.claim(req.IdempotencyKey) {
		telemetry.Debugf("execution: discarding in-flight duplicate key=%s", req.IdempotencyKey)
		return
	}
	defer s.release(req.IdempotencyKey)

	start := time.Now()
	var result domain.ExecutionResult
	if s.tunables.PaperMode {
		result = s.fillPaper(req)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), s.tunables.Timeout)
		result = s.fillLive(ctx, req)
		cancel()
	}
	result.LatencyMs = time.Since(start).Milliseconds()
	result.IdempotencyKey = req.IdempotencyKey
	result.Platform = req.Platform
	result.MarketID = req.MarketID
	result.ContractTeam = req.ContractTeam
	result.Side = req.Side
	result.GameID = req.GameID
	result.Sport = req.Sport
	result.ArbOpportunityKey = req.ArbOpportunityKey

	telemetry.Metrics.OrdersSent.Inc()
	if result.Status != domain.ExecFilled {
		telemetry.Metrics.OrderErrors.Inc()
	}
	if result.Status == domain.ExecFilled && s.riskCtl != nil {
		s.riskCtl.RecordOpen(req.GameID, req.Sport, req.Size)
	}
	s.bus.Publish(bus.ExecutionResults, result)
}

func (s *Service) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	return true
}

func (s *Service) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

// fillPaper implements §4.8's paper-mode simulation.
func (s *Service) fillPaper(req domain.ExecutionRequest) domain.ExecutionResult {
	if req.Size < 1 {
		return domain.ExecutionResult{Status: domain.ExecRejected, RejectionReason: domain.ReasonInsufficientBalance}
	}

	price, found := s.prices.FreshestTeamPrice(req.GameID, domain.MarketMoneyline, req.Platform, req.ContractTeam)
	var bidSize, askSize float64
	var basePrice float64
	if found {
		basePrice = req.LimitPrice
		bidSize, askSize = price.BidSize, price.AskSize
		if price.IsEmpty() {
			return domain.ExecutionResult{Status: domain.ExecRejected, RejectionReason: domain.ReasonEmptyBook}
		}
	} else {
		// no quote: synthesize a narrow spread around limit_price (the
		// ±slippage applied below), with simulated depth equal to the size
		basePrice = req.LimitPrice
		bidSize, askSize = req.Size, req.Size
	}

	slip := s.tunables.SlippagePct
	var execPrice float64
	if req.Side == domain.OrderYes {
		execPrice = clamp01(basePrice + slip)
	} else {
		execPrice = clamp01(basePrice - slip)
	}

	if req.Platform == domain.PlatformPolymarket {
		if req.Side == domain.OrderYes && askSize < req.Size {
			return domain.ExecutionResult{Status: domain.ExecRejected, RejectionReason: domain.ReasonDepthShort}
		}
		if req.Side == domain.OrderNo && bidSize < req.Size {
			return domain.ExecutionResult{Status: domain.ExecRejected, RejectionReason: domain.ReasonDepthShort}
		}
	}

	var fees float64
	if req.Platform == domain.PlatformKalshi {
		fees = domain.KalshiFeeCents(int(execPrice*100)) / 100
	}

	var debit float64
	if req.Side == domain.OrderYes {
		debit = req.Size*execPrice + fees
	} else {
		debit = req.Size*(1-execPrice) + fees
	}

	if debit > s.ledger.Available() {
		return domain.ExecutionResult{Status: domain.ExecRejected, RejectionReason: domain.ReasonInsufficientBalance}
	}
	if err := s.ledger.Debit(debit); err != nil {
		return domain.ExecutionResult{Status: domain.ExecRejected, RejectionReason: domain.ReasonInsufficientBalance}
	}

	return domain.ExecutionResult{
		Status:    domain.ExecFilled,
		FilledQty: req.Size,
		AvgPrice:  execPrice,
		Fees:      fees,
	}
}

// fillLive translates the request into venue wire format and submits it,
// retrying transient failures with exponential backoff up to max_retries.
func (s *Service) fillLive(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult {
	var lastErr error
	for attempt := 0; attempt <= s.tunables.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 200 * time.Millisecond
			select {
			case <-ctx.Done():
				return domain.ExecutionResult{Status: domain.ExecFailed, RejectionReason: domain.ReasonTransientIO}
			case <-time.After(backoff):
			}
		}

		var res domain.ExecutionResult
		var err error
		switch req.Platform {
		case domain.PlatformKalshi:
			res, err = s.submitKalshi(ctx, req)
		case domain.PlatformPolymarket:
			res, err = s.submitPoly(ctx, req)
		default:
			return domain.ExecutionResult{Status: domain.ExecRejected, RejectionReason: domain.ReasonUnknown}
		}
		if err == nil {
			if s.breaker != nil {
				s.breaker.RecordSuccess()
			}
			return res
		}
		lastErr = err
		if s.breaker != nil {
			s.breaker.RecordError()
		}
		telemetry.Warnf("execution: submit failed attempt=%d key=%s: %v", attempt, req.IdempotencyKey, err)
	}
	_ = lastErr
	return domain.ExecutionResult{Status: domain.ExecFailed, RejectionReason: domain.ReasonVenueReject}
}

func (s *Service) submitKalshi(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	action := "buy"
	side := "yes"
	if req.Side == domain.OrderNo {
		side = "no"
	}
	wire := kalshihttp.CreateOrderRequest{
		Ticker:  req.MarketID,
		Action:  action,
		Side:    side,
		Type:    "limit",
		CountFP: formatCount(req.Size),
	}
	if side == "yes" {
		wire.YesPriceDollars = formatDollars(req.LimitPrice)
	} else {
		wire.NoPriceDollars = formatDollars(1 - req.LimitPrice)
	}

	resp, err := s.kalshi.PlaceOrder(ctx, wire)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return domain.ExecutionResult{
		Status:       statusFromFillCount(resp.Order.FillCount, resp.Order.RemainingCount),
		FilledQty:    float64(resp.Order.FillCount),
		Fees:         float64(resp.Order.TakerFees+resp.Order.MakerFees) / 100,
		VenueOrderID: resp.Order.OrderID,
	}, nil
}

func (s *Service) submitPoly(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	side := polyhttp.Buy
	if req.Side == domain.OrderNo {
		side = polyhttp.Sell
	}
	order := polyhttp.UserOrder{
		TokenID:    req.MarketID,
		Price:      decimalFromFloat(req.LimitPrice),
		Size:       decimalFromFloat(req.Size),
		Side:       side,
		Expiration: time.Now().Add(time.Minute).Unix(),
	}
	resp, err := s.poly.PostOrder(ctx, order)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	status := domain.ExecRejected
	if resp.Success {
		status = domain.ExecFilled
	}
	return domain.ExecutionResult{Status: status, FilledQty: req.Size, AvgPrice: req.LimitPrice, VenueOrderID: resp.OrderID}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func statusFromFillCount(filled, remaining int) domain.ExecutionStatus {
	switch {
	case filled > 0 && remaining == 0:
		return domain.ExecFilled
	case filled > 0 && remaining > 0:
		return domain.ExecPartial
	default:
		return domain.ExecRejected
	}
}
