package risk

import (
	"sync"
	"time"

	"github.com/arbtwo/marketfusion/internal/bankroll"
	"github.com/arbtwo/marketfusion/internal/config"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// breakerState is the two-state machine from §4.10: NORMAL trades freely,
// TRIPPED blocks everything until cooldown_until passes, at which point the
// next Allow() call resets to NORMAL.
type breakerState string

const (
	stateNormal  breakerState = "normal"
	stateTripped breakerState = "tripped"
)

// CircuitBreaker trips on a position/total exposure breach, a daily-loss
// breach, or a run of consecutive execution errors; while tripped, Allow
// returns false until its cooldown elapses. Implements shard.CircuitBreaker:
// shard.DetectArb is the only caller of Allow, so a trip blocks arb emission
// but not directional signals or execution requests.
type CircuitBreaker struct {
	limits   config.RiskLimits
	bankroll *bankroll.Ledger

	mu                sync.Mutex
	state             breakerState
	cooldownUntil     time.Time
	consecutiveErrors int
}

func NewCircuitBreaker(limits config.RiskLimits, ledger *bankroll.Ledger) *CircuitBreaker {
	return &CircuitBreaker{limits: limits, bankroll: ledger, state: stateNormal}
}

// Allow reports whether new trading activity may proceed, resetting the
// breaker to NORMAL once its cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == stateTripped && time.Now().After(cb.cooldownUntil) {
		cb.state = stateNormal
		cb.consecutiveErrors = 0
		telemetry.Infof("circuit breaker: cooldown elapsed, resetting to normal")
	}
	return cb.state == stateNormal
}

// RecordError increments the consecutive-error counter and trips on
// breach; RecordSuccess clears it.
func (cb *CircuitBreaker) RecordError() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveErrors++
	if cb.consecutiveErrors >= cb.limits.BreakerMaxConsecutiveErrors {
		cb.trip("consecutive execution errors")
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveErrors = 0
}

// CheckExposure trips the breaker if perMarket or total position exposure
// breaches the configured ceilings.
func (cb *CircuitBreaker) CheckExposure(perMarket, total float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.limits.BreakerMaxPositionPerMarket > 0 && perMarket > cb.limits.BreakerMaxPositionPerMarket {
		cb.trip("position-per-market exposure breach")
		return
	}
	if cb.limits.BreakerMaxTotalPosition > 0 && total > cb.limits.BreakerMaxTotalPosition {
		cb.trip("total position exposure breach")
	}
}

// CheckDailyLoss trips the breaker if the bankroll's daily P&L has breached
// the configured floor.
func (cb *CircuitBreaker) CheckDailyLoss() {
	if cb.bankroll.DailyPnL() > -cb.limits.BreakerMaxDailyLoss {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trip("daily loss breach")
}

// trip must be called with cb.mu held.
func (cb *CircuitBreaker) trip(reason string) {
	if cb.state == stateTripped {
		return
	}
	cb.state = stateTripped
	cb.cooldownUntil = time.Now().Add(time.Duration(cb.limits.BreakerCooldownSec) * time.Second)
	telemetry.Metrics.CircuitBreakerTrips.Inc()
	telemetry.Warnf("circuit breaker: tripped (%s), cooldown until %s", reason, cb.cooldownUntil.Format(time.RFC3339))
}

// State reports the current breaker state as a plain string, for health
// reporting.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return string(cb.state)
}
