// Package bankroll is the single-writer ledger around domain.Bankroll
// (§3 "piggybank"). Writes are serialized through a named in-process mutex
// per the engine's single-process concurrency model (§5) — every debit,
// credit, and close flows through this one lock so ExecutionService and
// PositionTracker never race on the balance.
package bankroll

import (
	"fmt"
	"sync"

	"github.com/arbtwo/marketfusion/internal/domain"
	"github.com/arbtwo/marketfusion/internal/telemetry"
)

// Ledger owns the single mutable domain.Bankroll for the process.
type Ledger struct {
	mu            sync.Mutex
	b             domain.Bankroll
	dayStartTotal float64
}

func New(initial float64) *Ledger {
	return &Ledger{
		b: domain.Bankroll{
			Initial:        initial,
			CurrentBalance: initial,
			Peak:           initial,
			Trough:         initial,
		},
		dayStartTotal: initial,
	}
}

// ResetDay marks the current total as the new day-start baseline for
// DailyPnL — called by the engine on a UTC day rollover.
func (l *Ledger) ResetDay() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dayStartTotal = l.b.Total()
}

// Snapshot returns a copy of the current bankroll state for read-only use
// (risk checks, reporting) without holding the lock.
func (l *Ledger) Snapshot() domain.Bankroll {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b
}

// Debit reduces current balance by amount, refusing if it would go
// negative — callers must check Available first for a size-aware decision,
// but Debit itself is the last line of defense.
func (l *Ledger) Debit(amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount > l.b.CurrentBalance {
		return fmt.Errorf("bankroll: debit %.2f exceeds available %.2f: %w", amount, l.b.CurrentBalance, domain.ReasonInsufficientBalance)
	}
	l.b.Debit(amount)
	return nil
}

// Credit adds amount back to current balance (e.g. an unwound arb leg or a
// cancelled order's reserved funds).
func (l *Ledger) Credit(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.b.CurrentBalance += amount
}

// ApplyClose realizes pnl through the piggybank split and refreshes
// peak/trough (§8 invariant 8).
func (l *Ledger) ApplyClose(pnl float64) domain.Bankroll {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.b.ApplyClose(pnl)
	telemetry.Infof("bankroll: realized pnl=%.2f current=%.2f piggybank=%.2f", pnl, l.b.CurrentBalance, l.b.PiggybankBalance)
	return l.b
}

// Available returns the current balance. No reserved amount is subtracted:
// ExecutionService debits synchronously before a fill is reported.
func (l *Ledger) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.CurrentBalance
}

// DailyPnL returns realized P&L since the last ResetDay (or process start)
// — used by RiskController's daily-loss gate.
func (l *Ledger) DailyPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Total() - l.dayStartTotal
}
