package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// formatCount renders a contract count (dollars-of-notional, folded to
// whole contracts) as Kalshi's count_fp string.
func formatCount(size float64) string {
	return fmt.Sprintf("%d", int64(size+0.5))
}

// formatDollars renders a probability-space price as Kalshi's
// yes_price_dollars / no_price_dollars decimal-string format.
func formatDollars(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
