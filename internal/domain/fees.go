package domain

import "math"

// KalshiFeeCents implements the §8 invariant 9 / §4.7 fee law for a contract
// priced at p cents (0-100): fee = ceil(7*p*(100-p) + 9999) / 10000 cents.
// fee(0) == fee(100) == 0.
func KalshiFeeCents(priceCents int) float64 {
	if priceCents <= 0 || priceCents >= 100 {
		return 0
	}
	p := float64(priceCents)
	return math.Ceil(7*p*(100-p)+9999) / 10000
}

// EdgePct computes executable edge in percentage points for the given
// direction: buy_edge = (modelProb - yesAsk)*100, sell_edge = (yesBid -
// modelProb)*100 (§4.6). Inputs are probability-space [0,1].
func EdgePct(dir Direction, modelProb, yesBid, yesAsk float64) float64 {
	switch dir {
	case Buy:
		return (modelProb - yesAsk) * 100
	case Sell:
		return (yesBid - modelProb) * 100
	default:
		return 0
	}
}

// RequiredEdgePct is estimated_fees + spread/2 + 1pp (§4.6), all in
// percentage points; estimatedFeesPct and spreadPct are also percentage points.
func RequiredEdgePct(estimatedFeesPct, spreadPct float64) float64 {
	return estimatedFeesPct + spreadPct/2 + 1.0
}

// ClampWinProb clamps a raw model probability to the [0.05, 0.95] floor/ceiling
// mandated by §4.6/§8 invariant 4. The unclamped value must never leak past this call.
func ClampWinProb(p float64) float64 {
	if p < 0.05 {
		return 0.05
	}
	if p > 0.95 {
		return 0.95
	}
	return p
}
