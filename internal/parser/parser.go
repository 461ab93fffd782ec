// Package parser turns venue market titles and Venue K tickers into
// structured domain.ParsedMarket values, and scores a candidate market
// against a game for discovery (§4.5).
package parser

import (
	"regexp"
	"strings"

	"github.com/arbtwo/marketfusion/internal/domain"
)

var (
	spreadKeyword = regexp.MustCompile(`(?i)\bspread\b|[+-]\d+(\.\d+)?`)
	totalKeyword  = regexp.MustCompile(`(?i)\b(over|under|total)\b`)
	propKeyword   = regexp.MustCompile(`(?i)\b(points|yards|assists|rebounds|prop)\b`)
	toWinPhrase   = regexp.MustCompile(`(?i)to win`)
)

// ParseTitle derives a best-effort ParsedMarket from a free-form venue
// market title. It never fails outright — an unrecognized title still
// yields MarketMoneyline with no team, so scoring degrades gracefully
// rather than discarding the candidate.
func ParseTitle(title string) domain.ParsedMarket {
	switch {
	case totalKeyword.MatchString(title):
		return domain.ParsedMarket{MarketType: domain.MarketTotal}
	case propKeyword.MatchString(title):
		return domain.ParsedMarket{MarketType: domain.MarketPlayerProp}
	case spreadKeyword.MatchString(title):
		return domain.ParsedMarket{MarketType: domain.MarketSpread}
	default:
		return domain.ParsedMarket{MarketType: domain.MarketMoneyline}
	}
}

// DiscoveryScore implements the §4.5 scoring table for a candidate title
// against a game's normalized home/away names and the market type being
// discovered. volumeDivisor is 10_000 for Venue K, 100_000 for Venue P.
func DiscoveryScore(title, home, away string, wantType domain.MarketType, volume, volumeDivisor float64) float64 {
	lower := strings.ToLower(title)
	h, a := strings.ToLower(home), strings.ToLower(away)

	var score float64
	hasHome := strings.Contains(lower, h)
	hasAway := strings.Contains(lower, a)

	switch {
	case hasHome && hasAway:
		score += 1.0
	case hasHome || hasAway:
		score += 0.5
	}

	atPhrase := a + " @ " + h
	vsPhrase := h + " vs " + a
	if strings.Contains(lower, atPhrase) || strings.Contains(lower, vsPhrase) {
		score += 0.5
	}

	if wantType == domain.MarketMoneyline {
		if toWinPhrase.MatchString(lower) {
			score += 0.3
		}
		if spreadKeyword.MatchString(lower) || totalKeyword.MatchString(lower) || propKeyword.MatchString(lower) {
			score -= 0.3
		}
	}

	if volumeDivisor > 0 {
		bonus := volume / volumeDivisor
		if bonus > 1.0 {
			bonus = 1.0
		}
		score += bonus
	}

	return score
}

// IsMultiGameOrParlay excludes Venue K combinator tickers from scoring (§4.5).
func IsMultiGameOrParlay(ticker string) bool {
	u := strings.ToUpper(ticker)
	return strings.Contains(u, "MULTIGAME") || strings.Contains(u, "PARLAY")
}

// KalshiTicker is the decomposed {DATE}{AWAY}{HOME}-{TEAM} grammar Venue K
// uses for moneyline tickers (§4.5). Date, Away, Home are opaque venue-side
// codes (not necessarily full names) — callers only need them to construct
// the complementary ticker.
type KalshiTicker struct {
	Prefix string // everything before the trailing "-{TEAM}", i.e. {DATE}{AWAY}{HOME}
	Team   string
	Raw    string
}

// ParseKalshiTicker splits a ticker on its final hyphen into prefix and
// team suffix. Returns ok=false if the ticker has no hyphen.
func ParseKalshiTicker(ticker string) (KalshiTicker, bool) {
	idx := strings.LastIndex(ticker, "-")
	if idx < 0 || idx == len(ticker)-1 {
		return KalshiTicker{}, false
	}
	return KalshiTicker{
		Prefix: ticker[:idx],
		Team:   ticker[idx+1:],
		Raw:    ticker,
	}, true
}

// Complement rebuilds the ticker for the other team in the same game,
// replacing only the trailing {TEAM} suffix and leaving {DATE}{AWAY}{HOME}
// untouched.
func (t KalshiTicker) Complement(otherTeam string) string {
	return t.Prefix + "-" + otherTeam
}
