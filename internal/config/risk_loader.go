package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SportLimits is the per-sport exposure ceiling consulted by RiskController
// (§4.10). MaxSportExposure/MaxGameExposure (and RiskLimits.MaxDailyLoss)
// are in dollars to match domain money fields.
type SportLimits struct {
	MaxSportExposure float64 `yaml:"max_sport_exposure"`
	MaxGameExposure  float64 `yaml:"max_game_exposure"`
	MaxLatencyMs     int64   `yaml:"max_latency_ms"`
}

// RiskLimits is the full per-sport table plus the engine-wide ceilings.
type RiskLimits struct {
	MaxDailyLoss float64                `yaml:"max_daily_loss"`
	Sports       map[string]SportLimits `yaml:"sports"`

	// CircuitBreaker thresholds (§4.10).
	BreakerMaxPositionPerMarket float64 `yaml:"breaker_max_position_per_market"`
	BreakerMaxTotalPosition     float64 `yaml:"breaker_max_total_position"`
	BreakerMaxDailyLoss         float64 `yaml:"breaker_max_daily_loss"`
	BreakerMaxConsecutiveErrors int     `yaml:"breaker_max_consecutive_errors"`
	BreakerCooldownSec          int     `yaml:"breaker_cooldown_sec"`
}

func LoadRiskLimits(path string) (RiskLimits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RiskLimits{}, fmt.Errorf("read risk limits: %w", err)
	}

	var limits RiskLimits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return RiskLimits{}, fmt.Errorf("parse risk limits: %w", err)
	}

	return limits, nil
}

func (rl RiskLimits) SportLimit(sport string) (SportLimits, bool) {
	sl, ok := rl.Sports[sport]
	return sl, ok
}
