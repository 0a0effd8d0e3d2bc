package pipeline

import (
	"github.com/pumpwatch-trading/pumpwatch/internal/window"
)

// ---------------------------------------------------------------------------
// Signal Stage — three independent boolean conditions, all required
// EAS (attention) + LSF (liquidity shape) + MC (momentum)
// ---------------------------------------------------------------------------

// SignalConfig holds the thresholds for the three signal conditions.
type SignalConfig struct {
	// Attention (EAS).
	MinUniqueBuyers int     `yaml:"min_unique_buyers"` // 5-minute window floor
	MaxMeanInterval float64 `yaml:"max_mean_interval"` // seconds

	// Liquidity shape (LSF).
	MinAvgBuy      float64 `yaml:"min_avg_buy"`
	MaxAvgBuy      float64 `yaml:"max_avg_buy"`
	LowVarianceStd float64 `yaml:"low_variance_std"` // distinct from the filter ceiling
	MaxLargestBuy  float64 `yaml:"max_largest_buy"`

	// Momentum (MC).
	MinTx60s int `yaml:"min_tx_60s"`
}

// DefaultSignalConfig returns the standard entry-signal thresholds.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		MinUniqueBuyers: 5,
		MaxMeanInterval: 20.0,
		MinAvgBuy:       0.05,
		MaxAvgBuy:       0.8,
		LowVarianceStd:  0.3,
		MaxLargestBuy:   1.5,
		MinTx60s:        4,
	}
}

// Check is one named sub-check inside a condition.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Condition is a named signal condition with its sub-checks for
// diagnostics.
type Condition struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Checks []Check `json:"checks"`
}

// SignalReport carries all three conditions. AllPassed requires every
// condition to hold simultaneously.
type SignalReport struct {
	Attention      Condition `json:"attention"`
	LiquidityShape Condition `json:"liquidity_shape"`
	Momentum       Condition `json:"momentum"`
	AllPassed      bool      `json:"all_passed"`
}

// SignalStage evaluates the three entry conditions. No memoized state;
// everything is recomputed from current metrics on every call.
type SignalStage struct {
	config SignalConfig
}

// NewSignalStage creates a signal stage.
func NewSignalStage(config SignalConfig) *SignalStage {
	return &SignalStage{config: config}
}

// Evaluate computes the full signal report for the given metrics.
func (s *SignalStage) Evaluate(m window.RollingMetrics) SignalReport {
	attention := condition("attention",
		Check{"unique_buyers_at_floor", m.UniqueBuyers5m >= s.config.MinUniqueBuyers},
		Check{"mean_interval_below_ceiling", m.MeanInterval60s <= s.config.MaxMeanInterval},
		Check{"acceleration_positive", m.Acceleration > 0},
	)

	liquidity := condition("liquidity_shape",
		Check{"avg_buy_in_band", m.AvgBuySize >= s.config.MinAvgBuy && m.AvgBuySize <= s.config.MaxAvgBuy},
		Check{"low_variance", m.BuySizeStd < s.config.LowVarianceStd},
		Check{"largest_buy_capped", m.LargestBuy <= s.config.MaxLargestBuy},
	)

	momentum := condition("momentum",
		Check{"tx_60s_at_floor", m.TxCount60s >= s.config.MinTx60s},
		Check{"interval_accelerating", m.Accelerating},
	)

	return SignalReport{
		Attention:      attention,
		LiquidityShape: liquidity,
		Momentum:       momentum,
		AllPassed:      attention.Passed && liquidity.Passed && momentum.Passed,
	}
}

func condition(name string, checks ...Check) Condition {
	passed := true
	for _, c := range checks {
		if !c.Passed {
			passed = false
			break
		}
	}
	return Condition{Name: name, Passed: passed, Checks: checks}
}
