package pipeline

import (
	"github.com/pumpwatch-trading/pumpwatch/internal/window"
)

// ---------------------------------------------------------------------------
// Scoring Stage — deterministic weighted sum, floored at zero
// ---------------------------------------------------------------------------

// ScoreConfig holds the scoring weights and penalties.
type ScoreConfig struct {
	WeightBuyers       float64 `yaml:"weight_buyers"`        // per unique 5m buyer
	WeightAcceleration float64 `yaml:"weight_acceleration"`  // per unit of 60s-count delta
	WeightRepeatBuyers float64 `yaml:"weight_repeat_buyers"` // per repeat buyer

	LargeBuyCutoff    float64 `yaml:"large_buy_cutoff"`    // largest-buy penalty trigger
	PenaltyLargeBuy   float64 `yaml:"penalty_large_buy"`   // flat penalty
	PenaltyNoActivity float64 `yaml:"penalty_no_activity"` // flat penalty when tx_60s == 0

	MinEntryScore float64 `yaml:"min_entry_score"`
}

// DefaultScoreConfig returns the standard weights.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		WeightBuyers:       2.0,
		WeightAcceleration: 3.0,
		WeightRepeatBuyers: 1.5,
		LargeBuyCutoff:     1.0,
		PenaltyLargeBuy:    10.0,
		PenaltyNoActivity:  5.0,
		MinEntryScore:      18.0,
	}
}

// ScoringStage computes the entry score. Pure function of metrics.
type ScoringStage struct {
	config ScoreConfig
}

// NewScoringStage creates a scoring stage.
func NewScoringStage(config ScoreConfig) *ScoringStage {
	return &ScoringStage{config: config}
}

// Score computes the weighted sum, clamped to a minimum of zero.
func (s *ScoringStage) Score(m window.RollingMetrics) float64 {
	score := float64(m.UniqueBuyers5m)*s.config.WeightBuyers +
		float64(m.Acceleration)*s.config.WeightAcceleration +
		float64(m.RepeatBuyers5m)*s.config.WeightRepeatBuyers

	if m.LargestBuy > s.config.LargeBuyCutoff {
		score -= s.config.PenaltyLargeBuy
	}
	if m.TxCount60s == 0 {
		score -= s.config.PenaltyNoActivity
	}

	if score < 0 {
		return 0
	}
	return score
}

// MeetsEntry reports whether a score clears the entry floor.
func (s *ScoringStage) MeetsEntry(score float64) bool {
	return score >= s.config.MinEntryScore
}
