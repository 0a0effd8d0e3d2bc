package pipeline

import (
	"fmt"
	"strings"

	"github.com/pumpwatch-trading/pumpwatch/internal/window"
)

// ---------------------------------------------------------------------------
// Filter Stage — hard pass/fail checks; any failure drops the token
// ---------------------------------------------------------------------------

// FilterConfig holds the hard-filter ceilings and floors.
type FilterConfig struct {
	MaxSingleBuy     float64 `yaml:"max_single_buy"`     // largest-buy ceiling, SOL
	MaxAvgBuy        float64 `yaml:"max_avg_buy"`        // average-buy ceiling
	MinAvgBuy        float64 `yaml:"min_avg_buy"`        // average-buy floor (nonzero only)
	MaxBuySizeStd    float64 `yaml:"max_buy_size_std"`   // whale-noise ceiling
	MaxDevBuys       int     `yaml:"max_dev_buys"`       // developer repeat-buy ceiling
	MaxMetadataEdits int     `yaml:"max_metadata_edits"` // metadata-edit ceiling
}

// DefaultFilterConfig returns the standard disqualification thresholds.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxSingleBuy:     2.0,
		MaxAvgBuy:        1.0,
		MinAvgBuy:        0.01,
		MaxBuySizeStd:    0.5,
		MaxDevBuys:       1,
		MaxMetadataEdits: 1,
	}
}

// FilterResult reports the outcome of the hard filters. Reason lists
// every failing condition, not just the first.
type FilterResult struct {
	Passed  bool
	Reasons []string
}

// Reason concatenates all failing conditions into one human-readable
// drop reason.
func (r FilterResult) Reason() string {
	return strings.Join(r.Reasons, "; ")
}

// FilterStage evaluates hard disqualification rules. Pure function of
// metrics and tracker counters.
type FilterStage struct {
	config FilterConfig
}

// NewFilterStage creates a filter stage.
func NewFilterStage(config FilterConfig) *FilterStage {
	return &FilterStage{config: config}
}

// PreCheck is the cheap per-transaction pre-filter: a single buy above
// the largest-buy ceiling disqualifies before the full pipeline runs.
func (f *FilterStage) PreCheck(amount float64) (string, bool) {
	if amount > f.config.MaxSingleBuy {
		return fmt.Sprintf("largest_buy %.2f above ceiling %.2f", amount, f.config.MaxSingleBuy), false
	}
	return "", true
}

// Evaluate runs every filter condition independently and collects all
// failures. devBuys and metadataEdits come from the lifecycle tracker.
func (f *FilterStage) Evaluate(m window.RollingMetrics, devBuys, metadataEdits int) FilterResult {
	var reasons []string

	if m.LargestBuy > f.config.MaxSingleBuy {
		reasons = append(reasons,
			fmt.Sprintf("largest_buy %.2f above ceiling %.2f", m.LargestBuy, f.config.MaxSingleBuy))
	}
	if m.AvgBuySize > f.config.MaxAvgBuy {
		reasons = append(reasons,
			fmt.Sprintf("avg_buy %.3f above ceiling %.2f", m.AvgBuySize, f.config.MaxAvgBuy))
	}
	// Floor applies only to nonzero averages so zero-activity tokens
	// are not penalized here.
	if m.AvgBuySize > 0 && m.AvgBuySize < f.config.MinAvgBuy {
		reasons = append(reasons,
			fmt.Sprintf("avg_buy %.4f below floor %.2f", m.AvgBuySize, f.config.MinAvgBuy))
	}
	if m.BuySizeStd > f.config.MaxBuySizeStd {
		reasons = append(reasons,
			fmt.Sprintf("buy_size_std %.3f above ceiling %.2f", m.BuySizeStd, f.config.MaxBuySizeStd))
	}
	if devBuys > f.config.MaxDevBuys {
		reasons = append(reasons,
			fmt.Sprintf("dev_buys %d above ceiling %d", devBuys, f.config.MaxDevBuys))
	}
	if metadataEdits > f.config.MaxMetadataEdits {
		reasons = append(reasons,
			fmt.Sprintf("metadata_edits %d above ceiling %d", metadataEdits, f.config.MaxMetadataEdits))
	}

	return FilterResult{Passed: len(reasons) == 0, Reasons: reasons}
}
