package position

import (
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/window"
)

// ---------------------------------------------------------------------------
// Exit Engine — partial exit, full-exit OR-triggers, momentum tracking
// ---------------------------------------------------------------------------

// ExitConfig configures the exit rules.
type ExitConfig struct {
	// Partial exit: once unrealized PnL reaches this, liquidate a
	// fraction of nominal size.
	PartialTriggerPct float64 `yaml:"partial_trigger_pct"` // e.g. 120 = +120%
	PartialFraction   float64 `yaml:"partial_fraction"`    // of nominal size

	// Full-exit triggers (unordered OR).
	FullProfitPct     float64       `yaml:"full_profit_pct"` // e.g. 220
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	DecreaseLimit     int           `yaml:"decrease_limit"` // consecutive 60s-count drops
	SpikeRatio        float64       `yaml:"spike_ratio"`    // increase marking a spike
}

// DefaultExitConfig returns the standard exit thresholds.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		PartialTriggerPct: 120,
		PartialFraction:   0.5,
		FullProfitPct:     220,
		InactivityTimeout: 120 * time.Second,
		DecreaseLimit:     2,
		SpikeRatio:        1.5,
	}
}

// ExitState is the per-position auxiliary tracking state. Created with
// the position, discarded when it closes; it never outlives it.
type ExitState struct {
	PositionID   string
	LastActivity time.Time

	// 60s transaction-count momentum tracking.
	lastTx60        int
	haveObservation bool
	consecDecreases int
	spiked          bool
	spikePeak       int
}

// NewExitState creates tracking state for a freshly opened position.
func NewExitState(positionID string, openedAt time.Time) *ExitState {
	return &ExitState{PositionID: positionID, LastActivity: openedAt}
}

// NoteActivity records an incoming transaction timestamp for the token.
func (s *ExitState) NoteActivity(ts time.Time) {
	if ts.After(s.LastActivity) {
		s.LastActivity = ts
	}
}

// ExitDecision is the outcome of one exit evaluation. Partial and Close
// may both be set in the same cycle; the partial executes first against
// the pre-partial remaining size, then the close takes the remainder.
type ExitDecision struct {
	Partial bool
	Close   bool
	Reason  string
}

// ExitEngine evaluates exit conditions for open positions.
type ExitEngine struct {
	config ExitConfig
}

// NewExitEngine creates an exit engine.
func NewExitEngine(config ExitConfig) *ExitEngine {
	return &ExitEngine{config: config}
}

// Evaluate inspects PnL, activity and momentum, updating the auxiliary
// state's observation counters as a side effect. A no-op for closed
// positions.
func (e *ExitEngine) Evaluate(pos *Position, st *ExitState, pnlPct float64, m window.RollingMetrics, now time.Time) ExitDecision {
	if pos.Status == StatusClosed {
		return ExitDecision{}
	}

	var d ExitDecision

	// 1. Partial exit, only from the open state.
	if pos.Status == StatusOpen && pnlPct >= e.config.PartialTriggerPct {
		d.Partial = true
	}

	// 2. Full-exit triggers, unordered OR.
	if pnlPct >= e.config.FullProfitPct {
		d.Close = true
		d.Reason = ReasonFullProfit
	}

	if !d.Close && now.Sub(st.LastActivity) >= e.config.InactivityTimeout {
		d.Close = true
		d.Reason = ReasonInactivity
	}

	if fade, reason := e.observeMomentum(st, m.TxCount60s); fade && !d.Close {
		d.Close = true
		d.Reason = reason
	}

	return d
}

// observeMomentum folds one 60s-count observation into the state and
// reports whether a momentum-based trigger fired. The decrease counter
// resets on any increase; a sufficiently large increase records a spike
// marker whose peak is tracked for the stagnation check.
func (e *ExitEngine) observeMomentum(st *ExitState, tx60 int) (bool, string) {
	defer func() {
		st.lastTx60 = tx60
		st.haveObservation = true
	}()

	if !st.haveObservation {
		return false, ""
	}

	switch {
	case tx60 < st.lastTx60:
		st.consecDecreases++
	case tx60 > st.lastTx60:
		st.consecDecreases = 0
		if st.lastTx60 > 0 && float64(tx60) >= float64(st.lastTx60)*e.config.SpikeRatio {
			st.spiked = true
		}
	}

	if st.spiked && tx60 > st.spikePeak {
		st.spikePeak = tx60
	}

	if st.consecDecreases >= e.config.DecreaseLimit {
		return true, ReasonMomentumFade
	}
	if st.spiked && st.spikePeak > 0 && tx60 < st.spikePeak/2 {
		return true, ReasonPostSpikeStall
	}
	return false, ""
}
