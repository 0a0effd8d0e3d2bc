package position

import (
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
)

// ---------------------------------------------------------------------------
// Kill-Switch — independent, higher-priority immediate-close authority
// ---------------------------------------------------------------------------

// KillConfig configures the kill-switch. Its inactivity threshold is
// independent of the exit engine's.
type KillConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	WhaleCeiling      float64       `yaml:"whale_ceiling"` // single-buy SOL ceiling
}

// DefaultKillConfig returns the standard kill thresholds.
func DefaultKillConfig() KillConfig {
	return KillConfig{
		InactivityTimeout: 60 * time.Second,
		WhaleCeiling:      3.0,
	}
}

// KillSwitch checks the immediate-close conditions. It runs before
// ordinary exit evaluation and can fire even on a just-opened position.
type KillSwitch struct {
	config KillConfig
}

// NewKillSwitch creates a kill-switch.
func NewKillSwitch(config KillConfig) *KillSwitch {
	return &KillSwitch{config: config}
}

// Check returns a kill reason and true when any trigger holds: a whale
// buy beyond the ceiling, developer activity after the initial
// appearance, or zero activity past the timeout. incoming is nil on
// tick-driven evaluations.
func (k *KillSwitch) Check(st *ExitState, incoming *feed.Transaction, devBuys int, now time.Time) (string, bool) {
	if incoming != nil {
		amount := incoming.Amount.InexactFloat64()
		if amount > k.config.WhaleCeiling {
			return ReasonKillWhaleBuy, true
		}
	}

	if devBuys > 1 {
		return ReasonKillDevBuy, true
	}

	if now.Sub(st.LastActivity) >= k.config.InactivityTimeout {
		return ReasonKillInactivity, true
	}

	return "", false
}
