package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a paper position. Transitions are
// monotonic: open → partial → closed, or open → closed.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPartial Status = "partial"
	StatusClosed  Status = "closed"
)

// Close reasons emitted by the exit engine and kill-switch.
const (
	ReasonPartialProfit  = "PARTIAL_PROFIT"
	ReasonFullProfit     = "FULL_PROFIT"
	ReasonInactivity     = "INACTIVITY"
	ReasonMomentumFade   = "MOMENTUM_FADE"
	ReasonPostSpikeStall = "POST_SPIKE_STALL"

	ReasonKillInactivity = "KILL_INACTIVITY"
	ReasonKillWhaleBuy   = "KILL_WHALE_BUY"
	ReasonKillDevBuy     = "KILL_DEV_ACTIVITY"
)

// Position is one paper trade for a token. Exactly one live position
// per token; closed positions move to an immutable archive and the
// token never re-enters within the process lifetime.
type Position struct {
	ID    string `json:"id"`
	Token string `json:"token"`

	OpenedAt   time.Time       `json:"opened_at"`
	EntryPrice decimal.Decimal `json:"entry_price"` // avg-buy-size proxy
	EntryScore float64         `json:"entry_score"`

	Size      decimal.Decimal `json:"size"`      // nominal virtual SOL
	Remaining decimal.Decimal `json:"remaining"` // after partial exits

	Status Status `json:"status"`

	PartialAt    *time.Time      `json:"partial_at,omitempty"`
	PartialPrice decimal.Decimal `json:"partial_price,omitempty"`

	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	ExitPrice  decimal.Decimal `json:"exit_price,omitempty"`
	ExitReason string          `json:"exit_reason,omitempty"`

	// MaxPnLPct is the maximum unrealized gain ever observed while
	// open, monotonically non-decreasing, kept for performance analysis.
	MaxPnLPct   float64         `json:"max_pnl_pct"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// PnLPct computes the percentage gain of current over entry. Zero when
// the entry price is not positive.
func (p *Position) PnLPct(current decimal.Decimal) float64 {
	if !p.EntryPrice.IsPositive() {
		return 0
	}
	pnl := current.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
	v, _ := pnl.Float64()
	return v
}
