package position

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
	"github.com/pumpwatch-trading/pumpwatch/internal/pricing"
	"github.com/pumpwatch-trading/pumpwatch/internal/window"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config configures the position manager.
type Config struct {
	// Fixed virtual amount allocated per position.
	NominalSize float64 `yaml:"nominal_size"`

	// Entry preconditions.
	MinEntryAge  time.Duration `yaml:"min_entry_age"`
	MaxEntryAge  time.Duration `yaml:"max_entry_age"`
	MinValuation float64       `yaml:"min_valuation"`
	MaxValuation float64       `yaml:"max_valuation"`

	Exit ExitConfig `yaml:"exit"`
	Kill KillConfig `yaml:"kill"`
}

// DefaultConfig returns the standard position parameters.
func DefaultConfig() Config {
	return Config{
		NominalSize:  1.0,
		MinEntryAge:  2 * time.Minute,
		MaxEntryAge:  12 * time.Minute,
		MinValuation: 100,
		MaxValuation: 50000,
		Exit:         DefaultExitConfig(),
		Kill:         DefaultKillConfig(),
	}
}

// EntryRequest carries everything the manager needs to decide an entry.
// Filter-stage results are not included: a filter failure drops the
// token before the manager is ever consulted.
type EntryRequest struct {
	Token         string
	Metrics       window.RollingMetrics
	Score         float64
	ScoreAtFloor  bool
	SignalsPassed bool
	TokenDropped  bool
	TokenAge      time.Duration
	Now           time.Time
}

// Manager owns the paper-position lifecycle: entry, partial exit, full
// exit and kill-switch application, plus realized-PnL bookkeeping.
// Thread-safe; callbacks fire outside the lock.
type Manager struct {
	mu sync.Mutex

	config Config
	exits  *ExitEngine
	kill   *KillSwitch
	price  pricing.PriceProxy
	valuer pricing.Valuer

	open    map[string]*Position  // token -> live position
	states  map[string]*ExitState // position ID -> aux state
	archive []*Position
	traded  map[string]struct{} // tokens that ever had a position; no re-entry

	realized decimal.Decimal

	onOpen    func(pos *Position)
	onPartial func(pos *Position, price decimal.Decimal, realized decimal.Decimal)
	onClose   func(pos *Position, killed bool)
}

// NewManager creates a position manager with the given heuristics.
func NewManager(config Config, price pricing.PriceProxy, valuer pricing.Valuer) *Manager {
	return &Manager{
		config:   config,
		exits:    NewExitEngine(config.Exit),
		kill:     NewKillSwitch(config.Kill),
		price:    price,
		valuer:   valuer,
		open:     make(map[string]*Position),
		states:   make(map[string]*ExitState),
		traded:   make(map[string]struct{}),
		realized: decimal.Zero,
	}
}

// SetOnOpen sets the position-opened callback.
func (m *Manager) SetOnOpen(fn func(pos *Position)) { m.onOpen = fn }

// SetOnPartial sets the partial-exit callback.
func (m *Manager) SetOnPartial(fn func(pos *Position, price, realized decimal.Decimal)) {
	m.onPartial = fn
}

// SetOnClose sets the position-closed callback. killed marks
// kill-switch closes.
func (m *Manager) SetOnClose(fn func(pos *Position, killed bool)) { m.onClose = fn }

// Has reports whether the token has a live (non-closed) position.
func (m *Manager) Has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[token]
	return ok
}

// TryOpen attempts an entry. Returns the new position, or a rejection
// reason. Every precondition is required.
func (m *Manager) TryOpen(req EntryRequest) (*Position, string) {
	m.mu.Lock()

	if _, ok := m.open[req.Token]; ok {
		m.mu.Unlock()
		return nil, "position_exists"
	}
	if _, ok := m.traded[req.Token]; ok {
		// Re-entry is deliberately unsupported: one trade per token
		// per process lifetime.
		m.mu.Unlock()
		return nil, "already_traded"
	}
	if req.TokenDropped {
		m.mu.Unlock()
		return nil, "token_dropped"
	}
	if !req.ScoreAtFloor {
		m.mu.Unlock()
		return nil, "score_below_floor"
	}
	if req.TokenAge < m.config.MinEntryAge || req.TokenAge > m.config.MaxEntryAge {
		m.mu.Unlock()
		return nil, "age_outside_window"
	}
	if !req.SignalsPassed {
		m.mu.Unlock()
		return nil, "signals_not_passed"
	}

	valuation := m.valuer.Valuation(req.Metrics).InexactFloat64()
	if valuation < m.config.MinValuation || valuation > m.config.MaxValuation {
		m.mu.Unlock()
		return nil, "valuation_outside_range"
	}

	size := decimal.NewFromFloat(m.config.NominalSize)
	pos := &Position{
		ID:          uuid.New().String()[:12],
		Token:       req.Token,
		OpenedAt:    req.Now,
		EntryPrice:  m.price.Price(req.Metrics),
		EntryScore:  req.Score,
		Size:        size,
		Remaining:   size,
		Status:      StatusOpen,
		RealizedPnL: decimal.Zero,
	}

	m.open[req.Token] = pos
	m.states[pos.ID] = NewExitState(pos.ID, req.Now)
	m.traded[req.Token] = struct{}{}
	cb := m.onOpen
	m.mu.Unlock()

	log.Info().
		Str("pos_id", pos.ID).
		Str("token", pos.Token).
		Str("entry_price", pos.EntryPrice.String()).
		Float64("score", pos.EntryScore).
		Msg("position: OPENED")

	if cb != nil {
		cb(pos)
	}
	return pos, ""
}

// NoteActivity records a transaction timestamp against a live position's
// tracking state.
func (m *Manager) NoteActivity(token string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[token]
	if !ok {
		return
	}
	if st, ok := m.states[pos.ID]; ok {
		st.NoteActivity(ts)
	}
}

// Evaluate re-checks a live position against current metrics: the
// kill-switch first (independent authority, bypasses exit rules for the
// cycle), then partial and full exit rules. incoming is the transaction
// that prompted the evaluation, or nil on tick-driven runs.
func (m *Manager) Evaluate(token string, metrics window.RollingMetrics, devBuys int, incoming *feed.Transaction, now time.Time) {
	m.mu.Lock()

	pos, ok := m.open[token]
	if !ok {
		m.mu.Unlock()
		return
	}
	st := m.states[pos.ID]

	current := m.price.Price(metrics)
	pnl := pos.PnLPct(current)
	if pnl > pos.MaxPnLPct {
		pos.MaxPnLPct = pnl
	}

	if reason, killed := m.kill.Check(st, incoming, devBuys, now); killed {
		m.closeLocked(pos, current, reason, now, true)
		return // closeLocked released the lock
	}

	decision := m.exits.Evaluate(pos, st, pnl, metrics, now)

	if decision.Partial && pos.Status == StatusOpen {
		m.partialLocked(pos, current, now)
		m.mu.Lock() // partialLocked released; close may still apply below
		// Position can close in the same cycle after the partial.
		if _, stillOpen := m.open[token]; !stillOpen {
			m.mu.Unlock()
			return
		}
	}

	if decision.Close {
		m.closeLocked(pos, current, decision.Reason, now, false)
		return
	}

	m.mu.Unlock()
}

// partialLocked liquidates the configured fraction of nominal size and
// realizes its PnL. Caller holds the lock; released before callbacks.
func (m *Manager) partialLocked(pos *Position, price decimal.Decimal, now time.Time) {
	qty := pos.Size.Mul(decimal.NewFromFloat(m.config.Exit.PartialFraction))
	realized := price.Sub(pos.EntryPrice).Mul(qty)

	at := now
	pos.Remaining = pos.Remaining.Sub(qty)
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.Status = StatusPartial
	pos.PartialAt = &at
	pos.PartialPrice = price
	m.realized = m.realized.Add(realized)

	cb := m.onPartial
	m.mu.Unlock()

	log.Info().
		Str("pos_id", pos.ID).
		Str("token", pos.Token).
		Str("price", price.String()).
		Str("realized", realized.String()).
		Str("remaining", pos.Remaining.String()).
		Msg("position: PARTIAL EXIT")

	if cb != nil {
		cb(pos, price, realized)
	}
}

// closeLocked realizes PnL on all remaining size, archives the position
// and discards its auxiliary state. Double closes are no-ops guarded by
// the terminal status. Caller holds the lock; released before callbacks.
func (m *Manager) closeLocked(pos *Position, price decimal.Decimal, reason string, now time.Time, killed bool) {
	if pos.Status == StatusClosed {
		m.mu.Unlock()
		return
	}

	realized := price.Sub(pos.EntryPrice).Mul(pos.Remaining)
	at := now

	pos.Remaining = decimal.Zero
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.Status = StatusClosed
	pos.ClosedAt = &at
	pos.ExitPrice = price
	pos.ExitReason = reason
	m.realized = m.realized.Add(realized)

	m.archive = append(m.archive, pos)
	delete(m.open, pos.Token)
	delete(m.states, pos.ID)

	cb := m.onClose
	m.mu.Unlock()

	log.Info().
		Str("pos_id", pos.ID).
		Str("token", pos.Token).
		Str("reason", reason).
		Bool("killed", killed).
		Str("exit_price", price.String()).
		Str("realized_pnl", pos.RealizedPnL.String()).
		Float64("max_pnl_pct", pos.MaxPnLPct).
		Msg("position: CLOSED")

	if cb != nil {
		cb(pos, killed)
	}
}

// Get returns the live position for a token, or nil.
func (m *Manager) Get(token string) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[token]
}

// OpenPositions returns a snapshot of all live positions.
func (m *Manager) OpenPositions() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p)
	}
	return out
}

// Archive returns the closed-position archive.
func (m *Manager) Archive() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Position, len(m.archive))
	copy(out, m.archive)
	return out
}

// OpenCount returns the number of live positions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// ClosedCount returns the number of archived positions.
func (m *Manager) ClosedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.archive)
}

// RealizedPnL returns the cumulative realized PnL across all positions.
func (m *Manager) RealizedPnL() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realized
}
