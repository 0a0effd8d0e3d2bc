package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
	"github.com/pumpwatch-trading/pumpwatch/internal/journal"
	"github.com/pumpwatch-trading/pumpwatch/internal/pipeline"
	"github.com/pumpwatch-trading/pumpwatch/internal/position"
	"github.com/pumpwatch-trading/pumpwatch/internal/token"
	"github.com/pumpwatch-trading/pumpwatch/internal/window"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config configures the orchestration loops.
type Config struct {
	EvalInterval  time.Duration `yaml:"eval_interval"`  // position + entry re-evaluation
	SweepInterval time.Duration `yaml:"sweep_interval"` // registry lifecycle sweep
}

// DefaultConfig returns the standard tick intervals.
func DefaultConfig() Config {
	return Config{
		EvalInterval:  10 * time.Second,
		SweepInterval: 30 * time.Second,
	}
}

// Snapshot is a point-in-time view of the engine for the status surface.
type Snapshot struct {
	Running         bool            `json:"running"`
	FeedConnected   bool            `json:"feed_connected"`
	Processed       uint64          `json:"processed"`
	ActiveTokens    int             `json:"active_tokens"`
	OpenPositions   int             `json:"open_positions"`
	ClosedPositions int             `json:"closed_positions"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
}

// Engine wires the feed into the decision pipeline and the position
// manager. All state transitions run under one mutex: transaction
// handling, timed evaluation and the lifecycle sweep never interleave,
// so every decision sees a consistent view.
type Engine struct {
	mu sync.Mutex

	config   Config
	source   feed.Source
	registry *token.Registry
	filters  *pipeline.FilterStage
	signals  *pipeline.SignalStage
	scoring  *pipeline.ScoringStage
	manager  *position.Manager
	journal  *journal.Journal

	processed atomic.Uint64
	running   atomic.Bool

	// Injected clock for deterministic tests.
	nowFn func() time.Time
}

// New creates an engine and wires the position-manager callbacks into
// the journal so every lifecycle event is recorded exactly once, at the
// moment the transition commits.
func New(config Config, source feed.Source, registry *token.Registry,
	filters *pipeline.FilterStage, signals *pipeline.SignalStage, scoring *pipeline.ScoringStage,
	manager *position.Manager, jrnl *journal.Journal) *Engine {

	e := &Engine{
		config:   config,
		source:   source,
		registry: registry,
		filters:  filters,
		signals:  signals,
		scoring:  scoring,
		manager:  manager,
		journal:  jrnl,
		nowFn:    time.Now,
	}

	manager.SetOnOpen(func(pos *position.Position) {
		jrnl.PositionOpened(pos.ID, pos.Token, pos.EntryScore,
			pos.EntryPrice.String(), pos.Size.String(), pos.OpenedAt)
	})
	manager.SetOnPartial(func(pos *position.Position, price, realized decimal.Decimal) {
		at := pos.OpenedAt
		if pos.PartialAt != nil {
			at = *pos.PartialAt
		}
		jrnl.PartialExit(pos.ID, pos.Token, price.String(), realized.String(),
			pos.Remaining.String(), at)
	})
	manager.SetOnClose(func(pos *position.Position, killed bool) {
		at := pos.OpenedAt
		if pos.ClosedAt != nil {
			at = *pos.ClosedAt
		}
		if killed {
			jrnl.KillSwitchTriggered(pos.ID, pos.Token, pos.ExitReason, at)
		}
		jrnl.PositionClosed(pos.ID, pos.Token, pos.ExitReason, killed,
			pos.ExitPrice.String(), pos.RealizedPnL.String(), pos.MaxPnLPct, pos, at)
	})

	return e
}

// OnTransaction is the feed handler. Safe for concurrent use; all
// processing is serialized on the engine mutex.
func (e *Engine) OnTransaction(tx feed.Transaction) {
	if !tx.Valid() {
		log.Warn().
			Str("token", tx.Token).
			Str("buyer", tx.Buyer).
			Str("amount", tx.Amount.String()).
			Msg("engine: malformed transaction dropped")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.processed.Add(1)
	now := e.nowFn()

	// A live position takes priority: its token's transactions feed the
	// metrics and trigger an immediate position re-check.
	if e.manager.Has(tx.Token) {
		tracker := e.registry.Get(tx.Token)
		if tracker == nil {
			// The sweep retains trackers for live positions, so this
			// means an explicit Remove; the timed evaluation still
			// closes the position on inactivity.
			log.Warn().Str("token", tx.Token).Msg("engine: transaction for untracked open position")
			return
		}
		tracker.Record(tx)
		e.manager.NoteActivity(tx.Token, tx.Timestamp)
		e.manager.Evaluate(tx.Token, tracker.MetricsAt(now), tracker.DevBuyCount(), &tx, now)
		return
	}

	tracker, created := e.registry.Record(tx)
	if created {
		e.journal.TokenDiscovered(tx.Token, now)
		log.Debug().
			Str("token", tx.Token).
			Str("dev_wallet", tracker.DevWallet()).
			Msg("engine: token discovered")
	}
	if tracker.Dropped() {
		return
	}

	// Cheap per-transaction disqualifier before the full pipeline.
	if reason, ok := e.filters.PreCheck(tx.Amount.InexactFloat64()); !ok {
		e.dropToken(tracker, reason, now)
		return
	}

	e.evaluateEntry(tracker, now)
}

// OnMetadataEdit notes an external metadata-update event for a tracked
// token. The edit counter feeds the filter stage on the next evaluation.
func (e *Engine) OnMetadataEdit(tokenID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tracker := e.registry.Get(tokenID); tracker != nil {
		tracker.RecordMetadataEdit()
	}
}

// evaluateEntry runs the filter, signal and scoring stages for one
// candidate tracker and attempts an entry. Caller holds the mutex.
func (e *Engine) evaluateEntry(tracker *token.Tracker, now time.Time) {
	metrics := tracker.MetricsAt(now)

	result := e.filters.Evaluate(metrics, tracker.DevBuyCount(), tracker.MetadataEdits())
	if !result.Passed {
		e.dropToken(tracker, result.Reason(), now)
		return
	}

	report := e.signals.Evaluate(metrics)
	score := e.scoring.Score(metrics)

	pos, reason := e.manager.TryOpen(position.EntryRequest{
		Token:         tracker.Token(),
		Metrics:       metrics,
		Score:         score,
		ScoreAtFloor:  e.scoring.MeetsEntry(score),
		SignalsPassed: report.AllPassed,
		TokenDropped:  tracker.Dropped(),
		TokenAge:      tracker.AgeAt(now),
		Now:           now,
	})
	if pos == nil && reason != "already_traded" && reason != "position_exists" {
		log.Trace().
			Str("token", tracker.Token()).
			Str("reason", reason).
			Float64("score", score).
			Msg("engine: entry rejected")
	}
}

// dropToken marks a tracker dropped and journals the event once. The
// drop is one-way; repeated calls are no-ops.
func (e *Engine) dropToken(tracker *token.Tracker, reason string, now time.Time) {
	if tracker.Drop(reason) {
		e.journal.TokenDropped(tracker.Token(), reason, now)
	}
}

// Run drives the timed loops until the context is cancelled. The feed
// source runs separately; its handler is OnTransaction.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	defer e.running.Store(false)

	evalTicker := time.NewTicker(e.config.EvalInterval)
	defer evalTicker.Stop()
	sweepTicker := time.NewTicker(e.config.SweepInterval)
	defer sweepTicker.Stop()

	log.Info().
		Dur("eval_interval", e.config.EvalInterval).
		Dur("sweep_interval", e.config.SweepInterval).
		Msg("engine: running")

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-evalTicker.C:
			e.evaluateAll()
		case <-sweepTicker.C:
			e.sweep()
		}
	}
}

// evaluateAll is the timed pass: every open position is re-checked
// (inactivity and momentum triggers fire here even with no incoming
// transactions), then every active candidate gets an entry evaluation.
func (e *Engine) evaluateAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()

	for _, pos := range e.manager.OpenPositions() {
		tracker := e.registry.Get(pos.Token)
		if tracker == nil {
			// Tracker removed out of band. Empty metrics still let the
			// inactivity rules retire the position.
			e.manager.Evaluate(pos.Token, window.RollingMetrics{}, 0, nil, now)
			continue
		}
		e.manager.Evaluate(pos.Token, tracker.MetricsAt(now), tracker.DevBuyCount(), nil, now)
	}

	for _, tracker := range e.registry.Active(now) {
		if e.manager.Has(tracker.Token()) {
			continue
		}
		e.evaluateEntry(tracker, now)
	}
}

// sweep runs the registry lifecycle pass and journals inactivity drops.
// Tokens with a live position are exempt from expiry so the position
// stays evaluatable. Expired trackers leave silently; their terminal
// state was already journaled when they were dropped, or they aged out.
func (e *Engine) sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	result := e.registry.SweepAt(now, e.manager.Has)
	for _, id := range result.DroppedInactive {
		e.journal.TokenDropped(id, result.InactiveReason, now)
	}
}

// shutdown journals any still-open positions. They are not force-closed;
// the journal record is the handoff.
func (e *Engine) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	open := e.manager.OpenPositions()
	for _, pos := range open {
		e.journal.ShutdownOpenPosition(pos.ID, pos.Token, pos.Remaining.String(), now)
	}

	log.Info().
		Int("open_positions", len(open)).
		Uint64("processed", e.processed.Load()).
		Str("realized_pnl", e.manager.RealizedPnL().String()).
		Msg("engine: stopped")
}

// Snapshot returns the current engine state for the status surface.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Running:         e.running.Load(),
		FeedConnected:   e.source.Connected(),
		Processed:       e.processed.Load(),
		ActiveTokens:    e.registry.ActiveCount(),
		OpenPositions:   e.manager.OpenCount(),
		ClosedPositions: e.manager.ClosedCount(),
		RealizedPnL:     e.manager.RealizedPnL(),
	}
}
