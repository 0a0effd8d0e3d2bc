package token

import (
	"sync"
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
	"github.com/pumpwatch-trading/pumpwatch/internal/window"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Token Lifecycle Tracker — one per distinct token, owns its aggregator
// ---------------------------------------------------------------------------

// TrackerConfig bounds the lifecycle of a tracked token.
type TrackerConfig struct {
	// Retention horizon for the owned aggregator.
	Retention time.Duration `yaml:"retention"`

	// Hard ceiling on tracked age; past this the tracker expires.
	MaxAge time.Duration `yaml:"max_age"`

	// Age after which the inactivity rule applies.
	InactivityAge time.Duration `yaml:"inactivity_age"`

	// Unique-buyer floor for the inactivity rule.
	MinUniqueBuyers int `yaml:"min_unique_buyers"`
}

// DefaultTrackerConfig returns the standard lifecycle bounds.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Retention:       window.WindowBuyers,
		MaxAge:          20 * time.Minute,
		InactivityAge:   5 * time.Minute,
		MinUniqueBuyers: 2,
	}
}

// Tracker tracks one token's lifecycle: first-seen time, the developer
// wallet heuristic (first buyer is the developer), metadata edits, and a
// terminal dropped flag. Once dropped, new transactions are ignored.
type Tracker struct {
	mu sync.Mutex

	config       TrackerConfig
	token        string
	firstSeen    time.Time
	lastActivity time.Time

	devWallet     string
	devBuys       int
	metadataEdits int

	dropped    bool
	dropReason string

	agg *window.Aggregator
}

// NewTracker seeds a tracker from the first observed transaction. The
// first buyer is recorded as the developer wallet.
func NewTracker(config TrackerConfig, tx feed.Transaction) *Tracker {
	t := &Tracker{
		config:       config,
		token:        tx.Token,
		firstSeen:    tx.Timestamp,
		lastActivity: tx.Timestamp,
		devWallet:    tx.Buyer,
		devBuys:      1,
		agg:          window.New(config.Retention),
	}
	t.agg.Record(tx)
	return t
}

// Record appends a transaction. Returns false when the tracker has been
// dropped; dropped trackers observe nothing.
func (t *Tracker) Record(tx feed.Transaction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return false
	}

	t.agg.Record(tx)
	if tx.Timestamp.After(t.lastActivity) {
		t.lastActivity = tx.Timestamp
	}
	if tx.Buyer == t.devWallet {
		t.devBuys++
	}
	return true
}

// RecordMetadataEdit notes an external metadata-update event for this
// token. Not derived from transactions.
func (t *Tracker) RecordMetadataEdit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dropped {
		t.metadataEdits++
	}
}

// Drop marks the tracker terminally dropped. Idempotent and one-way:
// only the first call records a reason and returns true.
func (t *Tracker) Drop(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return false
	}
	t.dropped = true
	t.dropReason = reason

	log.Debug().Str("token", t.token).Str("reason", reason).Msg("token: dropped")
	return true
}

// ExpiredAt reports whether the tracker exceeded its maximum tracked age.
func (t *Tracker) ExpiredAt(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.firstSeen) >= t.config.MaxAge
}

// InactiveAt reports whether the inactivity-drop rule holds: the token
// is old enough and its 5-minute unique-buyer count never reached the
// floor. Advisory only; the registry decides whether to act on it.
func (t *Tracker) InactiveAt(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.firstSeen) < t.config.InactivityAge {
		return false
	}
	return t.agg.UniqueBuyers(now, window.WindowBuyers) < t.config.MinUniqueBuyers
}

// MetricsAt returns a fresh rolling-metrics snapshot as of now.
func (t *Tracker) MetricsAt(now time.Time) window.RollingMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agg.MetricsAt(now)
}

func (t *Tracker) Token() string { return t.token }

func (t *Tracker) FirstSeen() time.Time { return t.firstSeen }

func (t *Tracker) AgeAt(now time.Time) time.Duration { return now.Sub(t.firstSeen) }

func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

func (t *Tracker) DevWallet() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.devWallet
}

func (t *Tracker) DevBuyCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.devBuys
}

func (t *Tracker) MetadataEdits() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metadataEdits
}

func (t *Tracker) Dropped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

func (t *Tracker) DropReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropReason
}
