package token

import (
	"fmt"
	"sync"
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
	"github.com/rs/zerolog/log"
)

// SweepResult summarizes one registry sweep pass. InactiveReason is the
// drop reason applied to every token in DroppedInactive, built from the
// configured thresholds.
type SweepResult struct {
	Expired         []string
	DroppedInactive []string
	InactiveReason  string
}

// Registry owns the token-id → tracker mapping. Trackers are created
// lazily on first transaction and removed by the periodic sweep once
// expired. Sweep order across tokens is unspecified.
type Registry struct {
	mu       sync.RWMutex
	config   TrackerConfig
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry.
func NewRegistry(config TrackerConfig) *Registry {
	return &Registry{
		config:   config,
		trackers: make(map[string]*Tracker),
	}
}

// Record routes a transaction to its tracker, creating one on first
// sight. Returns the tracker and whether it was just created.
func (r *Registry) Record(tx feed.Transaction) (*Tracker, bool) {
	r.mu.Lock()
	t, ok := r.trackers[tx.Token]
	if !ok {
		t = NewTracker(r.config, tx)
		r.trackers[tx.Token] = t
		r.mu.Unlock()
		return t, true
	}
	r.mu.Unlock()

	t.Record(tx)
	return t, false
}

// Get returns the tracker for a token, or nil.
func (r *Registry) Get(tokenID string) *Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trackers[tokenID]
}

// Remove deletes a tracker outright (explicit clear).
func (r *Registry) Remove(tokenID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, tokenID)
}

// Active returns the trackers that are neither dropped nor expired.
func (r *Registry) Active(now time.Time) []*Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		if !t.Dropped() && !t.ExpiredAt(now) {
			out = append(out, t)
		}
	}
	return out
}

// ActiveCount returns the number of non-dropped trackers.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.trackers {
		if !t.Dropped() {
			n++
		}
	}
	return n
}

// SweepAt removes expired trackers (silently) and drops inactive ones
// with a reason. Tokens for which keep returns true are left untouched
// regardless of age: a token with a live position must stay evaluatable
// until the position closes, so its tracker outlives the usual ceiling.
// Dropped-but-unexpired trackers are kept so the terminal state stays
// observable until expiry.
func (r *Registry) SweepAt(now time.Time, keep func(token string) bool) SweepResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := SweepResult{InactiveReason: r.inactiveReason()}
	for id, t := range r.trackers {
		if keep != nil && keep(id) {
			continue
		}
		if t.ExpiredAt(now) {
			delete(r.trackers, id)
			result.Expired = append(result.Expired, id)
			continue
		}
		if !t.Dropped() && t.InactiveAt(now) {
			if t.Drop(result.InactiveReason) {
				result.DroppedInactive = append(result.DroppedInactive, id)
			}
		}
	}

	if len(result.Expired) > 0 || len(result.DroppedInactive) > 0 {
		log.Debug().
			Int("expired", len(result.Expired)).
			Int("inactive", len(result.DroppedInactive)).
			Int("remaining", len(r.trackers)).
			Msg("token: sweep completed")
	}
	return result
}

// inactiveReason renders the inactivity-drop reason from the configured
// thresholds, so the journal can never disagree with the config.
func (r *Registry) inactiveReason() string {
	return fmt.Sprintf("inactive: fewer than %d unique buyers after %s",
		r.config.MinUniqueBuyers, r.config.InactivityAge)
}
