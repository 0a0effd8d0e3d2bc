package journal

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry event types.
const (
	EventTokenDiscovered = "token_discovered"
	EventTokenDropped    = "token_dropped"
	EventPositionOpened  = "position_opened"
	EventPartialExit     = "partial_exit"
	EventPositionClosed  = "position_closed"
	EventKillSwitch      = "kill_switch_triggered"
	EventShutdownOpen    = "shutdown_open_position"
)

// Entry is a single journal record. Every lifecycle decision gets
// recorded exactly once, creating a replayable log of the session.
type Entry struct {
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"ts"`
	Token      string    `json:"token,omitempty"`
	PositionID string    `json:"position_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Killed     bool      `json:"killed,omitempty"`
	Score      float64   `json:"score,omitempty"`
	Price      string    `json:"price,omitempty"`
	Size       string    `json:"size,omitempty"`
	Remaining  string    `json:"remaining,omitempty"`
	PnL        string    `json:"pnl,omitempty"`
	MaxPnLPct  float64   `json:"max_pnl_pct,omitempty"`
	Payload    string    `json:"payload,omitempty"` // JSON of the full object
}

// Journal appends entries to a JSONL file and keeps a capped in-memory
// buffer for querying. Write failures are logged, never propagated: a
// full disk must not take down the trading loop.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	entries []Entry
	maxBuf  int
}

// New opens (or creates) the journal file in append mode.
// maxBuf caps the in-memory buffer; oldest entries are discarded first.
// A maxBuf of 0 disables buffering (entries go to disk only).
func New(path string, maxBuf int) (*Journal, error) {
	if maxBuf < 0 {
		maxBuf = 0
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{
		file:    f,
		entries: make([]Entry, 0, maxBuf),
		maxBuf:  maxBuf,
	}, nil
}

// NewMemory creates a journal with no backing file, for tests and the
// synthetic feed.
func NewMemory(maxBuf int) *Journal {
	if maxBuf <= 0 {
		maxBuf = 1024
	}
	return &Journal{entries: make([]Entry, 0, maxBuf), maxBuf: maxBuf}
}

// TokenDiscovered records a new token entering tracking.
func (j *Journal) TokenDiscovered(token string, ts time.Time) {
	j.record(Entry{EventType: EventTokenDiscovered, Timestamp: ts, Token: token})
}

// TokenDropped records a token leaving the candidate pool.
func (j *Journal) TokenDropped(token, reason string, ts time.Time) {
	j.record(Entry{EventType: EventTokenDropped, Timestamp: ts, Token: token, Reason: reason})
}

// PositionOpened records a paper entry.
func (j *Journal) PositionOpened(posID, token string, score float64, price, size string, ts time.Time) {
	j.record(Entry{
		EventType:  EventPositionOpened,
		Timestamp:  ts,
		Token:      token,
		PositionID: posID,
		Score:      score,
		Price:      price,
		Size:       size,
	})
}

// PartialExit records a partial liquidation.
func (j *Journal) PartialExit(posID, token, price, realized, remaining string, ts time.Time) {
	j.record(Entry{
		EventType:  EventPartialExit,
		Timestamp:  ts,
		Token:      token,
		PositionID: posID,
		Price:      price,
		PnL:        realized,
		Remaining:  remaining,
	})
}

// PositionClosed records a full exit, kill-switch or otherwise. detail
// is marshaled into the payload so the record alone suffices for
// durable analysis (entry time, score, prices, PnL).
func (j *Journal) PositionClosed(posID, token, reason string, killed bool, price, pnl string, maxPnLPct float64, detail any, ts time.Time) {
	j.record(Entry{
		EventType:  EventPositionClosed,
		Timestamp:  ts,
		Token:      token,
		PositionID: posID,
		Reason:     reason,
		Killed:     killed,
		Price:      price,
		PnL:        pnl,
		MaxPnLPct:  maxPnLPct,
		Payload:    mustMarshal(detail),
	})
}

// KillSwitchTriggered records a kill-switch firing, alongside the
// position_closed record it causes.
func (j *Journal) KillSwitchTriggered(posID, token, reason string, ts time.Time) {
	j.record(Entry{
		EventType:  EventKillSwitch,
		Timestamp:  ts,
		Token:      token,
		PositionID: posID,
		Reason:     reason,
	})
}

// ShutdownOpenPosition records a position still open at shutdown. The
// position is not force-closed; the record marks it for the reader.
func (j *Journal) ShutdownOpenPosition(posID, token, remaining string, ts time.Time) {
	j.record(Entry{
		EventType:  EventShutdownOpen,
		Timestamp:  ts,
		Token:      token,
		PositionID: posID,
		Remaining:  remaining,
	})
}

// Entries returns a copy of the in-memory buffer.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of buffered entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Close flushes and closes the backing file, if any.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *Journal) record(entry Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxBuf > 0 {
		if len(j.entries) >= j.maxBuf {
			copy(j.entries, j.entries[1:])
			j.entries[len(j.entries)-1] = entry
		} else {
			j.entries = append(j.entries, entry)
		}
	}

	if j.file == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("event_type", entry.EventType).Msg("Failed to marshal journal entry")
		return
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		log.Error().Err(err).Str("event_type", entry.EventType).Msg("Failed to write journal entry")
	}
}

// mustMarshal marshals v to JSON, returning "{}" on error or nil input.
func mustMarshal(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal journal payload")
		return "{}"
	}
	return string(data)
}
