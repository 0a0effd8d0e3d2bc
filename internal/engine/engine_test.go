package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
	"github.com/pumpwatch-trading/pumpwatch/internal/journal"
	"github.com/pumpwatch-trading/pumpwatch/internal/pipeline"
	"github.com/pumpwatch-trading/pumpwatch/internal/position"
	"github.com/pumpwatch-trading/pumpwatch/internal/pricing"
	"github.com/pumpwatch-trading/pumpwatch/internal/token"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct{}

func (fakeSource) Run(ctx context.Context, _ feed.Handler) error { <-ctx.Done(); return ctx.Err() }
func (fakeSource) Connected() bool                               { return true }

// testHarness bundles an engine with a controllable clock.
type testHarness struct {
	eng   *Engine
	jrnl  *journal.Journal
	clock time.Time
}

func newHarness() *testHarness {
	jrnl := journal.NewMemory(1024)
	manager := position.NewManager(position.DefaultConfig(),
		pricing.AvgBuyPrice{}, pricing.NewBuyerFlowValuer(1000))

	eng := New(DefaultConfig(), fakeSource{}, token.NewRegistry(token.DefaultTrackerConfig()),
		pipeline.NewFilterStage(pipeline.DefaultFilterConfig()),
		pipeline.NewSignalStage(pipeline.DefaultSignalConfig()),
		pipeline.NewScoringStage(pipeline.DefaultScoreConfig()),
		manager, jrnl)

	h := &testHarness{eng: eng, jrnl: jrnl, clock: base}
	eng.nowFn = func() time.Time { return h.clock }
	return h
}

// feedBuy advances the clock to the transaction time and delivers it.
func (h *testHarness) feedBuy(tokenID, buyer string, amount float64, at time.Time) {
	h.clock = at
	h.eng.OnTransaction(feed.Transaction{
		Token:     tokenID,
		Buyer:     buyer,
		Amount:    decimal.NewFromFloat(amount),
		Timestamp: at,
		Hash:      fmt.Sprintf("sig-%s-%d", buyer, at.UnixNano()),
	})
}

// rampUp feeds an organic-looking buy sequence: ten distinct buyers with
// small purchases at increasing frequency over three minutes. By the
// last buy every entry condition holds.
func (h *testHarness) rampUp(tokenID string) {
	offsets := []int{0, 70, 90, 110, 130, 145, 155, 163, 170, 176}
	amounts := []float64{0.10, 0.15, 0.12, 0.18, 0.14, 0.16, 0.11, 0.13, 0.17, 0.15}
	for i, off := range offsets {
		h.feedBuy(tokenID, fmt.Sprintf("wallet-%d", i), amounts[i], base.Add(time.Duration(off)*time.Second))
	}
	// A repeat buyer right at the end.
	h.feedBuy(tokenID, "wallet-1", 0.12, base.Add(179*time.Second))
}

func journalEvents(j *journal.Journal, eventType string) []journal.Entry {
	var out []journal.Entry
	for _, e := range j.Entries() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestEngine_OpensPositionOnRampUp(t *testing.T) {
	h := newHarness()
	h.rampUp("MINT1")

	snap := h.eng.Snapshot()
	require.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, 1, snap.ActiveTokens)
	assert.Equal(t, uint64(11), snap.Processed)

	discovered := journalEvents(h.jrnl, journal.EventTokenDiscovered)
	require.Len(t, discovered, 1)
	assert.Equal(t, "MINT1", discovered[0].Token)

	opened := journalEvents(h.jrnl, journal.EventPositionOpened)
	require.Len(t, opened, 1)
	assert.Equal(t, "MINT1", opened[0].Token)
	assert.GreaterOrEqual(t, opened[0].Score, 18.0)
}

func TestEngine_PreCheckDropsOversizedFirstBuy(t *testing.T) {
	h := newHarness()
	h.feedBuy("MINT1", "whale", 2.5, base)

	snap := h.eng.Snapshot()
	assert.Zero(t, snap.OpenPositions)
	assert.Zero(t, snap.ActiveTokens)

	dropped := journalEvents(h.jrnl, journal.EventTokenDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, "MINT1", dropped[0].Token)
	assert.Contains(t, dropped[0].Reason, "largest_buy")

	t.Run("further buys are ignored", func(t *testing.T) {
		h.feedBuy("MINT1", "wallet-2", 0.1, base.Add(time.Second))
		assert.Len(t, journalEvents(h.jrnl, journal.EventTokenDropped), 1)
		assert.Zero(t, h.eng.Snapshot().ActiveTokens)
	})
}

func TestEngine_WhaleBuyKillsOpenPosition(t *testing.T) {
	h := newHarness()
	h.rampUp("MINT1")
	require.Equal(t, 1, h.eng.Snapshot().OpenPositions)

	h.feedBuy("MINT1", "whale", 3.5, h.clock.Add(2*time.Second))

	snap := h.eng.Snapshot()
	assert.Zero(t, snap.OpenPositions)
	assert.Equal(t, 1, snap.ClosedPositions)

	closed := journalEvents(h.jrnl, journal.EventPositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "KILL_WHALE_BUY", closed[0].Reason)
	assert.True(t, closed[0].Killed)

	kills := journalEvents(h.jrnl, journal.EventKillSwitch)
	require.Len(t, kills, 1)
	assert.Equal(t, "KILL_WHALE_BUY", kills[0].Reason)
	assert.Equal(t, closed[0].PositionID, kills[0].PositionID)
}

func TestEngine_TimedEvaluationClosesOnInactivity(t *testing.T) {
	h := newHarness()
	h.rampUp("MINT1")
	require.Equal(t, 1, h.eng.Snapshot().OpenPositions)

	// One quiet minute, then a timed pass: the kill-switch fires without
	// any incoming transaction.
	h.clock = h.clock.Add(61 * time.Second)
	h.eng.evaluateAll()

	snap := h.eng.Snapshot()
	assert.Zero(t, snap.OpenPositions)
	require.Equal(t, 1, snap.ClosedPositions)

	closed := journalEvents(h.jrnl, journal.EventPositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "KILL_INACTIVITY", closed[0].Reason)
}

func TestEngine_OpenPositionOutlivesTrackerCeiling(t *testing.T) {
	h := newHarness()
	h.rampUp("MINT1")
	require.Equal(t, 1, h.eng.Snapshot().OpenPositions)

	// Steady small buys every 8 seconds carry the token well past the
	// 20-minute tracker age ceiling with the position still open.
	for off := 187; off <= 1230; off += 8 {
		h.feedBuy("MINT1", fmt.Sprintf("late-%d", off), 0.14, base.Add(time.Duration(off)*time.Second))
	}
	require.Equal(t, 1, h.eng.Snapshot().OpenPositions)

	// The sweep must not expire the tracker while the position lives.
	h.eng.sweep()
	require.Equal(t, 1, h.eng.Snapshot().ActiveTokens)
	require.Equal(t, 1, h.eng.Snapshot().OpenPositions)

	// One quiet minute later the inactivity kill still reaches it.
	h.clock = h.clock.Add(61 * time.Second)
	h.eng.evaluateAll()

	snap := h.eng.Snapshot()
	assert.Zero(t, snap.OpenPositions)
	require.Equal(t, 1, snap.ClosedPositions)

	closed := journalEvents(h.jrnl, journal.EventPositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "KILL_INACTIVITY", closed[0].Reason)

	// With the position gone, the next sweep retires the tracker.
	h.eng.sweep()
	assert.Zero(t, h.eng.Snapshot().ActiveTokens)
}

func TestEngine_SweepJournalsInactiveDrops(t *testing.T) {
	h := newHarness()
	h.feedBuy("MINT1", "loner", 0.1, base)

	h.clock = base.Add(6 * time.Minute)
	h.eng.sweep()

	dropped := journalEvents(h.jrnl, journal.EventTokenDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, "MINT1", dropped[0].Token)
	assert.Contains(t, dropped[0].Reason, "inactive")
}

func TestEngine_MetadataEditsDropToken(t *testing.T) {
	h := newHarness()
	h.feedBuy("MINT1", "wallet-0", 0.1, base)
	h.feedBuy("MINT1", "wallet-1", 0.1, base.Add(10*time.Second))

	h.eng.OnMetadataEdit("MINT1")
	h.eng.OnMetadataEdit("MINT1")
	h.feedBuy("MINT1", "wallet-2", 0.1, base.Add(20*time.Second))

	dropped := journalEvents(h.jrnl, journal.EventTokenDropped)
	require.Len(t, dropped, 1)
	assert.Contains(t, dropped[0].Reason, "metadata_edits")
}

func TestEngine_MalformedTransactionIgnored(t *testing.T) {
	h := newHarness()
	h.eng.OnTransaction(feed.Transaction{Token: "", Buyer: "w1"})
	h.eng.OnTransaction(feed.Transaction{Token: "MINT1", Buyer: "w1",
		Amount: decimal.NewFromFloat(-1), Timestamp: base})

	snap := h.eng.Snapshot()
	assert.Zero(t, snap.Processed)
	assert.Zero(t, snap.ActiveTokens)
	assert.Zero(t, h.jrnl.Len())
}

func TestEngine_ShutdownJournalsOpenPositions(t *testing.T) {
	h := newHarness()
	h.rampUp("MINT1")
	require.Equal(t, 1, h.eng.Snapshot().OpenPositions)

	h.eng.shutdown()

	left := journalEvents(h.jrnl, journal.EventShutdownOpen)
	require.Len(t, left, 1)
	assert.Equal(t, "MINT1", left[0].Token)
}
