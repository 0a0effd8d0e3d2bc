package position

import (
	"testing"
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
	"github.com/pumpwatch-trading/pumpwatch/internal/pricing"
	"github.com/pumpwatch-trading/pumpwatch/internal/window"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(DefaultConfig(), pricing.AvgBuyPrice{}, pricing.NewBuyerFlowValuer(1000))
}

// entryMetrics returns metrics that satisfy every entry precondition:
// valuation 10 * 0.2 * 1000 = 2000.
func entryMetrics() window.RollingMetrics {
	return window.RollingMetrics{
		TxCount60s:     6,
		UniqueBuyers5m: 10,
		AvgBuySize:     0.2,
		LargestBuy:     0.3,
	}
}

func entryRequest() EntryRequest {
	return EntryRequest{
		Token:         "MINT1",
		Metrics:       entryMetrics(),
		Score:         32.0,
		ScoreAtFloor:  true,
		SignalsPassed: true,
		TokenAge:      5 * time.Minute,
		Now:           base,
	}
}

func whaleTx(amount float64) feed.Transaction {
	return feed.Transaction{
		Token:     "MINT1",
		Buyer:     "whale-wallet",
		Amount:    decimal.NewFromFloat(amount),
		Timestamp: base,
		Hash:      "sig-whale",
	}
}

func TestManager_TryOpen(t *testing.T) {
	m := newTestManager()

	pos, reason := m.TryOpen(entryRequest())
	require.NotNil(t, pos, "rejected: %s", reason)

	assert.Equal(t, "MINT1", pos.Token)
	assert.Equal(t, StatusOpen, pos.Status)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromFloat(0.2)))
	assert.True(t, pos.Remaining.Equal(pos.Size))
	assert.Len(t, pos.ID, 12)
	assert.Equal(t, 1, m.OpenCount())
	assert.True(t, m.Has("MINT1"))
}

func TestManager_TryOpen_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*EntryRequest)
		want   string
	}{
		{"score below floor", func(r *EntryRequest) { r.ScoreAtFloor = false }, "score_below_floor"},
		{"signals not passed", func(r *EntryRequest) { r.SignalsPassed = false }, "signals_not_passed"},
		{"token dropped", func(r *EntryRequest) { r.TokenDropped = true }, "token_dropped"},
		{"too young", func(r *EntryRequest) { r.TokenAge = time.Minute }, "age_outside_window"},
		{"too old", func(r *EntryRequest) { r.TokenAge = 13 * time.Minute }, "age_outside_window"},
		{"valuation too low", func(r *EntryRequest) { r.Metrics.UniqueBuyers5m = 0 }, "valuation_outside_range"},
		{"valuation too high", func(r *EntryRequest) { r.Metrics.AvgBuySize = 6.0 }, "valuation_outside_range"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager()
			req := entryRequest()
			tc.mutate(&req)

			pos, reason := m.TryOpen(req)
			assert.Nil(t, pos)
			assert.Equal(t, tc.want, reason)
			assert.Zero(t, m.OpenCount())
		})
	}
}

func TestManager_OnePositionPerToken(t *testing.T) {
	m := newTestManager()

	_, reason := m.TryOpen(entryRequest())
	require.Empty(t, reason)

	pos, reason := m.TryOpen(entryRequest())
	assert.Nil(t, pos)
	assert.Equal(t, "position_exists", reason)
}

func TestManager_NoReEntryAfterClose(t *testing.T) {
	m := newTestManager()

	_, reason := m.TryOpen(entryRequest())
	require.Empty(t, reason)

	// Whale buy closes the position.
	tx := whaleTx(3.5)
	m.Evaluate("MINT1", entryMetrics(), 1, &tx, base.Add(10*time.Second))
	require.Zero(t, m.OpenCount())

	pos, reason := m.TryOpen(entryRequest())
	assert.Nil(t, pos)
	assert.Equal(t, "already_traded", reason)
}

func TestManager_PartialExit(t *testing.T) {
	m := newTestManager()

	opened, reason := m.TryOpen(entryRequest())
	require.Empty(t, reason)

	// Price proxy moves 0.2 -> 0.45: +125%, past the partial trigger but
	// below the full-profit trigger.
	metrics := entryMetrics()
	metrics.AvgBuySize = 0.45
	m.NoteActivity("MINT1", base.Add(5*time.Second))
	m.Evaluate("MINT1", metrics, 1, nil, base.Add(10*time.Second))

	pos := m.Get("MINT1")
	require.NotNil(t, pos, "position must remain live after a partial")
	assert.Equal(t, StatusPartial, pos.Status)
	assert.True(t, pos.Remaining.Equal(decimal.NewFromFloat(0.5)))
	require.NotNil(t, pos.PartialAt)
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromFloat(0.125)),
		"got %s", pos.RealizedPnL)
	assert.InDelta(t, 125.0, pos.MaxPnLPct, 1e-9)
	assert.Same(t, opened, pos)

	t.Run("partial does not repeat", func(t *testing.T) {
		m.Evaluate("MINT1", metrics, 1, nil, base.Add(20*time.Second))
		pos := m.Get("MINT1")
		require.NotNil(t, pos)
		assert.True(t, pos.Remaining.Equal(decimal.NewFromFloat(0.5)))
	})
}

func TestManager_FullProfitAfterPartial(t *testing.T) {
	m := newTestManager()

	_, reason := m.TryOpen(entryRequest())
	require.Empty(t, reason)

	// +220% in one move: the partial executes first against the full
	// size, then the close takes the remainder in the same cycle.
	metrics := entryMetrics()
	metrics.AvgBuySize = 0.64
	m.Evaluate("MINT1", metrics, 1, nil, base.Add(10*time.Second))

	assert.Zero(t, m.OpenCount())
	require.Equal(t, 1, m.ClosedCount())

	closed := m.Archive()[0]
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, ReasonFullProfit, closed.ExitReason)
	assert.NotNil(t, closed.PartialAt)
	assert.True(t, closed.Remaining.IsZero())
	// (0.64-0.2)*0.5 realized twice = 0.44 total.
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromFloat(0.44)),
		"got %s", closed.RealizedPnL)
	assert.True(t, m.RealizedPnL().Equal(decimal.NewFromFloat(0.44)))
}

func TestManager_KillSwitch(t *testing.T) {
	t.Run("whale buy closes immediately", func(t *testing.T) {
		m := newTestManager()
		var gotKilled bool
		m.SetOnClose(func(pos *Position, killed bool) { gotKilled = killed })

		_, reason := m.TryOpen(entryRequest())
		require.Empty(t, reason)

		tx := whaleTx(3.5)
		m.Evaluate("MINT1", entryMetrics(), 1, &tx, base.Add(10*time.Second))

		require.Equal(t, 1, m.ClosedCount())
		assert.Equal(t, ReasonKillWhaleBuy, m.Archive()[0].ExitReason)
		assert.True(t, gotKilled)
	})

	t.Run("kill precedes profit exits", func(t *testing.T) {
		m := newTestManager()
		_, reason := m.TryOpen(entryRequest())
		require.Empty(t, reason)

		metrics := entryMetrics()
		metrics.AvgBuySize = 0.8 // +300%, would full-exit on its own
		tx := whaleTx(4.0)
		m.Evaluate("MINT1", metrics, 1, &tx, base.Add(10*time.Second))

		require.Equal(t, 1, m.ClosedCount())
		assert.Equal(t, ReasonKillWhaleBuy, m.Archive()[0].ExitReason)
	})

	t.Run("developer repeat buy", func(t *testing.T) {
		m := newTestManager()
		_, reason := m.TryOpen(entryRequest())
		require.Empty(t, reason)

		m.Evaluate("MINT1", entryMetrics(), 2, nil, base.Add(10*time.Second))

		require.Equal(t, 1, m.ClosedCount())
		assert.Equal(t, ReasonKillDevBuy, m.Archive()[0].ExitReason)
	})

	t.Run("inactivity within one cycle", func(t *testing.T) {
		m := newTestManager()
		_, reason := m.TryOpen(entryRequest())
		require.Empty(t, reason)

		m.Evaluate("MINT1", entryMetrics(), 1, nil, base.Add(60*time.Second))

		require.Equal(t, 1, m.ClosedCount())
		assert.Equal(t, ReasonKillInactivity, m.Archive()[0].ExitReason)
	})

	t.Run("activity resets the inactivity clock", func(t *testing.T) {
		m := newTestManager()
		_, reason := m.TryOpen(entryRequest())
		require.Empty(t, reason)

		m.NoteActivity("MINT1", base.Add(50*time.Second))
		m.Evaluate("MINT1", entryMetrics(), 1, nil, base.Add(60*time.Second))

		assert.Equal(t, 1, m.OpenCount())
	})
}

func TestManager_Callbacks(t *testing.T) {
	m := newTestManager()

	var opens, partials, closes int
	m.SetOnOpen(func(*Position) { opens++ })
	m.SetOnPartial(func(*Position, decimal.Decimal, decimal.Decimal) { partials++ })
	m.SetOnClose(func(*Position, bool) { closes++ })

	_, reason := m.TryOpen(entryRequest())
	require.Empty(t, reason)

	metrics := entryMetrics()
	metrics.AvgBuySize = 0.45
	m.Evaluate("MINT1", metrics, 1, nil, base.Add(10*time.Second))

	metrics.AvgBuySize = 0.7
	m.Evaluate("MINT1", metrics, 1, nil, base.Add(20*time.Second))

	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, partials)
	assert.Equal(t, 1, closes)
}

func TestManager_EvaluateUnknownTokenIsNoOp(t *testing.T) {
	m := newTestManager()
	m.Evaluate("UNKNOWN", entryMetrics(), 1, nil, base)
	assert.Zero(t, m.OpenCount())
	assert.Zero(t, m.ClosedCount())
}
