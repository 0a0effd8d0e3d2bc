package pipeline

import (
	"testing"

	"github.com/pumpwatch-trading/pumpwatch/internal/window"
	"github.com/stretchr/testify/assert"
)

func TestScoringStage_WeightedSum(t *testing.T) {
	s := NewScoringStage(DefaultScoreConfig())

	m := window.RollingMetrics{
		TxCount60s:     6,
		UniqueBuyers5m: 10,
		RepeatBuyers5m: 2,
		Acceleration:   3,
		LargestBuy:     0.3,
	}

	// 10*2.0 + 3*3.0 + 2*1.5 = 32
	assert.InDelta(t, 32.0, s.Score(m), 1e-9)
	assert.True(t, s.MeetsEntry(32.0))
}

func TestScoringStage_Penalties(t *testing.T) {
	s := NewScoringStage(DefaultScoreConfig())

	t.Run("large buy penalty", func(t *testing.T) {
		m := window.RollingMetrics{
			TxCount60s:     6,
			UniqueBuyers5m: 10,
			LargestBuy:     1.2,
		}
		// 20 - 10 = 10
		assert.InDelta(t, 10.0, s.Score(m), 1e-9)
	})

	t.Run("no activity penalty", func(t *testing.T) {
		m := window.RollingMetrics{
			TxCount60s:     0,
			UniqueBuyers5m: 10,
		}
		// 20 - 5 = 15
		assert.InDelta(t, 15.0, s.Score(m), 1e-9)
	})
}

func TestScoringStage_NeverNegative(t *testing.T) {
	s := NewScoringStage(DefaultScoreConfig())

	m := window.RollingMetrics{
		TxCount60s:     0,
		UniqueBuyers5m: 1,
		LargestBuy:     1.5,
	}
	// 2 - 10 - 5 would be -13; clamped to zero.
	assert.Zero(t, s.Score(m))
}

func TestScoringStage_EntryFloor(t *testing.T) {
	s := NewScoringStage(DefaultScoreConfig())

	assert.False(t, s.MeetsEntry(17.9))
	assert.True(t, s.MeetsEntry(18.0))
}
