// Package pricing holds the deliberately approximate price and valuation
// heuristics as named, swappable strategies. They can be replaced with
// exact on-chain state decoding without touching the decision pipeline.
package pricing

import (
	"github.com/pumpwatch-trading/pumpwatch/internal/window"
	"github.com/shopspring/decimal"
)

// PriceProxy estimates a tradable price for a token from rolling metrics.
type PriceProxy interface {
	Price(m window.RollingMetrics) decimal.Decimal
}

// Valuer estimates a token's total valuation from rolling metrics.
type Valuer interface {
	Valuation(m window.RollingMetrics) decimal.Decimal
}

// AvgBuyPrice treats the 180s average buy size as the price proxy. A
// simplification, not a true market price.
type AvgBuyPrice struct{}

func (AvgBuyPrice) Price(m window.RollingMetrics) decimal.Decimal {
	return decimal.NewFromFloat(m.AvgBuySize)
}

// BuyerFlowValuer estimates valuation as recent buyer count times
// average buy size times a fixed multiplier.
type BuyerFlowValuer struct {
	Multiplier float64
}

// NewBuyerFlowValuer creates the valuer with the standard multiplier.
func NewBuyerFlowValuer(multiplier float64) BuyerFlowValuer {
	if multiplier <= 0 {
		multiplier = 1000
	}
	return BuyerFlowValuer{Multiplier: multiplier}
}

func (v BuyerFlowValuer) Valuation(m window.RollingMetrics) decimal.Decimal {
	return decimal.NewFromFloat(float64(m.UniqueBuyers5m) * m.AvgBuySize * v.Multiplier)
}
