package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single parsed purchase event for a token. The feed
// delivers these in roughly chronological order but nothing downstream
// may assume strict ordering.
type Transaction struct {
	Token     string          `json:"token"`
	Buyer     string          `json:"buyer"`
	Amount    decimal.Decimal `json:"amount"` // SOL spent on the buy
	Timestamp time.Time       `json:"ts"`
	Hash      string          `json:"hash"`
}

// Valid reports whether the transaction carries the minimum fields the
// engine needs. Invalid events are dropped by the caller with a warning.
func (t Transaction) Valid() bool {
	return t.Token != "" && t.Buyer != "" && t.Hash != "" &&
		t.Amount.IsPositive() && !t.Timestamp.IsZero()
}

// Handler consumes transactions from a Source.
type Handler func(tx Transaction)

// Source is a stream of purchase events. Run blocks until ctx is
// cancelled, invoking the handler for every parsed transaction.
type Source interface {
	Run(ctx context.Context, handler Handler) error
	Connected() bool
}
