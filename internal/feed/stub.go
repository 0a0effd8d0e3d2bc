package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// StubSource generates a synthetic purchase stream for dry runs and
// integration tests. Each simulated token ramps up buy frequency for a
// while and then goes quiet, which exercises both entry and exit paths.
type StubSource struct {
	rng       *rand.Rand
	tokens    int           // concurrent simulated tokens
	tickEvery time.Duration // base emission cadence
	running   atomic.Bool
}

// NewStubSource creates a stub feed. seed fixes the random stream so two
// runs with the same seed produce identical event sequences.
func NewStubSource(seed int64, tokens int, tickEvery time.Duration) *StubSource {
	if tokens <= 0 {
		tokens = 3
	}
	if tickEvery <= 0 {
		tickEvery = 500 * time.Millisecond
	}
	return &StubSource{
		rng:       rand.New(rand.NewSource(seed)),
		tokens:    tokens,
		tickEvery: tickEvery,
	}
}

func (s *StubSource) Connected() bool { return s.running.Load() }

type stubToken struct {
	mint    string
	born    time.Time
	buyers  []string
	seq     int
	expires time.Time
}

// Run emits synthetic buys until ctx is cancelled.
func (s *StubSource) Run(ctx context.Context, handler Handler) error {
	s.running.Store(true)
	defer s.running.Store(false)

	log.Info().Int("tokens", s.tokens).Msg("feed: STUB source running")

	live := make([]*stubToken, 0, s.tokens)
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			// Retire dead tokens, spawn replacements.
			alive := live[:0]
			for _, tok := range live {
				if now.Before(tok.expires) {
					alive = append(alive, tok)
				}
			}
			live = alive
			for len(live) < s.tokens {
				live = append(live, s.spawn(now))
			}

			for _, tok := range live {
				// Buy probability grows with token age: young tokens
				// trade sporadically, ramping ones trade every tick.
				age := now.Sub(tok.born)
				p := 0.3 + age.Seconds()/240.0
				if s.rng.Float64() > p {
					continue
				}
				handler(s.buy(tok, now))
			}
		}
	}
}

func (s *StubSource) spawn(now time.Time) *stubToken {
	mint := fmt.Sprintf("STUB%08x", s.rng.Uint32())
	buyers := make([]string, 4+s.rng.Intn(12))
	for i := range buyers {
		buyers[i] = fmt.Sprintf("wallet%08x", s.rng.Uint32())
	}
	lifetime := time.Duration(3+s.rng.Intn(10)) * time.Minute
	return &stubToken{
		mint:    mint,
		born:    now,
		buyers:  buyers,
		expires: now.Add(lifetime),
	}
}

func (s *StubSource) buy(tok *stubToken, now time.Time) Transaction {
	tok.seq++
	buyer := tok.buyers[s.rng.Intn(len(tok.buyers))]
	amount := 0.05 + s.rng.Float64()*0.4

	// Occasional whale to exercise the kill-switch.
	if s.rng.Float64() < 0.01 {
		amount = 3.0 + s.rng.Float64()*2.0
	}

	return Transaction{
		Token:     tok.mint,
		Buyer:     buyer,
		Amount:    decimal.NewFromFloat(amount),
		Timestamp: now,
		Hash:      fmt.Sprintf("%s-%d", tok.mint, tok.seq),
	}
}
