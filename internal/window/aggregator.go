package window

import (
	"math"
	"sort"
	"time"

	"github.com/pumpwatch-trading/pumpwatch/internal/feed"
)

// ---------------------------------------------------------------------------
// Windowed Aggregator — bounded, time-evicting per-token transaction history
// All queries are pure functions of (now, stored entries); eviction is lazy.
// ---------------------------------------------------------------------------

// Standard windows used by the decision pipeline.
const (
	WindowShort  = 30 * time.Second
	WindowMedium = 60 * time.Second
	WindowLong   = 180 * time.Second
	WindowBuyers = 5 * time.Minute
)

// entry is a retained transaction record.
type entry struct {
	buyer  string
	amount float64
	ts     time.Time
}

// Aggregator holds a token's recent transaction history, bounded by a
// retention horizon (the longest window in use). Not safe for concurrent
// use; the owning tracker serializes access.
type Aggregator struct {
	retention time.Duration
	entries   []entry
}

// New creates an aggregator retaining at most `retention` of history.
func New(retention time.Duration) *Aggregator {
	if retention <= 0 {
		retention = WindowBuyers
	}
	return &Aggregator{retention: retention}
}

// Record appends a transaction and evicts entries older than the
// retention horizon relative to the transaction's own timestamp. Only
// relative age is trusted; strict ordering is not assumed.
func (a *Aggregator) Record(tx feed.Transaction) {
	a.entries = append(a.entries, entry{
		buyer:  tx.Buyer,
		amount: tx.Amount.InexactFloat64(),
		ts:     tx.Timestamp,
	})
	a.evict(tx.Timestamp)
}

// Len returns the current number of retained entries.
func (a *Aggregator) Len() int { return len(a.entries) }

// evict removes entries older than retention relative to now. Entries
// are not assumed sorted, so the whole slice is filtered in place.
func (a *Aggregator) evict(now time.Time) {
	cutoff := now.Add(-a.retention)
	kept := a.entries[:0]
	for _, e := range a.entries {
		if !e.ts.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	a.entries = kept
}

// CountInWindow returns the number of entries within the trailing window
// ending at now. The boundary at now-w is inclusive.
func (a *Aggregator) CountInWindow(now time.Time, w time.Duration) int {
	a.evict(now)
	cutoff := now.Add(-w)
	n := 0
	for _, e := range a.entries {
		if !e.ts.Before(cutoff) && !e.ts.After(now) {
			n++
		}
	}
	return n
}

// CountInRange returns entries in the half-open band [now-to, now-from),
// e.g. CountInRange(now, 60s, 120s) counts the 60-120s-ago band. The
// exclusive near bound keeps the band disjoint from CountInWindow's
// inclusive far bound, so an entry exactly from-old is counted once.
func (a *Aggregator) CountInRange(now time.Time, from, to time.Duration) int {
	a.evict(now)
	lo := now.Add(-to)
	hi := now.Add(-from)
	n := 0
	for _, e := range a.entries {
		if !e.ts.Before(lo) && e.ts.Before(hi) {
			n++
		}
	}
	return n
}

// UniqueBuyers returns the number of distinct buyers in the window.
func (a *Aggregator) UniqueBuyers(now time.Time, w time.Duration) int {
	a.evict(now)
	cutoff := now.Add(-w)
	seen := make(map[string]struct{})
	for _, e := range a.entries {
		if !e.ts.Before(cutoff) {
			seen[e.buyer] = struct{}{}
		}
	}
	return len(seen)
}

// RepeatBuyerCount returns the number of buyers with more than one
// purchase in the window.
func (a *Aggregator) RepeatBuyerCount(now time.Time, w time.Duration) int {
	a.evict(now)
	cutoff := now.Add(-w)
	counts := make(map[string]int)
	for _, e := range a.entries {
		if !e.ts.Before(cutoff) {
			counts[e.buyer]++
		}
	}
	repeats := 0
	for _, c := range counts {
		if c > 1 {
			repeats++
		}
	}
	return repeats
}

// BuySizeStats returns mean, population standard deviation (divide by N)
// and maximum of buy sizes in the window. All zero when the window is
// empty: the sentinel that fails dependent rules.
func (a *Aggregator) BuySizeStats(now time.Time, w time.Duration) (mean, std, max float64) {
	a.evict(now)
	cutoff := now.Add(-w)

	var sum float64
	var sizes []float64
	for _, e := range a.entries {
		if !e.ts.Before(cutoff) {
			sizes = append(sizes, e.amount)
			sum += e.amount
			if e.amount > max {
				max = e.amount
			}
		}
	}
	if len(sizes) == 0 {
		return 0, 0, 0
	}

	mean = sum / float64(len(sizes))
	var sqSum float64
	for _, v := range sizes {
		d := v - mean
		sqSum += d * d
	}
	std = math.Sqrt(sqSum / float64(len(sizes)))
	return mean, std, max
}

// MeanInterval returns the mean inter-transaction interval in seconds
// over the window. Fewer than 2 entries yields +Inf (unbounded), which
// naturally fails any "interval below ceiling" rule.
func (a *Aggregator) MeanInterval(now time.Time, w time.Duration) float64 {
	times := a.sortedTimes(now, w)
	if len(times) < 2 {
		return math.Inf(1)
	}
	total := times[len(times)-1].Sub(times[0])
	return total.Seconds() / float64(len(times)-1)
}

// IntervalAccelerating reports whether the mean interval over the most
// recent 60 seconds is shorter than over the 60 seconds before that.
// Requires at least 3 entries across the 120s comparison span.
func (a *Aggregator) IntervalAccelerating(now time.Time) bool {
	times := a.sortedTimes(now, 2*WindowMedium)
	if len(times) < 3 {
		return false
	}

	recentCut := now.Add(-WindowMedium)
	var recentSum, priorSum float64
	var recentN, priorN int
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1]).Seconds()
		if !times[i].Before(recentCut) {
			recentSum += gap
			recentN++
		} else {
			priorSum += gap
			priorN++
		}
	}
	if recentN == 0 || priorN == 0 {
		return false
	}
	return recentSum/float64(recentN) < priorSum/float64(priorN)
}

// sortedTimes returns window timestamps in ascending order.
func (a *Aggregator) sortedTimes(now time.Time, w time.Duration) []time.Time {
	a.evict(now)
	cutoff := now.Add(-w)
	var times []time.Time
	for _, e := range a.entries {
		if !e.ts.Before(cutoff) {
			times = append(times, e.ts)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// MetricsAt builds a full RollingMetrics snapshot as of now.
func (a *Aggregator) MetricsAt(now time.Time) RollingMetrics {
	mean, std, max := a.BuySizeStats(now, WindowLong)
	tx60 := a.CountInWindow(now, WindowMedium)
	prev60 := a.CountInRange(now, WindowMedium, 2*WindowMedium)

	return RollingMetrics{
		TxCount30s:      a.CountInWindow(now, WindowShort),
		TxCount60s:      tx60,
		TxCount180s:     a.CountInWindow(now, WindowLong),
		TxCountPrev60s:  prev60,
		UniqueBuyers5m:  a.UniqueBuyers(now, WindowBuyers),
		RepeatBuyers5m:  a.RepeatBuyerCount(now, WindowBuyers),
		AvgBuySize:      mean,
		BuySizeStd:      std,
		LargestBuy:      max,
		MeanInterval60s: a.MeanInterval(now, WindowMedium),
		Accelerating:    a.IntervalAccelerating(now),
		Acceleration:    tx60 - prev60,
	}
}

// Metrics builds a snapshot against the wall clock.
func (a *Aggregator) Metrics() RollingMetrics {
	return a.MetricsAt(time.Now())
}
