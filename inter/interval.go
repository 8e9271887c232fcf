package inter

import (
	"fmt"
	"math/big"
	"sort"
)

// Interval is an inclusive closed range [Start, End] of block numbers that
// have been indexed for some filter. Start and End are always non-nil and
// Start <= End.
type Interval struct {
	Start *big.Int
	End   *big.Int
}

// NewInterval builds an interval over uint64 bounds. Test and call-site
// convenience; the store operates on *big.Int throughout.
func NewInterval(start, end uint64) Interval {
	return Interval{Start: new(big.Int).SetUint64(start), End: new(big.Int).SetUint64(end)}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s]", iv.Start, iv.End)
}

// Contains reports whether the block number n falls inside the interval.
func (iv Interval) Contains(n *big.Int) bool {
	return iv.Start.Cmp(n) <= 0 && iv.End.Cmp(n) >= 0
}

// NormalizeIntervals returns the minimal disjoint representation of the
// union of the given intervals: sorted by start, with every overlapping or
// abutting pair collapsed into one range. Two intervals abut when the next
// start is exactly one past the current end.
//
// The input is not modified; the result shares the input's *big.Int values.
func NormalizeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].Start.Cmp(sorted[j].Start); c != 0 {
			return c < 0
		}
		return sorted[i].End.Cmp(sorted[j].End) < 0
	})

	one := big.NewInt(1)
	merged := []Interval{sorted[0]}
	for _, next := range sorted[1:] {
		cur := &merged[len(merged)-1]

		// next extends the current range when it starts at or before
		// cur.End + 1.
		boundary := new(big.Int).Add(cur.End, one)
		if next.Start.Cmp(boundary) <= 0 {
			if next.End.Cmp(cur.End) > 0 {
				cur.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// TruncateIntervals shrinks a normalized interval set so that no coverage at
// or above fromBlock remains. Ranges entirely past the boundary are dropped;
// a range straddling it is cut to end at fromBlock - 1.
func TruncateIntervals(intervals []Interval, fromBlock *big.Int) []Interval {
	var out []Interval
	limit := new(big.Int).Sub(fromBlock, big.NewInt(1))
	for _, iv := range intervals {
		if iv.Start.Cmp(fromBlock) >= 0 {
			continue
		}
		if iv.End.Cmp(fromBlock) >= 0 {
			out = append(out, Interval{Start: iv.Start, End: limit})
			continue
		}
		out = append(out, iv)
	}
	return out
}
