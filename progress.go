package worker

import (
	"math"
	"math/bits"
)

// Percent converts a (current, total) pair into an integer percentage.
// A total of zero or less yields 0; otherwise the result is
// floor(current*100/total) clamped to [0, 100].
func Percent(current, total int64) int {
	if total <= 0 {
		return 0
	}
	if current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	if current > math.MaxInt64/100 {
		// current*100 overflows int64 for byte counts near the range
		// limit; widen to 128 bits. total > current here, so the
		// quotient fits.
		hi, lo := bits.Mul64(uint64(current), 100)
		q, _ := bits.Div64(hi, lo, uint64(total))
		return int(q)
	}
	return int(current * 100 / total)
}
