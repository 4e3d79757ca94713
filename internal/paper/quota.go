package paper

import (
	"math"
	"sort"
)

// DefaultTopK is the number of weak topics a paper of n questions targets
// when none is configured.
func DefaultTopK(n int) int {
	return (n + 2) / 3
}

// Quotas splits n across weights proportionally using largest-remainder
// rounding, so the result always sums to n. Leftover units go to the
// largest fractional parts; equal fractions favour the earlier index. If
// every weight is zero the split is as even as possible.
func Quotas(weights []float64, n int) []int {
	k := len(weights)
	out := make([]int, k)
	if k == 0 || n <= 0 {
		return out
	}

	var total float64
	for _, w := range weights {
		total += math.Max(w, 0)
	}

	fracs := make([]float64, k)
	assigned := 0
	for i, w := range weights {
		share := float64(n) / float64(k)
		if total > 0 {
			share = math.Max(w, 0) / total * float64(n)
		}
		out[i] = int(math.Floor(share))
		fracs[i] = share - float64(out[i])
		assigned += out[i]
	}

	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fracs[order[a]] > fracs[order[b]]
	})
	for i := 0; assigned < n; i = (i + 1) % k {
		out[order[i]]++
		assigned++
	}
	return out
}
