package groupcount

import (
	"cmp"
	"slices"

	"castrank/internal/record"
)

// Aggregate groups increments by key and sums each group. The result holds one
// Count per distinct key, strictly ascending by key.
//
// It sorts a copy of incs and then walks runs of equal keys, the same shape as a
// sequential MapReduce reduce loop.
func Aggregate(incs []record.Increment) []record.Count {
	if len(incs) == 0 {
		return nil
	}
	sorted := slices.Clone(incs)
	slices.SortStableFunc(sorted, func(a, b record.Increment) int {
		return cmp.Compare(a.Key, b.Key)
	})

	out := make([]record.Count, 0, len(sorted))
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].Key == sorted[i].Key {
			j++
		}
		var total int64
		for k := i; k < j; k++ {
			total += sorted[k].Amount
		}
		out = append(out, record.Count{Key: sorted[i].Key, Total: total})
		i = j
	}
	return out
}

// merge folds partial counts into totals.
func merge(totals map[string]int64, partial []record.Count) {
	for _, c := range partial {
		totals[c.Key] += c.Total
	}
}
