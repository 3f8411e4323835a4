package ranksort

import "cmp"

// Comparator orders two counts, returning a negative number when a sorts
// before b, zero when they tie, and a positive number otherwise.
type Comparator func(a, b int64) int

// Ascending is the natural numeric order.
func Ascending(a, b int64) int {
	return cmp.Compare(a, b)
}

// Descending is the sign of (b - a): larger counts sort first.
// It is only ever handed to the rank sort through Config.Compare.
func Descending(a, b int64) int {
	return Invert(Ascending)(a, b)
}

// Invert reverses c. Ties stay ties, so a stable sort keeps their input order.
func Invert(c Comparator) Comparator {
	return func(a, b int64) int {
		return c(b, a)
	}
}
