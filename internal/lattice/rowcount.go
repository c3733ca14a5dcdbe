package lattice

import "math"

// RowCount estimates the number of distinct combinations of several columns
// from the distinct counts of each and the number of rows drawn, assuming the
// columns are independent. With n the product of the counts, it returns the
// expected number of distinct values seen when drawing factCount values
// uniformly from n, never more than factCount.
func RowCount(factCount float64, counts ...float64) float64 {
	n := 1.0
	for _, c := range counts {
		if c > 1 {
			n *= c
		}
	}
	a := (n - 1) / n
	if a == 1 {
		// n too large to represent the draw; every row is distinct.
		return factCount
	}
	return math.Min(n*(1-math.Pow(a, factCount)), factCount)
}
