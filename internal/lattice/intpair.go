package lattice

import (
	"fmt"
	"slices"
)

// IntPair is one equi-join key: a column ordinal on the source table and a
// column ordinal on the target table.
type IntPair struct {
	Source int
	Target int
}

func (p IntPair) String() string { return fmt.Sprintf("%d-%d", p.Source, p.Target) }

func compareIntPair(a, b IntPair) int {
	if a.Source != b.Source {
		return a.Source - b.Source
	}
	return a.Target - b.Target
}

// SortUnique returns keys sorted by (Source, Target) with duplicates removed.
// The second result reports whether duplicates were dropped. The input is not
// modified.
func SortUnique(keys []IntPair) ([]IntPair, bool) {
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, compareIntPair)
	for i := 1; i < len(sorted); i++ {
		if compareIntPair(sorted[i-1], sorted[i]) >= 0 {
			return slices.Compact(sorted), true
		}
	}
	return sorted, false
}

// Sources returns the source ordinals of keys, in order.
func Sources(keys []IntPair) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = k.Source
	}
	return out
}

// Targets returns the target ordinals of keys, in order.
func Targets(keys []IntPair) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = k.Target
	}
	return out
}
