package lattice

import "github.com/bits-and-blooms/bitset"

// BitSetOf returns a bit set with the given ordinals set.
func BitSetOf(ordinals ...int) *bitset.BitSet {
	b := bitset.New(0)
	for _, o := range ordinals {
		b.Set(uint(o))
	}
	return b
}

// Ordinals returns the set bits of b in ascending order.
func Ordinals(b *bitset.BitSet) []int {
	if b == nil {
		return nil
	}
	var out []int
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// BitSetEqual reports whether a and b have the same set bits. Unlike
// bitset.Equal it ignores the sets' lengths.
func BitSetEqual(a, b *bitset.BitSet) bool {
	return IsSuperset(a, b) && IsSuperset(b, a)
}

// IsSuperset reports whether every bit set in b is set in a.
func IsSuperset(a, b *bitset.BitSet) bool {
	return normalize(a).IsSuperSet(normalize(b))
}

func normalize(b *bitset.BitSet) *bitset.BitSet {
	if b == nil {
		return bitset.New(0)
	}
	return b
}

func bitSetKey(b *bitset.BitSet) string {
	return normalize(b).String()
}

func cloneBitSet(b *bitset.BitSet) *bitset.BitSet {
	return normalize(b).Clone()
}
