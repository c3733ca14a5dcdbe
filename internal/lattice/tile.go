package lattice

import (
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// TileKey identifies a candidate materialization of a lattice: a set of
// dimension columns and an ordered list of measures. Measure order matters;
// [m1, m2] and [m2, m1] are different tiles.
type TileKey struct {
	lattice    *Lattice
	dimensions *bitset.BitSet
	measures   []Measure
}

// NewTileKey creates a tile key. dimensions and measures are copied.
func NewTileKey(l *Lattice, dimensions *bitset.BitSet, measures []Measure) TileKey {
	return TileKey{lattice: l, dimensions: cloneBitSet(dimensions), measures: slices.Clone(measures)}
}

// Lattice returns the lattice the tile belongs to.
func (k TileKey) Lattice() *Lattice { return k.lattice }

// Dimensions returns a copy of the dimension ordinals.
func (k TileKey) Dimensions() *bitset.BitSet { return cloneBitSet(k.dimensions) }

// Measures returns a copy of the measure list.
func (k TileKey) Measures() []Measure { return slices.Clone(k.measures) }

// Equal reports whether k and o name the same lattice (by identity), the same
// dimensions and the same measures in the same order.
func (k TileKey) Equal(o TileKey) bool {
	return k.lattice == o.lattice &&
		BitSetEqual(k.dimensions, o.dimensions) &&
		measuresEqual(k.measures, o.measures)
}

// Dimensionality returns the measure-less key that groups every tile with
// k's lattice and dimensions.
func (k TileKey) Dimensionality() TileKey {
	return TileKey{lattice: k.lattice, dimensions: cloneBitSet(k.dimensions)}
}

// TileIndex is the comparable form of a TileKey, for use as a map key. Two
// TileKeys have equal indices exactly when they are Equal.
type TileIndex struct {
	lattice    *Lattice
	dimensions string
	measures   string
}

// Index returns k's comparable form.
func (k TileKey) Index() TileIndex {
	return TileIndex{lattice: k.lattice, dimensions: bitSetKey(k.dimensions), measures: measuresKey(k.measures)}
}

func (k TileKey) String() string {
	return fmt.Sprintf("dimensions: %s, measures: %v", bitSetKey(k.dimensions), k.measures)
}
