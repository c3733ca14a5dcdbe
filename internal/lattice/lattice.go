package lattice

import (
	"context"
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

// StatisticProvider estimates the number of distinct values of a column
// combination within one lattice.
type StatisticProvider interface {
	Cardinality(ctx context.Context, columns []Column) (float64, error)
}

// StatisticProviderFactory creates the provider a lattice uses.
type StatisticProviderFactory func(*Lattice) StatisticProvider

// ColumnRef names a lattice column by the alias of its node and the column
// name. An empty Table matches any node as long as the name is unambiguous.
type ColumnRef struct {
	Table  string
	Column string
}

// MeasureRef names a measure by aggregate and argument columns.
type MeasureRef struct {
	Agg  string
	Args []ColumnRef
}

// TileRef declares a tile to materialize up front.
type TileRef struct {
	Dimensions []ColumnRef
	Measures   []MeasureRef
}

// Tile is a declared tile with resolved columns.
type Tile struct {
	Dimensions []Column
	Measures   []Measure
}

// BitSet returns the tile's dimension ordinals.
func (t Tile) BitSet() *bitset.BitSet { return ColumnsToBitSet(t.Dimensions) }

// Options configure a Lattice.
type Options struct {
	// RowCountEstimate, when positive, is used as the fact table row count
	// instead of asking the space's table statistics.
	RowCountEstimate float64
	// StatisticProvider creates the lattice's column statistics provider.
	StatisticProvider StatisticProviderFactory
	DefaultMeasures   []MeasureRef
	Tiles             []TileRef
}

// Lattice is a frozen join tree together with its flattened column layout,
// measures, declared tiles and statistics provider.
type Lattice struct {
	space            *Space
	root             *RootNode
	columns          []Column
	defaultMeasures  []Measure
	tiles            []Tile
	rowCountEstimate float64
	stats            StatisticProvider
}

// New lays out the columns of the tree described by root, freezes it, and
// resolves the measures and tiles named in opts.
func New(space *Space, root *MutableNode, opts Options) (*Lattice, error) {
	if space == nil {
		return nil, domain.ErrValidation("space is required")
	}
	if root == nil || root.Table == nil {
		return nil, domain.ErrValidation("lattice root is required")
	}
	if opts.StatisticProvider == nil {
		return nil, domain.ErrValidation("statistic provider factory is required")
	}
	if opts.RowCountEstimate < 0 {
		return nil, domain.ErrValidation("row count estimate must not be negative")
	}

	root.AssignColumns(space)
	rootNode, err := NewRootNode(space, root)
	if err != nil {
		return nil, err
	}

	l := &Lattice{
		space:            space,
		root:             rootNode,
		rowCountEstimate: opts.RowCountEstimate,
	}
	used := make(map[string]struct{})
	for _, n := range rootNode.Descendants() {
		for i := 0; i < n.Table().FieldCount(); i++ {
			name := n.Table().Field(i).Name
			l.columns = append(l.columns, Column{
				Ordinal: n.StartCol() + i,
				Table:   n.Alias(),
				Name:    name,
				Alias:   uniquify(name, used),
			})
		}
	}

	for _, ref := range opts.DefaultMeasures {
		m, err := l.ResolveMeasure(ref)
		if err != nil {
			return nil, err
		}
		l.defaultMeasures = append(l.defaultMeasures, m)
	}
	for _, ref := range opts.Tiles {
		tile := Tile{}
		for _, d := range ref.Dimensions {
			c, err := l.ResolveColumn(d)
			if err != nil {
				return nil, err
			}
			tile.Dimensions = append(tile.Dimensions, c)
		}
		for _, mr := range ref.Measures {
			m, err := l.ResolveMeasure(mr)
			if err != nil {
				return nil, err
			}
			tile.Measures = append(tile.Measures, m)
		}
		l.tiles = append(l.tiles, tile)
	}

	l.stats = opts.StatisticProvider(l)
	if l.stats == nil {
		return nil, domain.ErrValidation("statistic provider factory returned nil")
	}
	return l, nil
}

// Space returns the space the lattice was built in.
func (l *Lattice) Space() *Space { return l.space }

// Root returns the frozen join tree.
func (l *Lattice) Root() *RootNode { return l.root }

// Digest returns the structural key of the lattice's tree.
func (l *Lattice) Digest() string { return l.root.Digest() }

// Columns returns every column of the flattened row, in ordinal order.
func (l *Lattice) Columns() []Column { return append([]Column(nil), l.columns...) }

// Column returns the column with the given ordinal.
func (l *Lattice) Column(ordinal int) Column { return l.columns[ordinal] }

// DefaultMeasures returns the lattice's declared default measures.
func (l *Lattice) DefaultMeasures() []Measure { return append([]Measure(nil), l.defaultMeasures...) }

// Tiles returns the declared tiles.
func (l *Lattice) Tiles() []Tile { return append([]Tile(nil), l.tiles...) }

// StatisticProvider returns the provider created for this lattice.
func (l *Lattice) StatisticProvider() StatisticProvider { return l.stats }

// Contains reports whether l's tree covers other's.
func (l *Lattice) Contains(other *Lattice) bool { return l.root.Contains(other.root) }

// ResolveColumn finds the column named by ref.
func (l *Lattice) ResolveColumn(ref ColumnRef) (Column, error) {
	var found []Column
	for _, c := range l.columns {
		if ref.Table != "" && c.Table != ref.Table {
			continue
		}
		if strings.EqualFold(c.Name, ref.Column) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return Column{}, domain.ErrNotFound("column %q not found in lattice %s", refString(ref), l.Digest())
	case 1:
		return found[0], nil
	default:
		return Column{}, domain.ErrValidation("column %q is ambiguous in lattice %s", refString(ref), l.Digest())
	}
}

// ResolveMeasure resolves the argument columns of ref.
func (l *Lattice) ResolveMeasure(ref MeasureRef) (Measure, error) {
	if strings.TrimSpace(ref.Agg) == "" {
		return Measure{}, domain.ErrValidation("measure aggregate is required")
	}
	if err := ValidateAggregate(ref.Agg); err != nil {
		return Measure{}, err
	}
	args := make([]Column, 0, len(ref.Args))
	for _, a := range ref.Args {
		c, err := l.ResolveColumn(a)
		if err != nil {
			return Measure{}, err
		}
		args = append(args, c)
	}
	return NewMeasure(ref.Agg, args...), nil
}

// CheckTile reports a ValidationError unless every dimension and measure
// argument is a column of l and every measure uses a known aggregate.
func (l *Lattice) CheckTile(dimensions *bitset.BitSet, measures []Measure) error {
	width := len(l.columns)
	for _, o := range Ordinals(dimensions) {
		if o >= width {
			return domain.ErrValidation("dimension %d is out of range: lattice %s has %d columns", o, l.Digest(), width)
		}
	}
	for _, m := range measures {
		if err := ValidateAggregate(m.Agg); err != nil {
			return err
		}
		for _, a := range m.Args {
			if a.Ordinal < 0 || a.Ordinal >= width {
				return domain.ErrValidation("measure %s argument %d is out of range: lattice %s has %d columns", m.Agg, a.Ordinal, l.Digest(), width)
			}
		}
	}
	return nil
}

func refString(ref ColumnRef) string {
	if ref.Table == "" {
		return ref.Column
	}
	return ref.Table + "." + ref.Column
}

// FactRowCount returns the row count of the fact table: the configured
// estimate if there is one, else the space's table statistics.
func (l *Lattice) FactRowCount(ctx context.Context) (float64, error) {
	if l.rowCountEstimate > 0 {
		return l.rowCountEstimate, nil
	}
	n, err := l.space.Statistics().TableCardinality(ctx, l.root.Root().Table().QualifiedName())
	if err != nil {
		return 0, fmt.Errorf("fact row count: %w", err)
	}
	return n, nil
}

// Cardinality estimates the number of distinct values of columns using the
// lattice's statistic provider.
func (l *Lattice) Cardinality(ctx context.Context, columns []Column) (float64, error) {
	return l.stats.Cardinality(ctx, columns)
}
