package lattice

import (
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

// Column is one column of a lattice's flattened row: a field of one node's
// table, addressed by its global ordinal.
type Column struct {
	Ordinal int
	Table   string // alias of the owning node
	Name    string // column name in the table
	Alias   string // name unique within the lattice
}

func (c Column) String() string { return c.Table + "." + c.Name }

// ColumnsToBitSet returns the ordinals of cols as a bit set.
func ColumnsToBitSet(cols []Column) *bitset.BitSet {
	b := bitset.New(0)
	for _, c := range cols {
		b.Set(uint(c.Ordinal))
	}
	return b
}

// Measure is an aggregate over lattice columns, such as sum(F.amount).
type Measure struct {
	Agg  string
	Args []Column
}

// Aggregates are the aggregate functions a measure may use.
var Aggregates = []string{"avg", "count", "max", "min", "sum"}

// ValidateAggregate reports a ValidationError unless agg, compared without
// case, is one of Aggregates.
func ValidateAggregate(agg string) error {
	if slices.Contains(Aggregates, strings.ToLower(strings.TrimSpace(agg))) {
		return nil
	}
	return domain.ErrValidation("unsupported aggregate %q: use one of %s", agg, strings.Join(Aggregates, ", "))
}

// NewMeasure creates a measure; the aggregate name is normalized to lower
// case. It does not check the aggregate; see ValidateAggregate.
func NewMeasure(agg string, args ...Column) Measure {
	return Measure{Agg: strings.ToLower(strings.TrimSpace(agg)), Args: append([]Column(nil), args...)}
}

// Equal reports whether m and o aggregate the same columns the same way.
func (m Measure) Equal(o Measure) bool {
	return m.key() == o.key()
}

func (m Measure) key() string {
	var b strings.Builder
	b.WriteString(m.Agg)
	b.WriteByte('(')
	for i, a := range m.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(a.Ordinal))
	}
	b.WriteByte(')')
	return b.String()
}

// ArgBitSet returns the ordinals of the measure's arguments.
func (m Measure) ArgBitSet() *bitset.BitSet { return ColumnsToBitSet(m.Args) }

// Rollup returns the aggregate that combines partial results of m, and
// whether m can be rolled up at all.
func (m Measure) Rollup() (string, bool) {
	switch m.Agg {
	case "sum", "count":
		return "sum", true
	case "min", "max":
		return m.Agg, true
	default:
		return "", false
	}
}

func (m Measure) String() string {
	parts := make([]string, len(m.Args))
	for i, a := range m.Args {
		parts[i] = a.String()
	}
	return m.Agg + "(" + strings.Join(parts, ", ") + ")"
}

// ContainsMeasure reports whether list contains a measure equal to m.
func ContainsMeasure(list []Measure, m Measure) bool {
	for _, x := range list {
		if x.Equal(m) {
			return true
		}
	}
	return false
}

func measuresEqual(a, b []Measure) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func measuresKey(ms []Measure) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.key()
	}
	return strings.Join(parts, "|")
}
