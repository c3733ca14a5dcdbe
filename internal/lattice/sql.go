package lattice

import (
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
)

// QuoteIdentifier quotes one SQL identifier with double quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualifiedName quotes and dot-joins the parts of a qualified name.
func QuoteQualifiedName(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteIdentifier(p)
	}
	return strings.Join(quoted, ".")
}

func (l *Lattice) columnExpr(c Column) string {
	return QuoteIdentifier(c.Table) + "." + QuoteIdentifier(c.Name)
}

// MeasureAlias is the output column name of the i-th measure in generated
// SQL.
func MeasureAlias(i int) string { return "m" + strconv.Itoa(i) }

func (l *Lattice) measureExpr(m Measure) string {
	if err := ValidateAggregate(m.Agg); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "measure reached SQL generation unchecked"))
	}
	if len(m.Args) == 0 {
		return strings.ToUpper(m.Agg) + "(*)"
	}
	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = l.columnExpr(a)
	}
	return strings.ToUpper(m.Agg) + "(" + strings.Join(args, ", ") + ")"
}

// FromClause returns the FROM clause joining every node of the tree, in
// pre-order, to its parent.
func (l *Lattice) FromClause() string {
	var b strings.Builder
	b.WriteString(" FROM ")
	for _, n := range l.root.Descendants() {
		parent, ok := l.root.Parent(n)
		if ok {
			b.WriteString(" JOIN ")
		}
		b.WriteString(QuoteQualifiedName(n.Table().QualifiedName()))
		b.WriteString(" AS ")
		b.WriteString(QuoteIdentifier(n.Alias()))
		if !ok {
			continue
		}
		b.WriteString(" ON (")
		for i, k := range n.step.keys {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(QuoteIdentifier(parent.Alias()))
			b.WriteByte('.')
			b.WriteString(QuoteIdentifier(parent.Table().Field(k.Source).Name))
			b.WriteString(" = ")
			b.WriteString(QuoteIdentifier(n.Alias()))
			b.WriteByte('.')
			b.WriteString(QuoteIdentifier(n.Table().Field(k.Target).Name))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// SQL generates a query over the lattice that selects the columns in
// groupSet and computes measures. With group set, rows are grouped by the
// selected columns (or made distinct when there are no measures).
func (l *Lattice) SQL(groupSet *bitset.BitSet, group bool, measures []Measure) string {
	ordinals := Ordinals(groupSet)
	items := make([]string, 0, len(ordinals)+len(measures))
	groupExprs := make([]string, 0, len(ordinals))
	for _, o := range ordinals {
		if o >= len(l.columns) {
			panic(errors.AssertionFailedf("column %d out of range for lattice of %d columns", o, len(l.columns)))
		}
		c := l.columns[o]
		expr := l.columnExpr(c)
		items = append(items, expr+" AS "+QuoteIdentifier(c.Alias))
		groupExprs = append(groupExprs, expr)
	}
	for i, m := range measures {
		items = append(items, l.measureExpr(m)+" AS "+QuoteIdentifier(MeasureAlias(i)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if group && len(measures) == 0 {
		b.WriteString("DISTINCT ")
	}
	if len(items) == 0 {
		b.WriteString("1")
	} else {
		b.WriteString(strings.Join(items, ", "))
	}
	b.WriteString(l.FromClause())
	if group && len(measures) > 0 && len(groupExprs) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groupExprs, ", "))
	}
	return b.String()
}

// AllColumns returns a bit set of every column ordinal.
func (l *Lattice) AllColumns() *bitset.BitSet {
	return ColumnsToBitSet(l.columns)
}

// CountSQL generates a query returning the number of distinct combinations
// of the columns in groupSet.
func (l *Lattice) CountSQL(groupSet *bitset.BitSet) string {
	return `SELECT COUNT(*) AS "c" FROM (` + l.SQL(groupSet, true, nil) + `) AS "t"`
}
