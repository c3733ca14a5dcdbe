package lattice

import (
	"strings"

	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// Table is a table as registered in a Space. A Space hands out exactly one
// Table per qualified name.
type Table struct {
	t *schema.Table
}

// Schema returns the wrapped relational table.
func (t *Table) Schema() *schema.Table { return t.t }

// QualifiedName returns the table's qualified name.
func (t *Table) QualifiedName() []string { return t.t.QualifiedName() }

// Field returns the column at ordinal i.
func (t *Table) Field(i int) schema.Column { return t.t.Field(i) }

// FieldCount returns the number of columns.
func (t *Table) FieldCount() int { return t.t.FieldCount() }

func (t *Table) String() string { return t.t.String() }

// qualifiedKey is the map key for a qualified name. The separator cannot
// appear in SQL identifiers the catalog hands out.
func qualifiedKey(qualifiedName []string) string {
	return strings.Join(qualifiedName, "\x00")
}
