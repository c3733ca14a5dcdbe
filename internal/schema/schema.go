// Package schema provides the in-process catalog view used by lattices and
// materializations: a tree of schemas rooted at one root schema, each holding
// named table entries with ordered column metadata.
package schema

import (
	"sort"
	"strings"
	"sync"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

// Column describes one column of a table.
type Column struct {
	Name string
	Type string
}

// Table is the relational shape of a table: its qualified name and columns.
type Table struct {
	qualifiedName []string
	columns       []Column
}

// NewTable creates a table with the given qualified name and columns.
func NewTable(qualifiedName []string, columns ...Column) *Table {
	return &Table{
		qualifiedName: append([]string(nil), qualifiedName...),
		columns:       append([]Column(nil), columns...),
	}
}

// QualifiedName returns the names from the root schema down to the table.
func (t *Table) QualifiedName() []string {
	return append([]string(nil), t.qualifiedName...)
}

// Name returns the last component of the qualified name.
func (t *Table) Name() string {
	if len(t.qualifiedName) == 0 {
		return ""
	}
	return t.qualifiedName[len(t.qualifiedName)-1]
}

// Columns returns the table's columns in ordinal order.
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// FieldCount returns the number of columns.
func (t *Table) FieldCount() int { return len(t.columns) }

// Field returns the column at ordinal i.
func (t *Table) Field(i int) Column { return t.columns[i] }

// ColumnIndex returns the ordinal of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.columns {
		if c.Name == name {
			return i
		}
	}
	for i, c := range t.columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (t *Table) String() string { return strings.Join(t.qualifiedName, ".") }

// TableEntry is a table registered under a name in a schema. SQL lists the
// queries whose results the table holds, for tables that materialize one.
type TableEntry struct {
	Schema *Schema
	Name   string
	Table  *Table
	SQL    []string
}

// Schema is a node in the schema tree. The zero-parent schema is the root.
type Schema struct {
	name   string
	parent *Schema

	mu         sync.RWMutex
	subSchemas map[string]*Schema
	tables     map[string]*TableEntry
}

// NewRoot creates an empty root schema.
func NewRoot() *Schema {
	return newSchema(nil, "")
}

func newSchema(parent *Schema, name string) *Schema {
	return &Schema{
		name:       name,
		parent:     parent,
		subSchemas: make(map[string]*Schema),
		tables:     make(map[string]*TableEntry),
	}
}

// Name returns the schema's name; the root has an empty name.
func (s *Schema) Name() string { return s.name }

// Parent returns the enclosing schema, or nil for the root.
func (s *Schema) Parent() *Schema { return s.parent }

// IsRoot reports whether s has no parent.
func (s *Schema) IsRoot() bool { return s.parent == nil }

// Root walks up to the root schema.
func (s *Schema) Root() *Schema {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Path returns the schema names from just below the root down to s.
func (s *Schema) Path() []string {
	var path []string
	for c := s; c.parent != nil; c = c.parent {
		path = append(path, c.name)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// AddSubSchema returns the named sub-schema, creating it if needed.
func (s *Schema) AddSubSchema(name string) *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subSchemas[name]; ok {
		return sub
	}
	sub := newSchema(s, name)
	s.subSchemas[name] = sub
	return sub
}

// SubSchema looks up a direct sub-schema by name.
func (s *Schema) SubSchema(name string) (*Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subSchemas[name]
	return sub, ok
}

// SubSchemaNames returns the names of the direct sub-schemas of s, sorted.
func (s *Schema) SubSchemaNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.subSchemas))
	for n := range s.subSchemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddTable registers a table under name, replacing any previous entry.
func (s *Schema) AddTable(name string, columns ...Column) *TableEntry {
	return s.addEntry(name, nil, columns)
}

func (s *Schema) addEntry(name string, sqls []string, columns []Column) *TableEntry {
	qualified := append(s.Path(), name)
	entry := &TableEntry{Schema: s, Name: name, Table: NewTable(qualified, columns...), SQL: sqls}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = entry
	return entry
}

// AddMaterializedTable registers a table that holds the result of each of
// sqls.
func (s *Schema) AddMaterializedTable(name string, sqls []string, columns ...Column) *TableEntry {
	return s.addEntry(name, append([]string(nil), sqls...), columns)
}

// TableBySQL returns a table of s that materializes sql.
func (s *Schema) TableBySQL(sql string) (*TableEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.sortedTableNames() {
		e := s.tables[name]
		for _, q := range e.SQL {
			if q == sql {
				return e, true
			}
		}
	}
	return nil, false
}

// Table looks up a table entry directly in s.
func (s *Schema) Table(name string) (*TableEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tables[name]
	return e, ok
}

// TableNames returns the names of the tables in s, sorted.
func (s *Schema) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTableNames()
}

func (s *Schema) sortedTableNames() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve finds a table by its qualified name, relative to the root schema.
func (s *Schema) Resolve(qualifiedName []string) (*TableEntry, error) {
	if len(qualifiedName) == 0 {
		return nil, domain.ErrValidation("qualified table name is empty")
	}
	cur := s.Root()
	for _, part := range qualifiedName[:len(qualifiedName)-1] {
		sub, ok := cur.SubSchema(part)
		if !ok {
			return nil, domain.ErrNotFound("schema %q not found in %q", part, strings.Join(qualifiedName, "."))
		}
		cur = sub
	}
	entry, ok := cur.Table(qualifiedName[len(qualifiedName)-1])
	if !ok {
		return nil, domain.ErrNotFound("table %q not found", strings.Join(qualifiedName, "."))
	}
	return entry, nil
}
