// Package materialize tracks the tables that hold precomputed query results
// and finds one that can answer a query or a lattice tile.
package materialize

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// Key identifies a materialization.
type Key uuid.UUID

func newKey() Key { return Key(uuid.New()) }

func (k Key) String() string { return uuid.UUID(k).String() }

// QueryKey is the signature a materialization is reused by: the defining
// SQL, the schema it was defined in, and the schema path its names resolve
// against.
type QueryKey struct {
	SQL    string
	schema *schema.Schema
	path   string
}

// NewQueryKey creates the signature of sql defined in s with view path.
func NewQueryKey(sql string, s *schema.Schema, path []string) QueryKey {
	return QueryKey{SQL: sql, schema: s, path: strings.Join(path, "\x00")}
}

// Materialization describes a table that holds, or will hold, the result of
// a query. The backing table starts out absent and is attached once the
// table has been built.
type Materialization struct {
	key            Key
	rootSchema     *schema.Schema
	sql            string
	viewSchemaPath []string
	tile           *lattice.TileKey
	createdAt      time.Time

	backing atomic.Pointer[schema.TableEntry]
	// buildMu serializes backing table builds started under different names.
	buildMu sync.Mutex
}

func newMaterialization(key Key, rootSchema *schema.Schema, sql string, viewSchemaPath []string, tile *lattice.TileKey) (*Materialization, error) {
	if rootSchema == nil || !rootSchema.IsRoot() {
		return nil, domain.ErrValidation("materialization requires a root schema")
	}
	if strings.TrimSpace(sql) == "" {
		return nil, domain.ErrValidation("materialization requires a query")
	}
	m := &Materialization{
		key:            key,
		rootSchema:     rootSchema,
		sql:            sql,
		viewSchemaPath: append([]string(nil), viewSchemaPath...),
		createdAt:      time.Now(),
	}
	if tile != nil {
		t := *tile
		m.tile = &t
	}
	return m, nil
}

// Key returns the materialization's key.
func (m *Materialization) Key() Key { return m.key }

// RootSchema returns the root of the schema tree the materialization lives in.
func (m *Materialization) RootSchema() *schema.Schema { return m.rootSchema }

// SQL returns the defining query.
func (m *Materialization) SQL() string { return m.sql }

// ViewSchemaPath returns the schema path the query's names resolve against.
func (m *Materialization) ViewSchemaPath() []string {
	return append([]string(nil), m.viewSchemaPath...)
}

// Tile returns the tile the materialization was defined for, if any.
func (m *Materialization) Tile() (lattice.TileKey, bool) {
	if m.tile == nil {
		return lattice.TileKey{}, false
	}
	return *m.tile, true
}

// CreatedAt returns the registration time.
func (m *Materialization) CreatedAt() time.Time { return m.createdAt }

// BackingTable returns the table holding the result, or false if it has not
// been built yet.
func (m *Materialization) BackingTable() (*schema.TableEntry, bool) {
	e := m.backing.Load()
	return e, e != nil
}

func (m *Materialization) setBackingTable(e *schema.TableEntry) { m.backing.Store(e) }
