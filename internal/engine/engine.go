// Package engine runs the statistics and materialization statements of the
// lattice packages against DuckDB or SQLite through database/sql.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

// Dialect names a supported engine. The value is the database/sql driver
// name.
type Dialect string

const (
	DuckDB Dialect = "duckdb"
	SQLite Dialect = "sqlite3"
)

// ParseDialect validates a driver name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(name); d {
	case DuckDB, SQLite:
		return d, nil
	default:
		return "", domain.ErrValidation("unsupported database driver %q: must be %q or %q", name, DuckDB, SQLite)
	}
}

// Open opens and pings a database. An empty DSN opens an in-memory
// database. SQLite in-memory databases are private to a connection, so the
// pool is pinned to one connection for them.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	if dialect == SQLite && (dsn == "" || dsn == ":memory:") {
		dsn = ":memory:"
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}
