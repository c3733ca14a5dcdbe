package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/materialize"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// Compile-time check.
var _ materialize.TableFactory = (*TableFactory)(nil)

// TableFactory builds backing tables with CREATE TABLE ... AS.
type TableFactory struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewTableFactory creates a TableFactory.
func NewTableFactory(db *sql.DB, dialect Dialect, logger *slog.Logger) *TableFactory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TableFactory{db: db, dialect: dialect, logger: logger}
}

// CreateTable runs query into a new table name in s and registers the table,
// with the columns the engine reports for it, in s.
func (f *TableFactory) CreateTable(ctx context.Context, s *schema.Schema, name, query string) (*schema.TableEntry, error) {
	path := s.Path()
	if f.dialect == DuckDB && len(path) == 1 {
		if _, err := f.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+lattice.QuoteIdentifier(path[0])); err != nil {
			return nil, fmt.Errorf("create schema %s: %w", path[0], err)
		}
	}
	qualified := lattice.QuoteQualifiedName(append(path, name))
	if _, err := f.db.ExecContext(ctx, "CREATE TABLE "+qualified+" AS "+query); err != nil {
		return nil, fmt.Errorf("create table %s: %w", qualified, err)
	}

	cols, err := f.describe(ctx, qualified)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("backing table created", "table", qualified, "columns", len(cols))
	return s.AddMaterializedTable(name, []string{query}, cols...), nil
}

func (f *TableFactory) describe(ctx context.Context, qualified string) ([]schema.Column, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT * FROM "+qualified+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", qualified, err)
	}
	defer func() { _ = rows.Close() }()
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", qualified, err)
	}
	cols := make([]schema.Column, len(types))
	for i, t := range types {
		cols[i] = schema.Column{Name: t.Name(), Type: t.DatabaseTypeName()}
	}
	return cols, nil
}
