package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

const duckDBColumnsQuery = `SELECT table_schema, table_name, column_name, data_type
FROM information_schema.columns
WHERE table_catalog = current_database()
  AND table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_schema, table_name, ordinal_position`

const sqliteColumnsQuery = `SELECT 'main', m.name, p.name, p.type
FROM sqlite_master m, pragma_table_info(m.name) p
WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`

// LoadInformationSchema reads the engine's tables and columns into a new
// root schema with one sub-schema per database schema.
func LoadInformationSchema(ctx context.Context, db *sql.DB, dialect Dialect) (*schema.Schema, error) {
	query := duckDBColumnsQuery
	if dialect == SQLite {
		query = sqliteColumnsQuery
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type tableRef struct{ schema, table string }
	var (
		order   []tableRef
		columns = make(map[tableRef][]schema.Column)
	)
	for rows.Next() {
		var ref tableRef
		var col schema.Column
		if err := rows.Scan(&ref.schema, &ref.table, &col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if _, ok := columns[ref]; !ok {
			order = append(order, ref)
		}
		columns[ref] = append(columns[ref], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	root := schema.NewRoot()
	for _, ref := range order {
		root.AddSubSchema(ref.schema).AddTable(ref.table, columns[ref]...)
	}
	return root, nil
}
