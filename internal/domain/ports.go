package domain

import "context"

// QueryExecutor runs statistics statements against the engine that holds a
// lattice's tables. Implemented by engine.Executor.
//
// Both methods block until the engine answers or ctx is done.
type QueryExecutor interface {
	// QueryScalar runs a statement that yields one row with one numeric
	// column, such as SELECT COUNT(*) ... .
	QueryScalar(ctx context.Context, query string) (float64, error)
	// Scan runs a statement and calls fn for every row. The row slice is
	// reused between calls; fn must copy values it keeps.
	Scan(ctx context.Context, query string, fn func(row []any) error) error
}
