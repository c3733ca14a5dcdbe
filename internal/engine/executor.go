package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

// Compile-time check.
var _ domain.QueryExecutor = (*Executor)(nil)

// ExecutorOptions bound the statistics queries an Executor runs.
type ExecutorOptions struct {
	// Timeout applies to each statement. Zero means none.
	Timeout time.Duration
	// RequestsPerSecond limits how fast statements are issued. Zero means
	// unlimited.
	RequestsPerSecond float64
	Burst             int
}

// Executor implements domain.QueryExecutor over a *sql.DB.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	limiter *rate.Limiter
}

// NewExecutor creates an Executor.
func NewExecutor(db *sql.DB, opts ExecutorOptions) *Executor {
	e := &Executor{db: db, timeout: opts.Timeout}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return e
}

// begin waits for the rate limiter and applies the statement timeout.
func (e *Executor) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if e.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

// QueryScalar runs query and converts the first column of its single row to
// a float64. No rows is a NotFoundError.
func (e *Executor) QueryScalar(ctx context.Context, query string) (float64, error) {
	ctx, cancel, err := e.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	var v any
	if err := e.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound("statistics query returned no rows: %s", query)
		}
		return 0, fmt.Errorf("execute statistics query: %w", err)
	}
	return toFloat64(v)
}

// Scan runs query and calls fn with every row.
func (e *Executor) Scan(ctx context.Context, query string, fn func(row []any) error) error {
	ctx, cancel, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("execute scan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("scan columns: %w", err)
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan rows: %w", err)
	}
	return nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, nil
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	case nil:
		return 0, domain.ErrNotFound("statistics query returned NULL")
	default:
		return 0, domain.ErrValidation("statistics query returned non-numeric %T", v)
	}
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, domain.ErrValidation("statistics query returned non-numeric %q", s)
	}
	return f, nil
}
