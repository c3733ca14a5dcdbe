package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"int64", int64(42), 42},
		{"int32", int32(7), 7},
		{"uint64", uint64(9), 9},
		{"float32", float32(1.5), 1.5},
		{"big int", big.NewInt(1 << 40), 1 << 40},
		{"bytes", []byte("12.5"), 12.5},
		{"string", "3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toFloat64(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := toFloat64(nil)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = toFloat64("abc")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = toFloat64(time.Now())
	require.ErrorAs(t, err, &ve)
}

func TestExecutor_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, SQLite, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `CREATE TABLE t (a INTEGER, b TEXT);
		INSERT INTO t VALUES (1, 'x'), (2, 'y'), (3, NULL)`)
	require.NoError(t, err)

	exec := NewExecutor(db, ExecutorOptions{Timeout: time.Second, RequestsPerSecond: 1000, Burst: 10})

	n, err := exec.QueryScalar(ctx, "SELECT COUNT(*) FROM t")
	require.NoError(t, err)
	assert.Equal(t, 3.0, n)

	_, err = exec.QueryScalar(ctx, "SELECT a FROM t WHERE a > 10")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	var got [][]any
	err = exec.Scan(ctx, "SELECT a, b FROM t ORDER BY a", func(row []any) error {
		got = append(got, append([]any(nil), row...))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0][0])
	assert.Nil(t, got[2][1])

	_, err = exec.QueryScalar(ctx, "SELECT * FROM missing")
	require.Error(t, err)
}

func TestExecutor_CanceledContext(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, SQLite, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	exec := NewExecutor(db, ExecutorOptions{RequestsPerSecond: 1})
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = exec.QueryScalar(canceled, "SELECT 1")
	require.Error(t, err)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("duckdb")
	require.NoError(t, err)
	assert.Equal(t, DuckDB, d)

	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = ParseDialect("postgres")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}
