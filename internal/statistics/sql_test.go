package statistics

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

func TestSQLProvider(t *testing.T) {
	exec := &fakeExec{scalars: map[string]float64{}}
	l := newSalesLattice(t, SQLFactory(exec, nil))
	f1, d2 := l.Column(0), l.Column(4)
	exec.scalars[l.CountSQL(lattice.BitSetOf(0))] = 100
	exec.scalars[l.CountSQL(lattice.BitSetOf(4))] = 5
	ctx := context.Background()

	t.Run("no columns", func(t *testing.T) {
		n, err := l.Cardinality(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1.0, n)
	})

	t.Run("one column", func(t *testing.T) {
		n, err := l.Cardinality(ctx, []lattice.Column{d2})
		require.NoError(t, err)
		assert.Equal(t, 5.0, n)
	})

	t.Run("combined columns", func(t *testing.T) {
		n, err := l.Cardinality(ctx, []lattice.Column{f1, d2})
		require.NoError(t, err)
		assert.Equal(t, math.Trunc(lattice.RowCount(1000, 100, 5)), n)
		assert.Equal(t, n, math.Trunc(n))
	})

	t.Run("query failure", func(t *testing.T) {
		_, err := l.Cardinality(ctx, []lattice.Column{l.Column(1), d2})
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestSQLTableStatistics(t *testing.T) {
	exec := &fakeExec{scalars: map[string]float64{`SELECT COUNT(*) FROM "sales"."F"`: 1000}}
	stats := NewSQLTableStatistics(exec, nil)

	n, err := stats.TableCardinality(context.Background(), []string{"sales", "F"})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, n)

	_, err = stats.TableCardinality(context.Background(), []string{"sales", "missing"})
	require.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	exec := &fakeExec{}
	tests := []struct {
		kind    string
		want    any
		wantErr bool
	}{
		{kind: KindSQL, want: &SQLProvider{}},
		{kind: KindProfile, want: &ProfilerProvider{}},
		{kind: KindCachedSQL, want: &CachingProvider{}},
		{kind: "", want: &CachingProvider{}},
		{kind: KindCachedProfile, want: &CachingProvider{}},
		{kind: "exact", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			factory, err := NewFactory(FactoryConfig{Kind: tt.kind}, exec, nil, nil)
			if tt.wantErr {
				var ve *domain.ValidationError
				require.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			l := newSalesLattice(t, factory)
			assert.IsType(t, tt.want, l.StatisticProvider())
		})
	}
}
