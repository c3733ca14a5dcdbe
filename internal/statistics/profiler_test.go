package statistics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/profile"
)

func salesRows() [][]any {
	rows := make([][]any, 20)
	for i := range rows {
		rows[i] = []any{int64(i), int64(i % 4), nil, int64(i % 4), "x"}
	}
	return rows
}

func newProfilerLattice(t *testing.T, exec *fakeExec) (*lattice.Lattice, *ProfilerProvider) {
	t.Helper()
	l := newSalesLattice(t, ProfilerFactory(exec, ProfilerOptions{
		Profiler: profile.Profiler{MinimumSurprise: profile.DefaultMinimumSurprise},
		Timeout:  time.Minute,
	}))
	p, ok := l.StatisticProvider().(*ProfilerProvider)
	require.True(t, ok)
	return l, p
}

func TestProfilerProvider_Cardinality(t *testing.T) {
	exec := &fakeExec{rows: salesRows()}
	l, _ := newProfilerLattice(t, exec)
	ctx := context.Background()

	tests := []struct {
		name    string
		columns []int
		want    float64
	}{
		{name: "unique", columns: []int{0}, want: 20},
		{name: "join key", columns: []int{1}, want: 4},
		{name: "nulls", columns: []int{2}, want: 1},
		{name: "dependent pair", columns: []int{1, 3}, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cols []lattice.Column
			for _, o := range tt.columns {
				cols = append(cols, l.Column(o))
			}
			n, err := l.Cardinality(ctx, cols)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
	assert.Equal(t, int32(1), exec.scans.Load(), "profile is computed once")
}

func TestProfilerProvider_ConcurrentFirstUse(t *testing.T) {
	exec := &fakeExec{rows: salesRows(), release: make(chan struct{})}
	_, p := newProfilerLattice(t, exec)

	var wg sync.WaitGroup
	results := make([]*profile.Profile, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prof, err := p.Profile(context.Background())
			assert.NoError(t, err)
			results[i] = prof
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(exec.release)
	wg.Wait()

	assert.Equal(t, int32(1), exec.scans.Load())
	for _, prof := range results {
		assert.Same(t, results[0], prof)
	}
}

func TestProfilerProvider_FailureIsNotKept(t *testing.T) {
	exec := &fakeExec{rows: salesRows()}
	exec.setScanErr(errors.New("engine unavailable"))
	_, p := newProfilerLattice(t, exec)
	ctx := context.Background()

	_, err := p.Profile(ctx)
	require.ErrorContains(t, err, "engine unavailable")

	exec.setScanErr(nil)
	prof, err := p.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, prof.RowCount())
	assert.Equal(t, int32(2), exec.scans.Load())
}

func TestProfilerProvider_CallerCanAbandon(t *testing.T) {
	exec := &fakeExec{rows: salesRows(), release: make(chan struct{})}
	_, p := newProfilerLattice(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Profile(ctx)
	require.ErrorIs(t, err, context.Canceled)

	close(exec.release)
	prof, err := p.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, prof.RowCount())
	assert.Equal(t, int32(1), exec.scans.Load(), "abandoned computation is reused")
}

func TestProfilerProvider_RowWidthMismatch(t *testing.T) {
	exec := &fakeExec{rows: [][]any{{int64(1), int64(2)}}}
	_, p := newProfilerLattice(t, exec)

	_, err := p.Profile(context.Background())
	require.Error(t, err)
}
