package statistics

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// fakeExec answers scalar queries from a map and scans from a fixed row set.
type fakeExec struct {
	mu      sync.Mutex
	scalars map[string]float64
	queries []string

	rows    [][]any
	scanErr error
	scans   atomic.Int32
	// release, when set, blocks Scan until it is closed.
	release chan struct{}
}

var _ domain.QueryExecutor = (*fakeExec)(nil)

func (f *fakeExec) QueryScalar(ctx context.Context, query string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	n, ok := f.scalars[query]
	if !ok {
		return 0, domain.ErrNotFound("no rows for %s", query)
	}
	return n, nil
}

func (f *fakeExec) Scan(ctx context.Context, _ string, fn func(row []any) error) error {
	f.scans.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.scanErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	row := make([]any, 0, 8)
	for _, r := range f.rows {
		row = append(row[:0], r...)
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeExec) setScanErr(err error) {
	f.mu.Lock()
	f.scanErr = err
	f.mu.Unlock()
}

type fixedTableStats map[string]float64

func (s fixedTableStats) TableCardinality(_ context.Context, qn []string) (float64, error) {
	n, ok := s[strings.Join(qn, ".")]
	if !ok {
		return 0, domain.ErrNotFound("no table %s", strings.Join(qn, "."))
	}
	return n, nil
}

// newSalesLattice builds sales.F(f1,f2,f3) joined to sales.D(d1,d2) on f2 = d1.
func newSalesLattice(t *testing.T, factory lattice.StatisticProviderFactory) *lattice.Lattice {
	t.Helper()
	root := schema.NewRoot()
	sales := root.AddSubSchema("sales")
	f := sales.AddTable("F", schema.Column{Name: "f1"}, schema.Column{Name: "f2"}, schema.Column{Name: "f3"})
	d := sales.AddTable("D", schema.Column{Name: "d1"}, schema.Column{Name: "d2"})

	space, err := lattice.NewSpace(fixedTableStats{"sales.F": 1000, "sales.D": 4}, nil)
	require.NoError(t, err)
	m := lattice.NewMutableNode(space, f.Table)
	m.AddChild(space, d.Table, []lattice.IntPair{{Source: 1, Target: 0}})
	l, err := lattice.New(space, m, lattice.Options{StatisticProvider: factory})
	require.NoError(t, err)
	return l
}

// countingProvider counts calls and answers with the number of columns.
type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (c *countingProvider) Cardinality(_ context.Context, columns []lattice.Column) (float64, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	return float64(len(columns)), nil
}

// heldLookup serves both cardinality interfaces, holding every call until
// release is closed. It counts calls whose context ended first.
type heldLookup struct {
	release  chan struct{}
	started  chan struct{}
	once     sync.Once
	calls    atomic.Int32
	canceled atomic.Int32
}

func newHeldLookup() *heldLookup {
	return &heldLookup{release: make(chan struct{}), started: make(chan struct{})}
}

func (h *heldLookup) wait(ctx context.Context) error {
	h.calls.Add(1)
	h.once.Do(func() { close(h.started) })
	select {
	case <-h.release:
		return nil
	case <-ctx.Done():
		h.canceled.Add(1)
		return ctx.Err()
	}
}

func (h *heldLookup) Cardinality(ctx context.Context, columns []lattice.Column) (float64, error) {
	if err := h.wait(ctx); err != nil {
		return 0, err
	}
	return float64(len(columns)), nil
}

func (h *heldLookup) TableCardinality(ctx context.Context, _ []string) (float64, error) {
	if err := h.wait(ctx); err != nil {
		return 0, err
	}
	return 1000, nil
}
