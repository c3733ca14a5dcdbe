package materialize

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

type fakeFactory struct {
	mu    sync.Mutex
	names []string
	sqls  []string
	err   error

	// release, when set, holds every build until it is closed. started is
	// closed when the first held build begins.
	release     chan struct{}
	started     chan struct{}
	startedOnce sync.Once
	ctxErrs     []error
}

// newHeldFactory returns a factory whose builds wait for release.
func newHeldFactory() *fakeFactory {
	return &fakeFactory{release: make(chan struct{}), started: make(chan struct{})}
}

func (f *fakeFactory) CreateTable(ctx context.Context, s *schema.Schema, name, sql string) (*schema.TableEntry, error) {
	if f.release != nil {
		f.startedOnce.Do(func() { close(f.started) })
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.sqls = append(f.sqls, sql)
	if err := ctx.Err(); err != nil {
		f.ctxErrs = append(f.ctxErrs, err)
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return s.AddMaterializedTable(name, []string{sql}, schema.Column{Name: "c"}), nil
}

func (f *fakeFactory) canceledBuilds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ctxErrs)
}

func (f *fakeFactory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.names)
}

func (f *fakeFactory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type noStats struct{}

func (noStats) TableCardinality(context.Context, []string) (float64, error) { return 1, nil }

type constProvider struct{}

func (constProvider) Cardinality(context.Context, []lattice.Column) (float64, error) { return 1, nil }

type fixture struct {
	root *schema.Schema
	mat  *schema.Schema
	l    *lattice.Lattice
}

// newFixture builds sales.F(f1,f2,f3) joined to sales.D(d1,d2) on f2 = d1,
// plus an empty schema "mat" for backing tables.
func newFixture(t *testing.T, tiles ...lattice.TileRef) fixture {
	t.Helper()
	root := schema.NewRoot()
	sales := root.AddSubSchema("sales")
	f := sales.AddTable("F", schema.Column{Name: "f1"}, schema.Column{Name: "f2"}, schema.Column{Name: "f3"})
	d := sales.AddTable("D", schema.Column{Name: "d1"}, schema.Column{Name: "d2"})

	space, err := lattice.NewSpace(noStats{}, nil)
	require.NoError(t, err)
	m := lattice.NewMutableNode(space, f.Table)
	m.AddChild(space, d.Table, []lattice.IntPair{{Source: 1, Target: 0}})
	l, err := lattice.New(space, m, lattice.Options{
		StatisticProvider: func(*lattice.Lattice) lattice.StatisticProvider { return constProvider{} },
		Tiles:             tiles,
	})
	require.NoError(t, err)
	return fixture{root: root, mat: root.AddSubSchema("mat"), l: l}
}

func newTestService(factory TableFactory) *Service {
	return NewService(NewRegistry(), Options{
		TableFactory: factory,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}
