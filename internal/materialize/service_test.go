package materialize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

func TestDefineMaterialization(t *testing.T) {
	fx := newFixture(t)
	factory := &fakeFactory{}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(NewRegistry(), Options{TableFactory: factory, Metrics: metrics})
	ctx := context.Background()
	req := DefineRequest{Schema: fx.mat, SQL: "SELECT 1", ViewSchemaPath: fx.mat.Path()}

	_, err := svc.DefineMaterialization(ctx, req)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf, "lookup without create")

	req.Create = true
	m, err := svc.DefineMaterialization(ctx, req)
	require.NoError(t, err)
	e, ok := m.BackingTable()
	require.True(t, ok)
	assert.Equal(t, []string{"mat", "m"}, e.Table.QualifiedName())
	assert.Same(t, fx.root, m.RootSchema())

	again, err := svc.DefineMaterialization(ctx, req)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Equal(t, 1, factory.calls())

	other, err := svc.DefineMaterialization(ctx, DefineRequest{Schema: fx.mat, SQL: "SELECT 2", Create: true})
	require.NoError(t, err)
	e, _ = other.BackingTable()
	assert.Equal(t, "m0", e.Name, "table names are made unique")

	named, err := svc.DefineMaterialization(ctx, DefineRequest{Schema: fx.mat, SQL: "SELECT 3", SuggestedTableName: "daily", Create: true})
	require.NoError(t, err)
	e, _ = named.BackingTable()
	assert.Equal(t, "daily", e.Name)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Defined))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Built))
}

func TestDefineMaterialization_ReusesTableHoldingQuery(t *testing.T) {
	fx := newFixture(t)
	factory := &fakeFactory{}
	svc := newTestService(factory)
	existing := fx.mat.AddMaterializedTable("prebuilt", []string{"SELECT 1"}, schema.Column{Name: "x"})

	m, err := svc.DefineMaterialization(context.Background(), DefineRequest{Schema: fx.mat, SQL: "SELECT 1", Create: true})
	require.NoError(t, err)
	e, ok := m.BackingTable()
	require.True(t, ok)
	assert.Same(t, existing, e)
	assert.Equal(t, 0, factory.calls())
}

func TestDefineMaterialization_OutOfBandBuild(t *testing.T) {
	fx := newFixture(t)
	svc := newTestService(nil)
	ctx := context.Background()

	m, err := svc.DefineMaterialization(ctx, DefineRequest{Schema: fx.mat, SQL: "SELECT 1", Create: true})
	require.NoError(t, err)
	assert.Nil(t, svc.CheckValid(m.Key()), "not built yet")
	_, built, err := svc.BackingTable(m.Key())
	require.NoError(t, err)
	assert.False(t, built)
	assert.Empty(t, svc.Query(fx.root))

	entry := fx.mat.AddTable("external", schema.Column{Name: "x"})
	require.NoError(t, svc.SetBackingTable(m.Key(), entry))
	assert.Same(t, entry, svc.CheckValid(m.Key()))
	assert.Equal(t, []*Materialization{m}, svc.Query(fx.root))
	assert.Empty(t, svc.Query(schema.NewRoot()), "other root schemas see nothing")

	var nf *domain.NotFoundError
	require.ErrorAs(t, svc.SetBackingTable(Key{}, entry), &nf)
	_, _, err = svc.BackingTable(Key{})
	require.ErrorAs(t, err, &nf)
	assert.Nil(t, svc.CheckValid(Key{}))

	var ve *domain.ValidationError
	require.ErrorAs(t, svc.SetBackingTable(m.Key(), nil), &ve)
}

func TestDefineMaterialization_BuildFailureCanBeRetried(t *testing.T) {
	fx := newFixture(t)
	factory := &fakeFactory{err: errors.New("disk full")}
	svc := newTestService(factory)
	ctx := context.Background()
	req := DefineRequest{Schema: fx.mat, SQL: "SELECT 1", Create: true}

	_, err := svc.DefineMaterialization(ctx, req)
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, svc.Registry().Len(), "descriptor stays registered")

	factory.setErr(nil)
	m, err := svc.DefineMaterialization(ctx, req)
	require.NoError(t, err)
	e, ok := m.BackingTable()
	require.True(t, ok)
	assert.Equal(t, "m", e.Name, "failed build released its name")
	assert.Equal(t, 1, svc.Registry().Len())
}

func TestDefineMaterialization_ConcurrentCallersShareOne(t *testing.T) {
	fx := newFixture(t)
	factory := &fakeFactory{}
	svc := newTestService(factory)
	req := DefineRequest{Schema: fx.mat, SQL: "SELECT 1", Create: true}

	const callers = 16
	results := make([]*Materialization, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := svc.DefineMaterialization(context.Background(), req)
			assert.NoError(t, err)
			results[i] = m
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, svc.Registry().Len())
	assert.Equal(t, 1, factory.calls())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestDefineMaterialization_RequiresSchema(t *testing.T) {
	_, err := newTestService(nil).DefineMaterialization(context.Background(), DefineRequest{SQL: "SELECT 1"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

type defineResult struct {
	m   *Materialization
	err error
}

func defineAsync(ctx context.Context, svc *Service, req DefineRequest) <-chan defineResult {
	ch := make(chan defineResult, 1)
	go func() {
		m, err := svc.DefineMaterialization(ctx, req)
		ch <- defineResult{m: m, err: err}
	}()
	return ch
}

func TestDefineMaterialization_CanceledCallerDoesNotCancelBuild(t *testing.T) {
	fx := newFixture(t)
	factory := newHeldFactory()
	svc := newTestService(factory)
	req := DefineRequest{Schema: fx.mat, SQL: "SELECT 1", Create: true}

	ctx, cancel := context.WithCancel(context.Background())
	first := defineAsync(ctx, svc, req)
	<-factory.started
	second := defineAsync(context.Background(), svc, req)

	cancel()
	res := <-first
	require.ErrorIs(t, res.err, context.Canceled)

	close(factory.release)
	res = <-second
	require.NoError(t, res.err)
	e, ok := res.m.BackingTable()
	require.True(t, ok)
	assert.Equal(t, "m", e.Name)
	assert.Equal(t, 1, factory.calls())
	assert.Zero(t, factory.canceledBuilds())
}

func TestDefineMaterialization_CallerDeadlineStopsWaiting(t *testing.T) {
	fx := newFixture(t)
	factory := newHeldFactory()
	svc := newTestService(factory)
	req := DefineRequest{Schema: fx.mat, SQL: "SELECT 1", Create: true}

	first := defineAsync(context.Background(), svc, req)
	<-factory.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := svc.DefineMaterialization(ctx, req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	close(factory.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, 1, factory.calls())
}

func TestDefineMaterialization_ConcurrentNamesBuildOnce(t *testing.T) {
	fx := newFixture(t)
	factory := newHeldFactory()
	svc := newTestService(factory)
	req := DefineRequest{Schema: fx.mat, SQL: "SELECT 1", Create: true, SuggestedTableName: "a"}

	first := defineAsync(context.Background(), svc, req)
	<-factory.started
	other := req
	other.SuggestedTableName = "b"
	second := defineAsync(context.Background(), svc, other)

	close(factory.release)
	r1, r2 := <-first, <-second
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Same(t, r1.m, r2.m)
	e, ok := r1.m.BackingTable()
	require.True(t, ok)
	assert.Equal(t, "a", e.Name)
	assert.Equal(t, 1, factory.calls())
}
