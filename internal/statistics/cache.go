package statistics

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

// CachingProvider memoizes another provider's answers per ordered column
// list. Entries are never invalidated; a lattice does not change once built.
// Failed lookups are not cached. Concurrent callers for one column list
// share a lookup, and each stops waiting when its own context ends.
type CachingProvider struct {
	inner   lattice.StatisticProvider
	metrics *Metrics
	timeout time.Duration

	mu     sync.RWMutex
	cache  map[string]float64
	flight singleflight.Group
}

var _ lattice.StatisticProvider = (*CachingProvider)(nil)

// NewCachingProvider wraps inner.
func NewCachingProvider(inner lattice.StatisticProvider, metrics *Metrics) *CachingProvider {
	return &CachingProvider{inner: inner, metrics: metrics, cache: make(map[string]float64)}
}

// Cached returns a factory that wraps every provider made by factory in a
// CachingProvider.
func Cached(factory lattice.StatisticProviderFactory, metrics *Metrics) lattice.StatisticProviderFactory {
	return func(l *lattice.Lattice) lattice.StatisticProvider {
		return NewCachingProvider(factory(l), metrics)
	}
}

// Cardinality implements lattice.StatisticProvider.
func (p *CachingProvider) Cardinality(ctx context.Context, columns []lattice.Column) (float64, error) {
	key := columnsKey(columns)

	p.mu.RLock()
	n, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		p.metrics.hit("column")
		return n, nil
	}

	return sharedLookup(ctx, &p.flight, key, p.timeout, func(ctx context.Context) (float64, error) {
		p.mu.RLock()
		n, ok := p.cache[key]
		p.mu.RUnlock()
		if ok {
			return n, nil
		}
		p.metrics.miss("column")
		n, err := p.inner.Cardinality(ctx, columns)
		if err != nil {
			return 0, err
		}
		p.mu.Lock()
		p.cache[key] = n
		p.mu.Unlock()
		return n, nil
	})
}

func columnsKey(columns []lattice.Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = strconv.Itoa(c.Ordinal)
	}
	return strings.Join(parts, ",")
}
