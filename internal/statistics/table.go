package statistics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

// SQLTableStatistics counts table rows with SELECT COUNT(*).
type SQLTableStatistics struct {
	exec    domain.QueryExecutor
	metrics *Metrics
}

var _ lattice.TableStatistics = (*SQLTableStatistics)(nil)

// NewSQLTableStatistics creates table statistics that query through exec.
func NewSQLTableStatistics(exec domain.QueryExecutor, metrics *Metrics) *SQLTableStatistics {
	return &SQLTableStatistics{exec: exec, metrics: metrics}
}

// TableCardinality implements lattice.TableStatistics.
func (s *SQLTableStatistics) TableCardinality(ctx context.Context, qualifiedName []string) (float64, error) {
	query := "SELECT COUNT(*) FROM " + lattice.QuoteQualifiedName(qualifiedName)
	start := time.Now()
	n, err := s.exec.QueryScalar(ctx, query)
	s.metrics.observe("table_count", time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("row count of %s: %w", strings.Join(qualifiedName, "."), err)
	}
	return n, nil
}

// CachingTableStatistics memoizes another TableStatistics per qualified
// name. Failed lookups are not cached.
type CachingTableStatistics struct {
	inner   lattice.TableStatistics
	metrics *Metrics
	timeout time.Duration

	mu     sync.RWMutex
	cache  map[string]float64
	flight singleflight.Group
}

var _ lattice.TableStatistics = (*CachingTableStatistics)(nil)

// NewCachingTableStatistics wraps inner.
func NewCachingTableStatistics(inner lattice.TableStatistics, metrics *Metrics) *CachingTableStatistics {
	return &CachingTableStatistics{inner: inner, metrics: metrics, cache: make(map[string]float64)}
}

// TableCardinality implements lattice.TableStatistics.
func (s *CachingTableStatistics) TableCardinality(ctx context.Context, qualifiedName []string) (float64, error) {
	key := strings.Join(qualifiedName, "\x00")

	s.mu.RLock()
	n, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		s.metrics.hit("table")
		return n, nil
	}

	return sharedLookup(ctx, &s.flight, key, s.timeout, func(ctx context.Context) (float64, error) {
		s.mu.RLock()
		n, ok := s.cache[key]
		s.mu.RUnlock()
		if ok {
			return n, nil
		}
		s.metrics.miss("table")
		n, err := s.inner.TableCardinality(ctx, qualifiedName)
		if err != nil {
			return 0, err
		}
		s.mu.Lock()
		s.cache[key] = n
		s.mu.Unlock()
		return n, nil
	})
}
