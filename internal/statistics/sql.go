// Package statistics provides the cardinality estimators a lattice can be
// built with, and the table row counts a lattice space orients its join
// edges by.
package statistics

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

// maxParallelQueries bounds the per-column queries one multi-column estimate
// runs at once.
const maxParallelQueries = 4

// SQLProvider estimates cardinality by running a distinct-count query over
// the lattice for each column. Several columns are combined with
// lattice.RowCount, which assumes the columns are independent.
type SQLProvider struct {
	lattice *lattice.Lattice
	exec    domain.QueryExecutor
	metrics *Metrics
}

var _ lattice.StatisticProvider = (*SQLProvider)(nil)

// SQLFactory returns a factory of SQL providers that query through exec.
func SQLFactory(exec domain.QueryExecutor, metrics *Metrics) lattice.StatisticProviderFactory {
	return func(l *lattice.Lattice) lattice.StatisticProvider {
		return &SQLProvider{lattice: l, exec: exec, metrics: metrics}
	}
}

// Cardinality implements lattice.StatisticProvider.
func (p *SQLProvider) Cardinality(ctx context.Context, columns []lattice.Column) (float64, error) {
	switch len(columns) {
	case 0:
		return 1, nil
	case 1:
		return p.columnCardinality(ctx, columns[0])
	}

	counts := make([]float64, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)
	for i, c := range columns {
		g.Go(func() error {
			n, err := p.columnCardinality(gctx, c)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	factCount, err := p.lattice.FactRowCount(ctx)
	if err != nil {
		return 0, err
	}
	return math.Trunc(lattice.RowCount(factCount, counts...)), nil
}

func (p *SQLProvider) columnCardinality(ctx context.Context, c lattice.Column) (float64, error) {
	query := p.lattice.CountSQL(lattice.BitSetOf(c.Ordinal))
	start := time.Now()
	n, err := p.exec.QueryScalar(ctx, query)
	p.metrics.observe("count_distinct", time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("cardinality of %s: %w", c, err)
	}
	return n, nil
}
