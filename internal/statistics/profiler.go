package statistics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/profile"
)

// ProfilerProvider estimates cardinality from a profile of every row of the
// lattice. The profile is computed on first use and kept for the life of the
// provider.
type ProfilerProvider struct {
	lattice  *lattice.Lattice
	exec     domain.QueryExecutor
	profiler profile.Profiler
	timeout  time.Duration
	metrics  *Metrics
	logger   *slog.Logger

	flight  singleflight.Group
	profile atomic.Pointer[profile.Profile]
}

var _ lattice.StatisticProvider = (*ProfilerProvider)(nil)

// ProfilerOptions configure ProfilerFactory.
type ProfilerOptions struct {
	Profiler profile.Profiler
	// Timeout bounds the profiling pass. Zero means no bound beyond the
	// engine's own.
	Timeout time.Duration
	Metrics *Metrics
	Logger  *slog.Logger
}

// ProfilerFactory returns a factory of profiling providers that scan the
// lattice through exec.
func ProfilerFactory(exec domain.QueryExecutor, opts ProfilerOptions) lattice.StatisticProviderFactory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(l *lattice.Lattice) lattice.StatisticProvider {
		return &ProfilerProvider{
			lattice:  l,
			exec:     exec,
			profiler: opts.Profiler,
			timeout:  opts.Timeout,
			metrics:  opts.Metrics,
			logger:   logger,
		}
	}
}

// Cardinality implements lattice.StatisticProvider.
func (p *ProfilerProvider) Cardinality(ctx context.Context, columns []lattice.Column) (float64, error) {
	prof, err := p.Profile(ctx)
	if err != nil {
		return 0, err
	}
	return prof.Cardinality(lattice.ColumnsToBitSet(columns))
}

// Profile returns the lattice's profile, computing it if no call has
// succeeded yet. Concurrent first callers share one computation. A caller
// whose ctx ends stops waiting; the computation itself carries on, bounded
// by the provider's timeout, so later callers can still use it. A failed
// computation is not kept.
func (p *ProfilerProvider) Profile(ctx context.Context) (*profile.Profile, error) {
	if prof := p.profile.Load(); prof != nil {
		return prof, nil
	}
	ch := p.flight.DoChan("profile", func() (any, error) {
		if prof := p.profile.Load(); prof != nil {
			return prof, nil
		}
		runCtx := context.WithoutCancel(ctx)
		if p.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, p.timeout)
			defer cancel()
		}
		prof, err := p.compute(runCtx)
		if err != nil {
			return nil, err
		}
		p.profile.Store(prof)
		return prof, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*profile.Profile), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ProfilerProvider) compute(ctx context.Context) (*profile.Profile, error) {
	width := len(p.lattice.Columns())
	query := p.lattice.SQL(p.lattice.AllColumns(), false, nil)

	start := time.Now()
	var rows [][]any
	err := p.exec.Scan(ctx, query, func(row []any) error {
		if len(row) != width {
			return domain.ErrValidation("profiling query returned %d columns, expected %d", len(row), width)
		}
		copied := make([]any, width)
		for i, v := range row {
			if v == nil {
				v = profile.NullSentinel
			}
			copied[i] = v
		}
		rows = append(rows, copied)
		return nil
	})
	p.metrics.observe("profile_scan", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("profile lattice %s: %w", p.lattice.Digest(), err)
	}

	profiler := p.profiler
	if profiler.Logger == nil {
		profiler.Logger = p.logger
	}
	prof, err := profiler.Profile(ctx, width, rows)
	if err != nil {
		return nil, fmt.Errorf("profile lattice %s: %w", p.lattice.Digest(), err)
	}
	p.logger.Info("lattice profiled",
		"lattice", p.lattice.Digest(),
		"rows", len(rows),
		"groups", len(prof.Distributions()),
		"duration", time.Since(start))
	return prof, nil
}
