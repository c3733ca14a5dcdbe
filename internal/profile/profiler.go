// Package profile computes distinct-value statistics over the rows of a
// lattice: the row count, the distinct count of every column, and the
// distinct count of those column groups whose count is not predicted well by
// the counts of their parts.
package profile

import (
	"context"
	"io"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

const (
	DefaultPassSize        = 200
	DefaultMinimumSurprise = 0.3

	exactDistinctLimit = 1 << 16
	cancelCheckRows    = 4096
)

// Profiler evaluates column groups in passes over the rows. Single columns
// are always evaluated in the first pass; each later pass evaluates at most
// PassSize candidate groups.
type Profiler struct {
	PassSize int
	// MinimumSurprise is the relative error, |expected-actual| /
	// (expected+actual), a group's distinct count must show against the
	// estimate from its parts for the group to be retained and extended.
	MinimumSurprise float64
	Logger          *slog.Logger
}

// Distribution is the measured distinct count of one column group.
type Distribution struct {
	Columns     []int
	Cardinality float64
	Expected    float64
	Surprise    float64
}

// unique reports whether every row has a distinct value of the group.
func (d Distribution) unique(rowCount float64) bool { return d.Cardinality >= rowCount }

// Profile is the result of profiling a set of rows.
type Profile struct {
	rowCount    float64
	columnCount int
	groups      map[string]Distribution
	order       []string
}

// RowCount returns the number of profiled rows.
func (p *Profile) RowCount() float64 { return p.rowCount }

// ColumnCount returns the width of the profiled rows.
func (p *Profile) ColumnCount() int { return p.columnCount }

// Distributions returns the retained groups in the order they were
// measured: single columns first.
func (p *Profile) Distributions() []Distribution {
	out := make([]Distribution, len(p.order))
	for i, k := range p.order {
		out[i] = p.groups[k]
	}
	return out
}

// Cardinality returns the number of distinct values of the columns in b:
// the measured count when the group was retained, otherwise an estimate
// composed from the largest retained sub-groups.
func (p *Profile) Cardinality(b *bitset.BitSet) (float64, error) {
	ords := lattice.Ordinals(b)
	for _, o := range ords {
		if o >= p.columnCount {
			return 0, domain.ErrValidation("column %d is outside the profiled row of %d columns", o, p.columnCount)
		}
	}
	return p.cardinality(ords), nil
}

func (p *Profile) cardinality(ords []int) float64 {
	if len(ords) == 0 {
		return 1
	}
	if d, ok := p.groups[groupKey(ords)]; ok {
		return d.Cardinality
	}
	var best *Distribution
	for _, k := range p.order {
		d := p.groups[k]
		if len(d.Columns) >= len(ords) || !subset(d.Columns, ords) {
			continue
		}
		if best == nil || len(d.Columns) > len(best.Columns) ||
			(len(d.Columns) == len(best.Columns) && d.Cardinality > best.Cardinality) {
			best = &d
		}
	}
	rest := slices.DeleteFunc(slices.Clone(ords), func(o int) bool { return slices.Contains(best.Columns, o) })
	return lattice.RowCount(p.rowCount, best.Cardinality, p.cardinality(rest))
}

func (p *Profile) retain(d Distribution) {
	k := groupKey(d.Columns)
	p.groups[k] = d
	p.order = append(p.order, k)
}

// Profile measures rows, each of which must have exactly columns values.
// Nil values are treated as NullSentinel.
func (pr Profiler) Profile(ctx context.Context, columns int, rows [][]any) (*Profile, error) {
	if columns <= 0 {
		return nil, domain.ErrValidation("profile requires at least one column")
	}
	for i, row := range rows {
		if len(row) != columns {
			return nil, domain.ErrValidation("row %d has %d values, expected %d", i, len(row), columns)
		}
	}
	passSize := pr.PassSize
	if passSize <= 0 {
		passSize = DefaultPassSize
	}
	logger := pr.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	prof := &Profile{
		rowCount:    float64(len(rows)),
		columnCount: columns,
		groups:      make(map[string]Distribution),
	}

	singles := make([][]int, columns)
	for c := range singles {
		singles[c] = []int{c}
	}
	counts, err := measure(ctx, rows, singles)
	if err != nil {
		return nil, err
	}
	var eligible []int
	for c, n := range counts {
		prof.retain(Distribution{Columns: singles[c], Cardinality: n, Expected: n})
		if n > 1 && n < prof.rowCount {
			eligible = append(eligible, c)
		}
	}

	seen := make(map[string]struct{})
	var queue [][]int
	enqueue := func(g []int) {
		k := groupKey(g)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		queue = append(queue, g)
	}
	extend := func(g []int) {
		last := g[len(g)-1]
		for _, c := range eligible {
			if c > last {
				enqueue(append(slices.Clone(g), c))
			}
		}
	}
	for _, c := range eligible {
		extend([]int{c})
	}

	for pass := 1; len(queue) > 0; pass++ {
		batch := queue[:min(passSize, len(queue))]
		queue = queue[len(batch):]

		counts, err := measure(ctx, rows, batch)
		if err != nil {
			return nil, err
		}
		retained := 0
		for i, g := range batch {
			actual := counts[i]
			expected := prof.cardinality(g)
			surprise := 0.0
			if expected+actual > 0 {
				surprise = math.Abs(expected-actual) / (expected + actual)
			}
			if surprise < pr.MinimumSurprise {
				continue
			}
			d := Distribution{Columns: g, Cardinality: actual, Expected: expected, Surprise: surprise}
			prof.retain(d)
			retained++
			if !d.unique(prof.rowCount) {
				extend(g)
			}
		}
		logger.Debug("profile pass", "pass", pass, "groups", len(batch), "retained", retained, "queued", len(queue))
	}
	return prof, nil
}

// measure counts the distinct values of each group in one scan per group.
// Groups are measured concurrently.
func measure(ctx context.Context, rows [][]any, groups [][]int) ([]float64, error) {
	counts := make([]float64, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, group := range groups {
		g.Go(func() error {
			c := newDistinctCounter(exactDistinctLimit)
			var buf []byte
			for r, row := range rows {
				if r%cancelCheckRows == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				buf = buf[:0]
				for _, col := range group {
					buf = appendValue(buf, row[col])
				}
				c.add(buf)
			}
			counts[i] = c.count()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func groupKey(ords []int) string {
	parts := make([]string, len(ords))
	for i, o := range ords {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

// subset reports whether every element of a is in b.
func subset(a, b []int) bool {
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	return true
}
