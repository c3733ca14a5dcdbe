package lattice

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

// TableStatistics estimates table-level statistics. It drives the direction
// heuristic of Step.IsBackwards and the fact row count of a Lattice.
type TableStatistics interface {
	TableCardinality(ctx context.Context, qualifiedName []string) (float64, error)
}

// Step is a directed equi-join edge between two tables. Steps are interned
// by a Space: one Step per (source, target, keys) triple.
type Step struct {
	id        int
	source    *Table
	target    *Table
	keys      []IntPair
	keyString string
}

// CheckKeys reports a ValidationError unless keys is a non-empty list of
// pairs joining a field of source to a field of target.
func CheckKeys(source, target *Table, keys []IntPair) error {
	if source == nil || target == nil {
		return domain.ErrValidation("join requires a source and a target table")
	}
	if len(keys) == 0 {
		return domain.ErrValidation("join from %s to %s has no keys", source, target)
	}
	for _, k := range keys {
		if k.Source < 0 || k.Source >= source.FieldCount() {
			return domain.ErrValidation("join key %d is not a column of %s", k.Source, source)
		}
		if k.Target < 0 || k.Target >= target.FieldCount() {
			return domain.ErrValidation("join key %d is not a column of %s", k.Target, target)
		}
	}
	return nil
}

func newStep(id int, source, target *Table, keys []IntPair) *Step {
	var b strings.Builder
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(source.Field(k.Source).Name)
		b.WriteByte(':')
		b.WriteString(target.Field(k.Target).Name)
	}
	return &Step{id: id, source: source, target: target, keys: keys, keyString: b.String()}
}

// Source returns the table the step starts from.
func (s *Step) Source() *Table { return s.source }

// Target returns the table the step leads to.
func (s *Step) Target() *Table { return s.target }

// Keys returns a copy of the sorted, duplicate-free key pairs.
func (s *Step) Keys() []IntPair { return slices.Clone(s.keys) }

// KeyString renders the keys as " source_col:target_col" pairs.
func (s *Step) KeyString() string { return s.keyString }

func (s *Step) String() string {
	return fmt.Sprintf("Step(%s, %s,%s)", s.source, s.target, s.keyString)
}

// IsBackwards reports whether the step runs from the "one" side of the join
// to the "many" side. This is a heuristic until key metadata is available:
// for a self-join the lower join-column ordinal is taken as the referenced
// side; otherwise the table with fewer estimated rows is.
func (s *Step) IsBackwards(ctx context.Context, stats TableStatistics) (bool, error) {
	if s.source == s.target {
		if len(s.keys) == 0 {
			return false, domain.ErrValidation("step %s has no keys", s)
		}
		return s.keys[0].Source < s.keys[0].Target, nil
	}
	if stats == nil {
		return false, domain.ErrValidation("table statistics are required to orient step %s", s)
	}
	sourceRows, err := stats.TableCardinality(ctx, s.source.QualifiedName())
	if err != nil {
		return false, fmt.Errorf("row count of %s: %w", s.source, err)
	}
	targetRows, err := stats.TableCardinality(ctx, s.target.QualifiedName())
	if err != nil {
		return false, fmt.Errorf("row count of %s: %w", s.target, err)
	}
	return sourceRows < targetRows, nil
}
