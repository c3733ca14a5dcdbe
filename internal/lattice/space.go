// Package lattice models a fact table and its reachable dimension tables as
// an immutable join tree, and interns the tables, join edges and root-to-node
// paths those trees are made of so that lattices can be compared by value.
package lattice

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// Space is the registry shared by the lattices of one optimizer session. It
// interns tables, steps and paths and hands out short display names.
//
// A Space is safe for concurrent use; one mutex guards all of its indices.
type Space struct {
	stats  TableStatistics
	logger *slog.Logger

	mu               sync.Mutex
	tables           map[string]*Table
	g                *graph
	simpleTableNames map[string]string
	simpleNames      map[string]struct{}
	pathMap          map[string]*Path
}

// NewSpace creates an empty Space. stats orients steps and estimates fact
// row counts for the lattices built in the space.
func NewSpace(stats TableStatistics, logger *slog.Logger) (*Space, error) {
	if stats == nil {
		return nil, domain.ErrValidation("table statistics are required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Space{
		stats:            stats,
		logger:           logger,
		tables:           make(map[string]*Table),
		g:                newGraph(),
		simpleTableNames: make(map[string]string),
		simpleNames:      make(map[string]struct{}),
		pathMap:          make(map[string]*Path),
	}, nil
}

// Statistics returns the table statistics the space was created with.
func (s *Space) Statistics() TableStatistics { return s.stats }

// Register returns the Table for t's qualified name, adding it to the join
// graph the first time the name is seen.
func (s *Space) Register(t *schema.Table) *Table {
	key := qualifiedKey(t.QualifiedName())

	s.mu.Lock()
	defer s.mu.Unlock()
	if table, ok := s.tables[key]; ok {
		return table
	}
	table := &Table{t: t}
	s.tables[key] = table
	s.g.addVertex(table)
	return table
}

// TableCount returns the number of registered tables.
func (s *Space) TableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.g.vertices)
}

// AddEdge returns the Step from source to target over keys, creating it if
// no equal step exists. keys are sorted and de-duplicated first, so any
// permutation of the same key set yields the same Step. keys must be
// non-empty, with sources that are fields of source and targets that are
// fields of target; AddEdge panics otherwise.
func (s *Space) AddEdge(source, target *Table, keys []IntPair) *Step {
	if err := CheckKeys(source, target, keys); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "addEdge from %s to %s", source, target))
	}
	keys, deduped := SortUnique(keys)
	if deduped {
		s.logger.Debug("collapsed repeated join key pairs",
			"source", source.String(), "target", target.String(), "keys", len(keys))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if step := s.g.addEdge(source, target, keys); step != nil {
		return step
	}
	for _, step := range s.g.edgesBetween(source, target) {
		if slices.Equal(step.keys, keys) {
			return step
		}
	}
	panic(errors.AssertionFailedf("addEdge failed, yet no edge present between %s and %s", source, target))
}

// SimpleName returns the short display name of t: the last component of its
// qualified name, or the full dot-joined name if another table claimed the
// short one first. The assignment never changes for the life of the space.
func (s *Space) SimpleName(t *Table) string {
	return s.simpleName(t.QualifiedName())
}

func (s *Space) simpleName(qualifiedName []string) string {
	key := qualifiedKey(qualifiedName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.simpleTableNames[key]; ok {
		return name
	}
	name := qualifiedName[len(qualifiedName)-1]
	if _, taken := s.simpleNames[name]; !taken {
		s.simpleNames[name] = struct{}{}
		s.simpleTableNames[key] = name
		return name
	}
	name = strings.Join(qualifiedName, ".")
	s.simpleTableNames[key] = name
	return name
}

// AddPath returns the interned Path for steps. A new path's ID is the number
// of paths interned before it.
func (s *Space) AddPath(steps []*Step) *Path {
	key := pathKey(steps)

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pathMap[key]; ok {
		return p
	}
	p := &Path{steps: append([]*Step(nil), steps...), id: len(s.pathMap)}
	s.pathMap[key] = p
	return p
}

// PathCount returns the number of interned paths.
func (s *Space) PathCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pathMap)
}
