package materialize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// DefaultTablePrefix is the name given to backing tables when the caller
// suggests none. Clashes get a numeric suffix.
const DefaultTablePrefix = "m"

// DefaultBuildTimeout bounds a backing table build once it has started.
const DefaultBuildTimeout = 10 * time.Minute

// TableFactory builds the backing table of a materialization. CreateTable
// must run sql into a new table called name in s and register the table in
// s, recording sql on the entry.
type TableFactory interface {
	CreateTable(ctx context.Context, s *schema.Schema, name, sql string) (*schema.TableEntry, error)
}

// Options configure a Service.
type Options struct {
	// TableFactory builds backing tables. Without one, backing tables are
	// attached out of band with SetBackingTable.
	TableFactory TableFactory
	TablePrefix  string
	// BuildTimeout bounds each build. Zero means DefaultBuildTimeout.
	BuildTimeout time.Duration
	Metrics      *Metrics
	Logger       *slog.Logger
}

// Service defines materializations and tiles over a Registry.
type Service struct {
	registry    *Registry
	factory     TableFactory
	tablePrefix  string
	buildTimeout time.Duration
	metrics      *Metrics
	logger       *slog.Logger

	builds   singleflight.Group
	mu       sync.Mutex
	reserved map[*schema.Schema]map[string]struct{}
}

// NewService creates a Service over registry.
func NewService(registry *Registry, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	timeout := opts.BuildTimeout
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	return &Service{
		registry:     registry,
		factory:      opts.TableFactory,
		tablePrefix:  prefix,
		buildTimeout: timeout,
		metrics:      opts.Metrics,
		logger:       logger,
		reserved:     make(map[*schema.Schema]map[string]struct{}),
	}
}

// Registry returns the registry the service writes to.
func (s *Service) Registry() *Registry { return s.registry }

// DefineRequest describes a materialization to look up or create.
type DefineRequest struct {
	Schema         *schema.Schema
	SQL            string
	ViewSchemaPath []string
	// SuggestedTableName names the backing table; DefaultTablePrefix or the
	// service's prefix is used when empty.
	SuggestedTableName string
	// Create registers the materialization if none exists and builds its
	// backing table if it has none.
	Create bool
}

// DefineMaterialization returns the materialization for the request's query
// signature. With Create set, a missing one is registered, and its backing
// table is taken from a table of Schema that already holds the query or
// built with the table factory. Concurrent calls for one signature share a
// single materialization.
func (s *Service) DefineMaterialization(ctx context.Context, req DefineRequest) (*Materialization, error) {
	return s.define(ctx, req, nil)
}

func (s *Service) define(ctx context.Context, req DefineRequest, tile *lattice.TileKey) (*Materialization, error) {
	if req.Schema == nil {
		return nil, domain.ErrValidation("schema is required")
	}
	q := NewQueryKey(req.SQL, req.Schema, req.ViewSchemaPath)
	m, ok := s.registry.ByQuery(q)
	if !ok {
		if !req.Create {
			return nil, domain.ErrNotFound("no materialization for query %q", req.SQL)
		}
		var created bool
		var err error
		m, created, err = s.registry.GetOrRegister(q, tile, func(key Key) (*Materialization, error) {
			return newMaterialization(key, req.Schema.Root(), req.SQL, req.ViewSchemaPath, tile)
		})
		if err != nil {
			return nil, err
		}
		if created {
			s.metrics.defined()
			s.logger.Info("materialization defined",
				"key", m.Key().String(),
				"schema", strings.Join(req.Schema.Path(), "."),
				"tile", tileString(tile))
		}
	}
	if req.Create {
		if err := s.ensureBuilt(ctx, m, req.Schema, req.SuggestedTableName); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ensureBuilt builds m's backing table unless it has one. Callers asking
// for the same name share one build; a caller whose ctx ends stops waiting
// while the build runs on, bounded by the build timeout.
func (s *Service) ensureBuilt(ctx context.Context, m *Materialization, sch *schema.Schema, suggested string) error {
	if _, ok := m.BackingTable(); ok {
		return nil
	}
	if e, ok := sch.TableBySQL(m.SQL()); ok {
		m.setBackingTable(e)
		return nil
	}
	if s.factory == nil {
		return nil
	}
	if suggested == "" {
		suggested = s.tablePrefix
	}
	ch := s.builds.DoChan(m.Key().String()+"\x00"+suggested, func() (any, error) {
		m.buildMu.Lock()
		defer m.buildMu.Unlock()
		if _, ok := m.BackingTable(); ok {
			return nil, nil
		}
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		return nil, s.build(runCtx, m, sch, suggested)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) build(ctx context.Context, m *Materialization, sch *schema.Schema, suggested string) error {
	name := s.reserveName(sch, suggested)
	defer s.releaseName(sch, name)

	e, err := s.factory.CreateTable(ctx, sch, name, m.SQL())
	s.metrics.built(err)
	if err != nil {
		s.logger.Warn("materialization build failed", "key", m.Key().String(), "table", name, "error", err)
		return fmt.Errorf("build materialization %s: %w", m.Key(), err)
	}
	m.setBackingTable(e)
	s.logger.Info("materialization built", "key", m.Key().String(), "table", e.Table.String())
	return nil
}

// reserveName picks the first of name, name0, name1, ... that is neither a
// table of sch nor reserved by a build in progress.
func (s *Service) reserveName(sch *schema.Schema, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := s.reserved[sch]
	if taken == nil {
		taken = make(map[string]struct{})
		s.reserved[sch] = taken
	}
	candidate := name
	for i := 0; ; i++ {
		_, exists := sch.Table(candidate)
		_, busy := taken[candidate]
		if !exists && !busy {
			taken[candidate] = struct{}{}
			return candidate
		}
		candidate = name + strconv.Itoa(i)
	}
}

func (s *Service) releaseName(sch *schema.Schema, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved[sch], name)
}

// SetBackingTable attaches a table built out of band.
func (s *Service) SetBackingTable(key Key, entry *schema.TableEntry) error {
	if entry == nil {
		return domain.ErrValidation("backing table is required")
	}
	m, ok := s.registry.Get(key)
	if !ok {
		return domain.ErrNotFound("materialization %s not found", key)
	}
	m.setBackingTable(entry)
	return nil
}

// CheckValid returns the backing table of the materialization with key, or
// nil if there is no such materialization or it has not been built.
func (s *Service) CheckValid(key Key) *schema.TableEntry {
	m, ok := s.registry.Get(key)
	if !ok {
		return nil
	}
	e, _ := m.BackingTable()
	return e
}

// BackingTable returns the backing table of the materialization with key.
// The boolean is false while the table has not been built.
func (s *Service) BackingTable(key Key) (*schema.TableEntry, bool, error) {
	m, ok := s.registry.Get(key)
	if !ok {
		return nil, false, domain.ErrNotFound("materialization %s not found", key)
	}
	e, built := m.BackingTable()
	return e, built, nil
}

// Query returns the built materializations in the schema tree rooted at
// root, in registration order.
func (s *Service) Query(root *schema.Schema) []*Materialization {
	var out []*Materialization
	for _, m := range s.registry.All() {
		if m.RootSchema() != root {
			continue
		}
		if _, ok := m.BackingTable(); ok {
			out = append(out, m)
		}
	}
	return out
}
