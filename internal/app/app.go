// Package app wires the engine, statistics and materialization services
// from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polypheny/Polypheny-DB-sub058/internal/config"
	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/engine"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/materialize"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
	"github.com/polypheny/Polypheny-DB-sub058/internal/statistics"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg *config.Config
	DB  *sql.DB
	// Registerer receives the statistics and materialization metrics. Nil
	// disables metrics.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Dialect  engine.Dialect
	DB       *sql.DB
	Catalog  *schema.Schema
	Executor *engine.Executor
	Space    *lattice.Space
	// Statistics creates the column statistics provider of each lattice.
	Statistics  lattice.StatisticProviderFactory
	Materialize *materialize.Service

	logger *slog.Logger

	mu       sync.RWMutex
	lattices map[string]*lattice.Lattice
}

// New loads the catalog from the database and wires the services around it.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	if cfg == nil || deps.DB == nil {
		return nil, domain.ErrValidation("config and database are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dialect, err := engine.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}

	var (
		statsMetrics *statistics.Metrics
		matMetrics   *materialize.Metrics
	)
	if deps.Registerer != nil {
		statsMetrics = statistics.NewMetrics(deps.Registerer)
		matMetrics = materialize.NewMetrics(deps.Registerer)
	}

	// === Catalog ===
	catalog, err := engine.LoadInformationSchema(ctx, deps.DB, dialect)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Debug("catalog loaded", "schemas", len(catalog.SubSchemaNames()))

	// === Statistics ===
	exec := engine.NewExecutor(deps.DB, engine.ExecutorOptions{
		Timeout:           cfg.StatsQueryTimeout,
		RequestsPerSecond: cfg.StatsQueryRPS,
		Burst:             cfg.StatsQueryBurst,
	})
	tableStats := statistics.NewCachingTableStatistics(statistics.NewSQLTableStatistics(exec, statsMetrics), statsMetrics)
	space, err := lattice.NewSpace(tableStats, logger.With("component", "lattice-space"))
	if err != nil {
		return nil, err
	}
	factory, err := statistics.NewFactory(statistics.FactoryConfig{
		Kind:            cfg.StatsProvider,
		PassSize:        cfg.ProfilePassSize,
		MinimumSurprise: cfg.ProfileMinimumSurprise,
		ProfileTimeout:  cfg.StatsQueryTimeout,
	}, exec, statsMetrics, logger.With("component", "statistics"))
	if err != nil {
		return nil, err
	}

	// === Materialization ===
	svc := materialize.NewService(materialize.NewRegistry(), materialize.Options{
		TableFactory: engine.NewTableFactory(deps.DB, dialect, logger.With("component", "table-factory")),
		TablePrefix:  cfg.TablePrefix,
		Metrics:      matMetrics,
		Logger:       logger.With("component", "materialize"),
	})

	return &App{
		Dialect:     dialect,
		DB:          deps.DB,
		Catalog:     catalog,
		Executor:    exec,
		Space:       space,
		Statistics:  factory,
		Materialize: svc,
		logger:      logger,
		lattices:    make(map[string]*lattice.Lattice),
	}, nil
}

// LoadLattice decodes a YAML lattice definition, builds it over the
// catalog and registers it under the definition's name.
func (a *App) LoadLattice(r io.Reader) (*lattice.Lattice, error) {
	def, err := lattice.LoadDefinition(r)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		return nil, domain.ErrValidation("lattice definition has no name")
	}
	a.mu.RLock()
	_, taken := a.lattices[def.Name]
	a.mu.RUnlock()
	if taken {
		return nil, domain.ErrConflict("lattice %q is already loaded", def.Name)
	}

	l, err := def.Build(a.Space, a.Catalog, a.Statistics)
	if err != nil {
		return nil, fmt.Errorf("build lattice %q: %w", def.Name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, taken := a.lattices[def.Name]; taken {
		return nil, domain.ErrConflict("lattice %q is already loaded", def.Name)
	}
	a.lattices[def.Name] = l
	a.logger.Info("lattice loaded", "name", def.Name, "lattice", l.Digest(), "columns", len(l.Columns()))
	return l, nil
}

// Lattice returns the loaded lattice with the given name.
func (a *App) Lattice(name string) (*lattice.Lattice, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	l, ok := a.lattices[name]
	if !ok {
		return nil, domain.ErrNotFound("lattice %q not found", name)
	}
	return l, nil
}

// LatticeNames returns the names of the loaded lattices, sorted.
func (a *App) LatticeNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.lattices))
	for n := range a.lattices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadLatticeFile is LoadLattice over the file at path.
func (a *App) LoadLatticeFile(path string) (*lattice.Lattice, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("open lattice definition: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return a.LoadLattice(f)
}

// MaterializationSchema returns the sub-schema of the catalog that receives
// backing tables, creating it when needed.
func (a *App) MaterializationSchema(name string) *schema.Schema {
	if name == "" {
		name = "main"
	}
	return a.Catalog.AddSubSchema(name)
}

// ResolveColumns resolves column names such as "alias.column" in l.
func ResolveColumns(l *lattice.Lattice, refs []string) ([]lattice.Column, error) {
	cols := make([]lattice.Column, 0, len(refs))
	for _, r := range refs {
		c, err := l.ResolveColumn(lattice.ParseColumnRef(r))
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// ResolveMeasures parses measures such as "sum(sales.units)" and resolves
// their arguments in l.
func ResolveMeasures(l *lattice.Lattice, refs []string) ([]lattice.Measure, error) {
	measures := make([]lattice.Measure, 0, len(refs))
	for _, r := range refs {
		ref, err := lattice.ParseMeasureRef(r)
		if err != nil {
			return nil, err
		}
		m, err := l.ResolveMeasure(ref)
		if err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}
	return measures, nil
}
