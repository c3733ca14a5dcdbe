package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/polypheny/Polypheny-DB-sub058/internal/app"
	"github.com/polypheny/Polypheny-DB-sub058/internal/config"
	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/engine"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

// session is an opened database with the wired app and the loaded lattice.
type session struct {
	cfg      *config.Config
	app      *app.App
	lattice  *lattice.Lattice
	registry *prometheus.Registry
	logger   *slog.Logger
}

// withSession opens a session from the environment and flags, runs fn,
// and closes the database.
func withSession(cmd *cobra.Command, f *globalFlags, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := config.LoadDotEnv(f.envFile); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.DBDriver = strings.ToLower(f.driver)
	}
	if flags.Changed("dsn") {
		cfg.DBDSN = f.dsn
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		logger.Debug(w)
	}

	dialect, err := engine.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	db, err := engine.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if f.demo {
		if err := app.SeedDemo(ctx, db); err != nil {
			return err
		}
	}
	if f.initScript != "" {
		if err := runInitScript(ctx, db, f.initScript, logger); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	a, err := app.New(ctx, app.Deps{Cfg: cfg, DB: db, Registerer: registry, Logger: logger})
	if err != nil {
		return err
	}

	var l *lattice.Lattice
	switch {
	case f.lattice != "":
		l, err = a.LoadLatticeFile(f.lattice)
	case f.demo:
		l, err = a.LoadLattice(strings.NewReader(app.DemoLattice))
	default:
		err = domain.ErrValidation("a lattice definition is required: pass --lattice or --demo")
	}
	if err != nil {
		return err
	}

	s := &session{cfg: cfg, app: a, lattice: l, registry: registry, logger: logger}
	if err := fn(ctx, s); err != nil {
		return err
	}
	if f.showMetrics {
		return s.printMetrics(cmd)
	}
	return nil
}

func runInitScript(ctx context.Context, db *sql.DB, path string, logger *slog.Logger) error {
	file, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("open init script: %w", err)
	}
	defer file.Close() //nolint:errcheck
	n, err := app.RunScript(ctx, db, file)
	if err != nil {
		return fmt.Errorf("init script %s: %w", path, err)
	}
	logger.Info("init script applied", "path", path, "statements", n)
	return nil
}

// printMetrics writes every counter and histogram sample count, sorted by
// name and labels.
func (s *session) printMetrics(cmd *cobra.Command) error {
	families, err := s.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				lines = append(lines, fmt.Sprintf("%s_count %d", name, m.GetHistogram().GetSampleCount()))
			}
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(cmd.ErrOrStderr(), line); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) resolveColumns(refs []string) ([]lattice.Column, error) {
	return app.ResolveColumns(s.lattice, refs)
}

func (s *session) resolveMeasures(refs []string) ([]lattice.Measure, error) {
	return app.ResolveMeasures(s.lattice, refs)
}
