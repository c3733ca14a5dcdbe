package statistics

import (
	"log/slog"
	"time"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/profile"
)

// Provider kinds accepted by NewFactory.
const (
	KindSQL           = "sql"
	KindProfile       = "profile"
	KindCachedSQL     = "cached-sql"
	KindCachedProfile = "cached-profile"
)

// FactoryConfig selects and configures a provider factory.
type FactoryConfig struct {
	Kind            string
	PassSize        int
	MinimumSurprise float64
	ProfileTimeout  time.Duration
}

// NewFactory returns the provider factory named by cfg.Kind.
func NewFactory(cfg FactoryConfig, exec domain.QueryExecutor, metrics *Metrics, logger *slog.Logger) (lattice.StatisticProviderFactory, error) {
	profiled := func() lattice.StatisticProviderFactory {
		return ProfilerFactory(exec, ProfilerOptions{
			Profiler: profile.Profiler{PassSize: cfg.PassSize, MinimumSurprise: cfg.MinimumSurprise},
			Timeout:  cfg.ProfileTimeout,
			Metrics:  metrics,
			Logger:   logger,
		})
	}
	switch cfg.Kind {
	case KindSQL:
		return SQLFactory(exec, metrics), nil
	case KindProfile:
		return profiled(), nil
	case KindCachedSQL, "":
		return Cached(SQLFactory(exec, metrics), metrics), nil
	case KindCachedProfile:
		return Cached(profiled(), metrics), nil
	default:
		return nil, domain.ErrValidation("unknown statistics provider %q", cfg.Kind)
	}
}
