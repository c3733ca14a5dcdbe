package statistics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts statistics lookups. A nil *Metrics records nothing.
type Metrics struct {
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates the statistics metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "statistics",
			Name:      "cache_hits_total",
			Help:      "Cardinality lookups answered from the cache.",
		}, []string{"kind"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "statistics",
			Name:      "cache_misses_total",
			Help:      "Cardinality lookups passed to the underlying provider.",
		}, []string{"kind"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Subsystem: "statistics",
			Name:      "query_duration_seconds",
			Help:      "Duration of statistics queries against the engine.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
	}
}

func (m *Metrics) hit(kind string) {
	if m != nil {
		m.CacheHits.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) miss(kind string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) observe(query string, seconds float64) {
	if m != nil {
		m.QueryDuration.WithLabelValues(query).Observe(seconds)
	}
}
