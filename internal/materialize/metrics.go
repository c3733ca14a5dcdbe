package materialize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts registry activity. A nil *Metrics records nothing.
type Metrics struct {
	Defined       prometheus.Counter
	Built         prometheus.Counter
	BuildFailures prometheus.Counter
	TileLookups   *prometheus.CounterVec
}

// NewMetrics creates the materialization metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Defined: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "materialize",
			Name:      "defined_total",
			Help:      "Materializations registered.",
		}),
		Built: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "materialize",
			Name:      "built_total",
			Help:      "Backing tables created.",
		}),
		BuildFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "materialize",
			Name:      "build_failures_total",
			Help:      "Backing table creations that failed.",
		}),
		TileLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "materialize",
			Name:      "tile_lookups_total",
			Help:      "Tile requests by how they were answered.",
		}, []string{"match"}),
	}
}

func (m *Metrics) defined() {
	if m != nil {
		m.Defined.Inc()
	}
}

func (m *Metrics) built(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BuildFailures.Inc()
		return
	}
	m.Built.Inc()
}

func (m *Metrics) tileLookup(match Match) {
	if m != nil {
		m.TileLookups.WithLabelValues(string(match)).Inc()
	}
}
