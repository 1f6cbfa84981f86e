package explore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/speakeasy-api/diffvm/solver"
)

// Metrics are the exploration counters. Each Explorer registers its own set
// with the registerer it is given.
type Metrics struct {
	StatesForked     prometheus.Counter
	StatesMerged     prometheus.Counter
	MergeAttempts    prometheus.Counter
	StatesTerminated prometheus.Counter
	SolverQueries    *prometheus.CounterVec
	WorklistSize     prometheus.Gauge
}

// NewMetrics creates the exploration metrics on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StatesForked: f.NewCounter(prometheus.CounterOpts{
			Namespace: "diffvm",
			Subsystem: "explore",
			Name:      "states_forked_total",
			Help:      "States created by a feasible two-way fork",
		}),
		StatesMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "diffvm",
			Subsystem: "explore",
			Name:      "states_merged_total",
			Help:      "States absorbed by a merge",
		}),
		MergeAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "diffvm",
			Subsystem: "explore",
			Name:      "merge_attempts_total",
			Help:      "States offered for merging",
		}),
		StatesTerminated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "diffvm",
			Subsystem: "explore",
			Name:      "states_terminated_total",
			Help:      "States with no successors",
		}),
		SolverQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diffvm",
			Subsystem: "explore",
			Name:      "solver_queries_total",
			Help:      "Feasibility queries by result",
		}, []string{"result"}),
		WorklistSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "diffvm",
			Subsystem: "explore",
			Name:      "worklist_size",
			Help:      "States waiting to be stepped",
		}),
	}
}

func (m *Metrics) observeQuery(v solver.Validity) {
	m.SolverQueries.WithLabelValues(v.String()).Inc()
}
