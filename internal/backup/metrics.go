package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks restore runs.
type Metrics struct {
	runs *prometheus.CounterVec
	rows *prometheus.CounterVec
}

// NewMetrics registers the restore collectors on reg; nil uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_restore_runs_total",
			Help: "Restore attempts by outcome.",
		}, []string{"result"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_restore_rows_total",
			Help: "Rows touched by restores per table and action.",
		}, []string{"table", "action"}),
	}
}

func (m *Metrics) run(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}

func (m *Metrics) rowsTouched(table, action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rows.WithLabelValues(table, action).Add(float64(n))
}
