package posting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK         = "ok"
	resultRejected   = "rejected"
	resultRolledBack = "rolled_back"
	resultCritical   = "critical"
)

// Metrics counts posting outcomes per operation.
type Metrics struct {
	postings      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	compensations *prometheus.CounterVec
}

// NewMetrics registers the posting collectors on reg. A nil reg uses a private
// registry so tests can build many engines.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		postings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_postings_total",
			Help: "Posting operations by outcome.",
		}, []string{"operation", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_posting_duration_seconds",
			Help:    "Wall time of posting operations including compensation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_compensations_total",
			Help: "Rollbacks by outcome; critical means the ledgers disagree.",
		}, []string{"operation", "result"}),
	}
}

func (m *Metrics) observe(operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(seconds)
	if result == resultRolledBack || result == resultCritical {
		m.compensations.WithLabelValues(operation, result).Inc()
	}
}
