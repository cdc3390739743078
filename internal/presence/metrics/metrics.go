package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the presence module.
type Metrics struct {
	// Report generation latency by cache result
	GenerateLatency *prometheus.HistogramVec

	// Report cache lookups by result
	CacheLookups *prometheus.CounterVec

	// Callers that shared an in-flight generation
	SharedGenerations prometheus.Counter

	// Conflict records by resolution
	Conflicts *prometheus.CounterVec

	// Rule evaluation outcomes by rule type and outcome
	RuleOutcomes *prometheus.CounterVec

	// Evidence records rejected by validation
	RejectedEvidence prometheus.Counter
}

// New creates a Metrics instance with all presence module metrics registered
// on the default registry.
func New() *Metrics {
	return NewWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewWith registers the metrics through factory. Tests pass a factory over a
// fresh registry.
func NewWith(factory promauto.Factory) *Metrics {
	return &Metrics{
		GenerateLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "residency_report_generate_duration_seconds",
			Help:    "Duration of report generation including cache lookup",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"cache"}), // cache: "hit", "miss", "shared"

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "residency_report_cache_lookups_total",
			Help: "Total report cache lookups by result",
		}, []string{"result"}),

		SharedGenerations: factory.NewCounter(prometheus.CounterOpts{
			Name: "residency_report_shared_generations_total",
			Help: "Total report requests served by an in-flight generation",
		}),

		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "residency_conflicts_total",
			Help: "Total conflict records in generated reports by resolution",
		}, []string{"resolution"}),

		RuleOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "residency_rule_outcomes_total",
			Help: "Total rule evaluation outcomes by rule type",
		}, []string{"rule_type", "outcome"}),

		RejectedEvidence: factory.NewCounter(prometheus.CounterOpts{
			Name: "residency_evidence_rejected_total",
			Help: "Total evidence records rejected by validation",
		}),
	}
}

// ObserveGenerateLatency records the duration of a report request.
func (m *Metrics) ObserveGenerateLatency(cache string, d time.Duration) {
	if m != nil {
		m.GenerateLatency.WithLabelValues(cache).Observe(d.Seconds())
	}
}

// IncrementCacheHit records a report served from cache.
func (m *Metrics) IncrementCacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

// IncrementCacheMiss records a report that had to be generated.
func (m *Metrics) IncrementCacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

// IncrementShared records a caller that joined an in-flight generation.
func (m *Metrics) IncrementShared() {
	if m != nil {
		m.SharedGenerations.Inc()
	}
}

// AddConflicts records n conflict records with the given resolution.
func (m *Metrics) AddConflicts(resolution string, n int) {
	if m != nil && n > 0 {
		m.Conflicts.WithLabelValues(resolution).Add(float64(n))
	}
}

// IncrementRuleOutcome records one rule evaluation.
func (m *Metrics) IncrementRuleOutcome(ruleType, outcome string) {
	if m != nil {
		m.RuleOutcomes.WithLabelValues(ruleType, outcome).Inc()
	}
}

// AddRejectedEvidence records n records rejected by validation.
func (m *Metrics) AddRejectedEvidence(n int) {
	if m != nil && n > 0 {
		m.RejectedEvidence.Add(float64(n))
	}
}
