package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGenerateLatency("hit", time.Millisecond)
		m.IncrementCacheHit()
		m.IncrementCacheMiss()
		m.IncrementShared()
		m.AddConflicts("pending", 3)
		m.IncrementRuleOutcome("cumulative", "met")
		m.AddRejectedEvidence(2)
	})
}

func TestMetrics_Counts(t *testing.T) {
	m := NewWith(promauto.With(prometheus.NewRegistry()))

	m.IncrementCacheHit()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.AddConflicts("pending", 2)
	m.AddConflicts("automatic", 0)
	m.IncrementRuleOutcome("rolling_window", "not_met")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Conflicts.WithLabelValues("pending")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Conflicts.WithLabelValues("automatic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuleOutcomes.WithLabelValues("rolling_window", "not_met")))
}
