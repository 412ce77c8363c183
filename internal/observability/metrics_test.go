package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	m.ReportsReceived.WithLabelValues("ai").Inc()
	m.ReportsReceived.WithLabelValues("ai").Inc()
	m.DetectionsTotal.WithLabelValues("critical").Inc()
	m.DuplicatesTotal.Inc()
	m.PipelineFailures.WithLabelValues("detection").Inc()

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.ReportsReceived.WithLabelValues("ai")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.DuplicatesTotal), 1e-9)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["roadwatch_reports_received_total"])
	assert.True(t, names["roadwatch_pipeline_failures_total"])
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		_ = NewMetrics()
		_ = NewMetrics()
	})
}
