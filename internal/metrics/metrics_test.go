package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })
	require.Panics(t, func() { Register(reg) }, "second registration must panic")

	before := testutil.ToFloat64(ThreatDetections.WithLabelValues("cheating"))
	ThreatDetections.WithLabelValues("cheating").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ThreatDetections.WithLabelValues("cheating")))

	n, err := testutil.GatherAndCount(reg, "arcadia_threat_detections_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
