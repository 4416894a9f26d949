package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordJob("COMPLETED")
	m.RecordJob("COMPLETED")
	m.RecordJob("FAILED")
	m.RecordScene("generated")
	m.RecordTrackingFrame("overlaid")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScenesTotal.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackingFrames.WithLabelValues("overlaid")))
}

func TestObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	done := m.ObserveStage("assemble")
	done()

	n, err := testutil.GatherAndCount(reg, "scenechain_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNoopDoesNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		Noop().RecordJob("COMPLETED")
		Noop().RecordJob("COMPLETED")
	})
}
