package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	promcl "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ObserveMutationAndFetch(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()
	require.NotNil(t, reg)

	m.ObserveMutation("add_routine", nil)
	m.ObserveMutation("add_routine", nil)
	m.ObserveMutation("add_routine", errors.New("boom"))
	m.ObserveFetch("routines", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CounterSyncMutations.WithLabelValues("add_routine", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterSyncMutations.WithLabelValues("add_routine", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterSyncFetches.WithLabelValues("routines", "ok")))
}

func TestManager_NilSafe(t *testing.T) {
	var m *Manager
	m.ObserveMutation("x", nil)
	m.ObserveFetch("x", errors.New("boom"))
}

func TestSetupPrometheus(t *testing.T) {
	reg := SetupPrometheus()
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestManager_Gauges(t *testing.T) {
	m, _ := NewTestManagerAndRegistry()

	m.GaugeActiveSessions.Inc()
	m.GaugeActiveSessions.Inc()
	m.GaugeActiveSessions.Dec()
	m.GaugeLifeSignal.Set(1)

	activeSessions := &promcl.Metric{}
	require.NoError(t, m.GaugeActiveSessions.Write(activeSessions))
	assert.Equal(t, 1.0, activeSessions.GetGauge().GetValue())

	lifeSignal := &promcl.Metric{}
	require.NoError(t, m.GaugeLifeSignal.Write(lifeSignal))
	assert.Equal(t, 1.0, lifeSignal.GetGauge().GetValue())
}
