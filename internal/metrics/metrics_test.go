package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(metric))
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, g.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestNewRegistry_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	// Labelled counter vectors only gather once a label value is observed.
	r.RecordAuthOutcome(AuthOutcomeOK)
	r.RecordTokenIssued(GrantTypeAuthorizationCode)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestRecordAuthOutcome_IncrementsLabeledCounter(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.RecordAuthOutcome(AuthOutcomeOK)
	r.RecordAuthOutcome(AuthOutcomeOK)
	r.RecordAuthOutcome(AuthOutcomeInsufficientScope)

	assert.Equal(t, float64(2), counterValue(t, r.AuthOutcomes, "ok"))
	assert.Equal(t, float64(1), counterValue(t, r.AuthOutcomes, "insufficient_scope"))
}

func TestRecordTokenIssued_IncrementsLabeledCounter(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.RecordTokenIssued(GrantTypeAuthorizationCode)
	r.RecordTokenIssued(GrantTypeRefreshToken)
	r.RecordTokenIssued(GrantTypeRefreshToken)

	assert.Equal(t, float64(1), counterValue(t, r.TokensIssued, "authorization_code"))
	assert.Equal(t, float64(2), counterValue(t, r.TokensIssued, "refresh_token"))
}

func TestSetActiveSessions_UpdatesGauge(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.SetActiveSessions(5)
	assert.Equal(t, float64(5), gaugeValue(t, r.ActiveSessions))

	r.SetActiveSessions(3)
	assert.Equal(t, float64(3), gaugeValue(t, r.ActiveSessions))
}

func TestSetActiveStreams_UpdatesGauge(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.SetActiveStreams(2)
	assert.Equal(t, float64(2), gaugeValue(t, r.ActiveStreams))
}
