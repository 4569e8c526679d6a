// Package metrics registers the server's Prometheus collectors: active
// session and SSE stream gauges, auth outcome counters, and token
// issuance counters. Served on /metrics when enabled in config.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthOutcome labels the Auth counter's result dimension.
type AuthOutcome string

const (
	AuthOutcomeOK                AuthOutcome = "ok"
	AuthOutcomeInsufficientScope AuthOutcome = "insufficient_scope"
	AuthOutcomeInvalidToken      AuthOutcome = "invalid_token"
	AuthOutcomeExpired           AuthOutcome = "expired"
)

// GrantType labels the token issuance counter.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeRefreshToken      GrantType = "refresh_token"
	GrantTypeClientCredentials GrantType = "client_credentials"
)

// Registry holds the server's collectors, bound to a given prometheus
// registerer so tests can use an isolated registry instead of the
// global default one.
type Registry struct {
	ActiveSessions prometheus.Gauge
	ActiveStreams  prometheus.Gauge
	AuthOutcomes   *prometheus.CounterVec
	TokensIssued   *prometheus.CounterVec
}

// NewRegistry constructs and registers the server's collectors against
// reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcpref_active_sessions",
			Help: "Number of currently active MCP sessions.",
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcpref_active_sse_streams",
			Help: "Number of currently active SSE streams.",
		}),
		AuthOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpref_auth_outcomes_total",
			Help: "Count of authentication/authorization outcomes by result.",
		}, []string{"result"}),
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpref_tokens_issued_total",
			Help: "Count of tokens issued by grant type.",
		}, []string{"grant_type"}),
	}
}

// RecordAuthOutcome increments the auth outcome counter for result.
func (r *Registry) RecordAuthOutcome(result AuthOutcome) {
	r.AuthOutcomes.WithLabelValues(string(result)).Inc()
}

// RecordTokenIssued increments the token issuance counter for grantType.
func (r *Registry) RecordTokenIssued(grantType GrantType) {
	r.TokensIssued.WithLabelValues(string(grantType)).Inc()
}

// SetActiveSessions sets the active session gauge to count.
func (r *Registry) SetActiveSessions(count int) {
	r.ActiveSessions.Set(float64(count))
}

// SetActiveStreams sets the active SSE stream gauge to count.
func (r *Registry) SetActiveStreams(count int) {
	r.ActiveStreams.Set(float64(count))
}
