// Package metrics exposes Prometheus collectors for the auth core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	obserrors "github.com/tracenation/tracenation-api/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

const namespace = "tracenation"

// AuthMetrics groups the collectors emitted by session stores, the registry
// and the HTTP guard. A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	identityCalls    *prometheus.CounterVec
	identityDuration *prometheus.HistogramVec
	roleFetches      *prometheus.CounterVec
	roleResolved     *prometheus.CounterVec
	guardDecisions   *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	evictions        prometheus.Counter
}

// NewAuthMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		identityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "calls_total",
			Help:      "Identity service calls by operation, result and error class.",
		}, []string{"op", "result", "error_class"}),
		identityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "call_duration_seconds",
			Help:      "Identity service call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		roleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roles",
			Name:      "fetches_total",
			Help:      "Role fetches on session acquisition by result and error class.",
		}, []string{"result", "error_class"}),
		roleResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roles",
			Name:      "resolved_total",
			Help:      "Canonical roles assigned to sessions.",
		}, []string{"role"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route guard decisions by state.",
		}, []string{"state"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Session stores held by the registry.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "evictions_total",
			Help:      "Session stores evicted from the registry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.identityCalls, m.identityDuration, m.roleFetches, m.roleResolved,
			m.guardDecisions, m.activeSessions, m.evictions,
		)
	}
	return m
}

// IdentityCall records one identity service call.
func (m *AuthMetrics) IdentityCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result, class := outcome(err)
	m.identityCalls.WithLabelValues(op, result, class).Inc()
	if d > 0 {
		m.identityDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// RoleFetch records a role fetch and the canonical role it produced.
func (m *AuthMetrics) RoleFetch(role string, err error) {
	if m == nil {
		return
	}
	result, class := outcome(err)
	m.roleFetches.WithLabelValues(result, class).Inc()
	m.roleResolved.WithLabelValues(role).Inc()
}

// GuardDecision counts a guard evaluation.
func (m *AuthMetrics) GuardDecision(state string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(state).Inc()
}

// SetActiveSessions reports the registry size.
func (m *AuthMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Eviction counts a registry eviction.
func (m *AuthMetrics) Eviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func outcome(err error) (result, class string) {
	if err == nil {
		return ResultSuccess, ""
	}
	return ResultError, obserrors.Classify(err)
}
