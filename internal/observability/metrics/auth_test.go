package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

func TestAuthMetrics_NilIsNoop(t *testing.T) {
	var m *AuthMetrics
	assert.NotPanics(t, func() {
		m.IdentityCall("sign_in", time.Millisecond, nil)
		m.RoleFetch("citoyen", errors.New("x"))
		m.GuardDecision("granted")
		m.SetActiveSessions(3)
		m.Eviction()
	})
}

func TestAuthMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuthMetrics(reg)

	m.IdentityCall("sign_in", 5*time.Millisecond, domainauth.ErrInvalidCredentials)
	m.IdentityCall("sign_in", 5*time.Millisecond, nil)
	m.RoleFetch("citoyen", domainauth.NewError(domainauth.KindRoleFetchFailure, "boom", nil))
	m.GuardDecision("pending")
	m.GuardDecision("pending")
	m.SetActiveSessions(2)
	m.Eviction()

	assert.InDelta(t, 1, testutil.ToFloat64(m.identityCalls.WithLabelValues("sign_in", ResultError, "invalid_credentials")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.identityCalls.WithLabelValues("sign_in", ResultSuccess, "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.roleFetches.WithLabelValues(ResultError, "role_fetch_failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.roleResolved.WithLabelValues("citoyen")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.guardDecisions.WithLabelValues("pending")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.activeSessions), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.evictions), 0)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}
