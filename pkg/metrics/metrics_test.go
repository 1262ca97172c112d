package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("careportal")

	m.TokenIssued("approval")
	m.TokenIssued("approval")
	m.TokenConsumed("approval", "ok")
	m.Notification("activation", false)
	m.Reaped(3)
	m.Reaped(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokensIssued.WithLabelValues("approval")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensConsumed.WithLabelValues("approval", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("activation", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TokensReaped))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TokenIssued("approval")
		m.AccountTransition("activated")
		m.AssignmentTransition("accepted")
		m.Notification("activation", true)
		m.Reaped(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("careportal")
	m.AccountTransition("activated")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `careportal_account_transitions_total{transition="activated"} 1`)
}
