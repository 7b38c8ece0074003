package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveOTP("request_code", "success")
	m.ObserveOTP("request_code", "success")
	m.ObserveAdmission("admin", "redirect_home")
	m.CatalogCacheHit()
	m.CatalogCacheMiss()
	m.CatalogCacheMiss()
	m.ObserveHTTP("GET", "/specification/{productID}", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OTPOutcomesTotal.WithLabelValues("request_code", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionsTotal.WithLabelValues("admin", "redirect_home")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CatalogCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/specification/{productID}", "200")))
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveOTP("verify_code", "failure")
		m.ObserveAdmission("protected", "allow")
		m.CatalogCacheHit()
		m.CatalogCacheMiss()
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveOTP("verify_code", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `snuffspec_otp_outcomes_total{operation="verify_code",outcome="success"} 1`))
}
