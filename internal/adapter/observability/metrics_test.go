package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	mw.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Result().StatusCode)
}

func TestInitMetrics_Idempotent(t *testing.T) {
	InitMetrics()
	assert.NotPanics(t, InitMetrics)
}

func TestRateLimitDecision_Counts(t *testing.T) {
	before := testutil.ToFloat64(RateLimitDecisionsTotal.WithLabelValues("rejected"))
	RateLimitDecision(false)
	RateLimitDecision(true)
	assert.Equal(t, before+1, testutil.ToFloat64(RateLimitDecisionsTotal.WithLabelValues("rejected")))
}

func TestLimiterBuckets_SetsGauge(t *testing.T) {
	LimiterBuckets(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(RateLimitBuckets))
}

func TestCacheLookup_SetsGauge(t *testing.T) {
	CacheLookup(true, 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(ResponseCacheEntries))
	CacheLookup(false, 8)
	assert.Equal(t, 8.0, testutil.ToFloat64(ResponseCacheEntries))
}

func TestHelpers_DoNotPanic(t *testing.T) {
	ObserveAIRequest("gemini", "generate", "ok", 150*time.Millisecond)
	AddTokens("gemini", "prompt", 0)
	AddTokens("gemini", "prompt", 42)
	GenerationAttempt("ok")
	GenerationOutcome("ok")
	UploadOutcome("ok")
	SweepResult(2, 1)
}
