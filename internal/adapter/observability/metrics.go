package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"provider", "operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated tokens sent to and received from the provider",
		},
		[]string{"provider", "direction"},
	)

	GenerationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_attempts_total",
			Help: "Generation attempts by result (ok, empty, error)",
		},
		[]string{"result"},
	)
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_total",
			Help: "Logical generations by outcome",
		},
		[]string{"outcome"},
	)

	ResponseCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_lookups_total",
			Help: "Response cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
	ResponseCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "response_cache_entries",
			Help: "Number of entries held by the response cache",
		},
	)

	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Daily quota decisions (admitted, rejected)",
		},
		[]string{"decision"},
	)
	RateLimitBuckets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limit_buckets",
			Help: "Live (caller, day) buckets held by the daily limiter",
		},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Image uploads by outcome",
		},
		[]string{"outcome"},
	)
	SweeperDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_sweeper_deleted_total",
			Help: "Uploaded artifacts removed by the retention sweeper",
		},
	)
	SweeperErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_sweeper_errors_total",
			Help: "Per-artifact failures encountered by the retention sweeper",
		},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			GenerationAttemptsTotal,
			GenerationsTotal,
			ResponseCacheLookupsTotal,
			ResponseCacheEntries,
			RateLimitDecisionsTotal,
			RateLimitBuckets,
			UploadsTotal,
			SweeperDeletedTotal,
			SweeperErrorsTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one provider round trip.
func ObserveAIRequest(provider, op, outcome string, dur time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, op, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider, op).Observe(dur.Seconds())
}

// AddTokens records estimated token usage in the given direction ("prompt" or "completion").
func AddTokens(provider, direction string, n int) {
	if n <= 0 {
		return
	}
	AITokensTotal.WithLabelValues(provider, direction).Add(float64(n))
}

func GenerationAttempt(result string) {
	GenerationAttemptsTotal.WithLabelValues(result).Inc()
}

func GenerationOutcome(outcome string) {
	GenerationsTotal.WithLabelValues(outcome).Inc()
}

func CacheLookup(hit bool, size int) {
	if hit {
		ResponseCacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		ResponseCacheLookupsTotal.WithLabelValues("miss").Inc()
	}
	ResponseCacheEntries.Set(float64(size))
}

func RateLimitDecision(admitted bool) {
	if admitted {
		RateLimitDecisionsTotal.WithLabelValues("admitted").Inc()
		return
	}
	RateLimitDecisionsTotal.WithLabelValues("rejected").Inc()
}

// LimiterBuckets records how many quota buckets the limiter holds.
func LimiterBuckets(n int) {
	RateLimitBuckets.Set(float64(n))
}

func UploadOutcome(outcome string) {
	UploadsTotal.WithLabelValues(outcome).Inc()
}

// SweepResult records the totals of one retention sweep.
func SweepResult(deleted, failed int) {
	SweeperDeletedTotal.Add(float64(deleted))
	SweeperErrorsTotal.Add(float64(failed))
}
