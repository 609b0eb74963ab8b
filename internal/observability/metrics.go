package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shree2160/sahayakAIv1/internal/overload"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Request/response body sizes. Watch for: oversized audio uploads.
	HTTPRequestBodyBytes  prometheus.Histogram
	HTTPResponseBodyBytes prometheus.Histogram

	// Assistant queries by detected intent. Watch for: traffic mix shifts.
	AskRequestsTotal         prometheus.Counter
	AskRequestsByIntentTotal *prometheus.CounterVec

	// Per-stage pipeline latency (stt, analyze, places, knowledge, generate, tts).
	AskStageDuration *prometheus.HistogramVec

	// Vosk transcription outcomes and latency. Watch for: error ratio, long decodes.
	STTTranscriptionsTotal   *prometheus.CounterVec
	STTTranscriptionDuration prometheus.Histogram

	// eSpeak synthesis outcomes and latency.
	TTSSynthesesTotal    *prometheus.CounterVec
	TTSSynthesisDuration prometheus.Histogram

	// Gemini API calls by operation (analyze, generate). Watch for: error vs success ratio.
	GeminiCallsTotal   *prometheus.CounterVec
	GeminiCallDuration *prometheus.HistogramVec

	// Overpass API call rate and latency. Watch for: p95 > 2s (upstream degradation).
	OverpassCallsTotal           *prometheus.CounterVec
	OverpassCallDuration         *prometheus.HistogramVec
	OverpassRetriesTotal         prometheus.Counter
	OverpassMirrorFailoversTotal prometheus.Counter

	// Knowledge lookups by source (database vs built-in fallback).
	KnowledgeLookupsTotal *prometheus.CounterVec

	// Cache behavior per keyspace (places, audio).
	CacheHitsTotal                *prometheus.CounterVec
	CacheErrorsTotal              *prometheus.CounterVec
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses on the same key. Watch for: stampedes on hot place queries.
	CacheStampedeDetectedTotal *prometheus.CounterVec
	CacheStampedeConcurrency   *prometheus.HistogramVec

	// Request coalescing on the places leg.
	RequestCoalescingHitsTotal   *prometheus.CounterVec
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Stale serves when Overpass is down.
	StaleCacheServesTotal *prometheus.CounterVec
	StaleCacheAgeSeconds  prometheus.Histogram

	// TTS warm-up runs at startup.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker activity per protected component (gemini, overpass).
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
	CircuitBreakerStateGauge       *prometheus.GaugeVec

	// In-flight requests observed at shutdown.
	ShutdownInFlightRequests prometheus.Gauge

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	HTTPRequestBodyBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "httpRequestBodyBytes",
			Help:    "HTTP request body size in bytes (audio uploads dominate)",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)
	HTTPResponseBodyBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "httpResponseBodyBytes",
			Help:    "HTTP response body size in bytes (synthesized audio dominates)",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)
	AskRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askRequestsTotal",
			Help: "Total number of assistant queries",
		},
	)
	AskRequestsByIntentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askRequestsByIntentTotal",
			Help: "Assistant queries by detected intent",
		},
		[]string{"intent"},
	)
	AskStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askStageDurationSeconds",
			Help:    "Pipeline stage latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"stage"},
	)
	STTTranscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sttTranscriptionsTotal",
			Help: "Total number of speech-to-text transcriptions",
		},
		[]string{"status"},
	)
	STTTranscriptionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sttTranscriptionDurationSeconds",
			Help:    "Vosk transcription latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	TTSSynthesesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttsSynthesesTotal",
			Help: "Total number of text-to-speech syntheses",
		},
		[]string{"status"},
	)
	TTSSynthesisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ttsSynthesisDurationSeconds",
			Help:    "eSpeak synthesis latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	GeminiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminiCallsTotal",
			Help: "Total number of Gemini API calls",
		},
		[]string{"operation", "status"},
	)
	GeminiCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geminiCallDurationSeconds",
			Help:    "Gemini API latency in seconds (per request)",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"operation"},
	)
	OverpassCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overpassCallsTotal",
			Help: "Total number of Overpass API calls",
		},
		[]string{"status"},
	)
	OverpassCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overpassCallDurationSeconds",
			Help:    "Overpass API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"status"},
	)
	OverpassRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overpassRetriesTotal",
			Help: "Total number of retry attempts for Overpass API calls",
		},
	)
	OverpassMirrorFailoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overpassMirrorFailoversTotal",
			Help: "Times the client moved to the next Overpass mirror after exhausting retries",
		},
	)
	KnowledgeLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgeLookupsTotal",
			Help: "Knowledge base lookups by source (database or fallback)",
		},
		[]string{"source"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits by keyspace",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "status"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses detected on the same key",
		},
		[]string{"cacheType"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Number of concurrent misses when a stampede is detected",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
		[]string{"cacheType"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by piggybacking on an in-flight upstream call",
		},
		[]string{"cacheType"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced upstream call",
			Buckets: prometheus.DefBuckets,
		},
	)
	StaleCacheServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleCacheServesTotal",
			Help: "Responses served from stale cache after upstream failure",
		},
		[]string{"cacheType"},
	)
	StaleCacheAgeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staleCacheAgeSeconds",
			Help:    "Age of stale cache entries at serve time",
			Buckets: []float64{60, 300, 600, 1800, 3600},
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of TTS warm-up runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "TTS warm-up runs that had at least one failure",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of TTS warm-up runs",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions per component",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per component (0=closed, 1=open, 2=half_open)",
		},
		[]string{"component"},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests observed when shutdown began",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		HTTPRequestBodyBytes, HTTPResponseBodyBytes,
		AskRequestsTotal, AskRequestsByIntentTotal, AskStageDuration,
		STTTranscriptionsTotal, STTTranscriptionDuration,
		TTSSynthesesTotal, TTSSynthesisDuration,
		GeminiCallsTotal, GeminiCallDuration,
		OverpassCallsTotal, OverpassCallDuration, OverpassRetriesTotal, OverpassMirrorFailoversTotal,
		KnowledgeLookupsTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		StaleCacheServesTotal, StaleCacheAgeSeconds,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RateLimitDeniedTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerStateGauge,
		ShutdownInFlightRequests,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow. Uses same window as lifecycle.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(overload.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(overload.DenialCount(window)) },
			),
		)
	})
}

// RecordAskRequest records the detected intent of one assistant query.
// AskRequestsTotal is incremented at pipeline entry, before validation, so
// soft failures count too; incrementing it here would double-count.
func RecordAskRequest(intent string) {
	if intent == "" {
		intent = "unknown"
	}
	AskRequestsByIntentTotal.WithLabelValues(intent).Inc()
}

// RecordCircuitBreakerTransition records a breaker state change for metrics.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the numeric breaker state for a component.
func SetCircuitBreakerStateGauge(component string, state float64) {
	CircuitBreakerStateGauge.WithLabelValues(component).Set(state)
}

// CircuitBreakerStateValue converts a breaker state ordinal to the gauge value.
func CircuitBreakerStateValue(state int) float64 {
	return float64(state)
}

// RecordShutdownInFlight records the in-flight count observed when shutdown began.
func RecordShutdownInFlight(count int64) {
	ShutdownInFlightRequests.Set(float64(count))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
