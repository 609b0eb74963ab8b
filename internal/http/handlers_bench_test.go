package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shree2160/sahayakAIv1/internal/models"
)

// BenchmarkHandler_PostAsk_TextQuery benchmarks the full text-query pipeline
// through the handler with mock collaborators.
func BenchmarkHandler_PostAsk_TextQuery(b *testing.B) {
	resetTrackers()
	finder := &mockFinder{places: []models.Place{{Name: "AIIMS", PlaceType: "hospital", DistanceMeters: 850}}}
	handler := newTestHandler(finder, &mockEngine{answer: "नजदीकी अस्पताल AIIMS है।", ready: true}, nil)
	body := `{"text_query":"hospital near me","latitude":28.6139,"longitude":77.2090}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("POST", "/ask", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.PostAsk(w, req)
	}
}

// BenchmarkHandler_PostAsk_SoftFailure benchmarks the empty-request soft
// failure path.
func BenchmarkHandler_PostAsk_SoftFailure(b *testing.B) {
	resetTrackers()
	handler := newTestHandler(&mockFinder{}, &mockEngine{answer: "ok", ready: true}, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		handler.PostAsk(w, req)
	}
}

// BenchmarkHandler_GetNearbyPlaces_CacheHit benchmarks the places endpoint
// once the result is cached.
func BenchmarkHandler_GetNearbyPlaces_CacheHit(b *testing.B) {
	resetTrackers()
	finder := &mockFinder{places: []models.Place{{Name: "AIIMS", PlaceType: "hospital"}}}
	handler := newTestHandler(finder, &mockEngine{ready: true}, nil)

	// First request populates the cache.
	warm := httptest.NewRequest("GET", "/places/nearby?lat=28.6139&lon=77.2090&type=hospital", nil)
	handler.GetNearbyPlaces(httptest.NewRecorder(), warm)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/places/nearby?lat=28.6139&lon=77.2090&type=hospital", nil)
		w := httptest.NewRecorder()
		handler.GetNearbyPlaces(w, req)
	}
}

// BenchmarkHandler_GetNearbyPlaces_ValidationError benchmarks parameter
// validation rejection.
func BenchmarkHandler_GetNearbyPlaces_ValidationError(b *testing.B) {
	resetTrackers()
	handler := newTestHandler(&mockFinder{}, &mockEngine{ready: true}, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/places/nearby?type=hospital", nil)
		w := httptest.NewRecorder()
		handler.GetNearbyPlaces(w, req)
	}
}

// BenchmarkHandler_GetHealth benchmarks the health check endpoint with the
// full lifecycle configuration.
func BenchmarkHandler_GetHealth(b *testing.B) {
	resetTrackers()
	healthConfig := &HealthConfig{
		OverloadWindow:         60 * time.Second,
		OverloadThresholdPct:   80,
		RateLimitRPS:           100,
		RateLimitBurst:         250,
		DegradedWindow:         5 * time.Minute,
		DegradedErrorPct:       5,
		DegradedRetryInitial:   1 * time.Second,
		DegradedRetryMax:       30 * time.Second,
		IdleWindow:             10 * time.Minute,
		IdleThresholdReqPerMin: 1,
		MinimumLifespan:        5 * time.Minute,
		StartTime:              time.Now(),
	}
	handler := newTestHandler(&mockFinder{}, &mockEngine{ready: true}, healthConfig)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		handler.GetHealth(w, req)
	}
}
