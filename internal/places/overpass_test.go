package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestTagFilterFor verifies tag filter resolution including the underscore
// retry and the name-match fallback.
func TestTagFilterFor(t *testing.T) {
	tests := []struct {
		placeType string
		want      string
	}{
		{"hospital", `[amenity=hospital]`},
		{"Hospital", `[amenity=hospital]`},
		{"  bank  ", `[amenity=bank]`},
		{"petrol pump", `[amenity=fuel]`},
		{"अस्पताल", `[amenity=hospital]`},
		{"temple", `[amenity=place_of_worship][religion=hindu]`},
		{"sharma medical", `[name~"sharma medical",i]`},
	}
	for _, tt := range tests {
		if got := tagFilterFor(tt.placeType); got != tt.want {
			t.Errorf("tagFilterFor(%q) = %q, want %q", tt.placeType, got, tt.want)
		}
	}
}

// TestHaversineMeters verifies the great-circle distance against a known pair
// (Delhi to Mumbai, roughly 1153 km).
func TestHaversineMeters(t *testing.T) {
	d := HaversineMeters(28.6139, 77.2090, 19.0760, 72.8777)
	if d < 1140000 || d > 1170000 {
		t.Errorf("HaversineMeters(Delhi, Mumbai) = %f, want ~1153000", d)
	}

	if d := HaversineMeters(28.6139, 77.2090, 28.6139, 77.2090); d != 0 {
		t.Errorf("HaversineMeters(same point) = %f, want 0", d)
	}
}

// TestBuildQuery verifies the union query covers nodes, ways, and relations
// with the radius and coordinates inlined.
func TestBuildQuery(t *testing.T) {
	q := buildQuery(28.6139, 77.2090, "hospital", 3000)
	for _, part := range []string{"[out:json]", "node[amenity=hospital](around:3000,28.613900,77.209000)", "way[amenity=hospital]", "relation[amenity=hospital]", "out center body;"} {
		if !strings.Contains(q, part) {
			t.Errorf("buildQuery() = %q, missing %q", q, part)
		}
	}
}

// TestAssemblePlaces verifies distance sorting, name deduplication, center
// fallback for ways, and the limit cap.
func TestAssemblePlaces(t *testing.T) {
	elements := []overpassElement{
		{Lat: 28.62, Lon: 77.21, Tags: map[string]string{"name": "Far Hospital", "amenity": "hospital"}},
		{Lat: 28.6141, Lon: 77.2091, Tags: map[string]string{"name": "Near Hospital", "amenity": "hospital"}},
		{Lat: 28.615, Lon: 77.210, Tags: map[string]string{"name": "Near Hospital", "amenity": "hospital"}}, // duplicate name
		{Center: &struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		}{Lat: 28.616, Lon: 77.211}, Tags: map[string]string{"name": "Way Hospital", "amenity": "hospital"}},
		{Lat: 28.617, Lon: 77.212, Tags: map[string]string{"amenity": "hospital"}}, // unnamed
		{Tags: map[string]string{"name": "No Coordinates"}},                        // dropped
		{Lat: 28.618, Lon: 77.213},                                                 // no tags, dropped
	}

	places := assemblePlaces(elements, 28.6139, 77.2090, 10)

	if len(places) != 4 {
		t.Fatalf("assemblePlaces() returned %d places, want 4", len(places))
	}
	if places[0].Name != "Near Hospital" {
		t.Errorf("places[0].Name = %q, want %q (nearest first)", places[0].Name, "Near Hospital")
	}
	for i := 1; i < len(places); i++ {
		if places[i].DistanceMeters < places[i-1].DistanceMeters {
			t.Errorf("places not sorted by distance at index %d", i)
		}
	}
	var wayFound, unknownFound bool
	for _, p := range places {
		if p.Name == "Way Hospital" {
			wayFound = true
			if p.Latitude != 28.616 || p.Longitude != 77.211 {
				t.Errorf("Way Hospital coordinates = (%v, %v), want center (28.616, 77.211)", p.Latitude, p.Longitude)
			}
		}
		if p.Name == "Unknown Place" {
			unknownFound = true
		}
	}
	if !wayFound {
		t.Error("assemblePlaces() dropped the way element with center coordinates")
	}
	if !unknownFound {
		t.Error("assemblePlaces() did not default the unnamed place to Unknown Place")
	}

	limited := assemblePlaces(elements, 28.6139, 77.2090, 2)
	if len(limited) != 2 {
		t.Errorf("assemblePlaces() with limit 2 returned %d places", len(limited))
	}
}

// TestOverpassClient_FindNearby verifies a successful lookup against a stub
// mirror, including query transport as form data.
func TestOverpassClient_FindNearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if data := r.FormValue("data"); !strings.Contains(data, "[amenity=hospital]") {
			t.Errorf("form data = %q, missing hospital filter", data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elements":[{"lat":28.615,"lon":77.21,"tags":{"name":"City Hospital","amenity":"hospital","phone":"+911123456789"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOverpassClient([]string{srv.URL}, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOverpassClient() error = %v", err)
	}

	places, err := client.FindNearby(context.Background(), 28.6139, 77.2090, "hospital", 3000, 5)
	if err != nil {
		t.Fatalf("FindNearby() error = %v", err)
	}
	if len(places) != 1 {
		t.Fatalf("FindNearby() returned %d places, want 1", len(places))
	}
	if places[0].Name != "City Hospital" {
		t.Errorf("places[0].Name = %q, want %q", places[0].Name, "City Hospital")
	}
	if places[0].Phone != "+911123456789" {
		t.Errorf("places[0].Phone = %q, want %q", places[0].Phone, "+911123456789")
	}
	if places[0].DistanceMeters <= 0 {
		t.Errorf("places[0].DistanceMeters = %v, want > 0", places[0].DistanceMeters)
	}
}

// TestOverpassClient_MirrorFailover verifies the second mirror is tried when
// the first returns a server error.
func TestOverpassClient_MirrorFailover(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[{"lat":28.615,"lon":77.21,"tags":{"name":"Backup Hospital","amenity":"hospital"}}]}`))
	}))
	defer good.Close()

	client, err := NewOverpassClient([]string{bad.URL, good.URL}, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOverpassClient() error = %v", err)
	}

	places, err := client.FindNearby(context.Background(), 28.6139, 77.2090, "hospital", 3000, 5)
	if err != nil {
		t.Fatalf("FindNearby() error = %v, want failover success", err)
	}
	if len(places) != 1 || places[0].Name != "Backup Hospital" {
		t.Errorf("FindNearby() = %+v, want Backup Hospital from second mirror", places)
	}
}

// TestOverpassClient_RetriesThenFails verifies retry rounds walk the mirror
// list again and the final error wraps ErrAllMirrorsFailed.
func TestOverpassClient_RetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewOverpassClientWithRetry([]string{srv.URL}, time.Second, 2, time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOverpassClientWithRetry() error = %v", err)
	}

	_, err = client.FindNearby(context.Background(), 28.6139, 77.2090, "hospital", 3000, 5)
	if !errors.Is(err, ErrAllMirrorsFailed) {
		t.Fatalf("FindNearby() error = %v, want ErrAllMirrorsFailed", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("mirror called %d times, want 2 (one per retry round)", got)
	}
}

// TestOverpassClient_NonRetryableStops verifies a 400 response fails
// immediately without trying other mirrors.
func TestOverpassClient_NonRetryableStops(t *testing.T) {
	var secondCalled int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer bad.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondCalled, 1)
		w.Write([]byte(`{"elements":[]}`))
	}))
	defer second.Close()

	client, err := NewOverpassClient([]string{bad.URL, second.URL}, time.Second)
	if err != nil {
		t.Fatalf("NewOverpassClient() error = %v", err)
	}

	_, err = client.FindNearby(context.Background(), 28.6139, 77.2090, "hospital", 3000, 5)
	if err == nil {
		t.Fatal("FindNearby() error = nil, want upstream failure")
	}
	if errors.Is(err, ErrAllMirrorsFailed) {
		t.Errorf("FindNearby() error = %v, want immediate failure not mirror exhaustion", err)
	}
	if atomic.LoadInt32(&secondCalled) != 0 {
		t.Error("second mirror was called after a non-retryable error")
	}
}

// TestNewOverpassClient_Validation verifies mirror list validation.
func TestNewOverpassClient_Validation(t *testing.T) {
	if _, err := NewOverpassClient(nil, time.Second); err == nil {
		t.Error("NewOverpassClient(nil) error = nil, want error")
	}
}

// TestIsRetryable verifies error classification for the retry loop.
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"upstream failure", ErrUpstreamFailure, true},
		{"timeout text", errors.New("request timeout: context deadline exceeded"), true},
		{"connection text", errors.New("connection refused"), true},
		{"other", errors.New("parse response: unexpected end of JSON"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestStatusLabel verifies the metric label buckets for response codes.
func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "success"},
		{204, "success"},
		{429, "rate_limited"},
		{404, "client_error"},
		{500, "server_error"},
		{503, "server_error"},
		{100, "error"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
