package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shree2160/sahayakAIv1/internal/models"
	"github.com/shree2160/sahayakAIv1/internal/observability"
)

// Finder looks up points of interest near a coordinate.
type Finder interface {
	FindNearby(ctx context.Context, lat, lon float64, placeType string, radius, limit int) ([]models.Place, error)
}

var (
	// ErrAllMirrorsFailed is returned when every configured Overpass mirror
	// failed for every retry round.
	ErrAllMirrorsFailed = errors.New("all overpass mirrors failed")
	// ErrRateLimited is returned on HTTP 429 from a mirror.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamFailure is returned on 5xx responses from a mirror.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrBadRequest is returned on 4xx responses other than 429. These are
	// not retried: the query itself is wrong.
	ErrBadRequest = errors.New("bad request")
)

// OverpassClient implements Finder against the Overpass API with mirror
// failover. Each retry round walks the mirror list in order; rounds are
// separated by exponential backoff with jitter.
type OverpassClient struct {
	mirrors        []string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewOverpassClient creates a client over the given mirror URLs with default retry policy.
func NewOverpassClient(mirrors []string, timeout time.Duration) (*OverpassClient, error) {
	return NewOverpassClientWithRetry(mirrors, timeout, 2, 200*time.Millisecond, 2*time.Second)
}

// NewOverpassClientWithRetry creates a client with an explicit retry policy.
// retryAttempts counts full passes over the mirror list.
func NewOverpassClientWithRetry(mirrors []string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OverpassClient, error) {
	if len(mirrors) == 0 {
		return nil, errors.New("at least one overpass mirror is required")
	}
	for _, m := range mirrors {
		if _, err := url.Parse(m); err != nil {
			return nil, fmt.Errorf("invalid mirror URL %q: %w", m, err)
		}
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &OverpassClient{
		mirrors:        mirrors,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// overpassResponse is the subset of the Overpass JSON we read.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

// FindNearby queries Overpass for places of the given type around the
// coordinate. Results are sorted by distance, deduplicated by name, and
// capped at limit.
func (c *OverpassClient) FindNearby(ctx context.Context, lat, lon float64, placeType string, radius, limit int) ([]models.Place, error) {
	query := buildQuery(lat, lon, placeType, radius)

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.OverpassRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		for i, mirror := range c.mirrors {
			if i > 0 {
				observability.OverpassMirrorFailoversTotal.Inc()
			}
			elements, err := c.callMirror(ctx, mirror, query)
			if err == nil {
				return assemblePlaces(elements, lat, lon, limit), nil
			}
			lastErr = err
			if !isRetryable(err) {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrAllMirrorsFailed, lastErr)
}

func (c *OverpassClient) callMirror(ctx context.Context, mirror, query string) ([]overpassElement, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("data", query)
	req, err := http.NewRequestWithContext(reqCtx, "POST", mirror, strings.NewReader(form.Encode()))
	if err != nil {
		observability.OverpassCallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.OverpassCallsTotal.WithLabelValues("error").Inc()
		observability.OverpassCallDuration.WithLabelValues("error").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.OverpassCallsTotal.WithLabelValues(status).Inc()
	observability.OverpassCallDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiResp overpassResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return apiResp.Elements, nil
}

// buildQuery assembles an Overpass QL union over nodes, ways, and relations
// carrying the place type's tag filter within radius meters of the coordinate.
func buildQuery(lat, lon float64, placeType string, radius int) string {
	tag := tagFilterFor(placeType)
	around := fmt.Sprintf("(around:%d,%f,%f)", radius, lat, lon)
	return fmt.Sprintf("[out:json][timeout:25];(node%s%s;way%s%s;relation%s%s;);out center body;",
		tag, around, tag, around, tag, around)
}

// assemblePlaces maps raw elements to places with distances, sorted nearest
// first, deduplicated by name, capped at limit.
func assemblePlaces(elements []overpassElement, lat, lon float64, limit int) []models.Place {
	places := make([]models.Place, 0, len(elements))
	for _, el := range elements {
		if len(el.Tags) == 0 {
			continue
		}
		plat, plon := el.Lat, el.Lon
		if plat == 0 && plon == 0 && el.Center != nil {
			plat, plon = el.Center.Lat, el.Center.Lon
		}
		if plat == 0 && plon == 0 {
			continue
		}
		dist := HaversineMeters(lat, lon, plat, plon)
		places = append(places, models.Place{
			Name:           firstTag(el.Tags, "name", "name:hi", "operator", ""),
			PlaceType:      firstTag(el.Tags, "amenity", "shop", "leisure", "place"),
			Latitude:       plat,
			Longitude:      plon,
			DistanceMeters: math.Round(dist*10) / 10,
			Phone:          firstTag(el.Tags, "phone", "contact:phone", "", ""),
			Address:        firstTag(el.Tags, "addr:full", "addr:street", "", ""),
			OpeningHours:   el.Tags["opening_hours"],
		})
	}

	sort.Slice(places, func(i, j int) bool {
		return places[i].DistanceMeters < places[j].DistanceMeters
	})

	seen := make(map[string]bool, len(places))
	unique := places[:0]
	for _, p := range places {
		if p.Name == "" {
			p.Name = "Unknown Place"
		}
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		unique = append(unique, p)
		if limit > 0 && len(unique) >= limit {
			break
		}
	}
	return unique
}

// firstTag returns the first non-empty tag among keys; fallback when none match.
func firstTag(tags map[string]string, k1, k2, k3, fallback string) string {
	for _, k := range []string{k1, k2, k3} {
		if k == "" {
			continue
		}
		if v := tags[k]; v != "" {
			return v
		}
	}
	return fallback
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "connection") {
		return true
	}
	return false
}

func (c *OverpassClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusGatewayTimeout, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusInternalServerError:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: HTTP %d", ErrBadRequest, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}
