package places

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shree2160/sahayakAIv1/internal/circuitbreaker"
	"github.com/shree2160/sahayakAIv1/internal/models"
)

type stubFinder struct {
	places []models.Place
	err    error
	calls  int
}

func (s *stubFinder) FindNearby(ctx context.Context, lat, lon float64, placeType string, radius, limit int) ([]models.Place, error) {
	s.calls++
	return s.places, s.err
}

// TestBreakerFinder_PassThrough verifies successful lookups flow through the
// breaker unchanged.
func TestBreakerFinder_PassThrough(t *testing.T) {
	stub := &stubFinder{places: []models.Place{{Name: "AIIMS", PlaceType: "hospital"}}}
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	finder := NewBreakerFinder(stub, cb)

	got, err := finder.FindNearby(context.Background(), 28.6, 77.2, "hospital", 3000, 5)
	if err != nil {
		t.Fatalf("FindNearby() error = %v, want nil", err)
	}
	if len(got) != 1 || got[0].Name != "AIIMS" {
		t.Errorf("FindNearby() = %v, want the stub's place", got)
	}
}

// TestBreakerFinder_OpensAfterFailures verifies repeated upstream failures
// open the circuit so later calls fail fast without reaching the client.
func TestBreakerFinder_OpensAfterFailures(t *testing.T) {
	stub := &stubFinder{err: fmt.Errorf("%w: HTTP 502", ErrUpstreamFailure)}
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	finder := NewBreakerFinder(stub, cb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := finder.FindNearby(ctx, 28.6, 77.2, "hospital", 3000, 5); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("FindNearby() call %d error = %v, want ErrUpstreamFailure", i, err)
		}
	}

	_, err := finder.FindNearby(ctx, 28.6, 77.2, "hospital", 3000, 5)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("FindNearby() while open error = %v, want ErrOpen", err)
	}
	if stub.calls != 3 {
		t.Errorf("upstream calls = %d, want 3 (no call while open)", stub.calls)
	}
}

// TestBreakerFinder_BadRequestDoesNotTrip verifies that a rejected query is
// returned to the caller without counting as an upstream failure.
func TestBreakerFinder_BadRequestDoesNotTrip(t *testing.T) {
	stub := &stubFinder{err: fmt.Errorf("%w: HTTP 400", ErrBadRequest)}
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	finder := NewBreakerFinder(stub, cb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := finder.FindNearby(ctx, 28.6, 77.2, "hospital", 3000, 5); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("FindNearby() call %d error = %v, want ErrBadRequest", i, err)
		}
	}
	if got := cb.State(); got != circuitbreaker.StateClosed {
		t.Errorf("State() = %v after bad requests, want StateClosed", got)
	}
	if stub.calls != 5 {
		t.Errorf("upstream calls = %d, want 5 (breaker stays closed)", stub.calls)
	}
}
