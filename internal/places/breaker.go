package places

import (
	"context"
	"errors"

	"github.com/shree2160/sahayakAIv1/internal/circuitbreaker"
	"github.com/shree2160/sahayakAIv1/internal/models"
)

// BreakerFinder wraps a Finder with a circuit breaker so a fully-down
// Overpass API fails fast instead of burning the whole retry-and-mirror
// budget on every request. ErrBadRequest passes through without tripping
// the breaker: a wrong query says nothing about upstream health.
type BreakerFinder struct {
	finder  Finder
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerFinder wraps finder with the given breaker.
func NewBreakerFinder(finder Finder, breaker *circuitbreaker.CircuitBreaker) *BreakerFinder {
	return &BreakerFinder{finder: finder, breaker: breaker}
}

// FindNearby implements Finder through the breaker.
func (b *BreakerFinder) FindNearby(ctx context.Context, lat, lon float64, placeType string, radius, limit int) ([]models.Place, error) {
	var places []models.Place
	var badRequest error
	err := b.breaker.Call(ctx, func() error {
		result, err := b.finder.FindNearby(ctx, lat, lon, placeType, radius, limit)
		if errors.Is(err, ErrBadRequest) {
			badRequest = err
			return nil
		}
		if err != nil {
			return err
		}
		places = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	if badRequest != nil {
		return nil, badRequest
	}
	return places, nil
}
