package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shree2160/sahayakAIv1/internal/observability"
)

// Synthesizer is implemented by the service layer to synthesize and cache
// audio for a phrase. Used by CacheWarmer to avoid a circular dependency on
// the service package.
type Synthesizer interface {
	SpeakCached(ctx context.Context, text string) ([]byte, error)
}

// CacheWarmer warms the audio cache by synthesizing a list of common phrases
// ahead of the first request, so greetings and fallback answers play without
// an eSpeak round trip.
type CacheWarmer struct {
	synth  Synthesizer
	logger *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given synthesizer and logger.
func NewCacheWarmer(synth Synthesizer, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{synth: synth, logger: logger}
}

// Warm synthesizes each phrase concurrently and populates the cache via the
// synthesizer. Returns an error if any phrase failed (aggregated).
func (w *CacheWarmer) Warm(ctx context.Context, phrases []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming audio cache", zap.Int("phrases", len(phrases)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(phrases))
	for _, phrase := range phrases {
		phrase := phrase
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.synth.SpeakCached(ctx, phrase)
			if err != nil {
				errCh <- fmt.Errorf("warm %q: %w", phrase, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("audio cache warming complete", zap.Int("phrases", len(phrases)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, phrases []string, interval time.Duration) error {
	if err := w.Warm(ctx, phrases); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, phrases); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
