package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shree2160/sahayakAIv1/internal/cache"
	"github.com/shree2160/sahayakAIv1/internal/knowledge"
	"github.com/shree2160/sahayakAIv1/internal/location"
	"github.com/shree2160/sahayakAIv1/internal/models"
	"github.com/shree2160/sahayakAIv1/internal/observability"
	"github.com/shree2160/sahayakAIv1/internal/places"
	"github.com/shree2160/sahayakAIv1/internal/reasoning"
	"github.com/shree2160/sahayakAIv1/internal/stt"
	"github.com/shree2160/sahayakAIv1/internal/tts"
	"github.com/shree2160/sahayakAIv1/internal/validation"
)

// Config carries the tuning knobs the assistant needs from configuration.
type Config struct {
	PlacesCacheTTL  time.Duration
	StaleCacheTTL   time.Duration // 0 disables stale serving
	AudioCacheTTL   time.Duration
	SearchRadius    int
	PlacesLimit     int
	KnowledgeLimit  int
	MaxAudioBytes   int64
	QueryMinLength  int
	QueryMaxLength  int
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
}

// AssistantService orchestrates the ask pipeline: transcription, routing,
// retrieval, answer generation, and speech synthesis. Collaborator failures
// are soft wherever a degraded answer is still useful.
type AssistantService struct {
	transcriber stt.Transcriber
	engine      reasoning.Engine
	finder      places.Finder
	store       knowledge.Store
	synth       tts.Synthesizer
	resolver    *location.Resolver
	cache       cache.Cache
	cfg         Config

	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer
}

// NewAssistantService wires the pipeline. Any collaborator may be in a
// not-ready state; the pipeline degrades per stage instead of refusing
// to start.
func NewAssistantService(transcriber stt.Transcriber, engine reasoning.Engine, finder places.Finder, store knowledge.Store, synth tts.Synthesizer, resolver *location.Resolver, c cache.Cache, cfg Config) *AssistantService {
	var coalescer *requestCoalescer
	if cfg.CoalesceEnabled && cfg.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(cfg.CoalesceTimeout)
	}
	return &AssistantService{
		transcriber:     transcriber,
		engine:          engine,
		finder:          finder,
		store:           store,
		synth:           synth,
		resolver:        resolver,
		cache:           c,
		cfg:             cfg,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Ask runs the full pipeline for one request. Failures inside the pipeline
// are soft: the response carries Success=false and an error message, and the
// caller still answers HTTP 200. Only encoding-level problems surface as
// HTTP errors, upstream in the handler.
func (s *AssistantService) Ask(ctx context.Context, req models.AskRequest) models.AskResponse {
	logger := loggerFromContext(ctx)
	observability.AskRequestsTotal.Inc()

	if _, err := validation.ValidateLanguage(req.Language); err != nil {
		return softFailure("Unsupported language. Use 'hi' or 'en'.", "")
	}

	// Stage 1: obtain the query text, transcribing audio when no text came in.
	query := strings.TrimSpace(req.TextQuery)
	transcribed := ""
	if query == "" {
		text, resp := s.transcribe(ctx, req, logger)
		if resp != nil {
			return *resp
		}
		transcribed = text
		query = text
	}

	query, err := validation.ValidateQueryText(query, s.cfg.QueryMinLength, s.cfg.QueryMaxLength)
	if err != nil {
		return softFailure(fmt.Sprintf("Invalid query: %v", err), transcribed)
	}

	// Stage 2: routing analysis.
	analyzeStart := time.Now()
	analysis := s.engine.AnalyzeQuery(ctx, query)
	observability.AskStageDuration.WithLabelValues("analyze").Observe(time.Since(analyzeStart).Seconds())
	observability.RecordAskRequest(analysis.Intent)

	// Stage 3: location resolution.
	lat, lon, locSource := s.resolver.Resolve(req.Latitude, req.Longitude, query)
	if logger != nil {
		logger.Debug("location resolved",
			zap.Float64("lat", lat), zap.Float64("lon", lon), zap.String("source", string(locSource)))
	}

	// Stage 4: retrieval.
	var nearby []models.Place
	var guides []models.KnowledgeEntry
	switch analysis.DataSource {
	case models.SourceMap:
		placesStart := time.Now()
		result, err := s.NearbyPlaces(ctx, lat, lon, analysis.PlaceType, s.cfg.SearchRadius, s.cfg.PlacesLimit)
		observability.AskStageDuration.WithLabelValues("places").Observe(time.Since(placesStart).Seconds())
		if err != nil {
			if logger != nil {
				logger.Warn("places lookup failed", zap.Error(err))
			}
		} else {
			nearby = result.Places
		}
	case models.SourceKnowledge:
		knowledgeStart := time.Now()
		guides, err = s.store.Search(ctx, query, analysis.Category, s.cfg.KnowledgeLimit)
		observability.AskStageDuration.WithLabelValues("knowledge").Observe(time.Since(knowledgeStart).Seconds())
		if err != nil {
			if logger != nil {
				logger.Warn("knowledge lookup failed", zap.Error(err))
			}
			guides = nil
		}
	}

	// Stage 5: answer generation, with a deterministic fallback when the
	// hosted model is unavailable.
	generateStart := time.Now()
	answer, genErr := s.engine.GenerateAnswer(ctx, query, analysis, nearby, guides)
	observability.AskStageDuration.WithLabelValues("generate").Observe(time.Since(generateStart).Seconds())
	if genErr != nil {
		if logger != nil {
			logger.Warn("answer generation failed, using fallback", zap.Error(genErr))
		}
		answer = fallbackAnswer(analysis, nearby, guides)
	}

	resp := models.AskResponse{
		Success:         true,
		TextResponse:    answer,
		TranscribedText: transcribed,
		DetectedIntent:  analysis.Intent,
		NearbyPlaces:    nearby,
	}

	// Stage 6: speech synthesis. A failure here still returns the text answer.
	ttsStart := time.Now()
	audio, ttsErr := s.SpeakCached(ctx, answer)
	observability.AskStageDuration.WithLabelValues("tts").Observe(time.Since(ttsStart).Seconds())
	if ttsErr != nil {
		if ttsErr != tts.ErrUnavailable && logger != nil {
			logger.Warn("speech synthesis failed", zap.Error(ttsErr))
		}
	} else {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
	}

	return resp
}

// transcribe decodes and transcribes the request audio. The second return
// value is non-nil when the pipeline should stop with that soft failure.
func (s *AssistantService) transcribe(ctx context.Context, req models.AskRequest, logger *zap.Logger) (string, *models.AskResponse) {
	if strings.TrimSpace(req.AudioBase64) == "" {
		r := softFailure("Send text_query or audio_base64.", "")
		return "", &r
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		r := softFailure("Audio is not valid base64.", "")
		return "", &r
	}
	if err := validation.ValidateAudioSize(len(audio), s.cfg.MaxAudioBytes); err != nil {
		r := softFailure("Audio payload too large.", "")
		return "", &r
	}

	sttStart := time.Now()
	text, err := s.transcriber.Transcribe(ctx, audio)
	observability.AskStageDuration.WithLabelValues("stt").Observe(time.Since(sttStart).Seconds())
	if err != nil {
		if logger != nil {
			logger.Warn("transcription failed", zap.Error(err))
		}
		msg := "Could not process audio. Please try again or type your question."
		if err == stt.ErrModelNotLoaded {
			msg = "Speech recognition is unavailable. Please type your question."
		}
		r := softFailure(msg, "")
		return "", &r
	}
	if strings.TrimSpace(text) == "" {
		r := softFailure("Could not understand the audio. Please speak clearly and try again.", "")
		return "", &r
	}
	return text, nil
}

// NearbyPlaces finds places around a coordinate using the cache-aside
// pattern: cache first, Overpass on miss (optionally coalesced), stale cache
// as a last resort when Overpass is down.
func (s *AssistantService) NearbyPlaces(ctx context.Context, lat, lon float64, placeType string, radius, limit int) (models.PlaceResult, error) {
	if radius <= 0 {
		radius = s.cfg.SearchRadius
	}
	if limit <= 0 {
		limit = s.cfg.PlacesLimit
	}
	key := placesKey(lat, lon, placeType, radius)
	logger := loggerFromContext(ctx)

	getStart := time.Now()
	raw, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		var cached models.PlaceResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			observability.CacheHitsTotal.WithLabelValues("places").Inc()
			if logger != nil {
				logger.Debug("places cache hit", zap.String("key", key))
			}
			return cached, nil
		}
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordHit(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues("places").Inc()
		observability.CacheStampedeConcurrency.WithLabelValues("places").Observe(float64(concurrentMisses))
	}

	// Coalesce concurrent misses for the same key into one Overpass call.
	var found []models.Place
	var upstreamErr error
	if s.coalescer != nil {
		coalesceStart := time.Now()
		found, upstreamErr = s.coalescer.GetOrDo(ctx, key, func() ([]models.Place, error) {
			return s.finder.FindNearby(ctx, lat, lon, placeType, radius, limit)
		})
		coalesceWait := time.Since(coalesceStart)
		if upstreamErr == nil {
			if coalesceWait > 10*time.Millisecond {
				observability.RequestCoalescingHitsTotal.WithLabelValues("places").Inc()
			}
			observability.RequestCoalescingWaitSeconds.Observe(coalesceWait.Seconds())
		}
	} else {
		found, upstreamErr = s.finder.FindNearby(ctx, lat, lon, placeType, radius, limit)
	}
	if upstreamErr != nil {
		// Overpass failed - try stale cache if enabled
		if s.cfg.StaleCacheTTL > 0 {
			raw, age, ok, staleErr := s.cache.GetStale(ctx, key, s.cfg.StaleCacheTTL)
			if staleErr == nil && ok {
				var stale models.PlaceResult
				if err := json.Unmarshal(raw, &stale); err == nil {
					observability.StaleCacheServesTotal.WithLabelValues("places").Inc()
					observability.StaleCacheAgeSeconds.Observe(age.Seconds())
					stale.Stale = true
					if logger != nil {
						logger.Info("serving stale places", zap.String("key", key), zap.Duration("age", age))
					}
					return stale, nil
				}
			}
		}
		return models.PlaceResult{}, fmt.Errorf("find nearby %s: %w", placeType, upstreamErr)
	}

	result := models.PlaceResult{
		Places:    found,
		FetchedAt: time.Now().Unix(),
	}
	if raw, err := json.Marshal(result); err == nil {
		setStart := time.Now()
		if setErr := s.cache.Set(ctx, key, raw, s.cfg.PlacesCacheTTL); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
			observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
			if logger != nil {
				logger.Warn("places cache set failed", zap.String("key", key), zap.Error(setErr))
			}
		} else {
			observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
		}
	}
	return result, nil
}

// SpeakCached synthesizes text to audio through the audio cache, so repeated
// answers (greetings, fallback guides) skip the eSpeak invocation.
// Implements the warmer's Synthesizer interface.
func (s *AssistantService) SpeakCached(ctx context.Context, text string) ([]byte, error) {
	key := audioKey(text)

	audio, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("audio").Inc()
		return audio, nil
	}

	audio, err = s.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}

	if setErr := s.cache.Set(ctx, key, audio, s.cfg.AudioCacheTTL); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
	}
	return audio, nil
}

// fallbackAnswer builds a deterministic answer from whatever retrieval
// produced when the hosted model is down. Hindi because that is the default
// answer language.
func fallbackAnswer(analysis models.QueryAnalysis, nearby []models.Place, guides []models.KnowledgeEntry) string {
	switch {
	case len(nearby) > 0:
		var b strings.Builder
		b.WriteString("मुझे ये नजदीकी स्थान मिले:\n")
		for i, p := range nearby {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "%d. %s (%.0f मीटर दूर)\n", i+1, p.Name, p.DistanceMeters)
		}
		return strings.TrimSpace(b.String())
	case len(guides) > 0:
		return guides[0].Content
	default:
		return "सर्वर से कनेक्शन में समस्या है। कृपया बाद में पुनः प्रयास करें।"
	}
}

// softFailure builds a failed response that still ships as HTTP 200. The
// guidance goes in TextResponse, where clients read the answer, as well as
// ErrorMessage.
func softFailure(message, transcribed string) models.AskResponse {
	return models.AskResponse{
		Success:         false,
		TextResponse:    message,
		TranscribedText: transcribed,
		ErrorMessage:    message,
	}
}

// placesKey builds the cache key for a nearby search. Coordinates are
// rounded to three decimals (~110 m) so nearby callers share entries.
func placesKey(lat, lon float64, placeType string, radius int) string {
	return fmt.Sprintf("places:%s:%.3f:%.3f:%d", strings.ToLower(strings.TrimSpace(placeType)), lat, lon, radius)
}

// audioKey hashes the text so arbitrary answers make safe memcached keys.
func audioKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "audio:" + hex.EncodeToString(sum[:16])
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
