package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shree2160/sahayakAIv1/internal/cache"
	"github.com/shree2160/sahayakAIv1/internal/circuitbreaker"
	"github.com/shree2160/sahayakAIv1/internal/config"
	httphandler "github.com/shree2160/sahayakAIv1/internal/http"
	"github.com/shree2160/sahayakAIv1/internal/knowledge"
	"github.com/shree2160/sahayakAIv1/internal/lifecycle"
	"github.com/shree2160/sahayakAIv1/internal/location"
	"github.com/shree2160/sahayakAIv1/internal/observability"
	"github.com/shree2160/sahayakAIv1/internal/places"
	"github.com/shree2160/sahayakAIv1/internal/reasoning"
	"github.com/shree2160/sahayakAIv1/internal/service"
	"github.com/shree2160/sahayakAIv1/internal/stt"
	"github.com/shree2160/sahayakAIv1/internal/tts"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx := context.Background()

	// Offline speech recognition. A missing model is logged, not fatal.
	transcriber, err := stt.NewVoskTranscriber(cfg.VoskModelPath, cfg.VoskSampleRate, cfg.FFmpegPath, logger)
	if err != nil {
		logger.Warn("speech recognition unavailable, text queries only", zap.Error(err))
	}
	defer transcriber.Close()

	// Offline speech synthesis, probed at startup.
	synth := tts.NewEspeakSynthesizer("espeak-ng", cfg.EspeakVoice, cfg.EspeakSpeed, cfg.EspeakPitch, cfg.SpeechMaxChars, logger)

	// Hosted reasoning engine behind a circuit breaker.
	geminiBreaker := newBreaker(cfg, "gemini")
	engine, err := reasoning.NewGeminiEngine(ctx, cfg.GeminiAPIKey, cfg.GeminiModels, cfg.GeminiTimeout, geminiBreaker, logger)
	if err != nil {
		logger.Warn("reasoning engine unavailable, serving heuristic answers", zap.Error(err))
	}
	defer engine.Close()

	overpassClient, err := places.NewOverpassClientWithRetry(
		cfg.OverpassMirrors,
		cfg.OverpassTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("overpass client", zap.Error(err))
	}
	finder := places.NewBreakerFinder(overpassClient, newBreaker(cfg, "overpass"))

	store, err := knowledge.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Warn("knowledge store unavailable, serving built-in guides", zap.Error(err))
	}
	defer store.Close()
	if store.Ready() {
		if err := store.Seed(ctx); err != nil {
			logger.Warn("knowledge table seed failed", zap.Error(err))
		}
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	resolver := location.NewResolver(cfg.DefaultLatitude, cfg.DefaultLongitude)
	assistant := service.NewAssistantService(transcriber, engine, finder, store, synth, resolver, cacheSvc, service.Config{
		PlacesCacheTTL:  cfg.PlacesCacheTTL,
		StaleCacheTTL:   cfg.StaleCacheTTL,
		AudioCacheTTL:   cfg.AudioCacheTTL,
		SearchRadius:    cfg.SearchRadius,
		PlacesLimit:     cfg.PlacesLimit,
		KnowledgeLimit:  cfg.KnowledgeLimit,
		MaxAudioBytes:   int64(cfg.MaxAudioBytes),
		QueryMinLength:  cfg.QueryMinLength,
		QueryMaxLength:  cfg.QueryMaxLength,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		RateLimitBurst:         cfg.RateLimitBurst,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		DegradedRetryInitial:   cfg.DegradedRetryInitial,
		DegradedRetryMax:       cfg.DegradedRetryMax,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	readiness := httphandler.Readiness{
		SpeechRecognition: transcriber.Ready,
		ReasoningEngine:   engine.Ready,
		SpeechSynthesis:   synth.Ready,
		KnowledgeStore:    store.Ready,
	}
	handler := httphandler.NewHandler(assistant, readiness, healthConfig, logger, limiter, cfg.SearchRadius, cfg.PlacesLimit)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	if cfg.WarmCache && len(cfg.WarmPhrases) > 0 && synth.Ready() {
		warmer := cache.NewCacheWarmer(assistant, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmPhrases); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.WarmPhrases, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Use(httphandler.SizeMetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	askRouter := router.PathPrefix("/ask").Subrouter()
	askRouter.Use(httphandler.RateLimitMiddleware(limiter))
	askRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	askRouter.Use(httphandler.MaxBodyMiddleware(int64(cfg.MaxAudioBytes) * 2))
	askRouter.HandleFunc("", handler.PostAsk).Methods("POST")

	placesRouter := router.PathPrefix("/places").Subrouter()
	placesRouter.Use(httphandler.RateLimitMiddleware(limiter))
	placesRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	placesRouter.HandleFunc("/nearby", handler.GetNearbyPlaces).Methods("GET")

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", handler.GetTestStatus).Methods("GET")
		router.HandleFunc("/test/{action}", handler.PostTestAction).Methods("POST")
	}

	// Browser client.
	router.PathPrefix("/").Handler(http.FileServer(http.Dir("web")))

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newBreaker builds a circuit breaker wired to metrics, or a pass-through
// breaker with very high thresholds when disabled.
func newBreaker(cfg *config.Config, component string) *circuitbreaker.CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 1 << 30,
			SuccessThreshold: 1,
			Timeout:          time.Millisecond,
			Component:        component,
		})
	}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(component, observability.CircuitBreakerStateValue(int(to)))
		},
	})
	observability.SetCircuitBreakerStateGauge(component, 0)
	return cb
}
