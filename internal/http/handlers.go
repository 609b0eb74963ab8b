package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shree2160/sahayakAIv1/internal/degraded"
	"github.com/shree2160/sahayakAIv1/internal/idle"
	"github.com/shree2160/sahayakAIv1/internal/lifecycle"
	"github.com/shree2160/sahayakAIv1/internal/models"
	"github.com/shree2160/sahayakAIv1/internal/observability"
	"github.com/shree2160/sahayakAIv1/internal/overload"
	"github.com/shree2160/sahayakAIv1/internal/service"
	"github.com/shree2160/sahayakAIv1/internal/traffic"
	"github.com/shree2160/sahayakAIv1/internal/validation"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	RateLimitBurst         int // 0 when rate limiter disabled
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	DegradedRetryInitial   time.Duration
	DegradedRetryMax       time.Duration
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Readiness reports which pipeline collaborators are usable. The health
// handler surfaces each as a named check.
type Readiness struct {
	SpeechRecognition func() bool
	ReasoningEngine   func() bool
	SpeechSynthesis   func() bool
	KnowledgeStore    func() bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	assistant        *service.AssistantService
	readiness        Readiness
	healthConfig     *HealthConfig
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	searchRadius     int
	placesLimit      int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	assistant *service.AssistantService,
	readiness Readiness,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
	searchRadius, placesLimit int,
) *Handler {
	return &Handler{
		assistant:    assistant,
		readiness:    readiness,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
		searchRadius: searchRadius,
		placesLimit:  placesLimit,
	}
}

// PostAsk handles POST /ask, the assistant pipeline endpoint. Pipeline
// failures are soft (Success=false, HTTP 200); only malformed requests get
// HTTP error codes.
func (h *Handler) PostAsk(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("ask pipeline panic", zap.Any("panic", rec))
			degraded.RecordError()
			writeJSON(w, http.StatusOK, models.AskResponse{
				Success:      false,
				TextResponse: "कुछ गलत हो गया। कृपया पुनः प्रयास करें।",
				ErrorMessage: "कुछ गलत हो गया। कृपया पुनः प्रयास करें।",
			})
		}
	}()

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			writeError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	if err := validation.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	idle.RecordRequest()
	resp := h.assistant.Ask(r.Context(), req)
	if resp.Success {
		degraded.RecordSuccess()
	} else {
		degraded.RecordError()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetNearbyPlaces handles GET /places/nearby. Query parameters: lat, lon
// (both required), type, radius, limit. Upstream failures are soft.
func (h *Handler) GetNearbyPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lon query parameters are required")
		return
	}
	if err := validation.ValidateCoordinates(&lat, &lon); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	placeType := strings.TrimSpace(q.Get("type"))
	if placeType == "" {
		placeType = "hospital"
	}
	radius := h.searchRadius
	if v, err := strconv.Atoi(q.Get("radius")); err == nil && v > 0 {
		radius = v
	}
	limit := h.placesLimit
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}

	idle.RecordRequest()
	result, err := h.assistant.NearbyPlaces(r.Context(), lat, lon, placeType, radius, limit)
	if err != nil {
		degraded.RecordError()
		writeJSON(w, http.StatusOK, models.NearbyPlacesResponse{
			Success:      false,
			Places:       []models.Place{},
			SearchRadius: radius,
			ErrorMessage: "Nearby places are unavailable right now. Please try again.",
		})
		if logger := requestLogger(r); logger != nil {
			logger.Debug("places lookup error", zap.Error(err))
		}
		return
	}
	degraded.RecordSuccess()
	places := result.Places
	if places == nil {
		places = []models.Place{}
	}
	writeJSON(w, http.StatusOK, models.NearbyPlacesResponse{
		Success:      true,
		Places:       places,
		TotalCount:   len(places),
		SearchRadius: radius,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	checks["speechRecognition"] = readinessLabel(h.readiness.SpeechRecognition)
	checks["reasoningEngine"] = readinessLabel(h.readiness.ReasoningEngine)
	checks["speechSynthesis"] = readinessLabel(h.readiness.SpeechSynthesis)
	checks["knowledgeStore"] = readinessLabel(h.readiness.KnowledgeStore)
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "sahayak-assistant",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// readinessLabel maps an optional readiness probe to a check label. A nil
// probe means the collaborator was not wired, which is a deliberate degraded
// mode, not an unhealthy one.
func readinessLabel(probe func() bool) string {
	if probe == nil {
		return "disabled"
	}
	if probe() {
		return "healthy"
	}
	return "unavailable"
}

// computeHealthStatus determines the current health status by evaluating multiple conditions
// in priority order. Returns healthResult with status, HTTP status code, and reason.
// Decision order: shutting-down > reasoning engine down > overloaded > idle > degraded > healthy.
// Each condition is evaluated only if previous conditions are not met.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	// Priority 1: Check if service is shutting down
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	// Priority 2: The reasoning engine is the one collaborator without a
	// useful offline fallback for general queries
	engineDown := h.readiness.ReasoningEngine != nil && !h.readiness.ReasoningEngine()
	if h.healthConfig == nil {
		if engineDown {
			return healthResult{"degraded", http.StatusServiceUnavailable, "reasoning_engine_unavailable"}
		}
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if engineDown {
		return healthResult{"degraded", http.StatusServiceUnavailable, "reasoning_engine_unavailable"}
	}
	// Priority 3: Check overload threshold (rate limit denials exceed configured percentage)
	threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
	if float64(overload.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	}
	// Priority 4: Check idle conditions (only if uptime exceeds minimum lifespan)
	if h.healthConfig.IdleWindow > 0 && h.healthConfig.MinimumLifespan > 0 && time.Since(h.healthConfig.StartTime) >= h.healthConfig.MinimumLifespan {
		if idle.RequestCount(h.healthConfig.IdleWindow) < h.healthConfig.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	// Priority 5: Check degraded state (error rate exceeds configured threshold)
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := degraded.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	// Default: All checks passed, service is healthy
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

func requestLogger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}

// GetTestStatus handles GET /test. Returns current simulated state.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := 60 * time.Second
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	errors, _ := degraded.ErrorRate(window)

	cfg := make(map[string]interface{})
	if h.healthConfig != nil {
		overloadThreshold := 0
		if h.healthConfig.RateLimitRPS > 0 {
			overloadThreshold = int(float64(h.healthConfig.RateLimitRPS) *
				h.healthConfig.OverloadWindow.Seconds() *
				float64(h.healthConfig.OverloadThresholdPct) / 100)
		}
		cfg["rate_limit_rps"] = h.healthConfig.RateLimitRPS
		cfg["rate_limit_burst"] = h.healthConfig.RateLimitBurst
		cfg["overload_threshold"] = overloadThreshold
		cfg["overload_window_seconds"] = h.healthConfig.OverloadWindow.Seconds()
		cfg["degraded_error_pct"] = h.healthConfig.DegradedErrorPct
	}

	resp := map[string]interface{}{
		"total_requests_in_window":  overload.RequestCount(window),
		"denied_requests_in_window": overload.DenialCount(window),
		"errors_in_window":          errors,
		"window_length":             window.String(),
		"auto_clear":                !degraded.IsRecoveryDisabled(),
		"config":                    cfg,
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostTestAction handles POST /test/{action} for load, error, reset, shutdown, prevent_clear, fail_clear, clear.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "load":
		h.postTestLoad(w, r)
	case "error":
		h.postTestError(w, r)
	case "reset":
		h.postTestReset(w, r)
	case "shutdown":
		h.postTestShutdown(w, r)
	case "prevent_clear":
		h.postTestPreventClear(w, r)
	case "fail_clear":
		h.postTestFailClear(w, r)
	case "clear":
		h.postTestClear(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

// postTestLoad simulates load by recording the specified number of requests,
// respecting rate limits if configured. Returns accepted/denied counts and current health state.
func (h *Handler) postTestLoad(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = 10
	}
	var accepted, denied int
	if h.rateLimiter != nil {
		for i := 0; i < body.Count; i++ {
			if h.rateLimiter.Allow() {
				traffic.RecordSuccess()
				idle.RecordRequest()
				accepted++
			} else {
				overload.RecordDenial()
				observability.RateLimitDeniedTotal.Inc()
				denied++
			}
		}
	} else {
		traffic.RecordSuccessN(body.Count)
		for i := 0; i < body.Count; i++ {
			idle.RecordRequest()
		}
		accepted = body.Count
	}
	result := h.computeHealthStatus(r.Context())
	msg := "Recorded " + strconv.Itoa(accepted) + " accepted"
	if denied > 0 {
		msg += ", " + strconv.Itoa(denied) + " denied"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"action":   "load",
		"message":  msg,
		"state":    result.status,
		"accepted": accepted,
		"denied":   denied,
	})
}

// postTestError simulates errors by recording the specified number of error events.
// Returns current error rate percentage and health state after recording errors.
func (h *Handler) postTestError(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = 1
	}
	traffic.RecordErrorN(body.Count)
	window := 60 * time.Second
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	errors, total := degraded.ErrorRate(window)
	pct := 0
	if total > 0 {
		pct = errors * 100 / total
	}
	result := h.computeHealthStatus(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"action":         "error",
		"message":        "Recorded " + strconv.Itoa(body.Count) + " errors",
		"state":          result.status,
		"error_rate_pct": pct,
	})
}

// postTestReset clears all simulated state including overload, degraded, idle tracking,
// recovery overrides, and shutdown flag. Used for test cleanup.
func (h *Handler) postTestReset(w http.ResponseWriter, r *http.Request) {
	overload.Reset()
	degraded.Reset()
	idle.Reset()
	degraded.ClearRecoveryOverrides()
	lifecycle.SetShuttingDown(false)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "reset",
		"message": "All simulated state cleared",
	})
}

// postTestShutdown sets the service shutdown flag, triggering graceful shutdown behavior.
// Health checks will return shutting-down status after this is called.
func (h *Handler) postTestShutdown(w http.ResponseWriter, r *http.Request) {
	lifecycle.SetShuttingDown(true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "shutdown",
		"message": "Shutting-down flag set",
	})
}

// postTestPreventClear disables automatic recovery clearing for degraded state testing.
// Prevents recovery from automatically clearing degraded state when conditions improve.
func (h *Handler) postTestPreventClear(w http.ResponseWriter, r *http.Request) {
	degraded.SetRecoveryDisabled(true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "prevent_clear",
		"message": "Auto-recovery disabled",
	})
}

// postTestFailClear simulates a failed recovery attempt and advances the recovery delay sequence.
// Returns the next recovery delay time. If recovery sequence is exhausted, sets shutting-down flag.
func (h *Handler) postTestFailClear(w http.ResponseWriter, r *http.Request) {
	degraded.SetForceFailNextAttempt(true)
	resp := map[string]interface{}{
		"ok":      true,
		"action":  "fail_clear",
		"message": "Simulated failed recovery attempt",
	}
	if h.healthConfig != nil && h.healthConfig.DegradedRetryInitial > 0 && h.healthConfig.DegradedRetryMax >= h.healthConfig.DegradedRetryInitial {
		if d, ok := degraded.GetAndAdvanceNextRecoveryDelay(h.healthConfig.DegradedRetryInitial, h.healthConfig.DegradedRetryMax); ok {
			resp["next_recovery"] = d.String()
		} else {
			resp["next_recovery"] = "shutting-down"
			lifecycle.SetShuttingDown(true)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// postTestClear forces successful recovery by clearing degraded state and recovery overrides.
// Used to manually clear degraded state during testing.
func (h *Handler) postTestClear(w http.ResponseWriter, r *http.Request) {
	degraded.Reset()
	degraded.ClearRecoveryOverrides()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "clear",
		"message": "Recovery forced successful",
	})
}
