package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/shree2160/sahayakAIv1/internal/circuitbreaker"
	"github.com/shree2160/sahayakAIv1/internal/models"
	"github.com/shree2160/sahayakAIv1/internal/observability"
)

// ErrNotReady is returned by GenerateAnswer when no hosted model could be
// initialized (missing key, exhausted quota). Analysis still works on
// heuristics alone.
var ErrNotReady = errors.New("reasoning engine not ready")

// Engine routes queries and generates answers.
type Engine interface {
	AnalyzeQuery(ctx context.Context, query string) models.QueryAnalysis
	GenerateAnswer(ctx context.Context, query string, analysis models.QueryAnalysis, places []models.Place, knowledge []models.KnowledgeEntry) (string, error)
	Ready() bool
}

// GeminiEngine implements Engine against the Gemini API. Two model handles
// share one client: answerModel for free-text generation and jsonModel for
// strict-JSON analysis refinement. Calls go through a circuit breaker so a
// throttled or down API degrades to heuristics and canned answers instead of
// hanging every request.
type GeminiEngine struct {
	client      *genai.Client
	modelName   string
	answerModel *genai.GenerativeModel
	jsonModel   *genai.GenerativeModel
	breaker     *circuitbreaker.CircuitBreaker
	timeout     time.Duration
	logger      *zap.Logger
	ready       bool
}

// NewGeminiEngine creates the client and probes candidate models in order,
// keeping the first that answers. Initialization failure is not fatal: the
// engine comes back not-ready and the caller keeps serving degraded answers.
func NewGeminiEngine(ctx context.Context, apiKey string, modelNames []string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) (*GeminiEngine, error) {
	e := &GeminiEngine{
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
	}
	if apiKey == "" {
		return e, errors.New("missing Gemini API key")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return e, fmt.Errorf("create Gemini client: %w", err)
	}
	e.client = client

	for _, name := range modelNames {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		m := client.GenerativeModel(name)
		_, err := m.GenerateContent(probeCtx, genai.Text("test"))
		cancel()
		if err != nil {
			if logger != nil {
				logger.Warn("model unavailable", zap.String("model", name), zap.Error(err))
			}
			continue
		}
		e.modelName = name
		e.answerModel = m
		e.answerModel.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
		e.jsonModel = client.GenerativeModel(name)
		e.jsonModel.ResponseMIMEType = "application/json"
		e.ready = true
		if logger != nil {
			logger.Info("reasoning engine ready", zap.String("model", name))
		}
		return e, nil
	}
	return e, fmt.Errorf("no usable model among %v", modelNames)
}

// Ready reports whether a hosted model was successfully initialized.
func (e *GeminiEngine) Ready() bool {
	return e.ready
}

// ModelName returns the active model, or empty when not ready.
func (e *GeminiEngine) ModelName() string {
	return e.modelName
}

// AnalyzeQuery routes the query. Keyword heuristics decide first; when the
// hosted model is available its JSON refinement may promote the routing or
// supply a missing place type. Refinement failures fall back to the
// heuristic result silently.
func (e *GeminiEngine) AnalyzeQuery(ctx context.Context, query string) models.QueryAnalysis {
	analysis := AnalyzeHeuristic(query)

	if e.ready {
		refined, err := e.refine(ctx, query)
		if err == nil {
			analysis = mergeRefinement(analysis, refined)
		} else if e.logger != nil {
			e.logger.Debug("analysis refinement failed", zap.Error(err))
		}
	}

	return finalizeAnalysis(analysis)
}

func (e *GeminiEngine) refine(ctx context.Context, query string) (analysisResult, error) {
	var result analysisResult
	prompt := fmt.Sprintf(analysisPromptTemplate, query)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := e.breaker.Call(callCtx, func() error {
		resp, err := e.jsonModel.GenerateContent(callCtx, genai.Text(prompt))
		if err != nil {
			return err
		}
		raw := extractText(resp)
		if raw == "" {
			return errors.New("empty analysis response")
		}
		return json.Unmarshal([]byte(raw), &result)
	})
	observability.GeminiCallDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.GeminiCallsTotal.WithLabelValues("analyze", "error").Inc()
		return analysisResult{}, err
	}
	observability.GeminiCallsTotal.WithLabelValues("analyze", "success").Inc()
	return result, nil
}

// GenerateAnswer produces the final answer text, injecting retrieved places
// or knowledge entries as context.
func (e *GeminiEngine) GenerateAnswer(ctx context.Context, query string, analysis models.QueryAnalysis, places []models.Place, knowledge []models.KnowledgeEntry) (string, error) {
	if !e.ready {
		return "", ErrNotReady
	}

	prompt := buildAnswerPrompt(query, analysis, places, knowledge)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var answer string
	start := time.Now()
	err := e.breaker.Call(callCtx, func() error {
		resp, err := e.answerModel.GenerateContent(callCtx, genai.Text(prompt))
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(extractText(resp))
		if answer == "" {
			return errors.New("empty answer")
		}
		return nil
	})
	observability.GeminiCallDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.GeminiCallsTotal.WithLabelValues("generate", "error").Inc()
		return "", fmt.Errorf("generate answer: %w", err)
	}
	observability.GeminiCallsTotal.WithLabelValues("generate", "success").Inc()
	return answer, nil
}

// Close releases the underlying client. Call during shutdown.
func (e *GeminiEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
