package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	vosk "github.com/alphacep/vosk-api/go"
	"go.uber.org/zap"

	"github.com/shree2160/sahayakAIv1/internal/observability"
)

// ErrModelNotLoaded is returned by Transcribe when the recognition model
// failed to load at startup. Callers degrade to text-only queries.
var ErrModelNotLoaded = errors.New("speech model not loaded")

// ErrDecodeFailed is returned when the uploaded audio could not be converted
// to the PCM format the recognizer expects.
var ErrDecodeFailed = errors.New("audio decode failed")

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Ready() bool
}

// VoskTranscriber implements Transcriber using an offline Vosk model. The
// uploaded audio (typically webm/opus from a browser recorder) is first
// converted to 16 kHz mono s16le PCM with ffmpeg, then fed to a per-call
// recognizer. Recognizers are not safe for concurrent use, so each call
// creates and frees its own; the model itself is shared.
type VoskTranscriber struct {
	mu         sync.Mutex
	model      *vosk.VoskModel
	sampleRate float64
	ffmpegPath string
	logger     *zap.Logger
}

// voskResult mirrors the JSON the recognizer emits.
type voskResult struct {
	Text string `json:"text"`
}

// NewVoskTranscriber loads the model at modelPath. A load failure is not
// fatal: the transcriber is returned in a not-ready state along with the
// error so the caller can log it and keep serving text queries.
func NewVoskTranscriber(modelPath string, sampleRate int, ffmpegPath string, logger *zap.Logger) (*VoskTranscriber, error) {
	vosk.SetLogLevel(-1)
	t := &VoskTranscriber{
		sampleRate: float64(sampleRate),
		ffmpegPath: ffmpegPath,
		logger:     logger,
	}
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return t, fmt.Errorf("load speech model %s: %w", modelPath, err)
	}
	t.model = model
	return t, nil
}

// Ready reports whether the speech model loaded successfully.
func (t *VoskTranscriber) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.model != nil
}

// Transcribe converts audio to PCM and runs it through the recognizer.
// Returns the recognized text, which may be empty when nothing was understood.
func (t *VoskTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	start := time.Now()
	text, err := t.transcribe(ctx, audio)
	duration := time.Since(start).Seconds()
	observability.STTTranscriptionDuration.Observe(duration)
	switch {
	case err != nil:
		observability.STTTranscriptionsTotal.WithLabelValues("error").Inc()
	case text == "":
		observability.STTTranscriptionsTotal.WithLabelValues("empty").Inc()
	default:
		observability.STTTranscriptionsTotal.WithLabelValues("success").Inc()
	}
	return text, err
}

func (t *VoskTranscriber) transcribe(ctx context.Context, audio []byte) (string, error) {
	t.mu.Lock()
	model := t.model
	t.mu.Unlock()
	if model == nil {
		return "", ErrModelNotLoaded
	}

	pcm, err := t.toPCM(ctx, audio)
	if err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}

	rec, err := vosk.NewRecognizer(model, t.sampleRate)
	if err != nil {
		return "", fmt.Errorf("create recognizer: %w", err)
	}
	defer rec.Free()

	const chunkSize = 4096
	for off := 0; off < len(pcm); off += chunkSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := off + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		rec.AcceptWaveform(pcm[off:end])
	}

	var result voskResult
	if err := json.Unmarshal([]byte(rec.FinalResult()), &result); err != nil {
		return "", fmt.Errorf("parse recognizer result: %w", err)
	}
	return result.Text, nil
}

// toPCM shells out to ffmpeg to convert arbitrary browser audio to the
// 16 kHz mono s16le stream the recognizer expects.
func (t *VoskTranscriber) toPCM(ctx context.Context, audio []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", int(t.sampleRate)),
		"-ac", "1",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(audio)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if t.logger != nil {
			t.logger.Warn("ffmpeg conversion failed", zap.Error(err), zap.String("stderr", stderr.String()))
		}
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out.Bytes(), nil
}

// Close frees the shared model. Call during shutdown.
func (t *VoskTranscriber) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model != nil {
		t.model.Free()
		t.model = nil
	}
}
