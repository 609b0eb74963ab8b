package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shree2160/sahayakAIv1/internal/observability"
)

// ErrUnavailable is returned by Synthesize when the eSpeak NG binary was not
// found at startup. Callers return text-only responses.
var ErrUnavailable = errors.New("speech synthesis unavailable")

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("empty text")

// Synthesizer converts answer text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Ready() bool
}

// EspeakSynthesizer implements Synthesizer by shelling out to eSpeak NG,
// which runs fully offline. Output is WAV taken from the process stdout.
type EspeakSynthesizer struct {
	path      string
	voice     string
	speed     int
	pitch     int
	maxChars  int
	available bool
	logger    *zap.Logger
}

// NewEspeakSynthesizer probes for the eSpeak NG binary and returns a
// synthesizer. A missing binary is not fatal: the synthesizer is returned in
// a not-ready state so the service can keep answering in text.
func NewEspeakSynthesizer(path, voice string, speed, pitch, maxChars int, logger *zap.Logger) *EspeakSynthesizer {
	if path == "" {
		path = "espeak-ng"
	}
	s := &EspeakSynthesizer{
		path:     path,
		voice:    voice,
		speed:    speed,
		pitch:    pitch,
		maxChars: maxChars,
		logger:   logger,
	}
	if err := exec.Command(path, "--version").Run(); err != nil {
		if logger != nil {
			logger.Warn("espeak-ng not available, responses will be text-only", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	s.available = true
	return s
}

// Ready reports whether the eSpeak NG binary was found.
func (s *EspeakSynthesizer) Ready() bool {
	return s.available
}

// Synthesize renders text to WAV audio. Long answers are truncated to the
// configured character limit before synthesis to bound response latency and
// payload size.
func (s *EspeakSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	audio, err := s.synthesize(ctx, text)
	observability.TTSSynthesisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.TTSSynthesesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.TTSSynthesesTotal.WithLabelValues("success").Inc()
	return audio, nil
}

func (s *EspeakSynthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	if !s.available {
		return nil, ErrUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	text = TruncateForSpeech(text, s.maxChars)

	cmd := exec.CommandContext(ctx, s.path,
		"-v", s.voice,
		"-s", strconv.Itoa(s.speed),
		"-p", strconv.Itoa(s.pitch),
		"--stdout",
		text,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s.logger != nil {
			s.logger.Warn("espeak-ng failed", zap.Error(err), zap.String("stderr", stderr.String()))
		}
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("synthesize speech: empty output")
	}
	return out.Bytes(), nil
}

// TruncateForSpeech caps text at maxChars runes, cutting back to the last
// sentence or word boundary so the audio does not stop mid-word. A maxChars
// of 0 disables truncation.
func TruncateForSpeech(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= maxChars {
		return text
	}
	cut := string(r[:maxChars])
	for _, sep := range []string{"।", ".", "?", "!"} {
		if i := strings.LastIndex(cut, sep); i > maxChars/2 {
			return strings.TrimSpace(cut[:i+len(sep)])
		}
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
