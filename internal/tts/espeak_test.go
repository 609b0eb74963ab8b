package tts

import "testing"

// TestTruncateForSpeech verifies the cap, sentence-boundary cuts, and the
// word-boundary fallback.
func TestTruncateForSpeech(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     string
	}{
		{"disabled", "anything at all goes through untouched", 0, "anything at all goes through untouched"},
		{"under limit", "short answer", 100, "short answer"},
		{
			"cut at sentence",
			"First sentence is here. Second sentence continues on and on and on past the limit",
			40,
			"First sentence is here.",
		},
		{
			"cut at danda",
			"पहला वाक्य यहाँ समाप्त होता है। दूसरा वाक्य बहुत लंबा है और सीमा से आगे जाता है",
			45,
			"पहला वाक्य यहाँ समाप्त होता है।",
		},
		{
			"cut at word boundary",
			"no sentence punctuation here just a long run of words that keeps going",
			30,
			"no sentence punctuation here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateForSpeech(tt.text, tt.maxChars); got != tt.want {
				t.Errorf("TruncateForSpeech(%q, %d) = %q, want %q", tt.text, tt.maxChars, got, tt.want)
			}
		})
	}
}

// TestNewEspeakSynthesizer_MissingBinary verifies a missing binary yields a
// not-ready synthesizer rather than a failure.
func TestNewEspeakSynthesizer_MissingBinary(t *testing.T) {
	s := NewEspeakSynthesizer("/nonexistent/espeak-ng", "hi", 150, 50, 500, nil)
	if s == nil {
		t.Fatal("NewEspeakSynthesizer() = nil, want not-ready synthesizer")
	}
	if s.Ready() {
		t.Error("Ready() = true for missing binary, want false")
	}
}
