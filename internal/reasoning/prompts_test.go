package reasoning

import (
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/shree2160/sahayakAIv1/internal/models"
)

// TestBuildAnswerPrompt_PlacesContext verifies that map-routed queries embed
// the retrieved places as JSON context, truncated to the first five.
func TestBuildAnswerPrompt_PlacesContext(t *testing.T) {
	places := make([]models.Place, 7)
	for i := range places {
		places[i] = models.Place{Name: "Place " + string(rune('A'+i)), PlaceType: "hospital"}
	}
	analysis := models.QueryAnalysis{Intent: "find_location", DataSource: models.SourceMap}

	prompt := buildAnswerPrompt("hospital near me", analysis, places, nil)

	if !strings.Contains(prompt, "Nearby places found from OpenStreetMap") {
		t.Error("prompt should contain the places context marker")
	}
	if !strings.Contains(prompt, "Place E") {
		t.Error("prompt should include the fifth place")
	}
	if strings.Contains(prompt, "Place F") {
		t.Error("prompt should truncate places after the fifth")
	}
	if !strings.Contains(prompt, "User asks: hospital near me") {
		t.Error("prompt should end with the user query")
	}
}

// TestBuildAnswerPrompt_KnowledgeContext verifies that knowledge-routed queries
// embed the retrieved guides as context.
func TestBuildAnswerPrompt_KnowledgeContext(t *testing.T) {
	knowledge := []models.KnowledgeEntry{
		{ID: "1", Content: "Visit the NSDL portal.", Category: "government"},
	}
	analysis := models.QueryAnalysis{Intent: "process_help", DataSource: models.SourceKnowledge}

	prompt := buildAnswerPrompt("how to get pan card", analysis, nil, knowledge)

	if !strings.Contains(prompt, "Local procedural steps") {
		t.Error("prompt should contain the knowledge context marker")
	}
	if !strings.Contains(prompt, "NSDL portal") {
		t.Error("prompt should include the guide content")
	}
}

// TestBuildAnswerPrompt_NoContext verifies that general queries get the system
// prompt and query only, with no context block.
func TestBuildAnswerPrompt_NoContext(t *testing.T) {
	analysis := models.QueryAnalysis{Intent: "general_info", DataSource: models.SourceAI}

	prompt := buildAnswerPrompt("what is digital india", analysis, nil, nil)

	if strings.Contains(prompt, "Context:") {
		t.Error("prompt should not contain a context block")
	}
	if !strings.Contains(prompt, "Sahayak AI") {
		t.Error("prompt should contain the system prompt")
	}
	if !strings.HasSuffix(prompt, "Response:") {
		t.Errorf("prompt should end with the response cue, got tail %q", prompt[len(prompt)-20:])
	}
}

// TestExtractText verifies candidate text extraction including nil and empty
// responses.
func TestExtractText(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Errorf("extractText(nil) = %q, want empty", got)
	}
	if got := extractText(&genai.GenerateContentResponse{}); got != "" {
		t.Errorf("extractText(empty) = %q, want empty", got)
	}

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("नमस्ते, "), genai.Text("मैं मदद कर सकता हूं।")}}},
		},
	}
	if got := extractText(resp); got != "नमस्ते, मैं मदद कर सकता हूं।" {
		t.Errorf("extractText() = %q, want concatenated parts", got)
	}
}
