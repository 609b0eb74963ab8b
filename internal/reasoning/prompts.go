package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shree2160/sahayakAIv1/internal/models"
)

// systemPrompt anchors every answer generation call. Answers follow the
// user's language (Hindi/English/Hinglish) and stay short enough to speak.
const systemPrompt = `You are Sahayak AI, a helpful voice assistant for Indian citizens.

Your capabilities:
1. LOCATION QUERIES: Finding nearby hospitals, banks, ATMs, petrol pumps, police stations, etc.
2. PROCEDURE QUERIES: Explaining how to do Aadhaar update, PAN card, passport, mobile recharge, etc.
3. GENERAL QUERIES: Answering general questions about India, government schemes, etc.

Guidelines:
- Respond in the SAME LANGUAGE as the user (Hindi/English/Hinglish)
- Give step-by-step instructions for procedures
- Include distance and names for location-based answers
- Be concise but complete
- Use simple language anyone can understand`

// analysisPromptTemplate asks the model for a strict-JSON routing refinement.
const analysisPromptTemplate = `Analyze query: %q
Return JSON only:
{
  "intent": "find_location | process_help | general",
  "place_type": "string or null",
  "requires_map": boolean
}`

// analysisResult is the JSON shape the refinement call returns.
type analysisResult struct {
	Intent      string `json:"intent"`
	PlaceType   string `json:"place_type"`
	RequiresMap bool   `json:"requires_map"`
}

// buildAnswerPrompt assembles the generation prompt: system prompt, optional
// retrieved context (places or knowledge entries), and the user's query.
func buildAnswerPrompt(query string, analysis models.QueryAnalysis, places []models.Place, knowledge []models.KnowledgeEntry) string {
	var context string
	switch {
	case analysis.DataSource == models.SourceMap && len(places) > 0:
		if len(places) > 5 {
			places = places[:5]
		}
		raw, err := json.Marshal(places)
		if err == nil {
			context = "Context: Nearby places found from OpenStreetMap: " + string(raw)
		}
	case analysis.DataSource == models.SourceKnowledge && len(knowledge) > 0:
		raw, err := json.Marshal(knowledge)
		if err == nil {
			context = "Context: Local procedural steps: " + string(raw)
		}
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n")
	if context != "" {
		b.WriteString(context)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User asks: %s\nResponse:", query)
	return b.String()
}
