package reasoning

import (
	"strings"

	"github.com/shree2160/sahayakAIv1/internal/models"
)

// locationKeywords signal a map/places query, in English and Hindi.
var locationKeywords = []string{
	"nearby", "near me", "closest", "nearest", "where is", "find", "locate", "directions",
	"नजदीक", "नजदीकी", "पास में", "कहाँ है", "कहां है", "किधर है", "दिखाओ", "बताओ",
}

// procedureKeywords signal a how-to query served from the knowledge store.
var procedureKeywords = []string{
	"कैसे करें", "कैसे बनाएं", "how to", "process", "procedure", "steps", "apply for", "आवेदन", "तरीका",
}

// placeKeywords maps canonical place types to the words users say for them.
// Order matters: the first matching type wins.
var placeKeywords = []struct {
	placeType string
	words     []string
}{
	{"hospital", []string{"hospital", "अस्पताल", "doctor", "medical", "हॉस्पिटल"}},
	{"bank", []string{"bank", "बैंक", "atm"}},
	{"pharmacy", []string{"pharmacy", "medical store", "दवा", "मेडिकल"}},
	{"police", []string{"police", "thana", "पुलिस", "थाना"}},
	{"petrol", []string{"petrol", "fuel", "पेट्रोल"}},
	{"restaurant", []string{"restaurant", "food", "khana", "dhaba", "खाना", "होटल"}},
	{"grocery", []string{"grocery", "kirana", "किराना", "store"}},
	{"temple", []string{"temple", "mandir", "मंदिर"}},
	{"csc", []string{"csc", "केंद्र", "ई-सेवा", "seva kendra"}},
}

// AnalyzeHeuristic routes a query to map, knowledge, or AI using keyword
// matching alone. It is the base layer of analysis; a model refinement may
// override it when the reasoning engine is available.
func AnalyzeHeuristic(query string) models.QueryAnalysis {
	q := strings.ToLower(query)

	placeType := detectPlaceType(q)
	isLocation := containsAny(q, locationKeywords)
	isProcedure := containsAny(q, procedureKeywords)

	analysis := models.QueryAnalysis{
		DataSource: models.SourceAI,
		Intent:     "general_info",
		PlaceType:  placeType,
		Category:   detectCategory(q),
	}
	if (isLocation || placeType != "") && !isProcedure {
		analysis.DataSource = models.SourceMap
		analysis.Intent = "find_location"
	} else if isProcedure {
		analysis.DataSource = models.SourceKnowledge
		analysis.Intent = "process_help"
	}
	return analysis
}

func detectPlaceType(q string) string {
	for _, pk := range placeKeywords {
		if containsAny(q, pk.words) {
			return pk.placeType
		}
	}
	return ""
}

// detectCategory buckets the query for metrics and knowledge-store filtering.
func detectCategory(q string) string {
	if containsAny(q, []string{"hospital", "doctor", "अस्पताल"}) {
		return "health"
	}
	if containsAny(q, []string{"bank", "atm", "बैंक"}) {
		return "banking"
	}
	if containsAny(q, []string{"recharge", "mobile", "सिम"}) {
		return "telecom"
	}
	if containsAny(q, []string{"aadhaar", "pan", "passport", "आधार"}) {
		return "government"
	}
	return "general"
}

func containsAny(q string, words []string) bool {
	for _, w := range words {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// mergeRefinement applies a model refinement on top of the heuristic result.
// The model can promote a query to map or knowledge routing and supply a
// place type the keywords missed; it never clears a detected place type.
func mergeRefinement(base models.QueryAnalysis, ai analysisResult) models.QueryAnalysis {
	if ai.RequiresMap {
		base.DataSource = models.SourceMap
		base.Intent = "find_location"
		if base.PlaceType == "" && ai.PlaceType != "" && ai.PlaceType != "null" {
			base.PlaceType = ai.PlaceType
		}
	} else if ai.Intent == "process_help" {
		base.DataSource = models.SourceKnowledge
		base.Intent = "process_help"
	}
	return base
}

// finalizeAnalysis fills the place-type default for map queries with no
// detected type ("hospital" is the safest thing to surface near anyone).
func finalizeAnalysis(a models.QueryAnalysis) models.QueryAnalysis {
	if a.DataSource == models.SourceMap && a.PlaceType == "" {
		a.PlaceType = "hospital"
	}
	return a
}
