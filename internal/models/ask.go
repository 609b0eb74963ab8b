package models

// AskRequest is the body of POST /ask. Either AudioBase64 or TextQuery must
// be set; when both are present the text wins and the audio is ignored.
type AskRequest struct {
	AudioBase64 string   `json:"audio_base64,omitempty"`
	TextQuery   string   `json:"text_query,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Language    string   `json:"language,omitempty"` // "hi" or "en", default "hi"
}

// AskResponse is the wire response of POST /ask. Pipeline failures are soft:
// Success=false with ErrorMessage set, still HTTP 200.
type AskResponse struct {
	Success         bool    `json:"success"`
	TextResponse    string  `json:"text_response"`
	AudioBase64     string  `json:"audio_base64,omitempty"`
	TranscribedText string  `json:"transcribed_text,omitempty"`
	DetectedIntent  string  `json:"detected_intent,omitempty"`
	NearbyPlaces    []Place `json:"nearby_places,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// DataSource selects which collaborator feeds context into answer generation.
type DataSource string

const (
	SourceMap       DataSource = "map"       // Overpass nearby search
	SourceKnowledge DataSource = "knowledge" // procedural guides store
	SourceAI        DataSource = "ai"        // model self-knowledge only
)

// QueryAnalysis is the routing decision for one query.
type QueryAnalysis struct {
	DataSource DataSource `json:"data_source"`
	PlaceType  string     `json:"place_type,omitempty"`
	Intent     string     `json:"intent"`
	Category   string     `json:"category"`
}
