package models

// KnowledgeEntry is one procedural guide from the knowledge store.
type KnowledgeEntry struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Location string `json:"location,omitempty"`
}
