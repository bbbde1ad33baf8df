package schema

import "time"

// Document is a single chunk stored in the vector database.
type Document struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Vector      []float32      `json:"vector,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	Heading     string         `json:"heading,omitempty"`
	ChunkIndex  int            `json:"chunk_index"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document *Document `json:"document"`
	Score    float64   `json:"score"`
}

// SearchOptions tunes a vector search.
type SearchOptions struct {
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
}
