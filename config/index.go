package config

import "os"

type IndexConfig struct {
	// VectorEnabled controls whether semantic search is available.
	// Requires an embedder; without one recall degrades to lexical search.
	// Default: true
	VectorEnabled bool `json:"vectorEnabled,omitempty"`

	// Dimension is the fixed embedding vector length.
	// Default: 1536 (OpenAI text-embedding-3-small)
	Dimension int `json:"dimension,omitempty"`

	// EmbeddingModel names the model recorded alongside each vector so a
	// model change can be detected and the index rebuilt.
	// Default: "text-embedding-3-small"
	EmbeddingModel string `json:"embeddingModel,omitempty"`

	// OverfetchFactor determines how many semantic candidates to retrieve
	// before merging with lexical results.
	// Actual retrieval count = limit x OverfetchFactor
	// Default: 3
	OverfetchFactor int `json:"overfetchFactor,omitempty"`

	// MinScore drops semantic candidates below this similarity (0..1 scale).
	// Default: 0.3
	MinScore float64 `json:"minScore,omitempty"`

	// LexicalScore is the fixed score assigned to records found only by the
	// lexical path, keeping them in the merged ranking below semantic hits.
	// Default: 0.1
	LexicalScore float64 `json:"lexicalScore,omitempty"`

	// AutoIndex makes remember() nudge the incremental indexer after each
	// append. When false, embeddings are computed on demand at query time.
	// Default: true
	AutoIndex bool `json:"autoIndex,omitempty"`
}

// NewIndexConfig creates an IndexConfig with sensible defaults
func NewIndexConfig() *IndexConfig {
	conf := &IndexConfig{
		VectorEnabled:   true,
		Dimension:       1536,
		EmbeddingModel:  "text-embedding-3-small",
		OverfetchFactor: 3,
		MinScore:        0.3,
		LexicalScore:    0.1,
		AutoIndex:       true,
	}
	if v := os.Getenv("CHRONICLE_EMBEDDING_MODEL"); v != "" {
		conf.EmbeddingModel = v
	}
	return conf
}
