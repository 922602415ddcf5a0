package db

import "github.com/kailas-cloud/ragdex/internal/domain/retrieval"

// KNNQuery is the input for vector similarity search. Metric must match
// the metric the target index was created with; it selects how the raw
// distance is converted to a similarity score. Empty means cosine.
type KNNQuery struct {
	IndexName    string
	Filters      retrieval.Filter
	Vector       []float32
	K            int
	Metric       DistanceMetric
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
