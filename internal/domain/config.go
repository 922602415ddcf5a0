package domain

// VectorConfig holds internal vectorization settings, not exposed to clients.
type VectorConfig struct {
	Model               string
	Dimensions          int
	DistanceMetric      string
	Algorithm           string
	BatchSize           int
	MaxInFlightBatches  int
	DocumentInstruction string
	QueryInstruction    string
	MaxDocumentSizeKB   int
}

// DefaultVectorConfig returns the default configuration tuned for
// all-MiniLM-L6-v2 served through an OpenAI-compatible endpoint.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:              "all-MiniLM-L6-v2",
		Dimensions:         384,
		DistanceMetric:     "cosine",
		Algorithm:          "flat",
		BatchSize:          100,
		MaxInFlightBatches: 4,
		MaxDocumentSizeKB:  164,
	}
}
