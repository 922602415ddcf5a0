package index

import (
	"fmt"
	"regexp"
	"time"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Metric is the vector distance metric of an index.
type Metric string

const (
	// MetricCosine is cosine distance (default for text embeddings).
	MetricCosine Metric = "cosine"
	// MetricL2 is Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricIP is inner product distance.
	MetricIP Metric = "ip"
)

// IsValid checks if the metric is supported.
func (m Metric) IsValid() bool {
	return m == MetricCosine || m == MetricL2 || m == MetricIP
}

// Algorithm selects the vector indexing algorithm.
type Algorithm string

const (
	// AlgorithmFlat is exact brute-force search.
	AlgorithmFlat Algorithm = "flat"
	// AlgorithmHNSW is approximate graph search for larger corpora.
	AlgorithmHNSW Algorithm = "hnsw"
)

// IsValid checks if the algorithm is supported.
func (a Algorithm) IsValid() bool {
	return a == AlgorithmFlat || a == AlgorithmHNSW
}

// Index is the chunk index aggregate (immutable value object). It records
// the embedding geometry the index was created with, which retrieval checks
// query vectors against.
type Index struct {
	name      string
	model     string
	vectorDim int
	metric    Metric
	algorithm Algorithm
	createdAt int64
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("index name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("index name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("index name must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// New validates and creates an Index.
// Name: ^[a-zA-Z0-9_-]+$, 1-64 chars. VectorDim: > 0.
func New(name, model string, vectorDim int, metric Metric, algorithm Algorithm) (Index, error) {
	if err := validateName(name); err != nil {
		return Index{}, err
	}
	if vectorDim <= 0 {
		return Index{}, fmt.Errorf("vector dimension must be positive")
	}
	if metric == "" {
		metric = MetricCosine
	}
	if !metric.IsValid() {
		return Index{}, fmt.Errorf("invalid distance metric: %q", metric)
	}
	if algorithm == "" {
		algorithm = AlgorithmFlat
	}
	if !algorithm.IsValid() {
		return Index{}, fmt.Errorf("invalid vector algorithm: %q", algorithm)
	}

	return Index{
		name:      name,
		model:     model,
		vectorDim: vectorDim,
		metric:    metric,
		algorithm: algorithm,
		createdAt: time.Now().UnixMilli(),
	}, nil
}

// Reconstruct creates an Index without validation (storage hydration).
func Reconstruct(name, model string, vectorDim int, metric Metric, algorithm Algorithm, createdAt int64) Index {
	if metric == "" {
		metric = MetricCosine
	}
	if algorithm == "" {
		algorithm = AlgorithmFlat
	}
	return Index{
		name:      name,
		model:     model,
		vectorDim: vectorDim,
		metric:    metric,
		algorithm: algorithm,
		createdAt: createdAt,
	}
}

// Name returns the index name.
func (i Index) Name() string { return i.name }

// Model returns the embedding model the index was created for.
func (i Index) Model() string { return i.model }

// VectorDim returns the vector dimension.
func (i Index) VectorDim() int { return i.vectorDim }

// DistanceMetric returns the distance metric.
func (i Index) DistanceMetric() Metric { return i.metric }

// VectorAlgorithm returns the vector indexing algorithm.
func (i Index) VectorAlgorithm() Algorithm { return i.algorithm }

// CreatedAt returns the creation timestamp (unix millis).
func (i Index) CreatedAt() int64 { return i.createdAt }
