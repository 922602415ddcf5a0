package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
)

// Searcher runs KNN queries against the vector index.
type Searcher interface {
	SearchKNN(ctx context.Context, indexName string, vector []float32, filters domret.Filter, topK int, metric domidx.Metric) ([]domret.RetrievedChunk, error)
}

// IndexReader reads index definitions for geometry checks.
type IndexReader interface {
	Get(ctx context.Context, name string) (domidx.Index, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
