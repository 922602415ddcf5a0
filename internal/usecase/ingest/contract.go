package ingest

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

// ChunkWriter upserts embedded chunk batches into the vector index.
type ChunkWriter interface {
	UpsertBatch(ctx context.Context, indexName, source string, batch []chunk.Embedded) error
}

// ChunkCounter reads the index's reported chunk count.
type ChunkCounter interface {
	Count(ctx context.Context, indexName string) (int, error)
}

// Embedder vectorizes a single text. Used as a fallback when no batch
// embedder is wired.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// BatchEmbedder vectorizes many texts in one round trip.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
