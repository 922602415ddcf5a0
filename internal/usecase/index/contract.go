package index

import (
	"context"

	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
)

// Repository defines the storage contract for index definitions.
type Repository interface {
	Create(ctx context.Context, idx domidx.Index) error
	Get(ctx context.Context, name string) (domidx.Index, error)
	List(ctx context.Context) ([]domidx.Index, error)
	Delete(ctx context.Context, name string) error
}

// ChunkStore counts and clears the chunk records behind an index.
type ChunkStore interface {
	Count(ctx context.Context, indexName string) (int, error)
	DeleteAll(ctx context.Context, indexName string) (int, error)
}
