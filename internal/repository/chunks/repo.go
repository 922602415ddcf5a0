package chunks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

// store is the consumer interface for chunk records (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo implements usecase/ingest.ChunkStore and usecase/index chunk access.
type Repo struct {
	store  store
	prefix string
}

// New creates a chunk record repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// UpsertBatch writes one batch of embedded chunks as hashes in a single
// pipeline. Chunk ids are deterministic, so re-writing a batch overwrites
// the same records instead of duplicating them.
func (r *Repo) UpsertBatch(ctx context.Context, indexName, source string, batch []chunk.Embedded) error {
	if len(batch) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(batch))
	for i := range batch {
		c := batch[i].Chunk()
		items[i] = db.HashSetItem{
			Key:    chunkKey(r.prefix, indexName, c.ID()),
			Fields: buildHashFields(&batch[i], source),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset chunk batch: %w", err)
	}
	return nil
}

// DeleteByIDs removes chunk records by id.
func (r *Repo) DeleteByIDs(ctx context.Context, indexName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chunkKey(r.prefix, indexName, id)
	}

	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("del chunks: %w", err)
	}
	return nil
}

// Count returns the number of chunk records the search index reports.
func (r *Repo) Count(ctx context.Context, indexName string) (int, error) {
	n, err := r.store.SearchCount(ctx, searchIndexName(r.prefix, indexName), "*")
	if err != nil {
		return 0, fmt.Errorf("search count %s: %w", indexName, err)
	}
	return n, nil
}

// List returns chunk records with cursor-based pagination via FT.SEARCH.
func (r *Repo) List(ctx context.Context, indexName, cursor string, limit int) ([]chunk.Chunk, string, error) {
	if limit <= 0 {
		limit = 20
	}

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		offset = parsed
	}

	fetchCount := limit + 1

	result, err := r.store.SearchList(ctx, searchIndexName(r.prefix, indexName), "*",
		offset, fetchCount, []string{"text", "sequence_index", "length"})
	if err != nil {
		return nil, "", fmt.Errorf("search list %s: %w", indexName, err)
	}

	if result == nil || result.Total == 0 {
		return nil, "", nil
	}

	chunks := make([]chunk.Chunk, 0, limit)
	for i, entry := range result.Entries {
		if i >= limit {
			break
		}
		id := extractChunkID(entry.Key, r.prefix, indexName)
		chunks = append(chunks, parseHashFields(id, entry.Fields))
	}

	var nextCursor string
	if len(result.Entries) > limit {
		nextCursor = strconv.Itoa(offset + limit)
	}

	return chunks, nextCursor, nil
}

// DeleteAll removes every chunk record under the index prefix.
// Returns the number of records deleted.
func (r *Repo) DeleteAll(ctx context.Context, indexName string) (int, error) {
	keys, err := r.store.Scan(ctx, chunkPrefix(r.prefix, indexName)+"*")
	if err != nil {
		return 0, fmt.Errorf("scan chunks %s: %w", indexName, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := r.store.DelMulti(ctx, keys); err != nil {
		return 0, fmt.Errorf("del chunks %s: %w", indexName, err)
	}
	return len(keys), nil
}

// Redis key patterns: {prefix}{index}:{chunkID}, search index {prefix}{index}:idx

func chunkKey(prefix, index, id string) string {
	return fmt.Sprintf("%s%s:%s", prefix, index, id)
}

func chunkPrefix(prefix, index string) string {
	return fmt.Sprintf("%s%s:", prefix, index)
}

func searchIndexName(prefix, index string) string {
	return fmt.Sprintf("%s%s:idx", prefix, index)
}

func extractChunkID(key, prefix, index string) string {
	return strings.TrimPrefix(key, chunkPrefix(prefix, index))
}
