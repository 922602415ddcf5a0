package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
)

// store is the consumer interface for retrieval queries (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements usecase/retrieval.Repository.
type Repo struct {
	store  store
	prefix string
}

// New creates a retrieval repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// SearchKNN runs a vector similarity query against an index's chunk records,
// with optional tag pre-filtering. The metric must be the one the index was
// created with; it governs score conversion. Results arrive ranked by
// similarity.
func (r *Repo) SearchKNN(
	ctx context.Context, indexName string,
	vector []float32, filters domret.Filter, topK int, metric domidx.Metric,
) ([]domret.RetrievedChunk, error) {
	q := &db.KNNQuery{
		IndexName:    searchIndexName(r.prefix, indexName),
		Filters:      filters,
		Vector:       vector,
		K:            topK,
		Metric:       distanceMetric(metric),
		ReturnFields: []string{"text", "sequence_index", "length", "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", indexName, err)
	}

	return parseKNNResults(sr, r.prefix, indexName), nil
}

// parseKNNResults converts db.SearchResult into ranked retrieved chunks.
func parseKNNResults(sr *db.SearchResult, prefix, indexName string) []domret.RetrievedChunk {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	keyPrefix := fmt.Sprintf("%s%s:", prefix, indexName)
	results := make([]domret.RetrievedChunk, 0, len(sr.Entries))

	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, keyPrefix)
		results = append(results, domret.NewRetrievedChunk(parseEntryFields(id, entry.Fields), entry.Score))
	}

	return results
}

// parseEntryFields hydrates a chunk from RETURN fields, tolerating a missing
// length so older records still retrieve.
func parseEntryFields(id string, fields map[string]string) chunk.Chunk {
	seq, _ := strconv.Atoi(fields["sequence_index"])
	length, err := strconv.Atoi(fields["length"])
	if err != nil {
		length = len([]rune(fields["text"]))
	}
	return chunk.Reconstruct(id, fields["text"], seq, length)
}

func searchIndexName(prefix, index string) string {
	return fmt.Sprintf("%s%s:idx", prefix, index)
}

func distanceMetric(m domidx.Metric) db.DistanceMetric {
	switch m {
	case domidx.MetricL2:
		return db.DistanceL2
	case domidx.MetricIP:
		return db.DistanceIP
	default:
		return db.DistanceCosine
	}
}
