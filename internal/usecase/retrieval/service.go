// Package retrieval answers queries with the most similar chunks: it embeds
// the query, verifies the embedding matches the index geometry and runs a
// KNN search, returning hits in a deterministic rank order.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Service handles chunk retrieval.
type Service struct {
	repo  Searcher
	index IndexReader
	embed Embedder
}

// New creates a retrieval service.
func New(repo Searcher, index IndexReader, embed Embedder) *Service {
	return &Service{repo: repo, index: index, embed: embed}
}

// Retrieve returns up to topK chunks of indexName ranked by similarity to
// text. Fewer hits than requested is not an error; the result carries a
// flag for it. A query embedding whose dimension disagrees with the index
// fails before the vector index is ever queried.
func (s *Service) Retrieve(ctx context.Context, indexName, text string, topK int, filters domret.Filter) (domret.Result, error) {
	query, err := domret.NewQuery(text, topK, filters)
	if err != nil {
		return domret.Result{}, fmt.Errorf("validate query: %w: %w", domain.ErrInvalidParameter, err)
	}

	idx, err := s.index.Get(ctx, indexName)
	if err != nil {
		return domret.Result{}, fmt.Errorf("get index: %w", err)
	}

	embResult, err := s.embed.Embed(ctx, query.Text())
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(indexName, "error").Inc()
		return domret.Result{}, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(embResult.TotalTokens)

	if len(embResult.Embedding) != idx.VectorDim() {
		metrics.RetrievalRequestsTotal.WithLabelValues(indexName, "error").Inc()
		return domret.Result{}, fmt.Errorf("index %q: %w", indexName,
			domain.NewDimMismatch(len(embResult.Embedding), idx.VectorDim()))
	}

	hits, err := s.repo.SearchKNN(ctx, indexName, embResult.Embedding, query.Filters(), query.TopK(), idx.DistanceMetric())
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(indexName, "error").Inc()
		return domret.Result{}, fmt.Errorf("search knn: %w: %w", domain.ErrIndexReadFailed, err)
	}

	rankHits(hits)
	if len(hits) > query.TopK() {
		hits = hits[:query.TopK()]
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(indexName, "success").Inc()
	metrics.RetrievalResultsReturned.WithLabelValues(indexName).Observe(float64(len(hits)))
	return domret.NewResult(hits, query.TopK()), nil
}

// rankHits orders hits by descending score; equal scores fall back to
// ascending sequence index so repeated queries rank ties the same way.
func rankHits(hits []domret.RetrievedChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score() != hits[j].Score() {
			return hits[i].Score() > hits[j].Score()
		}
		ci, cj := hits[i].Chunk(), hits[j].Chunk()
		return ci.SequenceIndex() < cj.SequenceIndex()
	})
}
