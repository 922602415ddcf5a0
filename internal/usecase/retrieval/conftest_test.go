package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
)

// --- Mocks ---

type mockSearcher struct {
	hits       []domret.RetrievedChunk
	err        error
	called     bool
	gotVector  []float32
	gotFilters domret.Filter
	gotTopK    int
	gotMetric  domidx.Metric
}

func (m *mockSearcher) SearchKNN(_ context.Context, _ string, vector []float32, filters domret.Filter, topK int, metric domidx.Metric) ([]domret.RetrievedChunk, error) {
	m.called = true
	m.gotVector = vector
	m.gotFilters = filters
	m.gotTopK = topK
	m.gotMetric = metric
	return m.hits, m.err
}

type mockIndexReader struct {
	idx domidx.Index
	err error
}

func (m *mockIndexReader) Get(_ context.Context, _ string) (domidx.Index, error) {
	return m.idx, m.err
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

// --- Helpers ---

func makeIndex(dim int) domidx.Index {
	return domidx.Reconstruct("handbook", "all-MiniLM-L6-v2", dim, domidx.MetricCosine, domidx.AlgorithmFlat, 1700000000000)
}

func makeHit(t *testing.T, seq int, score float64) domret.RetrievedChunk {
	t.Helper()
	c := chunk.Reconstruct(fmt.Sprintf(chunk.IDFormat, seq), "retrieved text", seq, 14)
	return domret.NewRetrievedChunk(c, score)
}

func newTestService(searcher *mockSearcher, reader *mockIndexReader, embed *mockEmbedder) *Service {
	return New(searcher, reader, embed)
}
