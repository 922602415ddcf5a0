package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

// --- Mocks ---

type mockWriter struct {
	mu       sync.Mutex
	upsertFn func(indexName, source string, batch []chunk.Embedded) error
	calls    int
	seen     map[string]bool
}

func (m *mockWriter) UpsertBatch(_ context.Context, indexName, source string, batch []chunk.Embedded) error {
	m.mu.Lock()
	m.calls++
	fn := m.upsertFn
	m.mu.Unlock()

	if fn != nil {
		if err := fn(indexName, source, batch); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	for i := range batch {
		c := batch[i].Chunk()
		m.seen[c.ID()] = true
	}
	return nil
}

func (m *mockWriter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockWriter) distinctIDs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

type mockCounter struct {
	countFn func(indexName string) (int, error)
	writer  *mockWriter
}

func (m *mockCounter) Count(_ context.Context, indexName string) (int, error) {
	if m.countFn != nil {
		return m.countFn(indexName)
	}
	// Default: the index holds exactly the distinct ids ever written.
	return m.writer.distinctIDs(), nil
}

type mockBatchEmbedder struct {
	mu      sync.Mutex
	batchFn func(texts []string) (domain.BatchEmbeddingResult, error)
	calls   int
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	fn := m.batchFn
	m.mu.Unlock()

	if fn != nil {
		return fn(texts)
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{0.1, 0.2, 0.3}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings, TotalTokens: len(texts)}, nil
}

type mockEmbedder struct {
	mu      sync.Mutex
	embedFn func(text string) (domain.EmbeddingResult, error)
	calls   int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	fn := m.embedFn
	m.mu.Unlock()

	if fn != nil {
		return fn(text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}, TotalTokens: 1}, nil
}

// --- Helpers ---

func newTestService(_ *testing.T) (*Service, *mockWriter, *mockCounter, *mockBatchEmbedder) {
	writer := &mockWriter{}
	counter := &mockCounter{writer: writer}
	batchEmb := &mockBatchEmbedder{}
	svc := New(writer, counter, &mockEmbedder{}, batchEmb, zap.NewNop()).
		WithRetry(3, time.Millisecond)
	return svc, writer, counter, batchEmb
}

func makeChunks(t *testing.T, n int) []chunk.Chunk {
	t.Helper()
	chunks := make([]chunk.Chunk, n)
	for i := 0; i < n; i++ {
		c, err := chunk.New(i, fmt.Sprintf("body of fragment %04d", i))
		if err != nil {
			t.Fatalf("chunk.New: %v", err)
		}
		chunks[i] = c
	}
	return chunks
}
