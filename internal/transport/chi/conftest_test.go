package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	assemblyuc "github.com/kailas-cloud/ragdex/internal/usecase/assembly"
	chatuc "github.com/kailas-cloud/ragdex/internal/usecase/chat"
	chunkinguc "github.com/kailas-cloud/ragdex/internal/usecase/chunking"
	conversationuc "github.com/kailas-cloud/ragdex/internal/usecase/conversation"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	indexuc "github.com/kailas-cloud/ragdex/internal/usecase/index"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

const testVectorDim = 4

// fakeIndexRepo keeps index definitions in a map.
type fakeIndexRepo struct {
	mu      sync.Mutex
	indexes map[string]domidx.Index
}

func newFakeIndexRepo() *fakeIndexRepo {
	return &fakeIndexRepo{indexes: make(map[string]domidx.Index)}
}

func (f *fakeIndexRepo) Create(_ context.Context, idx domidx.Index) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[idx.Name()]; ok {
		return domain.ErrAlreadyExists
	}
	f.indexes[idx.Name()] = idx
	return nil
}

func (f *fakeIndexRepo) Get(_ context.Context, name string) (domidx.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[name]
	if !ok {
		return domidx.Index{}, domain.ErrNotFound
	}
	return idx, nil
}

func (f *fakeIndexRepo) List(_ context.Context) ([]domidx.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domidx.Index, 0, len(f.indexes))
	for _, idx := range f.indexes {
		out = append(out, idx)
	}
	return out, nil
}

func (f *fakeIndexRepo) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[name]; !ok {
		return domain.ErrNotFound
	}
	delete(f.indexes, name)
	return nil
}

// fakeChunkBackend plays the chunk store for ingest, index stats and health.
type fakeChunkBackend struct {
	mu         sync.Mutex
	records    map[string][]chunk.Embedded
	upsertErr  error
	pingErr    error
	lastSource string
}

func newFakeChunkBackend() *fakeChunkBackend {
	return &fakeChunkBackend{records: make(map[string][]chunk.Embedded)}
}

func (f *fakeChunkBackend) UpsertBatch(_ context.Context, indexName, source string, batch []chunk.Embedded) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[indexName] = append(f.records[indexName], batch...)
	f.lastSource = source
	return nil
}

func (f *fakeChunkBackend) Count(_ context.Context, indexName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[indexName]), nil
}

func (f *fakeChunkBackend) DeleteAll(_ context.Context, indexName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.records[indexName])
	delete(f.records, indexName)
	return n, nil
}

func (f *fakeChunkBackend) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeChunkBackend) stored(indexName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[indexName])
}

func (f *fakeChunkBackend) seed(indexName string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[indexName] = make([]chunk.Embedded, n)
}

// fakeEmbedder returns constant vectors of a configurable dimension.
type fakeEmbedder struct {
	mu         sync.Mutex
	dim        int
	err        error
	embedCalls int
	batchCalls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	return domain.EmbeddingResult{Embedding: f.vector(), PromptTokens: 7, TotalTokens: 7}, nil
}

func (f *fakeEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = f.vector()
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   vecs,
		PromptTokens: 7 * len(texts),
		TotalTokens:  7 * len(texts),
	}, nil
}

func (f *fakeEmbedder) vector() []float32 {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = 0.1
	}
	return v
}

// fakeSearcher returns preset hits and records the query it saw.
type fakeSearcher struct {
	hits      []domret.RetrievedChunk
	err       error
	gotIndex  string
	gotTopK   int
	gotFilter domret.Filter
}

func (f *fakeSearcher) SearchKNN(_ context.Context, indexName string, _ []float32, filters domret.Filter, topK int, _ domidx.Metric) ([]domret.RetrievedChunk, error) {
	f.gotIndex = indexName
	f.gotTopK = topK
	f.gotFilter = filters
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// stubCompleter returns a canned answer and records the prompt it saw.
type stubCompleter struct {
	text   string
	err    error
	gotReq domain.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	s.gotReq = req
	if s.err != nil {
		return domain.CompletionResult{}, s.err
	}
	return domain.CompletionResult{
		Text:             s.text,
		PromptTokens:     120,
		CompletionTokens: 40,
		TotalTokens:      160,
	}, nil
}

// stubFetcher returns preset page text.
type stubFetcher struct {
	text   string
	err    error
	gotURL string
}

func (s *stubFetcher) ExtractText(_ context.Context, rawURL string) (string, error) {
	s.gotURL = rawURL
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

// fixture assembles real usecases over in-memory fakes behind the router.
type fixture struct {
	repo      *fakeIndexRepo
	backend   *fakeChunkBackend
	embedder  *fakeEmbedder
	searcher  *fakeSearcher
	completer *stubCompleter
	fetcher   *stubFetcher
	conv      *conversationuc.Service
	router    chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	repo := newFakeIndexRepo()
	backend := newFakeChunkBackend()
	embedder := &fakeEmbedder{dim: testVectorDim}
	searcher := &fakeSearcher{}
	completer := &stubCompleter{text: "the grounded answer"}
	fetcher := &stubFetcher{}

	cfg := domain.VectorConfig{
		Model:              "test-model",
		Dimensions:         testVectorDim,
		DistanceMetric:     "cosine",
		Algorithm:          "flat",
		BatchSize:          100,
		MaxInFlightBatches: 4,
	}

	indexes := indexuc.New(repo, backend, cfg)
	retrieval := retrievaluc.New(searcher, repo, embedder)
	ingest := ingestuc.New(backend, backend, embedder, embedder, logger)

	chunker, err := chunkinguc.New(chunkinguc.StrategyFixedWindow, chunkinguc.DefaultParams())
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}

	conv, err := conversationuc.New(context.Background(), nil, nil, nil, logger, 5, false)
	if err != nil {
		t.Fatalf("conversation store: %v", err)
	}

	assembler := assemblyuc.New("", assemblyuc.DefaultBudgetChars)
	chat := chatuc.New(conv, retrieval, assembler, completer, logger, "docs", 3)

	usage := usageuc.New(nil)
	health := healthuc.New(backend, nil)

	server := NewServer(chat, conv, indexes, retrieval, ingest, chunker, fetcher, usage, health, logger).
		WithDefaults("docs", 3)

	router := chi.NewRouter()
	server.Routes(router)

	return &fixture{
		repo:      repo,
		backend:   backend,
		embedder:  embedder,
		searcher:  searcher,
		completer: completer,
		fetcher:   fetcher,
		conv:      conv,
		router:    router,
	}
}

// do runs one request through the router and returns the recorder.
func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// seedIndex registers an index with the test embedding geometry.
func (f *fixture) seedIndex(t *testing.T, name string) {
	t.Helper()
	idx := domidx.Reconstruct(name, "test-model", testVectorDim,
		domidx.MetricCosine, domidx.AlgorithmFlat, time.Now().UnixMilli())
	if err := f.repo.Create(context.Background(), idx); err != nil {
		t.Fatalf("seed index %s: %v", name, err)
	}
}

// seedHits loads n descending-score hits into the searcher.
func (f *fixture) seedHits(n int) {
	hits := make([]domret.RetrievedChunk, n)
	for i := 0; i < n; i++ {
		c := chunk.Reconstruct(fmt.Sprintf("chunk_%04d", i),
			fmt.Sprintf("context passage %d", i), i, 18)
		hits[i] = domret.NewRetrievedChunk(c, 0.9-0.1*float64(i))
	}
	f.searcher.hits = hits
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
