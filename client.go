// Package ragdex embeds the grounded-dialogue pipeline in a Go program:
// chunking, embedding, vector retrieval and conversational answering over
// a Valkey or Redis backend, without running the HTTP server.
package ragdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	chunksrepo "github.com/kailas-cloud/ragdex/internal/repository/chunks"
	convrepo "github.com/kailas-cloud/ragdex/internal/repository/conversation"
	indexrepo "github.com/kailas-cloud/ragdex/internal/repository/index"
	retrievalrepo "github.com/kailas-cloud/ragdex/internal/repository/retrieval"
	assemblyuc "github.com/kailas-cloud/ragdex/internal/usecase/assembly"
	chatuc "github.com/kailas-cloud/ragdex/internal/usecase/chat"
	chunkinguc "github.com/kailas-cloud/ragdex/internal/usecase/chunking"
	conversationuc "github.com/kailas-cloud/ragdex/internal/usecase/conversation"
	indexuc "github.com/kailas-cloud/ragdex/internal/usecase/index"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// EmbeddingResult carries one vector and the token usage that produced it.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder turns text into a vector. Implementations wrap whatever provider
// the caller runs against.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbeddingResult carries vectors for many texts in input order.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbedder is an optional upgrade for embedders with a native batch
// endpoint. Ingest uses it when available and falls back to one call per
// chunk otherwise.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// Message is one chat message handed to the completion provider.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// CompletionResult carries the generated answer and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer generates an answer from an ordered message sequence.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (CompletionResult, error)
}

// Client is the ragdex embedded entry point.
type Client struct {
	store db.Store

	chunker      *chunkinguc.Service
	indexSvc     *indexuc.Service
	ingestSvc    *ingestuc.Service
	retrievalSvc *retrievaluc.Service
	convSvc      *conversationuc.Service
	chatSvc      *chatuc.Service

	defaultTopK int
}

// New creates a ragdex Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.topK <= 0 {
		cfg.topK = chatuc.DefaultTopK
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("ragdex: database address required (use WithValkey or WithRedis)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("ragdex: database not ready: %w", err)
	}

	c, err := wireClient(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "valkey", "redis":
		// Both drivers speak the same protocol; one rueidis store serves both.
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("ragdex: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("ragdex: unknown driver %q", cfg.driver)
	}
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) (*Client, error) {
	// Embedder: noop unless configured; ingest and retrieval surface its error.
	var domEmb domain.Embedder = noopEmbedder{}
	var domBatch ingestuc.BatchEmbedder
	if cfg.embedder != nil {
		adapter := &embedderAdapter{inner: cfg.embedder}
		domEmb = adapter
		if _, ok := cfg.embedder.(BatchEmbedder); ok {
			domBatch = adapter
		}
	}

	// Completer: noop unless configured; only Chat needs one.
	var domCompleter chatuc.Completer = noopCompleter{}
	if cfg.completer != nil {
		domCompleter = &completerAdapter{inner: cfg.completer}
	}

	chunker, err := chunkinguc.New(chunkinguc.Strategy(cfg.chunkStrategy), chunkinguc.Params{
		ChunkSize: cfg.chunkSize,
		Overlap:   cfg.chunkOverlap,
		MaxChars:  cfg.chunkMaxChars,
	})
	if err != nil {
		return nil, fmt.Errorf("ragdex: chunking: %w", err)
	}

	vecCfg := domain.VectorConfig{
		Model:              cfg.model,
		Dimensions:         cfg.vectorDimensions,
		DistanceMetric:     cfg.metric,
		Algorithm:          cfg.algorithm,
		BatchSize:          ingestuc.DefaultBatchSize,
		MaxInFlightBatches: ingestuc.DefaultMaxInFlight,
	}

	idxRepo := indexrepo.New(store, cfg.keyPrefix)
	if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
		idxRepo = idxRepo.WithHNSW(indexrepo.HNSWConfig{
			M:           cfg.hnswM,
			EFConstruct: cfg.hnswEFConstruct,
		})
	}
	chunkRepo := chunksrepo.New(store, cfg.keyPrefix)
	searchRepo := retrievalrepo.New(store, cfg.keyPrefix)
	convRepo := convrepo.New(store, cfg.keyPrefix)

	indexSvc := indexuc.New(idxRepo, chunkRepo, vecCfg)
	retrievalSvc := retrievaluc.New(searchRepo, idxRepo, domEmb)
	ingestSvc := ingestuc.New(chunkRepo, chunkRepo, domEmb, domBatch, cfg.logger)

	convSvc, err := conversationuc.New(
		ctx, convRepo, convRepo, store, cfg.logger, cfg.window, cfg.persist,
	)
	if err != nil {
		return nil, fmt.Errorf("ragdex: conversation store: %w", err)
	}

	assembler := assemblyuc.New(cfg.instructions, cfg.budgetChars)
	chatSvc := chatuc.New(
		convSvc, retrievalSvc, assembler, domCompleter, cfg.logger,
		cfg.defaultIndex, cfg.topK,
	)

	return &Client{
		store:        store,
		chunker:      chunker,
		indexSvc:     indexSvc,
		ingestSvc:    ingestSvc,
		retrievalSvc: retrievalSvc,
		convSvc:      convSvc,
		chatSvc:      chatSvc,
		defaultTopK:  cfg.topK,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Chunker returns the text splitting service.
func (c *Client) Chunker() *ChunkerAPI {
	return &ChunkerAPI{svc: c.chunker}
}

// Index returns the index management and ingest service.
func (c *Client) Index() *IndexAPI {
	return &IndexAPI{c: c}
}

// Retriever returns the semantic search service.
func (c *Client) Retriever() *RetrieverAPI {
	return &RetrieverAPI{c: c}
}

// Chat returns the grounded conversation service.
func (c *Client) Chat() *ChatAPI {
	return &ChatAPI{c: c}
}

// embedderAdapter wraps the public Embedder to satisfy the internal contracts.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// BatchEmbed delegates to the inner batch endpoint. Only wired up when the
// configured embedder implements BatchEmbedder.
func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}
	r, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder returns an error on Embed call (used when no embedder configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"ragdex: embedder not configured (use WithEmbedder)",
	)
}

// completerAdapter wraps the public Completer to satisfy the chat contract.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	msgs := make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = Message{Role: m.Role, Content: m.Content}
	}
	r, err := a.inner.Complete(ctx, msgs)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("complete: %w", err)
	}
	return domain.CompletionResult{
		Text:             r.Text,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
	}, nil
}

// noopCompleter returns an error on Complete call (used when no completer configured).
type noopCompleter struct{}

func (noopCompleter) Complete(_ context.Context, _ domain.CompletionRequest) (domain.CompletionResult, error) {
	return domain.CompletionResult{}, errors.New(
		"ragdex: completer not configured (use WithCompleter)",
	)
}
