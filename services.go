package ragdex

import (
	"context"
	"fmt"

	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	chunkinguc "github.com/kailas-cloud/ragdex/internal/usecase/chunking"
)

// Chunk is one bounded fragment of a source document.
type Chunk struct {
	ID   string
	Seq  int
	Text string
}

// ChunkerAPI splits raw text with the configured strategy.
type ChunkerAPI struct {
	svc *chunkinguc.Service
}

// Split chunks text. Whitespace-only input yields no chunks and no error.
func (a *ChunkerAPI) Split(text string) ([]Chunk, error) {
	chunks, err := a.svc.Chunk(text)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	out := make([]Chunk, len(chunks))
	for i := range chunks {
		out[i] = Chunk{
			ID:   chunks[i].ID(),
			Seq:  chunks[i].SequenceIndex(),
			Text: chunks[i].Text(),
		}
	}
	return out, nil
}

// Index describes one vector index.
type Index struct {
	Name       string
	Model      string
	Dimensions int
	Metric     string
	Algorithm  string
	CreatedAt  int64 // unix milliseconds
}

// IndexStats pairs an index definition with its chunk count.
type IndexStats struct {
	Index  Index
	Chunks int
}

// IngestOptions configures one ingest pass.
type IngestOptions struct {
	// Source tags every chunk so one document's chunks can be retrieved
	// or cleared together. Default: "sdk".
	Source string
}

// IngestReport summarizes one ingest pass.
type IngestReport struct {
	IndexCreated  bool
	Chunks        int
	Written       int
	IndexCount    int // -1 when the verification read failed
	CountMismatch bool
}

// IndexAPI manages vector indexes and writes documents into them.
type IndexAPI struct {
	c *Client
}

// Create makes a new index with the configured geometry.
func (a *IndexAPI) Create(ctx context.Context, name string) (Index, error) {
	idx, err := a.c.indexSvc.Create(ctx, name, "", "")
	if err != nil {
		return Index{}, fmt.Errorf("create index: %w", err)
	}
	return fromIndex(idx), nil
}

// Ensure returns the named index, creating it when absent.
// Reports whether it was created by this call.
func (a *IndexAPI) Ensure(ctx context.Context, name string) (Index, bool, error) {
	idx, created, err := a.c.indexSvc.Ensure(ctx, name, "", "")
	if err != nil {
		return Index{}, false, fmt.Errorf("ensure index: %w", err)
	}
	return fromIndex(idx), created, nil
}

// List returns every index definition.
func (a *IndexAPI) List(ctx context.Context) ([]Index, error) {
	indexes, err := a.c.indexSvc.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	out := make([]Index, len(indexes))
	for i := range indexes {
		out[i] = fromIndex(indexes[i])
	}
	return out, nil
}

// Stats returns the index definition together with its chunk count.
func (a *IndexAPI) Stats(ctx context.Context, name string) (IndexStats, error) {
	stats, err := a.c.indexSvc.Stats(ctx, name)
	if err != nil {
		return IndexStats{}, fmt.Errorf("index stats: %w", err)
	}
	return IndexStats{Index: fromIndex(stats.Index), Chunks: stats.Chunks}, nil
}

// Clear removes every chunk but keeps the index definition.
// Returns the number of chunks removed.
func (a *IndexAPI) Clear(ctx context.Context, name string) (int, error) {
	removed, err := a.c.indexSvc.Clear(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("clear index: %w", err)
	}
	return removed, nil
}

// Drop removes the index definition and all of its chunks.
func (a *IndexAPI) Drop(ctx context.Context, name string) error {
	if err := a.c.indexSvc.Drop(ctx, name); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// IngestText chunks text and writes it into the named index, creating the
// index when it does not exist yet. Whitespace-only input writes nothing
// and leaves the index alone.
func (a *IndexAPI) IngestText(
	ctx context.Context, index, text string, opts *IngestOptions,
) (IngestReport, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}
	source := opts.Source
	if source == "" {
		source = "sdk"
	}

	chunks, err := a.c.chunker.Chunk(text)
	if err != nil {
		return IngestReport{}, fmt.Errorf("ingest: %w", err)
	}
	if len(chunks) == 0 {
		return IngestReport{}, nil
	}

	_, created, err := a.c.indexSvc.Ensure(ctx, index, "", "")
	if err != nil {
		return IngestReport{}, fmt.Errorf("ingest: %w", err)
	}

	report, err := a.c.ingestSvc.Index(ctx, index, source, chunks)
	if err != nil {
		return IngestReport{}, fmt.Errorf("ingest: %w", err)
	}
	return IngestReport{
		IndexCreated:  created,
		Chunks:        len(chunks),
		Written:       report.Written,
		IndexCount:    report.IndexCount,
		CountMismatch: report.CountMismatch,
	}, nil
}

// Retrieved is one scored context chunk.
type Retrieved struct {
	ID    string
	Seq   int
	Text  string
	Score float64
}

// RetrieveOptions configures one retrieval query.
type RetrieveOptions struct {
	TopK    int               // <= 0 uses the client default
	Filters map[string]string // exact tag matches, AND semantics
}

// RetrieverAPI runs semantic search against an index.
type RetrieverAPI struct {
	c *Client
}

// Retrieve embeds the query and returns the best-scoring chunks.
func (a *RetrieverAPI) Retrieve(
	ctx context.Context, index, query string, opts *RetrieveOptions,
) ([]Retrieved, error) {
	if opts == nil {
		opts = &RetrieveOptions{}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = a.c.defaultTopK
	}

	filter, err := buildFilter(opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	result, err := a.c.retrievalSvc.Retrieve(ctx, index, query, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return fromRetrieved(result.Chunks()), nil
}

// Turn is one recorded conversation message.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Session describes one registered conversation.
type Session struct {
	ID         string
	CreatedAt  int64 // unix milliseconds
	LastActive int64
}

// ChatAPI answers questions grounded in an index and manages conversations.
type ChatAPI struct {
	c *Client
}

// Ask starts a fluent builder for one grounded question.
func (a *ChatAPI) Ask(query string) *AskBuilder {
	return &AskBuilder{api: a, query: query}
}

// History returns the session's replay window, oldest first.
func (a *ChatAPI) History(ctx context.Context, sessionID string) ([]Turn, error) {
	turns, err := a.c.convSvc.History(ctx, sessionID, true)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = Turn{Role: string(t.Role()), Content: t.Content()}
	}
	return out, nil
}

// ClearHistory removes every turn but keeps the session registered.
func (a *ChatAPI) ClearHistory(ctx context.Context, sessionID string) error {
	if err := a.c.convSvc.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Sessions lists registered sessions, most recently active first.
func (a *ChatAPI) Sessions(ctx context.Context) ([]Session, error) {
	sessions, err := a.c.convSvc.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = Session{ID: s.ID(), CreatedAt: s.CreatedAt(), LastActive: s.LastActive()}
	}
	return out, nil
}

// DeleteSession removes a session and its history.
func (a *ChatAPI) DeleteSession(ctx context.Context, sessionID string) error {
	if err := a.c.convSvc.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func fromIndex(idx domidx.Index) Index {
	return Index{
		Name:       idx.Name(),
		Model:      idx.Model(),
		Dimensions: idx.VectorDim(),
		Metric:     string(idx.DistanceMetric()),
		Algorithm:  string(idx.VectorAlgorithm()),
		CreatedAt:  idx.CreatedAt(),
	}
}

func fromRetrieved(chunks []domret.RetrievedChunk) []Retrieved {
	out := make([]Retrieved, len(chunks))
	for i := range chunks {
		c := chunks[i].Chunk()
		out[i] = Retrieved{
			ID:    c.ID(),
			Seq:   c.SequenceIndex(),
			Text:  c.Text(),
			Score: chunks[i].Score(),
		}
	}
	return out
}

func buildFilter(filters map[string]string) (domret.Filter, error) {
	if len(filters) == 0 {
		return domret.Filter{}, nil
	}
	matches := make([]domret.Match, 0, len(filters))
	for key, value := range filters {
		m, err := domret.NewMatch(key, value)
		if err != nil {
			return domret.Filter{}, fmt.Errorf("filter %q: %w", key, err)
		}
		matches = append(matches, m)
	}
	return domret.NewFilter(matches...)
}
