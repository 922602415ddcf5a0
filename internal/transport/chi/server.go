// Package chi exposes the pipeline over HTTP: document ingest, grounded
// question answering, session history, index lifecycle, usage and health.
// Handlers are hand-written JSON; query and path parameters go through the
// oapi-codegen runtime binders.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	"github.com/kailas-cloud/ragdex/internal/domain/session"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
	domusage "github.com/kailas-cloud/ragdex/internal/domain/usage"
	chatuc "github.com/kailas-cloud/ragdex/internal/usecase/chat"
	chunkinguc "github.com/kailas-cloud/ragdex/internal/usecase/chunking"
	conversationuc "github.com/kailas-cloud/ragdex/internal/usecase/conversation"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	indexuc "github.com/kailas-cloud/ragdex/internal/usecase/index"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

// DefaultIndexName is used when neither the request nor the server names one.
const DefaultIndexName = "default"

// ErrorCode identifies an error class in API responses.
type ErrorCode string

const (
	ErrCodeBadRequest              ErrorCode = "bad_request"
	ErrCodeValidationFailed        ErrorCode = "validation_failed"
	ErrCodeUnauthorized            ErrorCode = "unauthorized"
	ErrCodeNotFound                ErrorCode = "not_found"
	ErrCodeAlreadyExists           ErrorCode = "already_exists"
	ErrCodeVectorDimMismatch       ErrorCode = "vector_dim_mismatch"
	ErrCodeRateLimited             ErrorCode = "rate_limited"
	ErrCodeEmbeddingQuotaExceeded  ErrorCode = "embedding_quota_exceeded"
	ErrCodeEmbeddingProviderError  ErrorCode = "embedding_provider_error"
	ErrCodeCompletionProviderError ErrorCode = "completion_provider_error"
	ErrCodeFetchFailed             ErrorCode = "fetch_failed"
	ErrCodeIndexWriteFailed        ErrorCode = "index_write_failed"
	ErrCodeIndexReadFailed         ErrorCode = "index_read_failed"
	ErrCodePersistenceUnavailable  ErrorCode = "persistence_unavailable"
	ErrCodeInternalError           ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// TextFetcher extracts indexable text from a URL.
type TextFetcher interface {
	ExtractText(ctx context.Context, rawURL string) (string, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the pipeline usecases to their HTTP routes.
type Server struct {
	chat          *chatuc.Service
	conversations *conversationuc.Service
	indexes       *indexuc.Service
	retrieval     *retrievaluc.Service
	ingest        *ingestuc.Service
	chunker       *chunkinguc.Service
	fetcher       TextFetcher
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler

	defaultIndex string
	defaultTopK  int
}

// NewServer creates an HTTP API server.
func NewServer(
	chat *chatuc.Service,
	conversations *conversationuc.Service,
	indexes *indexuc.Service,
	retrieval *retrievaluc.Service,
	ingest *ingestuc.Service,
	chunker *chunkinguc.Service,
	fetcher TextFetcher,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chat:          chat,
		conversations: conversations,
		indexes:       indexes,
		retrieval:     retrieval,
		ingest:        ingest,
		chunker:       chunker,
		fetcher:       fetcher,
		usage:         usage,
		health:        health,
		logger:        logger,
		defaultIndex:  DefaultIndexName,
		defaultTopK:   chatuc.DefaultTopK,
	}
	s.errorHandlers = []errorHandler{
		indexWriteHandler,
		dimMismatchHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrCodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, ErrCodeAlreadyExists),
		sentinelHandler(domain.ErrInvalidParameter, http.StatusBadRequest, ErrCodeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrCodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded,
			http.StatusPaymentRequired, ErrCodeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, ErrCodeEmbeddingProviderError),
		sentinelHandler(domain.ErrCompletionProviderError,
			http.StatusBadGateway, ErrCodeCompletionProviderError),
		sentinelHandler(domain.ErrFetchFailed, http.StatusBadGateway, ErrCodeFetchFailed),
		sentinelHandler(domain.ErrIndexReadFailed,
			http.StatusServiceUnavailable, ErrCodeIndexReadFailed),
		sentinelHandler(domain.ErrPersistenceUnavailable,
			http.StatusServiceUnavailable, ErrCodePersistenceUnavailable),
	}
	return s
}

// WithDefaults overrides the index and topK used when a request omits them.
func (s *Server) WithDefaults(index string, topK int) *Server {
	if index != "" {
		s.defaultIndex = index
	}
	if topK > 0 {
		s.defaultTopK = topK
	}
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/documents", s.IngestDocument)
	r.Post("/v1/documents/url", s.IngestURL)
	r.Post("/v1/ask", s.Ask)

	r.Post("/v1/indexes", s.CreateIndex)
	r.Get("/v1/indexes", s.ListIndexes)
	r.Get("/v1/indexes/{index}", s.GetIndexStats)
	r.Delete("/v1/indexes/{index}", s.DropIndex)
	r.Delete("/v1/indexes/{index}/chunks", s.ClearIndex)
	r.Post("/v1/indexes/{index}/search", s.Search)

	r.Get("/v1/sessions", s.ListSessions)
	r.Delete("/v1/sessions/{session}", s.DeleteSession)
	r.Get("/v1/sessions/{session}/history", s.GetHistory)
	r.Delete("/v1/sessions/{session}/history", s.ClearHistory)
	r.Delete("/v1/sessions/{session}/turns", s.DeleteTurn)

	r.Get("/v1/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// IngestRequest carries a raw document for chunking and indexing.
type IngestRequest struct {
	Index     *string `json:"index,omitempty"`
	Source    *string `json:"source,omitempty"`
	Text      string  `json:"text"`
	Strategy  *string `json:"strategy,omitempty"`
	ChunkSize *int    `json:"chunk_size,omitempty"`
	Overlap   *int    `json:"overlap,omitempty"`
	MaxChars  *int    `json:"max_chars,omitempty"`
}

// IngestResponse reports one indexing pass.
type IngestResponse struct {
	Index         string `json:"index"`
	Source        string `json:"source"`
	IndexCreated  bool   `json:"index_created"`
	Chunks        int    `json:"chunks"`
	Written       int    `json:"written"`
	IndexCount    int    `json:"index_count"`
	CountMismatch bool   `json:"count_mismatch,omitempty"`
	FetchedChars  int    `json:"fetched_chars,omitempty"`
}

// IngestDocument handles POST /v1/documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Document text is required")
		return
	}

	source := "api"
	if req.Source != nil && *req.Source != "" {
		source = *req.Source
	}

	s.runIngest(w, r, req, req.Text, source, 0)
}

// IngestURLRequest names a page whose paragraph text gets indexed.
type IngestURLRequest struct {
	Index     *string `json:"index,omitempty"`
	Source    *string `json:"source,omitempty"`
	URL       string  `json:"url"`
	Strategy  *string `json:"strategy,omitempty"`
	ChunkSize *int    `json:"chunk_size,omitempty"`
	Overlap   *int    `json:"overlap,omitempty"`
	MaxChars  *int    `json:"max_chars,omitempty"`
}

// IngestURL handles POST /v1/documents/url.
func (s *Server) IngestURL(w http.ResponseWriter, r *http.Request) {
	var req IngestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.URL == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Document url is required")
		return
	}

	text, err := s.fetcher.ExtractText(r.Context(), req.URL)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	// The page address doubles as the source tag so chunks from one page
	// can be retrieved or cleared together.
	source := req.URL
	if req.Source != nil && *req.Source != "" {
		source = *req.Source
	}

	s.runIngest(w, r, IngestRequest{
		Index:     req.Index,
		Strategy:  req.Strategy,
		ChunkSize: req.ChunkSize,
		Overlap:   req.Overlap,
		MaxChars:  req.MaxChars,
	}, text, source, len(text))
}

// runIngest chunks text and writes it to the index, creating the index when
// it does not exist yet.
func (s *Server) runIngest(w http.ResponseWriter, r *http.Request, req IngestRequest, text, source string, fetchedChars int) {
	chunker, err := s.requestChunker(req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	chunks, err := chunker.Chunk(text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	indexName := s.defaultIndex
	if req.Index != nil && *req.Index != "" {
		indexName = *req.Index
	}

	resp := IngestResponse{
		Index:        indexName,
		Source:       source,
		Chunks:       len(chunks),
		IndexCount:   -1,
		FetchedChars: fetchedChars,
	}
	if len(chunks) == 0 {
		// Whitespace-only input chunks to nothing; the index is left alone.
		resp.IndexCount = 0
		writeJSON(w, http.StatusOK, resp)
		return
	}

	_, created, err := s.indexes.Ensure(r.Context(), indexName, "", "")
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	resp.IndexCreated = created

	report, err := s.ingest.Index(r.Context(), indexName, source, chunks)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp.Written = report.Written
	resp.IndexCount = report.IndexCount
	resp.CountMismatch = report.CountMismatch
	writeJSON(w, http.StatusCreated, resp)
}

// requestChunker returns the configured chunker, or a request-specific one
// when the body overrides the strategy or its knobs.
func (s *Server) requestChunker(req IngestRequest) (*chunkinguc.Service, error) {
	if req.Strategy == nil && req.ChunkSize == nil && req.Overlap == nil && req.MaxChars == nil {
		return s.chunker, nil
	}

	strategy := s.chunker.Strategy()
	if req.Strategy != nil {
		strategy = chunkinguc.Strategy(*req.Strategy)
	}
	params := chunkinguc.DefaultParams()
	if req.ChunkSize != nil {
		params.ChunkSize = *req.ChunkSize
	}
	if req.Overlap != nil {
		params.Overlap = *req.Overlap
	}
	if req.MaxChars != nil {
		params.MaxChars = *req.MaxChars
	}

	chunker, err := chunkinguc.New(strategy, params)
	if err != nil {
		return nil, fmt.Errorf("request chunker: %w", err)
	}
	return chunker, nil
}

// AskRequest is one grounded question.
type AskRequest struct {
	SessionID    *string `json:"session_id,omitempty"`
	Index        *string `json:"index,omitempty"`
	Query        string  `json:"query"`
	TopK         *int    `json:"top_k,omitempty"`
	Source       *string `json:"source,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

// CitedChunk is one context chunk that grounded the answer.
type CitedChunk struct {
	ID            string  `json:"id"`
	Text          string  `json:"text"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float64 `json:"score"`
}

// AskUsage reports model token consumption for one exchange.
type AskUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// AskResponse is one completed exchange.
type AskResponse struct {
	SessionID          string       `json:"session_id"`
	Answer             string       `json:"answer"`
	Cited              []CitedChunk `json:"cited"`
	DroppedChunks      int          `json:"dropped_chunks"`
	FewerThanRequested bool         `json:"fewer_than_requested"`
	Usage              AskUsage     `json:"usage"`
}

// Ask handles POST /v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Query is required")
		return
	}

	filter, err := sourceFilter(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	question := chatuc.Question{
		Query:  req.Query,
		Filter: filter,
	}
	if req.SessionID != nil {
		question.SessionID = *req.SessionID
	}
	if req.Index != nil {
		question.Index = *req.Index
	}
	if req.TopK != nil {
		question.TopK = *req.TopK
	}
	if req.Instructions != nil {
		question.Instructions = *req.Instructions
	}

	answer, err := s.chat.Ask(r.Context(), question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{
		SessionID:          answer.SessionID,
		Answer:             answer.Text,
		Cited:              citedToResponse(answer.Cited),
		DroppedChunks:      answer.DroppedChunks,
		FewerThanRequested: answer.FewerThanRequested,
		Usage: AskUsage{
			PromptTokens:     answer.PromptTokens,
			CompletionTokens: answer.CompletionTokens,
		},
	})
}

// CreateIndexRequest defines a new chunk index.
type CreateIndexRequest struct {
	Name      string  `json:"name"`
	Metric    *string `json:"metric,omitempty"`
	Algorithm *string `json:"algorithm,omitempty"`
}

// IndexResponse describes one index.
type IndexResponse struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Metric     string    `json:"metric"`
	Algorithm  string    `json:"algorithm"`
	CreatedAt  time.Time `json:"created_at"`
}

// IndexListResponse lists all indexes.
type IndexListResponse struct {
	Items []IndexResponse `json:"items"`
	Count int             `json:"count"`
}

// IndexStatsResponse is an index description plus its chunk count.
type IndexStatsResponse struct {
	IndexResponse
	Chunks int `json:"chunks"`
}

// CreateIndex handles POST /v1/indexes.
func (s *Server) CreateIndex(w http.ResponseWriter, r *http.Request) {
	var req CreateIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Index name is required")
		return
	}

	var metric domidx.Metric
	if req.Metric != nil {
		metric = domidx.Metric(*req.Metric)
	}
	var algorithm domidx.Algorithm
	if req.Algorithm != nil {
		algorithm = domidx.Algorithm(*req.Algorithm)
	}

	idx, err := s.indexes.Create(r.Context(), req.Name, metric, algorithm)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, indexToResponse(idx))
}

// ListIndexes handles GET /v1/indexes.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := s.indexes.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]IndexResponse, len(indexes))
	for i, idx := range indexes {
		items[i] = indexToResponse(idx)
	}

	writeJSON(w, http.StatusOK, IndexListResponse{Items: items, Count: len(items)})
}

// GetIndexStats handles GET /v1/indexes/{index}.
func (s *Server) GetIndexStats(w http.ResponseWriter, r *http.Request) {
	indexName, ok := s.bindIndexName(w, r)
	if !ok {
		return
	}

	stats, err := s.indexes.Stats(r.Context(), indexName)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IndexStatsResponse{
		IndexResponse: indexToResponse(stats.Index),
		Chunks:        stats.Chunks,
	})
}

// DropIndex handles DELETE /v1/indexes/{index}.
func (s *Server) DropIndex(w http.ResponseWriter, r *http.Request) {
	indexName, ok := s.bindIndexName(w, r)
	if !ok {
		return
	}

	if _, err := s.indexes.Get(r.Context(), indexName); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.indexes.Drop(r.Context(), indexName); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearIndexResponse reports how many chunk records a clear removed.
type ClearIndexResponse struct {
	Index   string `json:"index"`
	Removed int    `json:"removed"`
}

// ClearIndex handles DELETE /v1/indexes/{index}/chunks.
func (s *Server) ClearIndex(w http.ResponseWriter, r *http.Request) {
	indexName, ok := s.bindIndexName(w, r)
	if !ok {
		return
	}

	removed, err := s.indexes.Clear(r.Context(), indexName)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ClearIndexResponse{Index: indexName, Removed: removed})
}

// SearchRequest retrieves context chunks without running a completion.
type SearchRequest struct {
	Query  string  `json:"query"`
	TopK   *int    `json:"top_k,omitempty"`
	Source *string `json:"source,omitempty"`
}

// SearchResponse lists retrieved chunks, best first.
type SearchResponse struct {
	Items              []CitedChunk `json:"items"`
	Requested          int          `json:"requested"`
	FewerThanRequested bool         `json:"fewer_than_requested"`
}

// Search handles POST /v1/indexes/{index}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	indexName, ok := s.bindIndexName(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Query is required")
		return
	}

	filter, err := sourceFilter(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	topK := s.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	result, err := s.retrieval.Retrieve(r.Context(), indexName, req.Query, topK, filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Items:              citedToResponse(result.Chunks()),
		Requested:          result.Requested(),
		FewerThanRequested: result.FewerThanRequested(),
	})
}

// SessionResponse describes one registered session.
type SessionResponse struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// SessionListResponse lists sessions, most recently active first.
type SessionListResponse struct {
	Items []SessionResponse `json:"items"`
	Count int               `json:"count"`
}

// ListSessions handles GET /v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := bindQueryParam(r, "limit", &limit); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid limit parameter: "+err.Error())
		return
	}
	if limit != nil && *limit <= 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "limit must be positive")
		return
	}

	sessions, err := s.conversations.ListSessions(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if limit != nil && *limit < len(sessions) {
		sessions = sessions[:*limit]
	}

	items := make([]SessionResponse, len(sessions))
	for i, sess := range sessions {
		items[i] = sessionToResponse(sess)
	}

	writeJSON(w, http.StatusOK, SessionListResponse{Items: items, Count: len(items)})
}

// DeleteSession handles DELETE /v1/sessions/{session}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.bindSessionID(w, r)
	if !ok {
		return
	}

	if _, err := s.conversations.GetSession(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.conversations.DeleteSession(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TurnResponse is one conversation turn.
type TurnResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryResponse lists a session's turns, oldest first.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []TurnResponse `json:"turns"`
	Count     int            `json:"count"`
}

// GetHistory handles GET /v1/sessions/{session}/history. The windowed view
// is returned by default; ?full=true reads the complete durable log.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.bindSessionID(w, r)
	if !ok {
		return
	}

	var full *bool
	if err := bindQueryParam(r, "full", &full); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid full parameter: "+err.Error())
		return
	}
	bounded := full == nil || !*full

	if _, err := s.conversations.GetSession(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	turns, err := s.conversations.History(r.Context(), sessionID, bounded)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]TurnResponse, len(turns))
	for i, t := range turns {
		items[i] = TurnResponse{Role: string(t.Role()), Content: t.Content()}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Turns:     items,
		Count:     len(items),
	})
}

// ClearHistory handles DELETE /v1/sessions/{session}/history.
func (s *Server) ClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.bindSessionID(w, r)
	if !ok {
		return
	}

	if _, err := s.conversations.GetSession(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.conversations.Clear(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteTurnRequest names the turn to remove by exact role and content.
type DeleteTurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeleteTurnResponse reports whether a matching turn was removed.
type DeleteTurnResponse struct {
	SessionID string `json:"session_id"`
	Removed   bool   `json:"removed"`
}

// DeleteTurn handles DELETE /v1/sessions/{session}/turns. Only the first
// exact match is removed; no match is not an error.
func (s *Server) DeleteTurn(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.bindSessionID(w, r)
	if !ok {
		return
	}

	var req DeleteTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if _, err := s.conversations.GetSession(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	removed, err := s.conversations.DeleteTurn(r.Context(), sessionID, turn.Role(req.Role), req.Content)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteTurnResponse{SessionID: sessionID, Removed: removed})
}

// UsageMetrics reports embedding consumption for a period.
type UsageMetrics struct {
	EmbeddingRequests int `json:"embedding_requests"`
	Tokens            int `json:"tokens"`
	CostMillidollars  int `json:"cost_millidollars,omitempty"`
}

// BudgetStatus reports the token budget for a period.
type BudgetStatus struct {
	TokensLimit     int        `json:"tokens_limit"`
	TokensRemaining int        `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// UsageResponse is the usage report for one period.
type UsageResponse struct {
	Period        string       `json:"period"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var periodParam *string
	if err := bindQueryParam(r, "period", &periodParam); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid period parameter: "+err.Error())
		return
	}

	period := domusage.PeriodMonth
	if periodParam != nil {
		switch *periodParam {
		case string(domusage.PeriodDay):
			period = domusage.PeriodDay
		case string(domusage.PeriodMonth):
			period = domusage.PeriodMonth
		case string(domusage.PeriodTotal):
			period = domusage.PeriodTotal
		default:
			writeError(w, http.StatusBadRequest, ErrCodeValidationFailed,
				"period must be day, month or total")
			return
		}
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := UsageResponse{
		Period: string(report.Period()),
		Usage: UsageMetrics{
			EmbeddingRequests: report.Metrics().EmbeddingRequests(),
			Tokens:            report.Metrics().Tokens(),
			CostMillidollars:  report.Metrics().CostMillidollars(),
		},
		Budget: BudgetStatus{
			TokensLimit:     report.Budget().TokensLimit(),
			TokensRemaining: report.Budget().TokensRemaining(),
			IsExhausted:     report.Budget().IsExhausted(),
		},
	}

	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}

	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse aggregates per-component health checks.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// bindIndexName binds the {index} path parameter, writing a 400 on failure.
func (s *Server) bindIndexName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var indexName string
	if err := bindPathParam(r, "index", &indexName); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid index parameter: "+err.Error())
		return "", false
	}
	return indexName, true
}

// bindSessionID binds the {session} path parameter, writing a 400 on failure.
func (s *Server) bindSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var sessionID string
	if err := bindPathParam(r, "session", &sessionID); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid session parameter: "+err.Error())
		return "", false
	}
	return sessionID, true
}

func bindPathParam(r *http.Request, name string, dest any) error {
	return runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
}

func bindQueryParam(r *http.Request, name string, dest any) error {
	return runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest)
}

// sourceFilter builds a retrieval filter matching the source tag, or an
// empty filter when src is absent.
func sourceFilter(src *string) (domret.Filter, error) {
	if src == nil || *src == "" {
		return domret.Filter{}, nil
	}
	match, err := domret.NewMatch("source", *src)
	if err != nil {
		return domret.Filter{}, fmt.Errorf("source filter: %w", err)
	}
	filter, err := domret.NewFilter(match)
	if err != nil {
		return domret.Filter{}, fmt.Errorf("source filter: %w", err)
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrInvalidParameter,
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionProviderError,
		domain.ErrFetchFailed,
		domain.ErrIndexWriteFailed,
		domain.ErrIndexReadFailed,
		domain.ErrPersistenceUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// indexWriteHandler handles ErrIndexWriteFailed with the failed batch span
// so callers can resume from completed work.
func indexWriteHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrIndexWriteFailed) {
		return false
	}
	var iwe *domain.IndexWriteError
	if errors.As(err, &iwe) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"code":                ErrCodeIndexWriteFailed,
			"message":             msg,
			"failed_batches":      iwe.FailedBatches,
			"first_failed_offset": iwe.FirstFailedOffset,
			"last_failed_offset":  iwe.LastFailedOffset,
		})
		return true
	}
	writeError(w, http.StatusServiceUnavailable, ErrCodeIndexWriteFailed, msg)
	return true
}

// dimMismatchHandler handles ErrVectorDimMismatch with both dimensions.
func dimMismatchHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		return false
	}
	var dme *domain.DimMismatchError
	if errors.As(err, &dme) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":      ErrCodeVectorDimMismatch,
			"message":   msg,
			"query_dim": dme.QueryDim,
			"index_dim": dme.IndexDim,
		})
		return true
	}
	writeError(w, http.StatusBadRequest, ErrCodeVectorDimMismatch, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
}

func indexToResponse(idx domidx.Index) IndexResponse {
	return IndexResponse{
		Name:       idx.Name(),
		Model:      idx.Model(),
		Dimensions: idx.VectorDim(),
		Metric:     string(idx.DistanceMetric()),
		Algorithm:  string(idx.VectorAlgorithm()),
		CreatedAt:  time.UnixMilli(idx.CreatedAt()).UTC(),
	}
}

func sessionToResponse(sess session.Session) SessionResponse {
	return SessionResponse{
		ID:         sess.ID(),
		CreatedAt:  time.UnixMilli(sess.CreatedAt()).UTC(),
		LastActive: time.UnixMilli(sess.LastActive()).UTC(),
	}
}

func citedToResponse(chunks []domret.RetrievedChunk) []CitedChunk {
	items := make([]CitedChunk, len(chunks))
	for i := range chunks {
		c := chunks[i].Chunk()
		items[i] = CitedChunk{
			ID:            c.ID(),
			Text:          c.Text(),
			SequenceIndex: c.SequenceIndex(),
			Score:         chunks[i].Score(),
		}
	}
	return items
}
