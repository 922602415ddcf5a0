// Package chat runs one grounded exchange end to end: retrieve context for
// the question, assemble the prompt, call the model, record both turns in
// the conversation.
package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// DefaultTopK is the number of context chunks retrieved per question.
const DefaultTopK = 3

// Service orchestrates grounded question answering.
type Service struct {
	store     Store
	retriever Retriever
	assembler Assembler
	completer Completer
	logger    *zap.Logger
	index     string
	topK      int
}

// New creates the chat service. index is the default index questions run
// against; topK <= 0 falls back to DefaultTopK.
func New(store Store, retriever Retriever, assembler Assembler, completer Completer, logger *zap.Logger, index string, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		store:     store,
		retriever: retriever,
		assembler: assembler,
		completer: completer,
		logger:    logger,
		index:     index,
		topK:      topK,
	}
}

// Question is one grounded query.
type Question struct {
	SessionID    string // empty starts a new session
	Index        string // empty uses the service default
	Query        string
	TopK         int // <= 0 uses the service default
	Filter       domret.Filter
	Instructions string // empty uses the assembler default
}

// Answer is one completed exchange.
type Answer struct {
	SessionID          string
	Text               string
	Cited              []domret.RetrievedChunk
	DroppedChunks      int
	FewerThanRequested bool
	PromptTokens       int
	CompletionTokens   int
}

// Ask answers one question grounded in the index. The user turn is recorded
// before the model call and unwound again when the call fails, so a retry
// does not double-record it; the log only ever grows by whole exchanges.
func (s *Service) Ask(ctx context.Context, q Question) (Answer, error) {
	sess, err := s.store.EnsureSession(ctx, q.SessionID)
	if err != nil {
		return Answer{}, fmt.Errorf("ensure session: %w", err)
	}

	index := q.Index
	if index == "" {
		index = s.index
	}
	topK := q.TopK
	if topK <= 0 {
		topK = s.topK
	}

	result, err := s.retriever.Retrieve(ctx, index, q.Query, topK, q.Filter)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}
	if result.FewerThanRequested() {
		s.logger.Warn("fewer context chunks than requested",
			zap.String("index", index),
			zap.Int("requested", result.Requested()),
			zap.Int("found", len(result.Chunks())))
	}

	// History is read before the current question lands in the store, so
	// the prompt never repeats the question inside the history section.
	history, err := s.store.History(ctx, sess.ID(), true)
	if err != nil {
		return Answer{}, fmt.Errorf("load history: %w", err)
	}

	payload, err := s.assembler.Assemble(q.Query, result.Chunks(), history, q.Instructions)
	if err != nil {
		return Answer{}, fmt.Errorf("assemble prompt: %w", err)
	}
	if payload.DroppedChunks() > 0 {
		s.logger.Warn("context chunks dropped to fit the budget",
			zap.String("index", index),
			zap.Int("dropped", payload.DroppedChunks()))
	}

	userTurn, err := turn.New(turn.RoleUser, q.Query)
	if err != nil {
		return Answer{}, fmt.Errorf("build user turn: %w: %w", domain.ErrInvalidParameter, err)
	}
	if err := s.store.Append(ctx, sess.ID(), userTurn); err != nil {
		return Answer{}, fmt.Errorf("append user turn: %w", err)
	}

	completion, err := s.completer.Complete(ctx, domain.CompletionRequest{Messages: payload.Messages()})
	if err != nil {
		s.unwind(ctx, sess.ID(), userTurn)
		return Answer{}, fmt.Errorf("complete: %w", err)
	}

	assistantTurn, err := turn.New(turn.RoleAssistant, completion.Text)
	if err != nil {
		s.unwind(ctx, sess.ID(), userTurn)
		return Answer{}, fmt.Errorf("empty completion: %w", domain.ErrCompletionProviderError)
	}
	if err := s.store.Append(ctx, sess.ID(), assistantTurn); err != nil {
		s.unwind(ctx, sess.ID(), userTurn)
		return Answer{}, fmt.Errorf("append assistant turn: %w", err)
	}

	hits := result.Chunks()
	return Answer{
		SessionID:          sess.ID(),
		Text:               completion.Text,
		Cited:              hits[:len(hits)-payload.DroppedChunks()],
		DroppedChunks:      payload.DroppedChunks(),
		FewerThanRequested: result.FewerThanRequested(),
		PromptTokens:       completion.PromptTokens,
		CompletionTokens:   completion.CompletionTokens,
	}, nil
}

// unwind removes the just-appended user turn after a failed exchange.
func (s *Service) unwind(ctx context.Context, sessionID string, t turn.Turn) {
	if _, err := s.store.RemoveLast(ctx, sessionID, t); err != nil {
		s.logger.Warn("unwind user turn failed",
			zap.String("session", sessionID), zap.Error(err))
	}
}
