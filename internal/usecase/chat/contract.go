package chat

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/prompt"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	"github.com/kailas-cloud/ragdex/internal/domain/session"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// Retriever produces ranked context chunks for a question (ISP).
type Retriever interface {
	Retrieve(ctx context.Context, indexName, text string, topK int, filters domret.Filter) (domret.Result, error)
}

// Assembler builds the grounded prompt payload (ISP).
type Assembler interface {
	Assemble(query string, retrieved []domret.RetrievedChunk, history []turn.Turn, instructions string) (prompt.Payload, error)
}

// Store is the conversation store as chat consumes it (ISP).
type Store interface {
	EnsureSession(ctx context.Context, id string) (session.Session, error)
	Append(ctx context.Context, sessionID string, t turn.Turn) error
	History(ctx context.Context, sessionID string, bounded bool) ([]turn.Turn, error)
	RemoveLast(ctx context.Context, sessionID string, t turn.Turn) (bool, error)
}

// Completer is the opaque language-model call.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}
