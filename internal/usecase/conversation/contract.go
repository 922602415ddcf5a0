package conversation

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain/session"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// Log is the consumer interface for the durable turn log (ISP).
type Log interface {
	Append(ctx context.Context, sessionID string, t turn.Turn) error
	History(ctx context.Context, sessionID string) ([]turn.Turn, error)
	Window(ctx context.Context, sessionID string, n int) ([]turn.Turn, error)
	DeleteTurn(ctx context.Context, sessionID string, t turn.Turn) (bool, error)
	RemoveLast(ctx context.Context, sessionID string, t turn.Turn) (bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// Registry is the consumer interface for the session registry (ISP).
type Registry interface {
	EnsureSession(ctx context.Context, s session.Session) error
	TouchSession(ctx context.Context, sessionID string, at int64) error
	GetSession(ctx context.Context, sessionID string) (session.Session, error)
	ListSessions(ctx context.Context) ([]session.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Pinger checks that the persistence backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
