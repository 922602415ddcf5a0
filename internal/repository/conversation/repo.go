package conversation

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// store is the consumer interface for the durable turn log (ISP).
//
//nolint:interfacebloat // conversation repo needs list + hash operations
type store interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists conversation turns as a Redis list per session. The list is
// the durable, append-only log; windowing happens in the conversation
// service, not here.
type Repo struct {
	store  store
	prefix string
}

// New creates a conversation log repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Append adds a turn to the tail of the session's durable log.
func (r *Repo) Append(ctx context.Context, sessionID string, t turn.Turn) error {
	row, err := marshalTurn(t)
	if err != nil {
		return err
	}
	if err := r.store.RPush(ctx, logKey(r.prefix, sessionID), row); err != nil {
		return fmt.Errorf("rpush turn %s: %w", sessionID, err)
	}
	return nil
}

// History returns the full durable log for a session, oldest first.
func (r *Repo) History(ctx context.Context, sessionID string) ([]turn.Turn, error) {
	rows, err := r.store.LRange(ctx, logKey(r.prefix, sessionID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("lrange history %s: %w", sessionID, err)
	}
	return unmarshalTurns(rows)
}

// Window returns up to the last n turns of the durable log, oldest first.
// Used to populate a session's in-memory view at start.
func (r *Repo) Window(ctx context.Context, sessionID string, n int) ([]turn.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.store.LRange(ctx, logKey(r.prefix, sessionID), -int64(n), -1)
	if err != nil {
		return nil, fmt.Errorf("lrange window %s: %w", sessionID, err)
	}
	return unmarshalTurns(rows)
}

// Len returns the durable log length for a session.
func (r *Repo) Len(ctx context.Context, sessionID string) (int64, error) {
	n, err := r.store.LLen(ctx, logKey(r.prefix, sessionID))
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", sessionID, err)
	}
	return n, nil
}

// DeleteTurn removes the first log entry matching the turn exactly
// (head-to-tail scan). Returns false when nothing matched.
func (r *Repo) DeleteTurn(ctx context.Context, sessionID string, t turn.Turn) (bool, error) {
	row, err := marshalTurn(t)
	if err != nil {
		return false, err
	}
	removed, err := r.store.LRem(ctx, logKey(r.prefix, sessionID), 1, row)
	if err != nil {
		return false, fmt.Errorf("lrem turn %s: %w", sessionID, err)
	}
	return removed > 0, nil
}

// RemoveLast removes the most recent log entry matching the turn exactly
// (tail-to-head scan). Used to unwind a just-appended turn after a failed
// completion so a retry does not double-record it.
func (r *Repo) RemoveLast(ctx context.Context, sessionID string, t turn.Turn) (bool, error) {
	row, err := marshalTurn(t)
	if err != nil {
		return false, err
	}
	removed, err := r.store.LRem(ctx, logKey(r.prefix, sessionID), -1, row)
	if err != nil {
		return false, fmt.Errorf("lrem last turn %s: %w", sessionID, err)
	}
	return removed > 0, nil
}

// Clear deletes the session's durable log.
func (r *Repo) Clear(ctx context.Context, sessionID string) error {
	if err := r.store.Del(ctx, logKey(r.prefix, sessionID)); err != nil {
		return fmt.Errorf("del log %s: %w", sessionID, err)
	}
	return nil
}

// Redis key patterns: {prefix}conversation:{session}, {prefix}session:{session}

func logKey(prefix, sessionID string) string {
	return fmt.Sprintf("%sconversation:%s", prefix, sessionID)
}

func sessionKey(prefix, sessionID string) string {
	return fmt.Sprintf("%ssession:%s", prefix, sessionID)
}
