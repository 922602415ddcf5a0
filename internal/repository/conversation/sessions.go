package conversation

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/session"
)

// EnsureSession registers a session. Writing an existing session overwrites
// the same fields, so the call is idempotent.
func (r *Repo) EnsureSession(ctx context.Context, s session.Session) error {
	if err := r.store.HSet(ctx, sessionKey(r.prefix, s.ID()), sessionToHash(s)); err != nil {
		return fmt.Errorf("hset session %s: %w", s.ID(), err)
	}
	return nil
}

// TouchSession updates a session's last-active timestamp.
func (r *Repo) TouchSession(ctx context.Context, sessionID string, at int64) error {
	fields := map[string]string{"last_active": strconv.FormatInt(at, 10)}
	if err := r.store.HSet(ctx, sessionKey(r.prefix, sessionID), fields); err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return nil
}

// GetSession retrieves a registered session.
func (r *Repo) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	m, err := r.store.HGetAll(ctx, sessionKey(r.prefix, sessionID))
	if err != nil {
		return session.Session{}, fmt.Errorf("hgetall session %s: %w", sessionID, err)
	}
	if len(m) == 0 {
		return session.Session{}, domain.ErrNotFound
	}
	return sessionFromHash(m), nil
}

// ListSessions returns all registered sessions, most recently active first.
func (r *Repo) ListSessions(ctx context.Context) ([]session.Session, error) {
	keys, err := r.store.Scan(ctx, sessionKey(r.prefix, "*"))
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return []session.Session{}, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi sessions: %w", err)
	}

	sessions := make([]session.Session, 0, len(results))
	for _, m := range results {
		if len(m) == 0 {
			continue
		}
		sessions = append(sessions, sessionFromHash(m))
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActive() > sessions[j].LastActive()
	})

	return sessions, nil
}

// DeleteSession removes a session's registry entry together with its durable
// log.
func (r *Repo) DeleteSession(ctx context.Context, sessionID string) error {
	keys := []string{
		sessionKey(r.prefix, sessionID),
		logKey(r.prefix, sessionID),
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("del session %s: %w", sessionID, err)
	}
	return nil
}

func sessionToHash(s session.Session) map[string]string {
	return map[string]string{
		"id":          s.ID(),
		"created_at":  strconv.FormatInt(s.CreatedAt(), 10),
		"last_active": strconv.FormatInt(s.LastActive(), 10),
	}
}

func sessionFromHash(m map[string]string) session.Session {
	createdAt, _ := strconv.ParseInt(m["created_at"], 10, 64)
	lastActive, _ := strconv.ParseInt(m["last_active"], 10, 64)
	return session.Reconstruct(m["id"], createdAt, lastActive)
}
