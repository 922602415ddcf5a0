package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/session"
)

// EnsureSession registers a session id, generating a UUID when the caller
// does not supply one. Existing sessions keep their creation time and get
// their last-active timestamp refreshed.
func (s *Service) EnsureSession(ctx context.Context, id string) (session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	sess, err := session.New(id)
	if err != nil {
		return session.Session{}, fmt.Errorf("validate session: %w: %w", domain.ErrInvalidParameter, err)
	}

	if !s.persist {
		return s.ensureLocal(sess), nil
	}

	existing, err := s.registry.GetSession(ctx, sess.ID())
	switch {
	case err == nil:
		now := time.Now().UnixMilli()
		if terr := s.registry.TouchSession(ctx, sess.ID(), now); terr != nil {
			s.logger.Warn("touch session failed", zap.String("session", sess.ID()), zap.Error(terr))
		}
		return session.Reconstruct(existing.ID(), existing.CreatedAt(), now), nil
	case errors.Is(err, domain.ErrNotFound):
		if rerr := s.registry.EnsureSession(ctx, sess); rerr != nil {
			return session.Session{}, fmt.Errorf("register session: %w", rerr)
		}
		return sess, nil
	default:
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
}

// GetSession retrieves a registered session.
func (s *Service) GetSession(ctx context.Context, id string) (session.Session, error) {
	if !s.persist {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[id]
		if !ok {
			return session.Session{}, domain.ErrNotFound
		}
		return sess, nil
	}

	sess, err := s.registry.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return session.Session{}, err
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all registered sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context) ([]session.Session, error) {
	if !s.persist {
		s.mu.Lock()
		defer s.mu.Unlock()
		sessions := make([]session.Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].LastActive() > sessions[j].LastActive()
		})
		return sessions, nil
	}

	sessions, err := s.registry.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes the session's registry entry, its durable log and
// its cached view.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if s.persist {
		if err := s.registry.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	s.mu.Lock()
	delete(s.views, id)
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// ensureLocal registers a session in the memory-only registry.
func (s *Service) ensureLocal(sess session.Session) session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sess.ID()]; ok {
		touched := session.Reconstruct(existing.ID(), existing.CreatedAt(), time.Now().UnixMilli())
		s.sessions[sess.ID()] = touched
		return touched
	}
	s.sessions[sess.ID()] = sess
	return sess
}
