// Package conversation keeps per-session turn history. Each session owns an
// in-memory view bounded to the last N exchanges, which is what prompt
// assembly consumes. With persistence enabled the durable log is the source
// of truth: it is append-only and unbounded, the view is a cache hydrated
// from its tail on first touch.
package conversation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/session"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// DefaultWindow is the number of exchanges kept in the session view.
const DefaultWindow = 5

// WindowUnbounded keeps every turn in the session view (the
// resend-everything pattern).
const WindowUnbounded = 0

// Service is the conversation store.
type Service struct {
	log      Log
	registry Registry
	logger   *zap.Logger
	window   int
	persist  bool

	mu       sync.Mutex
	views    map[string][]turn.Turn
	sessions map[string]session.Session
}

// New creates the conversation store. window is the number of exchanges kept
// in each session view; WindowUnbounded (or any value <= 0) keeps everything.
// With persist enabled the backend must be reachable now: construction fails
// with ErrPersistenceUnavailable instead of degrading to memory-only.
func New(ctx context.Context, log Log, registry Registry, pinger Pinger, logger *zap.Logger, window int, persist bool) (*Service, error) {
	if window < 0 {
		window = WindowUnbounded
	}
	if persist {
		if err := pinger.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping conversation backend: %w: %w", domain.ErrPersistenceUnavailable, err)
		}
	}
	return &Service{
		log:      log,
		registry: registry,
		logger:   logger,
		window:   window,
		persist:  persist,
		views:    make(map[string][]turn.Turn),
		sessions: make(map[string]session.Session),
	}, nil
}

// Window returns the configured window in exchanges (0 = unbounded).
func (s *Service) Window() int { return s.window }

// Persisted reports whether turns are written to the durable log.
func (s *Service) Persisted() bool { return s.persist }

// Append adds a turn to the tail of the session. The durable log grows
// without bound; only the session view is trimmed to the window.
func (s *Service) Append(ctx context.Context, sessionID string, t turn.Turn) error {
	if s.persist {
		if err := s.log.Append(ctx, sessionID, t); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.viewLocked(ctx, sessionID)
	if err != nil {
		return err
	}
	view = append(view, t)
	if limit := s.viewLimit(); limit > 0 && len(view) > limit {
		view = view[len(view)-limit:]
	}
	s.views[sessionID] = view
	return nil
}

// History returns the session's turns, oldest first. bounded selects the
// windowed view used for prompt assembly; unbounded reads the full durable
// log when persistence is on, otherwise it falls back to the view (all the
// memory-only store ever holds).
func (s *Service) History(ctx context.Context, sessionID string, bounded bool) ([]turn.Turn, error) {
	if !bounded && s.persist {
		turns, err := s.log.History(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		return turns, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.viewLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]turn.Turn, len(view))
	copy(out, view)
	return out, nil
}

// Clear empties the session view and deletes the durable log. The session
// stays registered and goes back to its empty state.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if s.persist {
		if err := s.log.Clear(ctx, sessionID); err != nil {
			return fmt.Errorf("clear log: %w", err)
		}
	}
	s.mu.Lock()
	s.views[sessionID] = []turn.Turn{}
	s.mu.Unlock()
	return nil
}

// DeleteTurn removes the first turn matching role and content exactly.
// Returns false without error when nothing matched. The scan is linear in
// conversation length, which the window policy keeps small in practice.
func (s *Service) DeleteTurn(ctx context.Context, sessionID string, role turn.Role, content string) (bool, error) {
	t, err := turn.New(role, content)
	if err != nil {
		return false, fmt.Errorf("validate turn: %w: %w", domain.ErrInvalidParameter, err)
	}

	if s.persist {
		removed, err := s.log.DeleteTurn(ctx, sessionID, t)
		if err != nil {
			return false, fmt.Errorf("delete turn: %w", err)
		}
		if removed {
			// The first log match may sit before the cached window, so
			// removing the view's own first match could hit a later
			// duplicate. Rehydrate from the log instead.
			s.invalidate(sessionID)
		}
		return removed, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	view := s.views[sessionID]
	for i := range view {
		if view[i].Equal(t) {
			s.views[sessionID] = append(view[:i:i], view[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// RemoveLast removes the newest turn matching t exactly. Used to unwind a
// just-appended turn after a failed completion so a retry does not record it
// twice.
func (s *Service) RemoveLast(ctx context.Context, sessionID string, t turn.Turn) (bool, error) {
	if s.persist {
		removed, err := s.log.RemoveLast(ctx, sessionID, t)
		if err != nil {
			return false, fmt.Errorf("remove last turn: %w", err)
		}
		if removed {
			s.dropLastMatch(sessionID, t)
		}
		return removed, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLastMatchLocked(sessionID, t), nil
}

// viewLocked returns the session view, hydrating it from the durable log's
// tail on first touch. Callers must hold s.mu.
func (s *Service) viewLocked(ctx context.Context, sessionID string) ([]turn.Turn, error) {
	if view, ok := s.views[sessionID]; ok {
		return view, nil
	}

	var view []turn.Turn
	if s.persist {
		var err error
		if limit := s.viewLimit(); limit > 0 {
			view, err = s.log.Window(ctx, sessionID, limit)
		} else {
			view, err = s.log.History(ctx, sessionID)
		}
		if err != nil {
			return nil, fmt.Errorf("load session view %s: %w", sessionID, err)
		}
	}
	s.views[sessionID] = view
	return view, nil
}

// viewLimit returns the view size cap in turns, 0 when unbounded. An
// exchange is a user turn plus its assistant reply.
func (s *Service) viewLimit() int {
	if s.window <= 0 {
		return 0
	}
	return 2 * s.window
}

func (s *Service) invalidate(sessionID string) {
	s.mu.Lock()
	delete(s.views, sessionID)
	s.mu.Unlock()
}

func (s *Service) dropLastMatch(sessionID string, t turn.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLastMatchLocked(sessionID, t)
}

// dropLastMatchLocked removes the newest view entry equal to t. The view is
// a suffix of the log, so its last match is also the log's last match
// whenever one is cached. Callers must hold s.mu.
func (s *Service) dropLastMatchLocked(sessionID string, t turn.Turn) bool {
	view := s.views[sessionID]
	for i := len(view) - 1; i >= 0; i-- {
		if view[i].Equal(t) {
			s.views[sessionID] = append(view[:i:i], view[i+1:]...)
			return true
		}
	}
	return false
}
