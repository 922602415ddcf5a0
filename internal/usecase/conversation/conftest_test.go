package conversation

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/session"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// mockBackend is a stateful stand-in for the conversation repository: turn
// lists and session hashes held in maps, with per-operation error injection.
type mockBackend struct {
	logs     map[string][]turn.Turn
	sessions map[string]session.Session

	pingErr    error
	appendErr  error
	historyErr error
	clearErr   error
	deleteErr  error

	pingCalls   int
	appendCalls int
	touchedAt   int64
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		logs:     make(map[string][]turn.Turn),
		sessions: make(map[string]session.Session),
	}
}

func (m *mockBackend) Ping(_ context.Context) error {
	m.pingCalls++
	return m.pingErr
}

func (m *mockBackend) Append(_ context.Context, sessionID string, t turn.Turn) error {
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	m.logs[sessionID] = append(m.logs[sessionID], t)
	return nil
}

func (m *mockBackend) History(_ context.Context, sessionID string) ([]turn.Turn, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	log := m.logs[sessionID]
	out := make([]turn.Turn, len(log))
	copy(out, log)
	return out, nil
}

func (m *mockBackend) Window(_ context.Context, sessionID string, n int) ([]turn.Turn, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	log := m.logs[sessionID]
	if n <= 0 {
		return nil, nil
	}
	if n > len(log) {
		n = len(log)
	}
	out := make([]turn.Turn, n)
	copy(out, log[len(log)-n:])
	return out, nil
}

func (m *mockBackend) DeleteTurn(_ context.Context, sessionID string, t turn.Turn) (bool, error) {
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	log := m.logs[sessionID]
	for i := range log {
		if log[i].Equal(t) {
			m.logs[sessionID] = append(log[:i:i], log[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBackend) RemoveLast(_ context.Context, sessionID string, t turn.Turn) (bool, error) {
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	log := m.logs[sessionID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Equal(t) {
			m.logs[sessionID] = append(log[:i:i], log[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBackend) Clear(_ context.Context, sessionID string) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.logs, sessionID)
	return nil
}

func (m *mockBackend) EnsureSession(_ context.Context, s session.Session) error {
	m.sessions[s.ID()] = s
	return nil
}

func (m *mockBackend) TouchSession(_ context.Context, sessionID string, at int64) error {
	m.touchedAt = at
	if s, ok := m.sessions[sessionID]; ok {
		m.sessions[sessionID] = session.Reconstruct(s.ID(), s.CreatedAt(), at)
	}
	return nil
}

func (m *mockBackend) GetSession(_ context.Context, sessionID string) (session.Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return session.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockBackend) ListSessions(_ context.Context) ([]session.Session, error) {
	out := make([]session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockBackend) DeleteSession(_ context.Context, sessionID string) error {
	delete(m.sessions, sessionID)
	delete(m.logs, sessionID)
	return nil
}

func newTestService(t *testing.T, backend *mockBackend, window int, persist bool) *Service {
	t.Helper()
	svc, err := New(context.Background(), backend, backend, backend, zap.NewNop(), window, persist)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func userTurn(t *testing.T, content string) turn.Turn {
	t.Helper()
	tn, err := turn.New(turn.RoleUser, content)
	if err != nil {
		t.Fatalf("turn.New: %v", err)
	}
	return tn
}

func assistantTurn(t *testing.T, content string) turn.Turn {
	t.Helper()
	tn, err := turn.New(turn.RoleAssistant, content)
	if err != nil {
		t.Fatalf("turn.New: %v", err)
	}
	return tn
}

// appendExchange appends one user turn and its assistant reply.
func appendExchange(t *testing.T, svc *Service, sessionID, question, answer string) {
	t.Helper()
	ctx := context.Background()
	if err := svc.Append(ctx, sessionID, userTurn(t, question)); err != nil {
		t.Fatalf("append user turn: %v", err)
	}
	if err := svc.Append(ctx, sessionID, assistantTurn(t, answer)); err != nil {
		t.Fatalf("append assistant turn: %v", err)
	}
}
