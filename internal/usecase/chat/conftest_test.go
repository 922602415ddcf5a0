package chat

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	"github.com/kailas-cloud/ragdex/internal/domain/prompt"
	domret "github.com/kailas-cloud/ragdex/internal/domain/retrieval"
	"github.com/kailas-cloud/ragdex/internal/domain/session"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

type mockStore struct {
	session    session.Session
	ensureErr  error
	history    []turn.Turn
	historyErr error

	appended     []turn.Turn
	failAppendAt int // 1-based call index, 0 = never
	appendErr    error
	removed      []turn.Turn
	removeErr    error
}

func (m *mockStore) EnsureSession(_ context.Context, id string) (session.Session, error) {
	if m.ensureErr != nil {
		return session.Session{}, m.ensureErr
	}
	if id == "" {
		return m.session, nil
	}
	return session.Reconstruct(id, m.session.CreatedAt(), m.session.LastActive()), nil
}

func (m *mockStore) Append(_ context.Context, _ string, t turn.Turn) error {
	if m.failAppendAt > 0 && len(m.appended)+1 == m.failAppendAt {
		return m.appendErr
	}
	m.appended = append(m.appended, t)
	return nil
}

func (m *mockStore) History(_ context.Context, _ string, _ bool) ([]turn.Turn, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

func (m *mockStore) RemoveLast(_ context.Context, _ string, t turn.Turn) (bool, error) {
	if m.removeErr != nil {
		return false, m.removeErr
	}
	m.removed = append(m.removed, t)
	for i := len(m.appended) - 1; i >= 0; i-- {
		if m.appended[i].Equal(t) {
			m.appended = append(m.appended[:i:i], m.appended[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type mockRetriever struct {
	result domret.Result
	err    error

	gotIndex  string
	gotText   string
	gotTopK   int
	gotFilter domret.Filter
	calls     int
}

func (m *mockRetriever) Retrieve(_ context.Context, indexName, text string, topK int, filters domret.Filter) (domret.Result, error) {
	m.calls++
	m.gotIndex = indexName
	m.gotText = text
	m.gotTopK = topK
	m.gotFilter = filters
	if m.err != nil {
		return domret.Result{}, m.err
	}
	return m.result, nil
}

type mockAssembler struct {
	dropped int
	err     error

	gotQuery        string
	gotRetrieved    []domret.RetrievedChunk
	gotHistory      []turn.Turn
	gotInstructions string
}

func (m *mockAssembler) Assemble(query string, retrieved []domret.RetrievedChunk, history []turn.Turn, instructions string) (prompt.Payload, error) {
	m.gotQuery = query
	m.gotRetrieved = retrieved
	m.gotHistory = history
	m.gotInstructions = instructions
	if m.err != nil {
		return prompt.Payload{}, m.err
	}
	kept := len(retrieved) - m.dropped
	contexts := make([]prompt.ContextChunk, 0, kept)
	for i := 0; i < kept; i++ {
		c := retrieved[i].Chunk()
		contexts = append(contexts, prompt.NewContextChunk(c.SequenceIndex(), c.Text()))
	}
	return prompt.New(prompt.DefaultInstructions, contexts, history, query, m.dropped), nil
}

type mockCompleter struct {
	result domain.CompletionResult
	err    error

	gotReq domain.CompletionRequest
	calls  int
}

func (m *mockCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.calls++
	m.gotReq = req
	if m.err != nil {
		return domain.CompletionResult{}, m.err
	}
	return m.result, nil
}

func makeHit(t *testing.T, seq int, score float64) domret.RetrievedChunk {
	t.Helper()
	text := fmt.Sprintf("passage %d", seq)
	c := chunk.Reconstruct(fmt.Sprintf(chunk.IDFormat, seq), text, seq, len(text))
	return domret.NewRetrievedChunk(c, score)
}

func makeResult(t *testing.T, requested int, scores ...float64) domret.Result {
	t.Helper()
	hits := make([]domret.RetrievedChunk, len(scores))
	for i, score := range scores {
		hits[i] = makeHit(t, i, score)
	}
	return domret.NewResult(hits, requested)
}

type fixture struct {
	store     *mockStore
	retriever *mockRetriever
	assembler *mockAssembler
	completer *mockCompleter
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     &mockStore{session: session.Reconstruct("generated-session", 1700000000000, 1700000000000)},
		retriever: &mockRetriever{result: makeResult(t, 3, 0.9, 0.8, 0.7)},
		assembler: &mockAssembler{},
		completer: &mockCompleter{result: domain.CompletionResult{
			Text:             "the grounded answer",
			PromptTokens:     120,
			CompletionTokens: 40,
			TotalTokens:      160,
		}},
	}
	f.svc = New(f.store, f.retriever, f.assembler, f.completer, zap.NewNop(), "handbook", 3)
	return f
}
