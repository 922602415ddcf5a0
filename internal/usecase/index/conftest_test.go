package index

import (
	"context"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
)

// --- Mocks ---

type mockRepo struct {
	created      domidx.Index
	createCalled bool
	getResult    domidx.Index
	listResult   []domidx.Index
	createErr    error
	getErr       error
	getErrOnce   bool // return getErr on the first Get only
	getCalls     int
	listErr      error
	deleteErr    error
	deleteCalled bool
}

func (m *mockRepo) Create(_ context.Context, idx domidx.Index) error {
	m.createCalled = true
	m.created = idx
	return m.createErr
}

func (m *mockRepo) Get(_ context.Context, _ string) (domidx.Index, error) {
	m.getCalls++
	if m.getErr != nil && (!m.getErrOnce || m.getCalls == 1) {
		return domidx.Index{}, m.getErr
	}
	return m.getResult, nil
}

func (m *mockRepo) List(_ context.Context) ([]domidx.Index, error) {
	return m.listResult, m.listErr
}

func (m *mockRepo) Delete(_ context.Context, _ string) error {
	m.deleteCalled = true
	return m.deleteErr
}

type mockChunks struct {
	count           int
	countErr        error
	deleted         int
	deleteErr       error
	deleteAllCalled bool
}

func (m *mockChunks) Count(_ context.Context, _ string) (int, error) {
	return m.count, m.countErr
}

func (m *mockChunks) DeleteAll(_ context.Context, _ string) (int, error) {
	m.deleteAllCalled = true
	return m.deleted, m.deleteErr
}

// --- Helpers ---

func newTestService(repo *mockRepo, chunks *mockChunks) *Service {
	return New(repo, chunks, domain.DefaultVectorConfig())
}

func makeIndex(t *testing.T, name string, dim int, metric domidx.Metric) domidx.Index {
	t.Helper()
	return domidx.Reconstruct(name, "all-MiniLM-L6-v2", dim, metric, domidx.AlgorithmFlat, 1700000000000)
}
