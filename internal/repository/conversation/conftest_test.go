package conversation

import (
	"context"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	rpushFn        func(ctx context.Context, key string, values ...string) error
	lrangeFn       func(ctx context.Context, key string, start, stop int64) ([]string, error)
	llenFn         func(ctx context.Context, key string) (int64, error)
	lremFn         func(ctx context.Context, key string, count int64, value string) (int64, error)
	delFn          func(ctx context.Context, key string) error
	delMultiFn     func(ctx context.Context, keys []string) error
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) RPush(ctx context.Context, key string, values ...string) error {
	if m.rpushFn != nil {
		return m.rpushFn(ctx, key, values...)
	}
	return nil
}

func (m *mockStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if m.lrangeFn != nil {
		return m.lrangeFn(ctx, key, start, stop)
	}
	return nil, nil
}

func (m *mockStore) LLen(ctx context.Context, key string) (int64, error) {
	if m.llenFn != nil {
		return m.llenFn(ctx, key)
	}
	return 0, nil
}

func (m *mockStore) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	if m.lremFn != nil {
		return m.lremFn(ctx, key, count, value)
	}
	return 0, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) DelMulti(ctx context.Context, keys []string) error {
	if m.delMultiFn != nil {
		return m.delMultiFn(ctx, keys)
	}
	return nil
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, domain.KeyPrefix)
	return repo, ms
}

func mustTurn(t *testing.T, role turn.Role, content string) turn.Turn {
	t.Helper()
	tr, err := turn.New(role, content)
	if err != nil {
		t.Fatalf("turn.New: %v", err)
	}
	return tr
}
