package redis

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// RPush appends values to the tail of a list.
func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	cmd := s.b().Rpush().Key(key).Element(values...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpRPush, Err: err}
	}
	return nil
}

// LRange returns list elements between start and stop inclusive.
// Negative offsets count from the tail, as in LRANGE itself.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	cmd := s.b().Lrange().Key(key).Start(start).Stop(stop).Build()
	values, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpLRange, Err: err}
	}
	return values, nil
}

// LLen returns the length of a list. Missing keys count as empty lists.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Llen().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLLen, Err: err}
	}
	return n, nil
}

// LRem removes count occurrences of value from the list and reports how many
// elements were actually removed. Positive count removes head-to-tail.
func (s *Store) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	cmd := s.b().Lrem().Key(key).Count(count).Element(value).Build()
	removed, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLRem, Err: err}
	}
	return removed, nil
}
