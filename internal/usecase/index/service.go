// Package index manages the lifecycle of chunk indexes: creation, geometry
// agreement checks, stats, clearing and dropping.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
)

// Service handles index lifecycle operations. The embedding model and
// dimension come from configuration; every index this service creates
// records them so the read path can verify query geometry later.
type Service struct {
	repo   Repository
	chunks ChunkStore
	cfg    domain.VectorConfig
}

// New creates an index service.
func New(repo Repository, chunks ChunkStore, cfg domain.VectorConfig) *Service {
	return &Service{repo: repo, chunks: chunks, cfg: cfg}
}

// Create validates and stores a new index definition plus its search index.
// Empty metric and algorithm fall back to the configured defaults.
func (s *Service) Create(ctx context.Context, name string, metric domidx.Metric, algorithm domidx.Algorithm) (domidx.Index, error) {
	if metric == "" {
		metric = domidx.Metric(s.cfg.DistanceMetric)
	}
	if algorithm == "" {
		algorithm = domidx.Algorithm(s.cfg.Algorithm)
	}

	idx, err := domidx.New(name, s.cfg.Model, s.cfg.Dimensions, metric, algorithm)
	if err != nil {
		return domidx.Index{}, fmt.Errorf("validate index: %w: %w", domain.ErrInvalidParameter, err)
	}

	if err := s.repo.Create(ctx, idx); err != nil {
		return domidx.Index{}, fmt.Errorf("create index: %w", err)
	}
	return idx, nil
}

// Ensure returns the index named name, creating it when absent. An existing
// index must agree with the configured embedding geometry: a different
// dimension is a dimension mismatch, a different metric would silently
// change what scores mean, so both fail loudly.
func (s *Service) Ensure(ctx context.Context, name string, metric domidx.Metric, algorithm domidx.Algorithm) (domidx.Index, bool, error) {
	existing, err := s.repo.Get(ctx, name)
	switch {
	case err == nil:
		return existing, false, s.checkAgreement(existing, metric)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domidx.Index{}, false, fmt.Errorf("get index: %w", err)
	}

	idx, err := s.Create(ctx, name, metric, algorithm)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Lost a create race; the winner's index must still agree.
		existing, getErr := s.repo.Get(ctx, name)
		if getErr != nil {
			return domidx.Index{}, false, fmt.Errorf("get index after create race: %w", getErr)
		}
		return existing, false, s.checkAgreement(existing, metric)
	}
	if err != nil {
		return domidx.Index{}, false, err
	}
	return idx, true, nil
}

func (s *Service) checkAgreement(existing domidx.Index, metric domidx.Metric) error {
	if existing.VectorDim() != s.cfg.Dimensions {
		return fmt.Errorf("index %q: %w", existing.Name(),
			domain.NewDimMismatch(s.cfg.Dimensions, existing.VectorDim()))
	}
	if metric == "" {
		metric = domidx.Metric(s.cfg.DistanceMetric)
	}
	if existing.DistanceMetric() != metric {
		return fmt.Errorf("index %q uses metric %s, requested %s: %w",
			existing.Name(), existing.DistanceMetric(), metric, domain.ErrInvalidParameter)
	}
	return nil
}

// Get retrieves an index definition by name.
func (s *Service) Get(ctx context.Context, name string) (domidx.Index, error) {
	idx, err := s.repo.Get(ctx, name)
	if err != nil {
		return domidx.Index{}, fmt.Errorf("get index: %w", err)
	}
	return idx, nil
}

// List returns all index definitions.
func (s *Service) List(ctx context.Context) ([]domidx.Index, error) {
	indexes, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return indexes, nil
}

// Stats describes one index and its current chunk count.
type Stats struct {
	Index  domidx.Index
	Chunks int
}

// Stats returns the index definition together with its reported chunk count.
func (s *Service) Stats(ctx context.Context, name string) (Stats, error) {
	idx, err := s.repo.Get(ctx, name)
	if err != nil {
		return Stats{}, fmt.Errorf("get index: %w", err)
	}
	count, err := s.chunks.Count(ctx, name)
	if err != nil {
		return Stats{}, fmt.Errorf("count chunks: %w: %w", domain.ErrIndexReadFailed, err)
	}
	return Stats{Index: idx, Chunks: count}, nil
}

// Clear deletes every chunk record of the index but keeps the index itself,
// so the next ingest starts from an empty, correctly-defined index. Returns
// the number of chunks removed.
func (s *Service) Clear(ctx context.Context, name string) (int, error) {
	if _, err := s.repo.Get(ctx, name); err != nil {
		return 0, fmt.Errorf("get index: %w", err)
	}
	removed, err := s.chunks.DeleteAll(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("clear chunks: %w", err)
	}
	return removed, nil
}

// Drop removes the index definition, its search index and all chunk records.
func (s *Service) Drop(ctx context.Context, name string) error {
	if _, err := s.chunks.DeleteAll(ctx, name); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}
