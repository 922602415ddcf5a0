package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
)

// store is the consumer interface for index metadata (ISP).
//
//nolint:interfacebloat // index repo needs hash + index management operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements usecase/index.Repository.
type Repo struct {
	store  store
	prefix string
	hnsw   HNSWConfig
}

// New creates an index metadata repository. prefix namespaces every key the
// repository touches.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix, hnsw: HNSWConfig{M: 32, EFConstruct: 400}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Create stores an index: HSET metadata then FT.CREATE search index.
// On FT.CREATE failure, rolls back the HSET via DEL.
func (r *Repo) Create(ctx context.Context, idx domidx.Index) error {
	name := idx.Name()

	metaKey := metaKey(r.prefix, name)
	exists, err := r.store.Exists(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return domain.ErrAlreadyExists
	}

	def := buildIndex(r.prefix, idx, r.hnsw)

	// Step 1: HSET metadata
	if err := r.store.HSet(ctx, metaKey, indexToHash(idx)); err != nil {
		return fmt.Errorf("hset index %s: %w", name, err)
	}

	// FT.CREATE — rollback HSET on error
	if err := r.store.CreateIndex(ctx, def); err != nil {
		cleanupErr := r.store.Del(ctx, metaKey)
		return errors.Join(err, cleanupErr)
	}

	return nil
}

// Get retrieves index metadata by name.
func (r *Repo) Get(ctx context.Context, name string) (domidx.Index, error) {
	m, err := r.store.HGetAll(ctx, metaKey(r.prefix, name))
	if err != nil {
		return domidx.Index{}, fmt.Errorf("hgetall index %s: %w", name, err)
	}
	if len(m) == 0 {
		return domidx.Index{}, domain.ErrNotFound
	}

	return indexFromHash(m)
}

// List returns all indexes sorted by CreatedAt.
func (r *Repo) List(ctx context.Context) ([]domidx.Index, error) {
	keys, err := r.store.Scan(ctx, metaKey(r.prefix, "*"))
	if err != nil {
		return nil, fmt.Errorf("scan indexes: %w", err)
	}
	if len(keys) == 0 {
		return []domidx.Index{}, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi indexes: %w", err)
	}

	indexes := make([]domidx.Index, 0, len(results))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		idx, err := indexFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse index %s: %w", keys[i], err)
		}
		indexes = append(indexes, idx)
	}

	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].CreatedAt() < indexes[j].CreatedAt()
	})

	return indexes, nil
}

// Delete removes an index: backup metadata, DEL hash, FT.DROPINDEX (rollback HSET on error).
// Chunk records under the index prefix are not touched; callers clear them separately.
func (r *Repo) Delete(ctx context.Context, name string) error {
	metaKey := metaKey(r.prefix, name)

	// Backup metadata
	metaBackup, err := r.store.HGetAll(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("hgetall index %s: %w", name, err)
	}
	if len(metaBackup) == 0 {
		return domain.ErrNotFound
	}

	// Check search index exists
	idxName := searchIndexName(r.prefix, name)
	idxExists, err := r.store.IndexExists(ctx, idxName)
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	if !idxExists {
		return domain.ErrNotFound
	}

	// Step 1: DEL metadata
	if err := r.store.Del(ctx, metaKey); err != nil {
		return fmt.Errorf("del index %s: %w", name, err)
	}

	// FT.DROPINDEX — rollback HSET on error
	if err := r.store.DropIndex(ctx, idxName); err != nil {
		cleanupErr := r.store.HSet(ctx, metaKey, metaBackup)
		return errors.Join(err, cleanupErr)
	}

	return nil
}

// Redis key patterns: {prefix}index:{name}, {prefix}{name}:idx, {prefix}{name}:

func metaKey(prefix, name string) string {
	return fmt.Sprintf("%sindex:%s", prefix, name)
}

func searchIndexName(prefix, name string) string {
	return fmt.Sprintf("%s%s:idx", prefix, name)
}

func chunkPrefix(prefix, name string) string {
	return fmt.Sprintf("%s%s:", prefix, name)
}
