// Package ingest writes chunked documents into the vector index: it embeds
// chunks batch by batch, upserts them with bounded concurrency, retries
// failed writes with backoff, and verifies the index count afterwards.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombatch "github.com/kailas-cloud/ragdex/internal/domain/batch"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Pipeline defaults.
const (
	DefaultBatchSize   = 100
	DefaultMaxInFlight = 4
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 200 * time.Millisecond
)

// Service indexes chunk sequences. Upserts are keyed by chunk id, so
// re-indexing the same document replaces records instead of duplicating them.
type Service struct {
	chunks     ChunkWriter
	counter    ChunkCounter
	embed      Embedder
	batchEmbed BatchEmbedder
	logger     *zap.Logger

	batchSize   int
	maxInFlight int
	maxAttempts int
	retryBase   time.Duration
}

// New creates an ingest service. batchEmbed may be nil; embedding then falls
// back to one call per chunk.
func New(chunks ChunkWriter, counter ChunkCounter, embed Embedder, batchEmbed BatchEmbedder, logger *zap.Logger) *Service {
	return &Service{
		chunks:      chunks,
		counter:     counter,
		embed:       embed,
		batchEmbed:  batchEmbed,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		maxInFlight: DefaultMaxInFlight,
		maxAttempts: DefaultMaxAttempts,
		retryBase:   DefaultRetryBase,
	}
}

// WithBatchSize configures the upsert batch size.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithMaxInFlight configures how many batches may be processed concurrently.
func (s *Service) WithMaxInFlight(n int) *Service {
	if n > 0 {
		s.maxInFlight = n
	}
	return s
}

// WithRetry configures per-batch write attempts and the backoff base. The
// delay doubles after every failed attempt.
func (s *Service) WithRetry(attempts int, base time.Duration) *Service {
	if attempts > 0 {
		s.maxAttempts = attempts
	}
	if base > 0 {
		s.retryBase = base
	}
	return s
}

// Report summarizes one indexing pass.
type Report struct {
	// Written counts chunks successfully upserted.
	Written int
	// Batches holds the per-batch outcomes in input order.
	Batches []dombatch.Result
	// IndexCount is the index's reported chunk count after the pass,
	// -1 when the verification read failed.
	IndexCount int
	// CountMismatch is set when the index reports fewer chunks than this
	// pass wrote, which means records went missing.
	CountMismatch bool
}

type job struct {
	n      int
	offset int
	chunks []chunk.Chunk
}

// Index embeds and upserts chunks into indexName. An embedding failure
// aborts the run; a batch write failure is retried with backoff and, if
// attempts run out, surfaces as an index write error naming the first and
// last failing batch offsets. Batches that did complete are kept.
func (s *Service) Index(ctx context.Context, indexName, source string, chunks []chunk.Chunk) (Report, error) {
	if len(chunks) == 0 {
		return Report{}, nil
	}

	numBatches := (len(chunks) + s.batchSize - 1) / s.batchSize
	results := make([]dombatch.Result, numBatches)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg          sync.WaitGroup
		totalTokens atomic.Int64
		abortOnce   sync.Once
		abortErr    error
	)
	abort := func(err error) {
		abortOnce.Do(func() {
			abortErr = err
			cancel()
		})
	}

	jobs := make(chan job)
	for i := 0; i < s.maxInFlight; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				embedded, tokens, err := s.embedBatch(runCtx, j.chunks)
				if err != nil {
					results[j.n] = dombatch.NewError(j.offset, len(j.chunks), 0, err)
					abort(fmt.Errorf("embed batch at offset %d: %w", j.offset, err))
					return
				}
				totalTokens.Add(int64(tokens))
				results[j.n] = s.writeBatch(runCtx, indexName, source, embedded, j.offset)
			}
		}()
	}

feed:
	for n := 0; n < numBatches; n++ {
		start := n * s.batchSize
		end := min(start+s.batchSize, len(chunks))
		select {
		case jobs <- job{n: n, offset: start, chunks: chunks[start:end]}:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	domain.UsageFromContext(ctx).AddTokens(int(totalTokens.Load()))

	// Batches never reached because the run aborted early still get an
	// outcome so callers see the full picture.
	skipCause := abortErr
	if skipCause == nil {
		skipCause = ctx.Err()
	}
	for n := range results {
		if results[n].Status() == "" {
			start := n * s.batchSize
			size := min(s.batchSize, len(chunks)-start)
			results[n] = dombatch.NewError(start, size, 0, fmt.Errorf("batch skipped: %w", skipCause))
		}
	}

	report := Report{Batches: results, IndexCount: -1}
	for _, r := range results {
		if r.Status() == dombatch.StatusOK {
			report.Written += r.Size()
		}
	}

	if abortErr != nil {
		return report, abortErr
	}
	if err := writeFailure(results); err != nil {
		return report, err
	}

	s.verifyCount(ctx, indexName, &report)
	return report, nil
}

// embedBatch vectorizes one batch of chunks, preserving order.
func (s *Service) embedBatch(ctx context.Context, batch []chunk.Chunk) ([]chunk.Embedded, int, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Text()
	}

	var (
		res domain.BatchEmbeddingResult
		err error
	)
	if s.batchEmbed != nil {
		res, err = s.batchEmbed.BatchEmbed(ctx, texts)
	} else {
		res, err = domain.BatchFallback(ctx, s.embed, texts)
	}
	if err != nil {
		return nil, 0, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, 0, fmt.Errorf("embedding count mismatch: %d texts, %d vectors: %w",
			len(texts), len(res.Embeddings), domain.ErrEmbeddingProviderError)
	}

	embedded := make([]chunk.Embedded, len(batch))
	for i := range batch {
		e, err := chunk.NewEmbedded(batch[i], res.Embeddings[i])
		if err != nil {
			return nil, 0, fmt.Errorf("chunk %s: %w", batch[i].ID(), err)
		}
		embedded[i] = e
	}
	return embedded, res.TotalTokens, nil
}

// writeBatch upserts one batch, retrying with exponential backoff.
func (s *Service) writeBatch(ctx context.Context, indexName, source string, batch []chunk.Embedded, offset int) dombatch.Result {
	start := time.Now()
	res := s.upsertWithRetry(ctx, indexName, source, batch, offset)
	metrics.IndexBatchDuration.WithLabelValues(indexName).Observe(time.Since(start).Seconds())
	if res.Status() == dombatch.StatusOK {
		metrics.ChunksIndexedTotal.WithLabelValues(indexName, "success").Add(float64(len(batch)))
	} else {
		metrics.ChunksIndexedTotal.WithLabelValues(indexName, "error").Add(float64(len(batch)))
	}
	return res
}

func (s *Service) upsertWithRetry(ctx context.Context, indexName, source string, batch []chunk.Embedded, offset int) dombatch.Result {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, s.retryBase<<(attempt-2)); err != nil {
				return dombatch.NewError(offset, len(batch), attempt-1, err)
			}
		}
		if err := s.chunks.UpsertBatch(ctx, indexName, source, batch); err != nil {
			lastErr = err
			continue
		}
		return dombatch.NewOK(offset, len(batch), attempt)
	}
	return dombatch.NewError(offset, len(batch), s.maxAttempts, lastErr)
}

// writeFailure folds failed batches into a single index write error naming
// the span of offsets that could not be written.
func writeFailure(results []dombatch.Result) error {
	first, last, failed := -1, -1, 0
	var cause error
	for _, r := range results {
		if r.Status() != dombatch.StatusError {
			continue
		}
		if first == -1 {
			first = r.Offset()
			cause = r.Err()
		}
		last = r.Offset()
		failed++
	}
	if failed == 0 {
		return nil
	}
	return domain.NewIndexWriteFailed(first, last, failed, cause)
}

// verifyCount reads back the index's reported count. A short count means
// records went missing and is flagged; the read failing is only logged, the
// write itself already succeeded.
func (s *Service) verifyCount(ctx context.Context, indexName string, report *Report) {
	count, err := s.counter.Count(ctx, indexName)
	if err != nil {
		s.logger.Warn("index count verification failed",
			zap.String("index", indexName), zap.Error(err))
		return
	}
	report.IndexCount = count
	if count < report.Written {
		report.CountMismatch = true
		s.logger.Warn("index reports fewer chunks than written",
			zap.String("index", indexName),
			zap.Int("written", report.Written),
			zap.Int("reported", count))
	}
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
