package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	dombatch "github.com/kailas-cloud/ragdex/internal/domain/batch"
	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

// --- Index ---

func TestIndex_HappyPath(t *testing.T) {
	svc, writer, _, batchEmb := newTestService(t)
	chunks := makeChunks(t, 250)

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", chunks)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if report.Written != 250 {
		t.Errorf("expected 250 written, got %d", report.Written)
	}
	if len(report.Batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(report.Batches))
	}
	wantOffsets := []int{0, 100, 200}
	wantSizes := []int{100, 100, 50}
	for i, r := range report.Batches {
		if r.Status() != dombatch.StatusOK {
			t.Errorf("batch[%d] expected ok, got %v", i, r.Err())
		}
		if r.Offset() != wantOffsets[i] {
			t.Errorf("batch[%d] expected offset %d, got %d", i, wantOffsets[i], r.Offset())
		}
		if r.Size() != wantSizes[i] {
			t.Errorf("batch[%d] expected size %d, got %d", i, wantSizes[i], r.Size())
		}
		if r.Attempts() != 1 {
			t.Errorf("batch[%d] expected 1 attempt, got %d", i, r.Attempts())
		}
	}
	if writer.callCount() != 3 {
		t.Errorf("expected 3 upsert calls, got %d", writer.callCount())
	}
	if batchEmb.calls != 3 {
		t.Errorf("expected 3 batch embed calls, got %d", batchEmb.calls)
	}
	if report.IndexCount != 250 {
		t.Errorf("expected index count 250, got %d", report.IndexCount)
	}
	if report.CountMismatch {
		t.Error("unexpected count mismatch")
	}
}

func TestIndex_EmptyInput(t *testing.T) {
	svc, writer, _, batchEmb := newTestService(t)

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Written != 0 || len(report.Batches) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
	if writer.callCount() != 0 || batchEmb.calls != 0 {
		t.Error("expected no writer or embedder calls for empty input")
	}
}

func TestIndex_BoundedConcurrency(t *testing.T) {
	svc, writer, _, _ := newTestService(t)
	svc.WithBatchSize(1).WithMaxInFlight(2)

	var current, peak atomic.Int32
	writer.upsertFn = func(_, _ string, _ []chunk.Embedded) error {
		c := current.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 8))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Written != 8 {
		t.Errorf("expected 8 written, got %d", report.Written)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 batches in flight, observed %d", got)
	}
}

func TestIndex_RetriesTransientWriteFailure(t *testing.T) {
	svc, writer, _, _ := newTestService(t)
	svc.WithBatchSize(2)

	var mu sync.Mutex
	failedOnce := false
	writer.upsertFn = func(_, _ string, batch []chunk.Embedded) error {
		mu.Lock()
		defer mu.Unlock()
		c := batch[0].Chunk()
		if c.SequenceIndex() == 2 && !failedOnce {
			failedOnce = true
			return errors.New("transient write error")
		}
		return nil
	}

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 4))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Written != 4 {
		t.Errorf("expected 4 written, got %d", report.Written)
	}
	if report.Batches[0].Attempts() != 1 {
		t.Errorf("batch[0] expected 1 attempt, got %d", report.Batches[0].Attempts())
	}
	if report.Batches[1].Attempts() != 2 {
		t.Errorf("batch[1] expected 2 attempts, got %d", report.Batches[1].Attempts())
	}
	if report.Batches[1].Status() != dombatch.StatusOK {
		t.Errorf("batch[1] expected ok after retry, got %v", report.Batches[1].Err())
	}
}

func TestIndex_WriteFailureNamesOffsetSpan(t *testing.T) {
	svc, writer, _, _ := newTestService(t)
	svc.WithBatchSize(1).WithMaxInFlight(1).WithRetry(2, time.Millisecond)

	writer.upsertFn = func(_, _ string, batch []chunk.Embedded) error {
		c := batch[0].Chunk()
		if c.SequenceIndex() == 1 || c.SequenceIndex() == 3 {
			return errors.New("shard down")
		}
		return nil
	}

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 5))
	if !errors.Is(err, domain.ErrIndexWriteFailed) {
		t.Fatalf("expected ErrIndexWriteFailed, got %v", err)
	}

	var writeErr *domain.IndexWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected IndexWriteError, got %T", err)
	}
	if writeErr.FirstFailedOffset != 1 || writeErr.LastFailedOffset != 3 {
		t.Errorf("expected failed span 1..3, got %d..%d",
			writeErr.FirstFailedOffset, writeErr.LastFailedOffset)
	}
	if writeErr.FailedBatches != 2 {
		t.Errorf("expected 2 failed batches, got %d", writeErr.FailedBatches)
	}

	// Completed batches are kept, not rolled back.
	if report.Written != 3 {
		t.Errorf("expected 3 written, got %d", report.Written)
	}
	if report.Batches[1].Attempts() != 2 {
		t.Errorf("failed batch expected 2 attempts, got %d", report.Batches[1].Attempts())
	}
}

func TestIndex_EmbedFailureAborts(t *testing.T) {
	svc, writer, _, batchEmb := newTestService(t)
	svc.WithBatchSize(1).WithMaxInFlight(1)

	providerDown := fmt.Errorf("provider down: %w", domain.ErrEmbeddingProviderError)
	batchEmb.batchFn = func(_ []string) (domain.BatchEmbeddingResult, error) {
		return domain.BatchEmbeddingResult{}, providerDown
	}

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 3))
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if writer.callCount() != 0 {
		t.Errorf("expected no writes after embed failure, got %d", writer.callCount())
	}
	if report.Written != 0 {
		t.Errorf("expected 0 written, got %d", report.Written)
	}

	// Batches never reached still carry the abort cause.
	last := report.Batches[len(report.Batches)-1]
	if last.Status() != dombatch.StatusError {
		t.Fatal("expected skipped batch to be marked failed")
	}
	if !errors.Is(last.Err(), domain.ErrEmbeddingProviderError) {
		t.Errorf("expected skipped batch to carry the abort cause, got %v", last.Err())
	}
}

func TestIndex_VectorCountMismatchFromProvider(t *testing.T) {
	svc, _, _, batchEmb := newTestService(t)

	batchEmb.batchFn = func(texts []string) (domain.BatchEmbeddingResult, error) {
		// One vector short: the positional chunk→vector mapping is broken.
		embeddings := make([][]float32, len(texts)-1)
		for i := range embeddings {
			embeddings[i] = []float32{0.1, 0.2, 0.3}
		}
		return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
	}

	_, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 3))
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestIndex_FallsBackToSingleEmbeds(t *testing.T) {
	writer := &mockWriter{}
	counter := &mockCounter{writer: writer}
	single := &mockEmbedder{}
	svc := New(writer, counter, single, nil, zap.NewNop()).WithRetry(3, time.Millisecond)

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 3))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Written != 3 {
		t.Errorf("expected 3 written, got %d", report.Written)
	}
	if single.calls != 3 {
		t.Errorf("expected 3 single embed calls, got %d", single.calls)
	}
}

func TestIndex_ReindexKeepsCountStable(t *testing.T) {
	svc, writer, _, _ := newTestService(t)
	chunks := makeChunks(t, 120)

	first, err := svc.Index(context.Background(), "handbook", "handbook.md", chunks)
	if err != nil {
		t.Fatalf("first Index: %v", err)
	}
	second, err := svc.Index(context.Background(), "handbook", "handbook.md", chunks)
	if err != nil {
		t.Fatalf("second Index: %v", err)
	}

	if first.IndexCount != 120 || second.IndexCount != 120 {
		t.Errorf("expected index count 120 after both passes, got %d then %d",
			first.IndexCount, second.IndexCount)
	}
	if second.CountMismatch {
		t.Error("re-indexing the same chunks must not flag a mismatch")
	}
	if writer.distinctIDs() != 120 {
		t.Errorf("expected 120 distinct ids, got %d", writer.distinctIDs())
	}
}

func TestIndex_ShortCountFlagsMismatch(t *testing.T) {
	svc, _, counter, _ := newTestService(t)
	counter.countFn = func(string) (int, error) { return 7, nil }

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 10))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if !report.CountMismatch {
		t.Error("expected count mismatch flag")
	}
	if report.IndexCount != 7 {
		t.Errorf("expected reported count 7, got %d", report.IndexCount)
	}
	if report.Written != 10 {
		t.Errorf("expected 10 written, got %d", report.Written)
	}
}

func TestIndex_LargerCountIsNotMismatch(t *testing.T) {
	svc, _, counter, _ := newTestService(t)
	// Another document already lives in the index.
	counter.countFn = func(string) (int, error) { return 500, nil }

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 10))
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.CountMismatch {
		t.Error("larger reported count must not flag a mismatch")
	}
}

func TestIndex_CountReadFailureIsNonFatal(t *testing.T) {
	svc, _, counter, _ := newTestService(t)
	counter.countFn = func(string) (int, error) { return 0, errors.New("search backend down") }

	report, err := svc.Index(context.Background(), "handbook", "handbook.md", makeChunks(t, 10))
	if err != nil {
		t.Fatalf("count verification must not fail the pass: %v", err)
	}
	if report.IndexCount != -1 {
		t.Errorf("expected index count -1, got %d", report.IndexCount)
	}
	if report.CountMismatch {
		t.Error("unexpected mismatch flag when verification could not run")
	}
}

func TestIndex_RecordsTokenUsage(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := svc.Index(ctx, "handbook", "handbook.md", makeChunks(t, 250)); err != nil {
		t.Fatalf("Index: %v", err)
	}

	// The default mock reports one token per embedded text.
	if usage.TotalTokens != 250 {
		t.Errorf("expected 250 tokens recorded, got %d", usage.TotalTokens)
	}
	if !usage.Used {
		t.Error("expected usage to be marked used")
	}
}
