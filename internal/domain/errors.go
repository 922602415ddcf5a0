package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a resource name collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidParameter signals a bad caller-supplied parameter.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrVectorDimMismatch signals an embedding/index dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrFetchFailed signals an unreachable or text-free source page.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrIndexWriteFailed signals a vector index write failure after retries.
	ErrIndexWriteFailed = errors.New("index write failed")
	// ErrIndexReadFailed signals a vector index read failure.
	ErrIndexReadFailed = errors.New("index read failed")
	// ErrPersistenceUnavailable signals an unreachable conversation backend.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
)

// IndexWriteError wraps ErrIndexWriteFailed with the span of chunk offsets
// whose batches could not be written, so callers can resume from completed
// work instead of re-indexing everything.
type IndexWriteError struct {
	FirstFailedOffset int
	LastFailedOffset  int
	FailedBatches     int
	Cause             error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("%s: %d batches at offsets %d..%d: %v",
		ErrIndexWriteFailed.Error(), e.FailedBatches, e.FirstFailedOffset, e.LastFailedOffset, e.Cause)
}

func (e *IndexWriteError) Unwrap() error { return ErrIndexWriteFailed }

// NewIndexWriteFailed creates an index write error naming the failed batch span.
func NewIndexWriteFailed(firstOffset, lastOffset, batches int, cause error) error {
	return &IndexWriteError{
		FirstFailedOffset: firstOffset,
		LastFailedOffset:  lastOffset,
		FailedBatches:     batches,
		Cause:             cause,
	}
}

// DimMismatchError wraps ErrVectorDimMismatch with both dimensions.
type DimMismatchError struct {
	QueryDim int
	IndexDim int
}

func (e *DimMismatchError) Error() string {
	return fmt.Sprintf("%s: embedding has %d dimensions, index expects %d",
		ErrVectorDimMismatch.Error(), e.QueryDim, e.IndexDim)
}

func (e *DimMismatchError) Unwrap() error { return ErrVectorDimMismatch }

// NewDimMismatch creates a dimension mismatch error.
func NewDimMismatch(queryDim, indexDim int) error {
	return &DimMismatchError{QueryDim: queryDim, IndexDim: indexDim}
}
