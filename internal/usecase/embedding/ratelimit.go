package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// RateLimitedEmbedder throttles provider calls with a token bucket.
// One permit covers one provider round trip, so a batch request costs
// the same as a single embed regardless of how many inputs it carries.
type RateLimitedEmbedder struct {
	inner  domain.Embedder
	bucket *rate.Limiter
}

// NewRateLimitedEmbedder wraps an embedder with a requests-per-second
// cap. rps <= 0 disables throttling. burst below 1 is raised to 1 so
// the bucket can ever grant a permit.
func NewRateLimitedEmbedder(inner domain.Embedder, rps float64, burst int) *RateLimitedEmbedder {
	var bucket *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		bucket = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RateLimitedEmbedder{inner: inner, bucket: bucket}
}

// Embed waits for a permit, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return r.inner.Embed(ctx, text)
}

// BatchEmbed waits for a single permit for the whole batch, then delegates.
func (r *RateLimitedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if be, ok := r.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, r.inner, texts)
}

func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	if r.bucket == nil {
		return nil
	}
	if err := r.bucket.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		}
		return fmt.Errorf("rate limit wait: %w: %w", domain.ErrRateLimited, err)
	}
	return nil
}
