package retrieval

import "github.com/kailas-cloud/ragdex/internal/domain/chunk"

// RetrievedChunk is a single retrieval hit: a chunk with its similarity score.
// Scores are comparable only within one query against one index.
type RetrievedChunk struct {
	chunk chunk.Chunk
	score float64
}

// NewRetrievedChunk creates a retrieval hit.
func NewRetrievedChunk(c chunk.Chunk, score float64) RetrievedChunk {
	return RetrievedChunk{chunk: c, score: score}
}

// Chunk returns the retrieved chunk.
func (r *RetrievedChunk) Chunk() chunk.Chunk { return r.chunk }

// Score returns the similarity score (higher is more relevant).
func (r *RetrievedChunk) Score() float64 { return r.score }

// Result is an ordered retrieval result set, descending by score.
type Result struct {
	chunks    []RetrievedChunk
	requested int
}

// NewResult creates a retrieval result set.
func NewResult(chunks []RetrievedChunk, requested int) Result {
	return Result{chunks: chunks, requested: requested}
}

// Chunks returns the hits in rank order.
func (r *Result) Chunks() []RetrievedChunk { return r.chunks }

// Requested returns the top_k the caller asked for.
func (r *Result) Requested() int { return r.requested }

// FewerThanRequested reports whether the index held fewer matches than
// requested. Not an error; callers may want to warn.
func (r *Result) FewerThanRequested() bool { return len(r.chunks) < r.requested }
