package retrieval

import "fmt"

// Query parameter limits.
const (
	// MaxQueryLength is the maximum allowed query text length.
	MaxQueryLength = 4096
	DefaultTopK    = 3
	MaxTopK        = 100
)

// Query is a validated retrieval request.
type Query struct {
	text    string
	topK    int
	filters Filter
}

// NewQuery validates and creates a retrieval Query.
// topK ≤ 0 is a caller error, not a defaulting case: retrieval semantics
// depend on the caller knowing how many chunks it asked for.
func NewQuery(text string, topK int, filters Filter) (Query, error) {
	if text == "" {
		return Query{}, fmt.Errorf("query text is required")
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if topK < 1 {
		return Query{}, fmt.Errorf("top_k must be at least 1, got %d", topK)
	}
	if topK > MaxTopK {
		return Query{}, fmt.Errorf("top_k too large (max %d)", MaxTopK)
	}
	return Query{text: text, topK: topK, filters: filters}, nil
}

// Text returns the query text.
func (q *Query) Text() string { return q.text }

// TopK returns the number of chunks requested.
func (q *Query) TopK() int { return q.topK }

// Filters returns the metadata predicate.
func (q *Query) Filters() Filter { return q.filters }
