package retrieval

import "fmt"

// MaxFilterConditions is the maximum number of conditions per filter.
const MaxFilterConditions = 32

// Match is an exact tag match condition.
type Match struct {
	key   string
	value string
}

// NewMatch creates an exact tag match condition.
func NewMatch(key, value string) (Match, error) {
	if key == "" {
		return Match{}, fmt.Errorf("filter key is required")
	}
	if value == "" {
		return Match{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Match{key: key, value: value}, nil
}

// Key returns the field name.
func (m Match) Key() string { return m.key }

// Value returns the exact match value.
func (m Match) Value() string { return m.value }

// Filter is an optional metadata predicate applied before ranking.
// Conditions combine with AND semantics.
type Filter struct {
	matches []Match
}

// NewFilter validates and creates a Filter.
func NewFilter(matches ...Match) (Filter, error) {
	if len(matches) > MaxFilterConditions {
		return Filter{}, fmt.Errorf("too many filter conditions (max %d)", MaxFilterConditions)
	}
	return Filter{matches: matches}, nil
}

// Matches returns the match conditions.
func (f Filter) Matches() []Match { return f.matches }

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool { return len(f.matches) == 0 }
