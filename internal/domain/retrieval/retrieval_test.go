package retrieval

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

func TestNewQuery_Valid(t *testing.T) {
	q, err := NewQuery("what is chunking", 3, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Text() != "what is chunking" {
		t.Errorf("Text() = %q", q.Text())
	}
	if q.TopK() != 3 {
		t.Errorf("TopK() = %d", q.TopK())
	}
}

func TestNewQuery_EmptyText(t *testing.T) {
	if _, err := NewQuery("", 3, Filter{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestNewQuery_TopKTooSmall(t *testing.T) {
	for _, k := range []int{0, -1} {
		if _, err := NewQuery("q", k, Filter{}); err == nil {
			t.Errorf("expected error for top_k=%d", k)
		}
	}
}

func TestNewQuery_TopKTooLarge(t *testing.T) {
	if _, err := NewQuery("q", MaxTopK+1, Filter{}); err == nil {
		t.Fatal("expected error for top_k over max")
	}
}

func TestNewQuery_TooLong(t *testing.T) {
	if _, err := NewQuery(strings.Repeat("q", MaxQueryLength+1), 3, Filter{}); err == nil {
		t.Fatal("expected error for overlong query")
	}
}

func TestNewMatch_Validation(t *testing.T) {
	if _, err := NewMatch("", "v"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewMatch("k", ""); err == nil {
		t.Error("expected error for empty value")
	}
	m, err := NewMatch("source", "cv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Key() != "source" || m.Value() != "cv" {
		t.Errorf("match = %q=%q", m.Key(), m.Value())
	}
}

func TestNewFilter_TooManyConditions(t *testing.T) {
	matches := make([]Match, MaxFilterConditions+1)
	for i := range matches {
		matches[i], _ = NewMatch("k", "v")
	}
	if _, err := NewFilter(matches...); err == nil {
		t.Fatal("expected error for too many conditions")
	}
}

func TestResult_FewerThanRequested(t *testing.T) {
	c, _ := chunk.New(0, "only one")
	r := NewResult([]RetrievedChunk{NewRetrievedChunk(c, 0.9)}, 3)

	if !r.FewerThanRequested() {
		t.Error("1 of 3 should report fewer than requested")
	}

	full := NewResult([]RetrievedChunk{
		NewRetrievedChunk(c, 0.9),
		NewRetrievedChunk(c, 0.8),
		NewRetrievedChunk(c, 0.7),
	}, 3)
	if full.FewerThanRequested() {
		t.Error("3 of 3 should not report fewer than requested")
	}
}
