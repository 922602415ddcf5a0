package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IDFormat is the deterministic chunk id pattern. Ids derive from the
// sequence index alone, so re-chunking the same document with the same
// parameters reproduces identical ids and re-indexing stays idempotent.
const IDFormat = "chunk_%04d"

// Chunk is a bounded, addressable fragment of a source document
// (immutable value object).
type Chunk struct {
	id       string
	text     string
	seqIndex int
	length   int
}

// New validates and creates a Chunk. The id is derived from seqIndex.
// Text must be non-empty after trimming.
func New(seqIndex int, text string) (Chunk, error) {
	if seqIndex < 0 {
		return Chunk{}, fmt.Errorf("sequence index must be non-negative")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Chunk{}, fmt.Errorf("chunk text is required")
	}
	return Chunk{
		id:       fmt.Sprintf(IDFormat, seqIndex),
		text:     trimmed,
		seqIndex: seqIndex,
		length:   utf8.RuneCountInString(trimmed),
	}, nil
}

// Reconstruct creates a Chunk without validation (storage hydration).
func Reconstruct(id, text string, seqIndex, length int) Chunk {
	return Chunk{id: id, text: text, seqIndex: seqIndex, length: length}
}

// ID returns the chunk identifier.
func (c *Chunk) ID() string { return c.id }

// Text returns the chunk text.
func (c *Chunk) Text() string { return c.text }

// SequenceIndex returns the zero-based position within the source document.
func (c *Chunk) SequenceIndex() int { return c.seqIndex }

// Length returns the chunk text length in characters.
func (c *Chunk) Length() int { return c.length }
