package chunk

import "fmt"

// Embedded pairs a chunk with its embedding vector, ready for indexing.
type Embedded struct {
	chunk  Chunk
	vector []float32
}

// NewEmbedded validates and creates an Embedded chunk.
func NewEmbedded(c Chunk, vector []float32) (Embedded, error) {
	if len(vector) == 0 {
		return Embedded{}, fmt.Errorf("embedding vector is required")
	}
	return Embedded{chunk: c, vector: vector}, nil
}

// Chunk returns the underlying chunk.
func (e *Embedded) Chunk() Chunk { return e.chunk }

// Vector returns the embedding vector.
func (e *Embedded) Vector() []float32 { return e.vector }
