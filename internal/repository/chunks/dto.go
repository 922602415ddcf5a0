package chunks

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/kailas-cloud/ragdex/internal/domain/chunk"
)

// buildHashFields converts an embedded chunk into a flat map[string]string for HSET.
// Field names match the search index schema (sequence_index, source, vector).
func buildHashFields(e *chunk.Embedded, source string) map[string]string {
	c := e.Chunk()
	return map[string]string{
		"text":           c.Text(),
		"sequence_index": strconv.Itoa(c.SequenceIndex()),
		"length":         strconv.Itoa(c.Length()),
		"source":         source,
		"vector":         vectorToBytes(e.Vector()),
	}
}

// parseHashFields hydrates a chunk from hash fields, tolerating missing
// numerics so a partially returned record still lists.
func parseHashFields(id string, m map[string]string) chunk.Chunk {
	seq, _ := strconv.Atoi(m["sequence_index"])
	length, err := strconv.Atoi(m["length"])
	if err != nil {
		length = len([]rune(m["text"]))
	}
	return chunk.Reconstruct(id, m["text"], seq, length)
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
