package index

import (
	"fmt"
	"strconv"

	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
)

// indexToHash converts domain index metadata to a map for HSET.
func indexToHash(idx domidx.Index) map[string]string {
	return map[string]string{
		"name":       idx.Name(),
		"model":      idx.Model(),
		"vector_dim": strconv.Itoa(idx.VectorDim()),
		"metric":     string(idx.DistanceMetric()),
		"algorithm":  string(idx.VectorAlgorithm()),
		"created_at": strconv.FormatInt(idx.CreatedAt(), 10),
	}
}

// indexFromHash hydrates domain index metadata from an HGETALL result map.
// vector_dim must parse; retrieval uses it to reject mismatched query
// embeddings, so a silent default would mask configuration drift.
func indexFromHash(m map[string]string) (domidx.Index, error) {
	vectorDim, err := strconv.Atoi(m["vector_dim"])
	if err != nil {
		return domidx.Index{}, fmt.Errorf("invalid vector_dim: %w", err)
	}

	createdAt, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return domidx.Index{}, fmt.Errorf("invalid created_at: %w", err)
	}

	return domidx.Reconstruct(
		m["name"],
		m["model"],
		vectorDim,
		domidx.Metric(m["metric"]),
		domidx.Algorithm(m["algorithm"]),
		createdAt,
	), nil
}
