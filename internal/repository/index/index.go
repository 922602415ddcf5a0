package index

import (
	"github.com/kailas-cloud/ragdex/internal/db"
	domidx "github.com/kailas-cloud/ragdex/internal/domain/index"
)

// buildIndex creates the FT.CREATE definition for an index's chunk records.
// The schema is fixed: a vector field for KNN, sequence_index for ordering
// tie-breaks, source for tag filtering. Chunk text lives in the hash but is
// not indexed; it is returned from the hash alongside search hits.
func buildIndex(prefix string, idx domidx.Index, hnsw HNSWConfig) *db.IndexDefinition {
	vectorField := db.IndexField{
		Name:           "vector",
		Type:           db.IndexFieldVector,
		VectorDim:      idx.VectorDim(),
		VectorDistance: distanceMetric(idx.DistanceMetric()),
	}

	if idx.VectorAlgorithm() == domidx.AlgorithmHNSW {
		vectorField.VectorAlgo = db.VectorHNSW
		vectorField.VectorM = hnsw.M
		vectorField.VectorEFConstruct = hnsw.EFConstruct
	} else {
		vectorField.VectorAlgo = db.VectorFlat
	}

	return &db.IndexDefinition{
		Name:     searchIndexName(prefix, idx.Name()),
		Prefixes: []string{chunkPrefix(prefix, idx.Name())},
		Fields: []db.IndexField{
			{Name: "sequence_index", Type: db.IndexFieldNumeric},
			{Name: "source", Type: db.IndexFieldTag},
			vectorField,
		},
	}
}

func distanceMetric(m domidx.Metric) db.DistanceMetric {
	switch m {
	case domidx.MetricL2:
		return db.DistanceL2
	case domidx.MetricIP:
		return db.DistanceIP
	default:
		return db.DistanceCosine
	}
}
