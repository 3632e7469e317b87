package study

import (
	"github.com/kailas-cloud/trialfinder/internal/db"
)

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// vectorAlias is the name KNN queries use for the embedding field.
const vectorAlias = "vector"

// buildIndex defines the FT index over study hashes. The embedding is stored
// in the "embedding" hash field and queried as @vector.
func buildIndex(name, prefix string, vectorDim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(name).
		Prefix(prefix).
		NumericSortable(fieldID).
		Tag(fieldPublished).
		Tag(fieldHasEmbedding).
		Tag(fieldSource).
		TagWithOpts(fieldConditions, tagSeparator, false).
		TagWithOpts(fieldSiteZIPs, tagSeparator, true).
		Text(fieldSearchText).
		VectorHNSW(fieldEmbedding, vectorAlias, vectorDim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
}
