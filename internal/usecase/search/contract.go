package search

import (
	"context"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// RecordStore is the read side of the study store used for candidate selection.
type RecordStore interface {
	// ListPublished returns every published study ordered by id.
	ListPublished(ctx context.Context) ([]trial.Study, error)
	// TopKByVectorDistance returns up to k published studies with a vector,
	// ordered by ascending cosine distance.
	TopKByVectorDistance(ctx context.Context, vector []float32, k int) ([]trial.Neighbor, error)
	// TopKByTextSimilarity returns up to k published studies ordered by
	// descending similarity of their indexed text to query.
	TopKByTextSimilarity(ctx context.Context, query string, k int) ([]trial.Study, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
