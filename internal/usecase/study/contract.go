package study

import (
	"context"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// Repository is the storage contract for studies.
type Repository interface {
	Upsert(ctx context.Context, s *trial.Study) (created bool, err error)
	Get(ctx context.Context, id int64) (trial.Study, error)
	SetEmbedding(ctx context.Context, id int64, vector []float32) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
