package ingest

import (
	"context"

	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// Source streams normalized studies for one condition, a page at a time.
type Source interface {
	Studies(ctx context.Context, condition string, fn func([]trial.Study) error) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, condition string, fn func([]trial.Study) error) error

// Studies calls f.
func (f SourceFunc) Studies(ctx context.Context, condition string, fn func([]trial.Study) error) error {
	return f(ctx, condition, fn)
}

// Repository is the storage contract for ingestion and backfill.
type Repository interface {
	Upsert(ctx context.Context, s *trial.Study) (created bool, err error)
	SetEmbeddings(ctx context.Context, vectors map[int64][]float32) error
	ListWithoutEmbedding(ctx context.Context, afterID int64, limit int) ([]trial.Study, error)
	CountWithoutEmbedding(ctx context.Context) (int, error)
	CountPublished(ctx context.Context) (int, error)
}
