package study

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
	logpkg "github.com/kailas-cloud/trialfinder/internal/logger"
)

// Service handles study reads and admin writes.
type Service struct {
	repo     Repository
	embedder Embedder
}

// New creates a study service. embedder may be nil, in which case created
// studies are stored without a vector.
func New(repo Repository, embedder Embedder) *Service {
	return &Service{repo: repo, embedder: embedder}
}

// Get returns a published study. Unpublished studies are reported as
// domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (trial.Study, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return trial.Study{}, fmt.Errorf("get study %d: %w", id, err)
	}
	if !st.Published {
		return trial.Study{}, fmt.Errorf("study %d: %w", id, domain.ErrNotFound)
	}
	return st, nil
}

// Create stores a new published study and embeds "title | brief summary".
// A study carrying an already known (source, source_id) updates that record.
// An embedding failure is logged and leaves the study without a vector; it
// stays searchable lexically.
func (s *Service) Create(ctx context.Context, in *trial.Study) (trial.Study, error) {
	in.ID = 0
	in.Published = true

	if _, err := s.repo.Upsert(ctx, in); err != nil {
		return trial.Study{}, fmt.Errorf("create study: %w", err)
	}

	if s.embedder != nil {
		s.embed(ctx, in)
	}

	st, err := s.repo.Get(ctx, in.ID)
	if err != nil {
		return trial.Study{}, fmt.Errorf("reload study %d: %w", in.ID, err)
	}
	return st, nil
}

func (s *Service) embed(ctx context.Context, st *trial.Study) {
	log := logpkg.FromContext(ctx)

	res, err := s.embedder.Embed(ctx, trial.EmbeddingText(st.Title, st.BriefSummary))
	if err != nil {
		log.Error("Study embedding failed", zap.Int64("study_id", st.ID), zap.Error(err))
		return
	}
	if len(res.Embedding) == 0 {
		log.Warn("Study embedding is empty", zap.Int64("study_id", st.ID))
		return
	}
	if err := s.repo.SetEmbedding(ctx, st.ID, res.Embedding); err != nil {
		log.Error("Storing study embedding failed", zap.Int64("study_id", st.ID), zap.Error(err))
	}
}
