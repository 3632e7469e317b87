package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
	"github.com/kailas-cloud/trialfinder/internal/metrics"
)

// BackfillOptions configures a Backfiller.
type BackfillOptions struct {
	BatchSize  int           // studies per embedding request
	DryRun     bool          // count only, embed nothing
	MaxRetries int           // extra attempts per failed batch
	RetryDelay time.Duration // wait before retrying a failed batch
	BatchDelay time.Duration // pause between batches
}

// DefaultBackfillOptions returns the settings used by the ingest CLI.
func DefaultBackfillOptions() BackfillOptions {
	return BackfillOptions{
		BatchSize:  defaultBatchSize,
		MaxRetries: 3,
		RetryDelay: 10 * time.Second,
		BatchDelay: time.Second,
	}
}

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	Pending  int // studies lacking a vector when the run started
	Batches  int
	Embedded int
	Failed   int
}

// VerifyReport is a snapshot of embedding coverage.
type VerifyReport struct {
	Published        int
	WithoutEmbedding int
}

// Backfiller embeds stored studies that have no vector yet.
type Backfiller struct {
	repo     Repository
	embedder domain.Embedder
	metrics  *metrics.IngestMetrics
	logger   *zap.Logger
	opts     BackfillOptions
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(
	repo Repository, embedder domain.Embedder,
	m *metrics.IngestMetrics, logger *zap.Logger, opts BackfillOptions,
) *Backfiller {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if m == nil {
		m = metrics.NewIngestMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{
		repo:     repo,
		embedder: embedder,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		sleep:    sleepCtx,
	}
}

// Run walks studies without a vector in id order and embeds them batch by
// batch. A batch that still fails after its retries is counted and skipped,
// so one bad batch never stalls the rest.
func (b *Backfiller) Run(ctx context.Context) (BackfillReport, error) {
	pending, err := b.repo.CountWithoutEmbedding(ctx)
	if err != nil {
		return BackfillReport{}, err
	}
	b.metrics.PendingEmbedding.Set(float64(pending))
	rep := BackfillReport{Pending: pending}

	b.logger.Info("Backfill starting",
		zap.Int("pending", pending),
		zap.Int("batch_size", b.opts.BatchSize),
		zap.Bool("dry_run", b.opts.DryRun),
	)
	if b.opts.DryRun || pending == 0 {
		return rep, nil
	}

	var afterID int64
	for {
		studies, err := b.repo.ListWithoutEmbedding(ctx, afterID, b.opts.BatchSize)
		if err != nil {
			return rep, err
		}
		if len(studies) == 0 {
			break
		}
		afterID = studies[len(studies)-1].ID

		if rep.Batches > 0 && b.opts.BatchDelay > 0 {
			if err := b.sleep(ctx, b.opts.BatchDelay); err != nil {
				return rep, err
			}
		}
		rep.Batches++

		studyIDs := make([]int64, len(studies))
		texts := make([]string, len(studies))
		for i := range studies {
			studyIDs[i] = studies[i].ID
			texts[i] = trial.SearchText(&studies[i])
		}

		start := time.Now()
		stored, err := b.embedWithRetry(ctx, studyIDs, texts)
		b.metrics.BatchDuration.WithLabelValues("backfill").Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failed += len(studies)
			b.metrics.EmbeddedTotal.WithLabelValues("failed").Add(float64(len(studies)))
			b.logger.Error("Backfill batch failed",
				zap.Int("batch", rep.Batches),
				zap.Int64("last_id", afterID),
				zap.Error(err),
			)
			continue
		}

		rep.Embedded += stored
		rep.Failed += len(studies) - stored
		b.metrics.EmbeddedTotal.WithLabelValues("success").Add(float64(stored))
		b.logger.Info("Backfill batch stored",
			zap.Int("batch", rep.Batches),
			zap.Int("embedded", rep.Embedded),
			zap.Int("pending", pending),
		)
	}

	b.metrics.PendingEmbedding.Set(float64(max(pending-rep.Embedded, 0)))
	return rep, nil
}

func (b *Backfiller) embedWithRetry(ctx context.Context, studyIDs []int64, texts []string) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			b.logger.Warn("Retrying embedding batch",
				zap.Int("attempt", attempt),
				zap.Duration("delay", b.opts.RetryDelay),
				zap.Error(lastErr),
			)
			if err := b.sleep(ctx, b.opts.RetryDelay); err != nil {
				return 0, err
			}
		}
		stored, err := embedAndStore(ctx, b.embedder, b.repo, studyIDs, texts)
		if err == nil {
			return stored, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("after %d retries: %w", b.opts.MaxRetries, lastErr)
}

// Verify reports how many published studies exist and how many still lack
// a vector.
func (b *Backfiller) Verify(ctx context.Context) (VerifyReport, error) {
	published, err := b.repo.CountPublished(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	missing, err := b.repo.CountWithoutEmbedding(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	b.metrics.PendingEmbedding.Set(float64(missing))
	return VerifyReport{Published: published, WithoutEmbedding: missing}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
