package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
	"github.com/kailas-cloud/trialfinder/internal/metrics"
)

// DefaultConditions are ingested when no condition is given.
var DefaultConditions = []string{
	"Diabetes",
	"Asthma",
	"Depression",
	"Heart Disease",
	"Arthritis",
	"Cancer",
	"Hypertension",
	"Anxiety",
}

const (
	defaultWorkers   = 8
	defaultBatchSize = 100
)

// Options configures a Pipeline run.
type Options struct {
	Conditions []string // DefaultConditions when empty
	Workers    int      // concurrent upserts
	BatchSize  int      // studies per embedding request
}

// Report summarizes a Pipeline run.
type Report struct {
	Fetched          int
	Created          int
	Updated          int
	Failed           int
	Embedded         int
	EmbedFailed      int
	FailedConditions []string
}

// Pipeline fetches studies per condition, upserts them through a worker
// pool, and embeds newly created studies in batches.
type Pipeline struct {
	source   Source
	repo     Repository
	embedder domain.Embedder
	metrics  *metrics.IngestMetrics
	logger   *zap.Logger
	opts     Options
}

// NewPipeline creates an ingestion pipeline. embedder may be nil, in which
// case studies are stored without vectors and left for backfill.
func NewPipeline(
	source Source, repo Repository, embedder domain.Embedder,
	m *metrics.IngestMetrics, logger *zap.Logger, opts Options,
) *Pipeline {
	if len(opts.Conditions) == 0 {
		opts.Conditions = DefaultConditions
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if m == nil {
		m = metrics.NewIngestMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:   source,
		repo:     repo,
		embedder: embedder,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

type embedJob struct {
	id   int64
	text string
}

// tally is the mutable side of Report shared by pool workers.
type tally struct {
	mu  sync.Mutex
	rep Report
}

func (t *tally) add(fn func(r *Report)) {
	t.mu.Lock()
	fn(&t.rep)
	t.mu.Unlock()
}

// Run ingests every configured condition. A failing study or condition is
// logged and skipped; only cancellation or a pool failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	pool, err := ants.NewPool(p.opts.Workers)
	if err != nil {
		return Report{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var t tally
	jobs := make(chan embedJob, p.opts.BatchSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p.embedStage(gctx, jobs, &t)
		return nil
	})

	g.Go(func() error {
		var wg sync.WaitGroup
		defer close(jobs)
		defer wg.Wait()

		for _, cond := range p.opts.Conditions {
			err := p.source.Studies(gctx, cond, func(page []trial.Study) error {
				p.metrics.PagesTotal.WithLabelValues(cond).Inc()
				t.add(func(r *Report) { r.Fetched += len(page) })

				for i := range page {
					st := page[i]
					wg.Add(1)
					if err := pool.Submit(func() {
						defer wg.Done()
						p.upsert(gctx, &st, jobs, &t)
					}); err != nil {
						wg.Done()
						return fmt.Errorf("submit upsert: %w", err)
					}
				}
				return nil
			})
			if err == nil {
				p.logger.Info("Condition ingested", zap.String("condition", cond))
				continue
			}
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, ants.ErrPoolClosed) {
				return err
			}
			p.logger.Error("Condition ingestion failed", zap.String("condition", cond), zap.Error(err))
			t.add(func(r *Report) { r.FailedConditions = append(r.FailedConditions, cond) })
		}
		return nil
	})

	err = g.Wait()
	return t.rep, err
}

func (p *Pipeline) upsert(ctx context.Context, st *trial.Study, jobs chan<- embedJob, t *tally) {
	if ctx.Err() != nil {
		return
	}
	st.Published = true

	created, err := p.repo.Upsert(ctx, st)
	if err != nil {
		p.metrics.StudiesTotal.WithLabelValues("failed").Inc()
		t.add(func(r *Report) { r.Failed++ })
		p.logger.Warn("Study upsert failed",
			zap.String("source_id", st.SourceID),
			zap.Error(err),
		)
		return
	}

	if !created {
		p.metrics.StudiesTotal.WithLabelValues("updated").Inc()
		t.add(func(r *Report) { r.Updated++ })
		p.logger.Debug("Study updated", zap.String("source_id", st.SourceID), zap.Int64("study_id", st.ID))
		return
	}

	p.metrics.StudiesTotal.WithLabelValues("created").Inc()
	t.add(func(r *Report) { r.Created++ })
	p.logger.Debug("Study created", zap.String("source_id", st.SourceID), zap.Int64("study_id", st.ID))

	if p.embedder == nil {
		return
	}
	select {
	case jobs <- embedJob{id: st.ID, text: trial.EmbeddingText(st.Title, st.BriefSummary)}:
	case <-ctx.Done():
	}
}

// embedStage drains jobs, embedding them BatchSize at a time. It returns
// once jobs is closed and the last batch is flushed.
func (p *Pipeline) embedStage(ctx context.Context, jobs <-chan embedJob, t *tally) {
	batch := make([]embedJob, 0, p.opts.BatchSize)
	for job := range jobs {
		batch = append(batch, job)
		if len(batch) == p.opts.BatchSize {
			p.embedBatch(ctx, batch, t)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		p.embedBatch(ctx, batch, t)
	}
}

func (p *Pipeline) embedBatch(ctx context.Context, batch []embedJob, t *tally) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	defer func() {
		p.metrics.BatchDuration.WithLabelValues("ingest").Observe(time.Since(start).Seconds())
	}()

	texts := make([]string, len(batch))
	for i, j := range batch {
		texts[i] = j.text
	}

	stored, err := embedAndStore(ctx, p.embedder, p.repo, ids(batch), texts)
	if err != nil {
		p.metrics.EmbeddedTotal.WithLabelValues("failed").Add(float64(len(batch)))
		t.add(func(r *Report) { r.EmbedFailed += len(batch) })
		p.logger.Warn("Embedding batch failed, studies left for backfill",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return
	}
	p.metrics.EmbeddedTotal.WithLabelValues("success").Add(float64(stored))
	t.add(func(r *Report) {
		r.Embedded += stored
		r.EmbedFailed += len(batch) - stored
	})
}

func ids(batch []embedJob) []int64 {
	out := make([]int64, len(batch))
	for i, j := range batch {
		out[i] = j.id
	}
	return out
}

// embedAndStore embeds texts and stores each non-empty vector under the id
// at the same position. Returns the number of vectors stored.
func embedAndStore(
	ctx context.Context, e domain.Embedder, repo Repository, studyIDs []int64, texts []string,
) (int, error) {
	res, err := domain.BatchEmbed(ctx, e, texts)
	if err != nil {
		return 0, err
	}
	if len(res.Embeddings) != len(studyIDs) {
		return 0, fmt.Errorf("got %d embeddings for %d studies: %w",
			len(res.Embeddings), len(studyIDs), domain.ErrEmbeddingProviderError)
	}

	vectors := make(map[int64][]float32, len(studyIDs))
	for i, v := range res.Embeddings {
		if len(v) == 0 {
			continue
		}
		vectors[studyIDs[i]] = v
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	if err := repo.SetEmbeddings(ctx, vectors); err != nil {
		return 0, err
	}
	return len(vectors), nil
}
