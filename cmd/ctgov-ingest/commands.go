package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfinder/internal/app"
	"github.com/kailas-cloud/trialfinder/internal/config"
	dbRedis "github.com/kailas-cloud/trialfinder/internal/db/redis"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
	logpkg "github.com/kailas-cloud/trialfinder/internal/logger"
	"github.com/kailas-cloud/trialfinder/internal/metrics"
	studyrepo "github.com/kailas-cloud/trialfinder/internal/repository/study"
	"github.com/kailas-cloud/trialfinder/internal/transport/ctgov"
	"github.com/kailas-cloud/trialfinder/internal/usecase/ingest"
)

const defaultRetryDelay = 10 * time.Second

// runtimeDeps is what every subcommand needs once config is loaded.
type runtimeDeps struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *dbRedis.Store
	repo    *studyrepo.Repo
	metrics *metrics.IngestMetrics
	reg     *prometheus.Registry
}

func (d *runtimeDeps) close() {
	d.store.Close()
	_ = d.logger.Sync()
}

func loadConfig(c *cli.Context) (config.Config, string, error) {
	env := c.String("env")
	if path := c.String("config"); path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, env, err
	}
	cfg, err := config.Load(env)
	return cfg, env, err
}

// setup loads config, opens the store and ensures the study index.
func setup(ctx context.Context, c *cli.Context) (*runtimeDeps, error) {
	cfg, env, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger = logger.With(zap.String("command", c.Command.Name))

	store, err := app.OpenStore(ctx, &cfg.Database, "trialfinder-ingest")
	if err != nil {
		return nil, err //nolint:wrapcheck // app wraps with context
	}

	repo := app.NewStudyRepo(store, &cfg)
	if err := repo.EnsureIndex(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure index: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	reg := prometheus.NewRegistry()
	return &runtimeDeps{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		repo:    repo,
		metrics: metrics.NewIngestMetrics(reg),
		reg:     reg,
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func ingestCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	deps, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer deps.close()

	stopMetrics := serveMetrics(deps.cfg.Ingest.MetricsPort, deps.gatherer(), deps.logger)
	defer stopMetrics()

	cfg := &deps.cfg.Ingest
	client := ctgov.NewClient(ctgov.Config{
		BaseURL: cfg.BaseURL,
		Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		Logger:  deps.logger,
	})
	source := newSource(client, queryTemplate(c, cfg), intOr(c.Int("max-pages"), cfg.MaxPages))

	emb := app.Embedding{}
	if !c.Bool("skip-embed") {
		emb = app.BuildEmbedder(&deps.cfg, deps.store, deps.logger)
	}

	pipeline := ingest.NewPipeline(source, deps.repo, emb.Embedder, deps.metrics, deps.logger, ingest.Options{
		Conditions: conditions(c.StringSlice("condition"), cfg.Conditions),
		Workers:    intOr(c.Int("workers"), cfg.Workers),
		BatchSize:  cfg.BatchSize,
	})

	start := time.Now()
	rep, err := pipeline.Run(ctx)
	deps.logger.Info("Ingestion finished",
		zap.Int("fetched", rep.Fetched),
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("failed", rep.Failed),
		zap.Int("embedded", rep.Embedded),
		zap.Int("embed_failed", rep.EmbedFailed),
		zap.Strings("failed_conditions", rep.FailedConditions),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	total, err := deps.repo.CountPublished(ctx)
	if err != nil {
		return fmt.Errorf("count studies: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "fetched=%d created=%d updated=%d failed=%d embedded=%d total_published=%d\n",
		rep.Fetched, rep.Created, rep.Updated, rep.Failed, rep.Embedded, total)
	return nil
}

func backfillCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	deps, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer deps.close()

	opts := backfillOptions(c, &deps.cfg.Ingest)

	var emb app.Embedding
	if !opts.DryRun {
		emb = app.BuildEmbedder(&deps.cfg, deps.store, deps.logger)
		if emb.Embedder == nil {
			return errors.New("backfill needs an embedding provider: set embedding.api_key")
		}
		stopMetrics := serveMetrics(deps.cfg.Ingest.MetricsPort, deps.gatherer(), deps.logger)
		defer stopMetrics()
	}

	b := ingest.NewBackfiller(deps.repo, emb.Embedder, deps.metrics, deps.logger, opts)
	rep, err := b.Run(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	if opts.DryRun {
		fmt.Fprintf(c.App.Writer, "dry run: %d studies need embeddings\n", rep.Pending)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "pending=%d batches=%d embedded=%d failed=%d\n",
		rep.Pending, rep.Batches, rep.Embedded, rep.Failed)
	if rep.Failed > 0 {
		return fmt.Errorf("%d studies could not be embedded", rep.Failed)
	}
	return nil
}

func verifyCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	deps, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer deps.close()

	rep, err := ingest.NewBackfiller(deps.repo, nil, deps.metrics, deps.logger, ingest.BackfillOptions{}).Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	fmt.Fprint(c.App.Writer, formatVerify(rep))
	return nil
}

func reindexCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	deps, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer deps.close()

	if err := deps.repo.DropIndex(ctx); err != nil {
		return err //nolint:wrapcheck // repo wraps with context
	}
	if err := deps.repo.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("recreate index: %w", err)
	}
	deps.logger.Info("Study index recreated")
	fmt.Fprintln(c.App.Writer, "study index recreated")
	return nil
}

// newSource adapts the CT.gov client to ingest.Source. Each condition is
// fetched with tmpl and the condition filled in.
func newSource(client *ctgov.Client, tmpl ctgov.Query, maxPages int) ingest.Source {
	return ingest.SourceFunc(func(ctx context.Context, condition string, fn func([]trial.Study) error) error {
		q := tmpl
		q.Condition = condition
		return client.Studies(ctx, q, maxPages, fn) //nolint:wrapcheck // client wraps with page context
	})
}

func queryTemplate(c *cli.Context, cfg *config.IngestConfig) ctgov.Query {
	q := ctgov.Query{PageSize: intOr(c.Int("page-size"), cfg.PageSize)}
	if c.Bool("recruiting") || cfg.RecruitingOnly {
		q.Status = ctgov.StatusRecruiting
	}
	return q
}

func backfillOptions(c *cli.Context, cfg *config.IngestConfig) ingest.BackfillOptions {
	opts := ingest.DefaultBackfillOptions()
	opts.BatchSize = intOr(c.Int("batch-size"), cfg.BatchSize)
	opts.DryRun = c.Bool("dry-run")
	opts.MaxRetries = c.Int("max-retries")
	opts.RetryDelay = c.Duration("retry-delay")
	return opts
}

func formatVerify(rep ingest.VerifyReport) string {
	coverage := 100.0
	if rep.Published > 0 {
		coverage = float64(rep.Published-rep.WithoutEmbedding) / float64(rep.Published) * 100
	}
	return fmt.Sprintf("published=%d without_embedding=%d coverage=%.1f%%\n",
		rep.Published, rep.WithoutEmbedding, coverage)
}

// conditions prefers flag values, then config, then the built-in list.
func conditions(flagValues, configured []string) []string {
	if len(flagValues) > 0 {
		return flagValues
	}
	if len(configured) > 0 {
		return configured
	}
	return ingest.DefaultConditions
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (d *runtimeDeps) gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{d.reg, prometheus.DefaultGatherer}
}

// serveMetrics exposes g on :port for scraping while a long command runs.
// A zero port disables it. The returned func stops the listener.
func serveMetrics(port int, g prometheus.Gatherer, logger *zap.Logger) func() {
	if port == 0 {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving ingest metrics", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
