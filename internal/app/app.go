// Package app wires the storage and embedding stacks shared by the API
// server and the ingest CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfinder/internal/config"
	dbRedis "github.com/kailas-cloud/trialfinder/internal/db/redis"
	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/metrics"
	"github.com/kailas-cloud/trialfinder/internal/repository/embcache"
	studyrepo "github.com/kailas-cloud/trialfinder/internal/repository/study"
	openaiEmb "github.com/kailas-cloud/trialfinder/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/trialfinder/internal/usecase/embedding"
)

// OpenStore connects to Redis and blocks until it answers a ping.
func OpenStore(ctx context.Context, cfg *config.DatabaseConfig, clientName string) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:      cfg.Addrs,
		Username:   cfg.Username,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	return store, nil
}

// NewStudyRepo creates the study repository with the configured key layout.
func NewStudyRepo(store *dbRedis.Store, cfg *config.Config) *studyrepo.Repo {
	return studyrepo.New(store, studyrepo.Options{
		KeyPrefix: cfg.Storage.KeyPrefix,
		VectorDim: cfg.Embedding.Dimensions,
		HNSW: studyrepo.HNSWConfig{
			M:           cfg.Database.HNSWM,
			EFConstruct: cfg.Database.HNSWEFConstruct,
		},
	})
}

// Embedding is the assembled embedder chain. Both fields are nil when no
// provider is configured.
type Embedding struct {
	Embedder domain.Embedder
	Health   domain.HealthChecker
}

// BuildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func BuildEmbedder(cfg *config.Config, store *dbRedis.Store, logger *zap.Logger) Embedding {
	ec := cfg.Embedding
	if !ec.Enabled() {
		logger.Warn("Embedding provider not configured, semantic search and embedding disabled")
		return Embedding{}
	}

	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Provider:   ec.Provider,
		Timeout:    time.Duration(ec.TimeoutSec) * time.Second,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, embcache.Options{
			KeyPrefix: cfg.Storage.KeyPrefix,
			TTL:       ec.CacheTTL(),
		}, metrics.EmbeddingCacheTotal, logger)
	}

	// Rate limited + instrumented. A nil interface, not a typed nil pointer,
	// when the limiter is off.
	var limiter embeddinguc.Limiter
	if ec.RateLimit.MaxCalls > 0 {
		limiter = embeddinguc.NewRateLimiter(ec.RateLimit.MaxCalls, time.Duration(ec.RateLimit.WindowSec)*time.Second)
	}
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, limiter, logger)

	logger.Info("Embedder created",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.Int("dimensions", ec.Dimensions),
		zap.Int("rate_limit", ec.RateLimit.MaxCalls),
	)
	return Embedding{Embedder: embedder, Health: base}
}
