package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/search/mode"
	"github.com/kailas-cloud/trialfinder/internal/domain/search/request"
	"github.com/kailas-cloud/trialfinder/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/trialfinder/internal/logger"
	"github.com/kailas-cloud/trialfinder/internal/metrics"
)

// Candidate caps for hybrid retrieval.
const (
	DefaultVectorCandidates = 150
	DefaultTextCandidates   = 50
)

// Fallback reasons reported when hybrid retrieval degrades to lexical.
const (
	fallbackRateLimited    = "rate_limited"
	fallbackProviderError  = "provider_error"
	fallbackEmptyEmbedding = "empty_embedding"
	fallbackOther          = "other"
)

// Service ranks published studies for a search request.
// One pipeline serves both retrieval modes; only candidate acquisition differs.
type Service struct {
	store   RecordStore
	embed   Embedder
	modes   mode.Switch
	vectorK int
	textK   int
	logger  *zap.Logger
}

// New creates a search service. embed may be nil, in which case every
// search is lexical. modes is consulted once per request.
func New(store RecordStore, embed Embedder, modes mode.Switch, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		embed:   embed,
		modes:   modes,
		vectorK: DefaultVectorCandidates,
		textK:   DefaultTextCandidates,
		logger:  logger,
	}
}

// WithCandidateLimits overrides the hybrid candidate caps. Non-positive values keep the default.
func (s *Service) WithCandidateLimits(vectorK, textK int) *Service {
	if vectorK > 0 {
		s.vectorK = vectorK
	}
	if textK > 0 {
		s.textK = textK
	}
	return s
}

// Search selects candidates, filters, scores, ranks and paginates them.
// Store failures are returned; embedding failures degrade to lexical retrieval.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Response, error) {
	start := time.Now()

	src := s.selectSource(ctx, req)
	candidates, err := src.fetch(ctx)
	if err != nil {
		return result.Response{}, fmt.Errorf("fetch %s candidates: %w", src.mode(), err)
	}
	fetched := len(candidates)

	candidates = filterCandidates(candidates, req.Include(), req.Exclude())

	items := make([]result.Item, len(candidates))
	for i, c := range candidates {
		items[i] = buildItem(c, req)
	}
	rankItems(items)

	resp := result.Response{
		Items: paginate(items, req.Page(), req.Limit()),
		Total: len(items),
		Mode:  src.mode(),
	}

	m := string(resp.Mode)
	metrics.SearchRequestsTotal.WithLabelValues(m).Inc()
	metrics.SearchCandidates.WithLabelValues(m).Observe(float64(fetched))
	metrics.SearchDuration.WithLabelValues(m).Observe(time.Since(start).Seconds())

	logpkg.FromContextOr(ctx, s.logger).Debug("Search completed",
		zap.String("mode", m),
		zap.Int("candidates", fetched),
		zap.Int("matched", resp.Total),
		zap.Int("returned", len(resp.Items)),
		zap.Duration("duration", time.Since(start)),
	)

	return resp, nil
}

// selectSource picks hybrid retrieval when semantic search is enabled, the
// query is non-blank and the query embeds successfully; lexical otherwise.
func (s *Service) selectSource(ctx context.Context, req *request.Request) candidateSource {
	lexical := lexicalSource{store: s.store}

	if s.embed == nil || s.modes == nil || !s.modes.SemanticEnabled() || !req.HasQuery() {
		return lexical
	}

	query := req.NormalizedQuery()
	emb, err := s.embed.Embed(ctx, query)
	if err == nil && len(emb.Embedding) == 0 {
		err = errEmptyEmbedding
	}
	if err != nil {
		reason := fallbackReason(err)
		metrics.SearchFallbacksTotal.WithLabelValues(reason).Inc()
		logpkg.FromContextOr(ctx, s.logger).Error("Semantic retrieval failed, falling back to lexical",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return lexical
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	return hybridSource{
		store:   s.store,
		vector:  emb.Embedding,
		query:   query,
		vectorK: s.vectorK,
		textK:   s.textK,
	}
}

var errEmptyEmbedding = errors.New("empty query embedding")

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return fallbackRateLimited
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return fallbackProviderError
	case errors.Is(err, errEmptyEmbedding):
		return fallbackEmptyEmbedding
	default:
		return fallbackOther
	}
}

func buildItem(c candidate, req *request.Request) result.Item {
	st := c.study
	score, reasons := scoreCandidate(c, req)

	item := result.Item{
		StudyID:          st.ID,
		Title:            st.Title,
		PlainTitle:       st.AIPlainTitle,
		Snippet:          makeSnippet(snippetSource(st)),
		Score:            score,
		Reasons:          reasons,
		RecruitingStatus: st.RecruitingStatus,
		StudyType:        st.StudyType,
		Conditions:       st.Conditions,
		LocationSummary:  locationSummary(st),
	}
	if near := req.Near(); near != nil {
		item.NearestSiteKm = nearestSiteKm(st, *near)
	}
	return item
}
