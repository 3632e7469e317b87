package search

import (
	"context"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/search/request"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// --- Mocks ---

type mockStore struct {
	published   []trial.Study
	neighbors   []trial.Neighbor
	textMatches []trial.Study
	listErr     error
	vectorErr   error
	textErr     error

	listCalls   int
	vectorCalls int
	textCalls   int
	lastVectorK int
	lastTextK   int
	lastQuery   string
}

func (m *mockStore) ListPublished(_ context.Context) ([]trial.Study, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	// copy so callers cannot observe each other's slices
	return append([]trial.Study(nil), m.published...), nil
}

func (m *mockStore) TopKByVectorDistance(_ context.Context, _ []float32, k int) ([]trial.Neighbor, error) {
	m.vectorCalls++
	m.lastVectorK = k
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}
	return append([]trial.Neighbor(nil), m.neighbors...), nil
}

func (m *mockStore) TopKByTextSimilarity(_ context.Context, query string, k int) ([]trial.Study, error) {
	m.textCalls++
	m.lastTextK = k
	m.lastQuery = query
	if m.textErr != nil {
		return nil, m.textErr
	}
	return append([]trial.Study(nil), m.textMatches...), nil
}

type mockEmbedder struct {
	vec    []float32
	tokens int
	err    error
	calls  []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls = append(m.calls, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: m.tokens}, nil
}

// --- Fixtures ---

func study(id int64, title string, conditions ...string) trial.Study {
	return trial.Study{
		ID:         id,
		Source:     trial.SourceManual,
		Title:      title,
		Conditions: conditions,
		Published:  true,
	}
}

type reqOpts struct {
	zip     string
	include []string
	exclude []string
	query   string
	page    int
	limit   int
}

func newRequest(o reqOpts) *request.Request {
	if o.page == 0 {
		o.page = request.DefaultPage
	}
	if o.limit == 0 {
		o.limit = request.DefaultLimit
	}
	r, err := request.New(o.zip, o.include, o.exclude, o.query, o.page, o.limit, nil)
	if err != nil {
		panic(err)
	}
	return &r
}
