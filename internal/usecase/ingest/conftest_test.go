package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// fakeRepo keeps studies in memory, keyed by source id.
type fakeRepo struct {
	mu         sync.Mutex
	nextID     int64
	bySource   map[string]int64
	studies    map[int64]trial.Study
	vectors    map[int64][]float32
	failUpsert map[string]bool
	setErr     error
	setCalls   int
	listErr    error
	countErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bySource:   make(map[string]int64),
		studies:    make(map[int64]trial.Study),
		vectors:    make(map[int64][]float32),
		failUpsert: make(map[string]bool),
	}
}

func (r *fakeRepo) Upsert(_ context.Context, s *trial.Study) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert[s.SourceID] {
		return false, errors.New("hset failed")
	}
	if id, ok := r.bySource[s.SourceID]; ok {
		s.ID = id
		r.studies[id] = *s
		return false, nil
	}
	r.nextID++
	s.ID = r.nextID
	r.bySource[s.SourceID] = s.ID
	r.studies[s.ID] = *s
	return true, nil
}

func (r *fakeRepo) SetEmbeddings(_ context.Context, vectors map[int64][]float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCalls++
	if r.setErr != nil {
		return r.setErr
	}
	for id, v := range vectors {
		r.vectors[id] = v
	}
	return nil
}

func (r *fakeRepo) ListWithoutEmbedding(_ context.Context, afterID int64, limit int) ([]trial.Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var ids []int64
	for id := range r.studies {
		if _, ok := r.vectors[id]; !ok && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]trial.Study, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.studies[id])
	}
	return out, nil
}

func (r *fakeRepo) CountWithoutEmbedding(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return len(r.studies) - len(r.vectors), nil
}

func (r *fakeRepo) CountPublished(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	n := 0
	for _, s := range r.studies {
		if s.Published {
			n++
		}
	}
	return n, nil
}

// seed stores n published studies without vectors, ids 1..n.
func (r *fakeRepo) seed(n int) {
	for i := 1; i <= n; i++ {
		s := trial.Study{Title: "Study", BriefSummary: "summary", Published: true, SourceID: fmt.Sprintf("NCT%d", i)}
		_, _ = r.Upsert(context.Background(), &s)
	}
}

// fakeEmbedder returns one-element vectors and can fail the first n calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failN   int
	err     error
	empty   bool
	batches [][]string
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

func (e *fakeEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.batches = append(e.batches, append([]string(nil), texts...))
	if e.calls <= e.failN {
		return domain.BatchEmbeddingResult{}, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		if !e.empty {
			out[i] = []float32{float32(len(texts[i]))}
		}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// pagedSource serves fixed pages per condition.
func pagedSource(pages map[string][][]trial.Study, fail map[string]error) SourceFunc {
	return func(_ context.Context, condition string, fn func([]trial.Study) error) error {
		if err := fail[condition]; err != nil {
			return err
		}
		for _, page := range pages[condition] {
			if err := fn(page); err != nil {
				return err
			}
		}
		return nil
	}
}

func ctgovStudy(nct, title string) trial.Study {
	return trial.Study{Source: trial.SourceCTGov, SourceID: nct, Title: title, BriefSummary: "about " + title}
}
