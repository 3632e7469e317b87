package study

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kailas-cloud/trialfinder/internal/db"
	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// store is the consumer interface for studies (ISP).
//
//nolint:interfacebloat // study repo needs hash, counter, index and search operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// listPageSize bounds a single FT.SEARCH page when scanning all studies.
const listPageSize = 500

// Options configures key layout and the vector index.
type Options struct {
	KeyPrefix string
	VectorDim int
	HNSW      HNSWConfig
}

// Repo stores studies as Redis hashes behind an FT index.
// It implements the search engine's RecordStore.
type Repo struct {
	store     store
	prefix    string
	vectorDim int
	hnsw      HNSWConfig
	now       func() time.Time
}

// New creates a study repository.
func New(s store, opts Options) *Repo {
	r := &Repo{
		store:     s,
		prefix:    opts.KeyPrefix,
		vectorDim: opts.VectorDim,
		hnsw:      HNSWConfig{M: 16, EFConstruct: 200},
		now:       time.Now,
	}
	if opts.HNSW.M > 0 {
		r.hnsw.M = opts.HNSW.M
	}
	if opts.HNSW.EFConstruct > 0 {
		r.hnsw.EFConstruct = opts.HNSW.EFConstruct
	}
	return r
}

// EnsureIndex creates the study index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	name := r.indexName()
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(name, r.studyPrefix(), r.vectorDim, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// DropIndex removes the study index. Stored hashes are kept, so a following
// EnsureIndex re-indexes them.
func (r *Repo) DropIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// Upsert writes s, matching existing records by (source, source_id). New
// studies get a fresh id; updates keep the stored publication flag, plain
// title and embedding. s is normalized in place and receives its id.
// Returns true when a new record was created.
func (r *Repo) Upsert(ctx context.Context, s *trial.Study) (bool, error) {
	if err := s.Prepare(); err != nil {
		return false, err
	}

	id, created, err := r.resolveID(ctx, s)
	if err != nil {
		return false, err
	}
	s.ID = id
	s.UpdatedAt = r.now().UTC().Truncate(time.Second)

	fields, err := contentFields(s)
	if err != nil {
		return false, err
	}
	if created {
		fields[fieldPublished] = boolTag(s.Published)
		fields[fieldHasEmbedding] = tagFalse
		fields[fieldPlainTitle] = s.AIPlainTitle
		s.HasEmbedding = false
	}

	key := r.studyKey(id)
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return false, fmt.Errorf("hset %s: %w", key, err)
	}
	return created, nil
}

// resolveID returns the id already mapped to the study's source key or
// allocates a new one.
func (r *Repo) resolveID(ctx context.Context, s *trial.Study) (int64, bool, error) {
	if s.SourceKey() == "" {
		id, err := r.nextID(ctx)
		return id, true, err
	}

	mapKey := r.sourceKey(s)
	if id, ok, err := r.lookupSource(ctx, mapKey); err != nil || ok {
		return id, false, err
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return 0, false, err
	}
	stored, err := r.store.SetNX(ctx, mapKey, []byte(strconv.FormatInt(id, 10)))
	if err != nil {
		return 0, false, fmt.Errorf("map %s: %w", mapKey, err)
	}
	if stored {
		return id, true, nil
	}

	// A concurrent writer mapped the source first; the allocated id is dropped.
	existing, ok, err := r.lookupSource(ctx, mapKey)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, fmt.Errorf("source mapping %s vanished", mapKey)
	}
	return existing, false, nil
}

func (r *Repo) lookupSource(ctx context.Context, mapKey string) (int64, bool, error) {
	raw, err := r.store.Get(ctx, mapKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get %s: %w", mapKey, err)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse mapped id %q: %w", raw, err)
	}
	return id, true, nil
}

func (r *Repo) nextID(ctx context.Context) (int64, error) {
	id, err := r.store.IncrBy(ctx, r.seqKey(), 1)
	if err != nil {
		return 0, fmt.Errorf("allocate study id: %w", err)
	}
	return id, nil
}

// Get returns a study by id regardless of publication state.
func (r *Repo) Get(ctx context.Context, id int64) (trial.Study, error) {
	key := r.studyKey(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return trial.Study{}, domain.ErrNotFound
		}
		return trial.Study{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	s, err := studyFromHash(m)
	if err != nil {
		return trial.Study{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return s, nil
}

// ListPublished returns every published study ordered by id.
func (r *Repo) ListPublished(ctx context.Context) ([]trial.Study, error) {
	return r.listAll(ctx, publishedFilter())
}

// CountPublished returns the number of published studies.
func (r *Repo) CountPublished(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), publishedFilter())
	if err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	return n, nil
}

// TopKByVectorDistance returns up to k published studies nearest to vector,
// ascending by cosine distance.
func (r *Repo) TopKByVectorDistance(ctx context.Context, vector []float32, k int) ([]trial.Neighbor, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Filter:       publishedFilter(),
		Field:        vectorAlias,
		Vector:       vector,
		K:            k,
		ReturnFields: searchFields,
		RawScores:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	if sr == nil {
		return nil, nil
	}

	out := make([]trial.Neighbor, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		s, err := studyFromHash(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, trial.Neighbor{Study: s, Distance: e.Score})
	}
	return out, nil
}

// TopKByTextSimilarity returns up to k published studies whose search text
// fuzzily matches query, best first. Queries without letters or digits match
// nothing.
func (r *Repo) TopKByTextSimilarity(ctx context.Context, query string, k int) ([]trial.Study, error) {
	terms := textTerms(query)
	if terms == "" || !r.store.SupportsTextSearch(ctx) {
		return nil, nil
	}

	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    r.indexName(),
		Query:        terms,
		Field:        fieldSearchText,
		Filter:       publishedFilter(),
		Fuzzy:        true,
		TopK:         k,
		ReturnFields: searchFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search text: %w", err)
	}
	return decodeEntries(sr)
}

// SetEmbedding stores the vector for one study and marks it embedded.
func (r *Repo) SetEmbedding(ctx context.Context, id int64, vector []float32) error {
	key := r.studyKey(id)
	if err := r.store.HSet(ctx, key, embeddingFields(vector)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// SetEmbeddings stores vectors for several studies in one round-trip.
func (r *Repo) SetEmbeddings(ctx context.Context, vectors map[int64][]float32) error {
	items := make([]db.HashSetItem, 0, len(vectors))
	for id, v := range vectors {
		items = append(items, db.HashSetItem{Key: r.studyKey(id), Fields: embeddingFields(v)})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	return nil
}

// ListWithoutEmbedding returns up to limit studies lacking a vector, ordered by id,
// starting after afterID.
func (r *Repo) ListWithoutEmbedding(ctx context.Context, afterID int64, limit int) ([]trial.Study, error) {
	query := db.TagFilter(fieldHasEmbedding, tagFalse) +
		" @" + fieldID + ":[(" + strconv.FormatInt(afterID, 10) + " +inf]"
	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    r.indexName(),
		Query:        query,
		Limit:        limit,
		SortBy:       fieldID,
		ReturnFields: searchFields,
	})
	if err != nil {
		return nil, fmt.Errorf("list without embedding: %w", err)
	}
	return decodeEntries(sr)
}

// CountWithoutEmbedding returns the number of studies lacking a vector.
func (r *Repo) CountWithoutEmbedding(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), db.TagFilter(fieldHasEmbedding, tagFalse))
	if err != nil {
		return 0, fmt.Errorf("count without embedding: %w", err)
	}
	return n, nil
}

func (r *Repo) listAll(ctx context.Context, query string) ([]trial.Study, error) {
	var out []trial.Study
	for offset := 0; ; offset += listPageSize {
		sr, err := r.store.SearchList(ctx, &db.ListQuery{
			IndexName:    r.indexName(),
			Query:        query,
			Offset:       offset,
			Limit:        listPageSize,
			SortBy:       fieldID,
			ReturnFields: searchFields,
		})
		if err != nil {
			return nil, fmt.Errorf("list studies at %d: %w", offset, err)
		}
		page, err := decodeEntries(sr)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < listPageSize || offset+len(page) >= sr.Total {
			return out, nil
		}
	}
}

func decodeEntries(sr *db.SearchResult) ([]trial.Study, error) {
	if sr == nil {
		return nil, nil
	}
	out := make([]trial.Study, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		s, err := studyFromHash(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func embeddingFields(v []float32) map[string]string {
	return map[string]string{
		fieldEmbedding:    vectorToBytes(v),
		fieldHasEmbedding: tagTrue,
	}
}

func publishedFilter() string {
	return db.TagFilter(fieldPublished, tagTrue)
}

// textTerms keeps only letter and digit runs of query, space separated.
func textTerms(query string) string {
	return strings.Join(strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

func (r *Repo) studyPrefix() string { return r.prefix + "study:" }

func (r *Repo) studyKey(id int64) string {
	return r.studyPrefix() + strconv.FormatInt(id, 10)
}

func (r *Repo) indexName() string { return r.prefix + "study:idx" }

func (r *Repo) seqKey() string { return r.prefix + "study:next_id" }

func (r *Repo) sourceKey(s *trial.Study) string {
	return r.prefix + "source:" + s.SourceKey()
}
