package search

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/trialfinder/internal/domain/search/mode"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// textOnlyDistance is the neutral distance given to studies found only by text similarity.
const textOnlyDistance = 0.5

// candidate is a study under consideration plus its retrieval evidence.
type candidate struct {
	study *trial.Study
	// distance is the cosine distance from the query vector; meaningful only
	// when hasDistance is set (hybrid retrieval).
	distance    float64
	hasDistance bool
}

// candidateSource produces the studies a search ranks.
type candidateSource interface {
	fetch(ctx context.Context) ([]candidate, error)
	mode() mode.Mode
}

// lexicalSource scans every published study.
type lexicalSource struct {
	store RecordStore
}

func (l lexicalSource) mode() mode.Mode { return mode.Lexical }

func (l lexicalSource) fetch(ctx context.Context) ([]candidate, error) {
	studies, err := l.store.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published studies: %w", err)
	}
	out := make([]candidate, len(studies))
	for i := range studies {
		out[i] = candidate{study: &studies[i]}
	}
	return out, nil
}

// hybridSource unions vector nearest neighbours with text-similarity matches.
type hybridSource struct {
	store   RecordStore
	vector  []float32
	query   string
	vectorK int
	textK   int
}

func (h hybridSource) mode() mode.Mode { return mode.Hybrid }

func (h hybridSource) fetch(ctx context.Context) ([]candidate, error) {
	neighbors, err := h.store.TopKByVectorDistance(ctx, h.vector, h.vectorK)
	if err != nil {
		return nil, fmt.Errorf("vector candidates: %w", err)
	}
	textMatches, err := h.store.TopKByTextSimilarity(ctx, h.query, h.textK)
	if err != nil {
		return nil, fmt.Errorf("text candidates: %w", err)
	}
	return unionCandidates(neighbors, textMatches), nil
}

// unionCandidates merges by study id in first-seen order, vector hits first.
// A study present in both lists keeps its vector distance.
func unionCandidates(neighbors []trial.Neighbor, textMatches []trial.Study) []candidate {
	out := make([]candidate, 0, len(neighbors)+len(textMatches))
	seen := make(map[int64]struct{}, cap(out))

	for i := range neighbors {
		n := &neighbors[i]
		if _, dup := seen[n.Study.ID]; dup {
			continue
		}
		seen[n.Study.ID] = struct{}{}
		out = append(out, candidate{study: &n.Study, distance: n.Distance, hasDistance: true})
	}
	for i := range textMatches {
		s := &textMatches[i]
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, candidate{study: s, distance: textOnlyDistance, hasDistance: true})
	}
	return out
}
