package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/geo"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query text length in bytes.
	MaxQueryLength = 4096
	DefaultPage    = 1
	DefaultLimit   = 10
	MaxLimit       = 100
)

// Request is a validated search query.
type Request struct {
	zip     string
	include []string
	exclude []string
	query   string
	page    int
	limit   int
	near    *geo.Point
}

// New validates search parameters. Callers substitute DefaultPage and
// DefaultLimit for absent values; explicit out-of-range values are rejected.
// Condition tags are normalized and blank tags dropped, order preserved.
func New(
	zip string,
	include, exclude []string,
	query string,
	page, limit int,
	near *geo.Point,
) (Request, error) {
	if page < 1 {
		return Request{}, fmt.Errorf("%w: page must be >= 1, got %d", domain.ErrInvalidRequest, page)
	}
	if limit < 1 || limit > MaxLimit {
		return Request{}, fmt.Errorf("%w: limit must be between 1 and %d, got %d",
			domain.ErrInvalidRequest, MaxLimit, limit)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if near != nil && !near.Valid() {
		return Request{}, fmt.Errorf("%w: near must have lat in [-90,90] and lon in [-180,180]",
			domain.ErrInvalidRequest)
	}

	return Request{
		zip:     strings.TrimSpace(zip),
		include: normalizeTags(include),
		exclude: normalizeTags(exclude),
		query:   query,
		page:    page,
		limit:   limit,
		near:    near,
	}, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if n := trial.NormalizeText(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ZIP returns the trimmed postal code, empty when absent.
func (r *Request) ZIP() string { return r.zip }

// Include returns the normalized include tags in request order.
func (r *Request) Include() []string { return r.include }

// Exclude returns the normalized exclude tags in request order.
func (r *Request) Exclude() []string { return r.exclude }

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// NormalizedQuery returns the lowercased, trimmed query text.
func (r *Request) NormalizedQuery() string { return trial.NormalizeText(r.query) }

// HasQuery reports whether the query has non-whitespace content.
func (r *Request) HasQuery() bool { return r.NormalizedQuery() != "" }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// Limit returns the page size.
func (r *Request) Limit() int { return r.limit }

// Near returns the proximity reference point, nil when absent.
func (r *Request) Near() *geo.Point { return r.near }
