package ctgov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// DefaultBaseURL is the ClinicalTrials.gov API v2 root.
const DefaultBaseURL = "https://clinicaltrials.gov/api/v2"

// MaxPageSize is the largest page the API serves.
const MaxPageSize = 1000

// StatusRecruiting filters studies that are currently enrolling.
const StatusRecruiting = "RECRUITING"

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client reads studies from the ClinicalTrials.gov API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a ClinicalTrials.gov client.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Query selects studies to fetch.
type Query struct {
	Condition string
	// Status filters by overall status, e.g. StatusRecruiting. Empty fetches all.
	Status    string
	PageSize  int
	PageToken string
}

// Page is one API response page.
type Page struct {
	Studies       []json.RawMessage `json:"studies"`
	NextPageToken string            `json:"nextPageToken"`
}

// FetchPage fetches a single page of raw studies.
func (c *Client) FetchPage(ctx context.Context, q Query) (Page, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("pageSize", strconv.Itoa(clampPageSize(q.PageSize)))
	if q.Condition != "" {
		params.Set("query.cond", q.Condition)
	}
	if q.Status != "" {
		params.Set("filter.overallStatus", q.Status)
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/studies?"+params.Encode(), http.NoBody)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch studies: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("fetch studies: HTTP %d: %s", resp.StatusCode, body)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode studies page: %w", err)
	}
	return page, nil
}

// Studies fetches up to maxPages pages for q and passes each page,
// normalized, to fn. Records that fail normalization are logged and skipped.
// Stops at the first error returned by fn.
func (c *Client) Studies(ctx context.Context, q Query, maxPages int, fn func([]trial.Study) error) error {
	if maxPages <= 0 {
		maxPages = 1
	}

	for fetched := 0; fetched < maxPages; fetched++ {
		page, err := c.FetchPage(ctx, q)
		if err != nil {
			return fmt.Errorf("page %d for %q: %w", fetched+1, q.Condition, err)
		}

		studies := make([]trial.Study, 0, len(page.Studies))
		for _, raw := range page.Studies {
			s, err := Normalize(raw)
			if err != nil {
				c.logger.Warn("Skipping study", zap.String("condition", q.Condition), zap.Error(err))
				continue
			}
			studies = append(studies, s)
		}

		c.logger.Info("Fetched studies page",
			zap.String("condition", q.Condition),
			zap.Int("page", fetched+1),
			zap.Int("studies", len(studies)),
		)

		if err := fn(studies); err != nil {
			return err
		}

		if page.NextPageToken == "" {
			return nil
		}
		q.PageToken = page.NextPageToken
	}
	return nil
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return 100
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}
