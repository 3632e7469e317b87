package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfinder/internal/domain"
	"github.com/kailas-cloud/trialfinder/internal/domain/geo"
	"github.com/kailas-cloud/trialfinder/internal/domain/search/request"
	"github.com/kailas-cloud/trialfinder/internal/domain/search/result"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
	logpkg "github.com/kailas-cloud/trialfinder/internal/logger"
	healthuc "github.com/kailas-cloud/trialfinder/internal/usecase/health"
)

// maxBodyBytes caps request bodies; study payloads carry long free text.
const maxBodyBytes = 1 << 20

// SearchService runs ranked study searches.
type SearchService interface {
	Search(ctx context.Context, req *request.Request) (result.Response, error)
}

// StudyService reads and creates studies.
type StudyService interface {
	Get(ctx context.Context, id int64) (trial.Study, error)
	Create(ctx context.Context, s *trial.Study) (trial.Study, error)
}

// HealthService aggregates component health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements ServerInterface.
type Server struct {
	search        SearchService
	studies       StudyService
	health        HealthService
	defaultLimit  int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	search SearchService,
	studies StudyService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:       search,
		studies:      studies,
		health:       health,
		defaultLimit: request.DefaultLimit,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorResponseCodeNotFound),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, ErrorResponseCodeUnauthorized),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorResponseCodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, ErrorResponseCodeEmbeddingProviderError),
		sentinelHandler(domain.ErrStoreUnavailable,
			http.StatusServiceUnavailable, ErrorResponseCodeStoreUnavailable),
	}
	return s
}

// WithDefaultLimit sets the page size used when a search omits limit.
func (s *Server) WithDefaultLimit(limit int) *Server {
	if limit > 0 && limit <= request.MaxLimit {
		s.defaultLimit = limit
	}
	return s
}

// SearchStudies handles POST /search.
func (s *Server) SearchStudies(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var near *geo.Point
	if req.Near != nil {
		near = &geo.Point{Lat: req.Near.Lat, Lon: req.Near.Lon}
	}

	searchReq, err := request.New(
		deref(req.Zip),
		deref(req.ConditionsInclude),
		deref(req.ConditionsExclude),
		deref(req.QueryText),
		derefOr(req.Page, request.DefaultPage),
		derefOr(req.Limit, s.defaultLimit),
		near,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, validationMessage(err))
		return
	}

	s.runSearch(w, r, &searchReq)
}

// SearchStudiesQuery handles GET /search.
func (s *Server) SearchStudiesQuery(w http.ResponseWriter, r *http.Request, params SearchParams) {
	if (params.NearLat == nil) != (params.NearLon == nil) {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed,
			"near_lat and near_lon must be given together")
		return
	}
	var near *geo.Point
	if params.NearLat != nil {
		near = &geo.Point{Lat: *params.NearLat, Lon: *params.NearLon}
	}

	searchReq, err := request.New(
		deref(params.Zip),
		deref(params.ConditionsInclude),
		deref(params.ConditionsExclude),
		deref(params.QueryText),
		derefOr(params.Page, request.DefaultPage),
		derefOr(params.Limit, s.defaultLimit),
		near,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, validationMessage(err))
		return
	}

	s.runSearch(w, r, &searchReq)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req *request.Request) {
	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.Search(ctx, req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]SearchResultItem, len(resp.Items))
	for i := range resp.Items {
		items[i] = searchItemToAPI(&resp.Items[i])
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{
		Items: items,
		Total: resp.Total,
		Mode:  string(resp.Mode),
	})
}

// GetStudy handles GET /studies/{id}.
func (s *Server) GetStudy(w http.ResponseWriter, r *http.Request, id int64) {
	if id < 1 {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "id must be positive")
		return
	}

	st, err := s.studies.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, studyToAPI(&st))
}

// CreateStudy handles POST /admin/studies.
func (s *Server) CreateStudy(w http.ResponseWriter, r *http.Request) {
	var req CreateStudyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	in := studyFromCreate(&req)
	ctx, usage := domain.NewContextWithUsage(r.Context())
	st, err := s.studies.Create(ctx, &in)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	w.Header().Set("Location", fmt.Sprintf("/studies/%d", st.ID))
	writeJSON(w, http.StatusCreated, studyToAPI(&st))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:       string(report.Status),
		Checks:       checks,
		TotalStudies: report.TotalStudies,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// validationMessage returns the text after the ErrInvalidRequest marker.
// Validation messages only name the offending field.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := domain.ErrInvalidRequest.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) {
		return validationMessage(err)
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrUnauthorized,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}

func searchItemToAPI(it *result.Item) SearchResultItem {
	out := SearchResultItem{
		StudyID:          it.StudyID,
		Title:            it.Title,
		Snippet:          it.Snippet,
		Score:            it.Score,
		Reasons:          it.Reasons,
		RecruitingStatus: it.RecruitingStatus,
		StudyType:        it.StudyType,
		Conditions:       it.Conditions,
		NearestSiteKm:    it.NearestSiteKm,
	}
	if out.Reasons == nil {
		out.Reasons = []string{}
	}
	if out.Conditions == nil {
		out.Conditions = []string{}
	}
	if it.PlainTitle != "" {
		pt := it.PlainTitle
		out.PlainTitle = &pt
	}
	if it.LocationSummary != "" {
		ls := it.LocationSummary
		out.LocationSummary = &ls
	}
	return out
}

func studyToAPI(s *trial.Study) StudyResponse {
	return StudyResponse{
		ID:                  s.ID,
		Source:              s.Source,
		SourceID:            s.SourceID,
		Title:               s.Title,
		PlainTitle:          s.AIPlainTitle,
		BriefSummary:        s.BriefSummary,
		DetailedDescription: s.DetailedDescription,
		EligibilityCriteria: s.EligibilityCriteria,
		Description:         s.Description,
		RecruitingStatus:    s.RecruitingStatus,
		StudyType:           s.StudyType,
		Conditions:          nonNil(s.Conditions),
		SiteZips:            nonNil(s.SiteZIPs),
		Locations:           nonNil(s.Locations),
		Interventions:       nonNil(s.Interventions),
		Contacts:            nonNil(s.Contacts),
		HasEmbedding:        s.HasEmbedding,
		UpdatedAt:           s.UpdatedAt,
	}
}

func studyFromCreate(req *CreateStudyRequest) trial.Study {
	return trial.Study{
		Source:              req.Source,
		SourceID:            req.SourceID,
		Title:               req.Title,
		BriefSummary:        req.BriefSummary,
		DetailedDescription: req.DetailedDescription,
		EligibilityCriteria: req.EligibilityCriteria,
		Description:         req.Description,
		RecruitingStatus:    req.RecruitingStatus,
		StudyType:           req.StudyType,
		Conditions:          req.Conditions,
		SiteZIPs:            req.SiteZips,
		Locations:           nonNil(req.Locations),
		Interventions:       nonNil(req.Interventions),
		Contacts:            nonNil(req.Contacts),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func derefOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
