package chi

import (
	"time"

	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// ErrorResponseCode is the machine-readable error kind returned to clients.
type ErrorResponseCode string

// Error codes.
const (
	ErrorResponseCodeBadRequest             ErrorResponseCode = "bad_request"
	ErrorResponseCodeValidationFailed       ErrorResponseCode = "validation_failed"
	ErrorResponseCodeNotFound               ErrorResponseCode = "not_found"
	ErrorResponseCodeUnauthorized           ErrorResponseCode = "unauthorized"
	ErrorResponseCodeRateLimited            ErrorResponseCode = "rate_limited"
	ErrorResponseCodeEmbeddingProviderError ErrorResponseCode = "embedding_provider_error"
	ErrorResponseCodeStoreUnavailable       ErrorResponseCode = "store_unavailable"
	ErrorResponseCodeInternalError          ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// NearPoint is a proximity reference point.
type NearPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Zip               *string    `json:"zip,omitempty"`
	ConditionsInclude *[]string  `json:"conditions_include,omitempty"`
	ConditionsExclude *[]string  `json:"conditions_exclude,omitempty"`
	QueryText         *string    `json:"query_text,omitempty"`
	Page              *int       `json:"page,omitempty"`
	Limit             *int       `json:"limit,omitempty"`
	Near              *NearPoint `json:"near,omitempty"`
}

// SearchParams are the GET /search query parameters.
type SearchParams struct {
	Zip               *string   `form:"zip,omitempty" json:"zip,omitempty"`
	ConditionsInclude *[]string `form:"conditions_include,omitempty" json:"conditions_include,omitempty"`
	ConditionsExclude *[]string `form:"conditions_exclude,omitempty" json:"conditions_exclude,omitempty"`
	QueryText         *string   `form:"query_text,omitempty" json:"query_text,omitempty"`
	Page              *int      `form:"page,omitempty" json:"page,omitempty"`
	Limit             *int      `form:"limit,omitempty" json:"limit,omitempty"`
	NearLat           *float64  `form:"near_lat,omitempty" json:"near_lat,omitempty"`
	NearLon           *float64  `form:"near_lon,omitempty" json:"near_lon,omitempty"`
}

// SearchResultItem is one ranked study.
type SearchResultItem struct {
	StudyID          int64    `json:"study_id"`
	Title            string   `json:"title"`
	PlainTitle       *string  `json:"plain_title,omitempty"`
	Snippet          string   `json:"snippet"`
	Score            int      `json:"score"`
	Reasons          []string `json:"reasons"`
	RecruitingStatus string   `json:"recruiting_status,omitempty"`
	StudyType        string   `json:"study_type,omitempty"`
	Conditions       []string `json:"conditions"`
	LocationSummary  *string  `json:"location_summary,omitempty"`
	NearestSiteKm    *float64 `json:"nearest_site_km,omitempty"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Items []SearchResultItem `json:"items"`
	Total int                `json:"total"`
	Mode  string             `json:"mode"`
}

// CreateStudyRequest is the POST /admin/studies body.
type CreateStudyRequest struct {
	Source              string               `json:"source,omitempty"`
	SourceID            string               `json:"source_id,omitempty"`
	Title               string               `json:"title"`
	BriefSummary        string               `json:"brief_summary,omitempty"`
	DetailedDescription string               `json:"detailed_description,omitempty"`
	EligibilityCriteria string               `json:"eligibility_criteria,omitempty"`
	Description         string               `json:"description,omitempty"`
	RecruitingStatus    string               `json:"recruiting_status,omitempty"`
	StudyType           string               `json:"study_type,omitempty"`
	Conditions          []string             `json:"conditions,omitempty"`
	SiteZips            []string             `json:"site_zips,omitempty"`
	Locations           []trial.Location     `json:"locations,omitempty"`
	Interventions       []trial.Intervention `json:"interventions,omitempty"`
	Contacts            []trial.Contact      `json:"contacts,omitempty"`
}

// StudyResponse is a full study as served by the API.
type StudyResponse struct {
	ID                  int64                `json:"id"`
	Source              string               `json:"source"`
	SourceID            string               `json:"source_id,omitempty"`
	Title               string               `json:"title"`
	PlainTitle          string               `json:"ai_plain_title,omitempty"`
	BriefSummary        string               `json:"brief_summary,omitempty"`
	DetailedDescription string               `json:"detailed_description,omitempty"`
	EligibilityCriteria string               `json:"eligibility_criteria,omitempty"`
	Description         string               `json:"description,omitempty"`
	RecruitingStatus    string               `json:"recruiting_status,omitempty"`
	StudyType           string               `json:"study_type,omitempty"`
	Conditions          []string             `json:"conditions"`
	SiteZips            []string             `json:"site_zips"`
	Locations           []trial.Location     `json:"locations"`
	Interventions       []trial.Intervention `json:"interventions"`
	Contacts            []trial.Contact      `json:"contacts"`
	HasEmbedding        bool                 `json:"has_embedding"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks"`
	TotalStudies *int              `json:"total_studies,omitempty"`
}
