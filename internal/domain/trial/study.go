package trial

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/trialfinder/internal/domain"
)

// Known record sources.
const (
	SourceManual = "manual"
	SourceCTGov  = "ctgov"
)

// DefaultStatus is used when a source does not report a recruiting status.
const DefaultStatus = "Unknown"

// Location is a single trial site.
type Location struct {
	FacilityName string   `json:"facility_name,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Country      string   `json:"country,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
}

// HasCoordinates reports whether both lat and lon are known.
func (l Location) HasCoordinates() bool { return l.Lat != nil && l.Lon != nil }

// Intervention is a treatment arm entry.
type Intervention struct {
	Type        string `json:"intervention_type,omitempty"`
	Name        string `json:"intervention_name"`
	Description string `json:"description,omitempty"`
}

// Contact is a central study contact.
type Contact struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Study is a clinical-trial record as stored and searched.
// The search engine treats it as read-only.
type Study struct {
	ID                  int64           `json:"id"`
	Source              string          `json:"source"`
	SourceID            string          `json:"source_id,omitempty"`
	Title               string          `json:"title"`
	BriefSummary        string          `json:"brief_summary,omitempty"`
	DetailedDescription string          `json:"detailed_description,omitempty"`
	EligibilityCriteria string          `json:"eligibility_criteria,omitempty"`
	Description         string          `json:"description,omitempty"`
	RecruitingStatus    string          `json:"recruiting_status,omitempty"`
	StudyType           string          `json:"study_type,omitempty"`
	Conditions          []string        `json:"conditions"`
	SiteZIPs            []string        `json:"site_zips"`
	Locations           []Location      `json:"locations"`
	Interventions       []Intervention  `json:"interventions"`
	Contacts            []Contact       `json:"contacts"`
	AIPlainTitle        string          `json:"ai_plain_title,omitempty"`
	Published           bool            `json:"is_published"`
	HasEmbedding        bool            `json:"has_embedding"`
	RawPayload          json.RawMessage `json:"raw_json,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Prepare normalizes a study before it is written: conditions are
// lowercased and trimmed, ZIPs trimmed, blank entries dropped.
func (s *Study) Prepare() error {
	s.Title = strings.TrimSpace(s.Title)
	if s.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidRequest)
	}
	if s.Source == "" {
		s.Source = SourceManual
	}
	s.Conditions = normalizeList(s.Conditions, NormalizeText)
	s.SiteZIPs = normalizeList(s.SiteZIPs, strings.TrimSpace)
	return nil
}

// SourceKey identifies the record by its upstream origin.
// Empty when the source does not assign ids.
func (s *Study) SourceKey() string {
	if s.SourceID == "" {
		return ""
	}
	return s.Source + ":" + s.SourceID
}

func normalizeList(in []string, fn func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = fn(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Neighbor is a study returned by a vector nearest-neighbour lookup
// together with its cosine distance to the query vector.
type Neighbor struct {
	Study    Study
	Distance float64
}
