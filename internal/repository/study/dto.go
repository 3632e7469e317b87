package study

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// Hash field names.
const (
	fieldID                  = "id"
	fieldSource              = "source"
	fieldSourceID            = "source_id"
	fieldTitle               = "title"
	fieldBriefSummary        = "brief_summary"
	fieldDetailedDescription = "detailed_description"
	fieldEligibility         = "eligibility_criteria"
	fieldDescription         = "description"
	fieldStatus              = "recruiting_status"
	fieldStudyType           = "study_type"
	fieldConditions          = "conditions"
	fieldConditionsJSON      = "conditions_json"
	fieldSiteZIPs            = "site_zips"
	fieldLocations           = "locations"
	fieldInterventions       = "interventions"
	fieldContacts            = "contacts"
	fieldPlainTitle          = "ai_plain_title"
	fieldPublished           = "published"
	fieldHasEmbedding        = "has_embedding"
	fieldSearchText          = "search_text"
	fieldRawJSON             = "raw_json"
	fieldUpdatedAt           = "updated_at"
	fieldEmbedding           = "embedding"
)

// tagSeparator joins multi-valued TAG fields.
const tagSeparator = "|"

const (
	tagTrue  = "true"
	tagFalse = "false"
)

// searchFields is what index reads load. The embedding blob and the raw
// source payload are only read by Get.
var searchFields = []string{
	fieldID, fieldSource, fieldSourceID, fieldTitle, fieldBriefSummary,
	fieldDetailedDescription, fieldEligibility, fieldDescription, fieldStatus,
	fieldStudyType, fieldConditionsJSON, fieldSiteZIPs, fieldLocations,
	fieldInterventions, fieldContacts, fieldPlainTitle, fieldPublished,
	fieldHasEmbedding, fieldUpdatedAt,
}

// contentFields converts the source-owned part of a study into hash fields.
// Publication state, plain title and embedding are left to the caller so an
// upsert never clobbers them.
func contentFields(s *trial.Study) (map[string]string, error) {
	conditions, err := json.Marshal(nonNil(s.Conditions))
	if err != nil {
		return nil, fmt.Errorf("marshal conditions: %w", err)
	}
	locations, err := json.Marshal(nonNil(s.Locations))
	if err != nil {
		return nil, fmt.Errorf("marshal locations: %w", err)
	}
	interventions, err := json.Marshal(nonNil(s.Interventions))
	if err != nil {
		return nil, fmt.Errorf("marshal interventions: %w", err)
	}
	contacts, err := json.Marshal(nonNil(s.Contacts))
	if err != nil {
		return nil, fmt.Errorf("marshal contacts: %w", err)
	}

	return map[string]string{
		fieldID:                  strconv.FormatInt(s.ID, 10),
		fieldSource:              s.Source,
		fieldSourceID:            s.SourceID,
		fieldTitle:               s.Title,
		fieldBriefSummary:        s.BriefSummary,
		fieldDetailedDescription: s.DetailedDescription,
		fieldEligibility:         s.EligibilityCriteria,
		fieldDescription:         s.Description,
		fieldStatus:              s.RecruitingStatus,
		fieldStudyType:           s.StudyType,
		fieldConditions:          strings.Join(s.Conditions, tagSeparator),
		fieldConditionsJSON:      string(conditions),
		fieldSiteZIPs:            strings.Join(s.SiteZIPs, tagSeparator),
		fieldLocations:           string(locations),
		fieldInterventions:       string(interventions),
		fieldContacts:            string(contacts),
		fieldSearchText:          trial.SearchText(s),
		fieldRawJSON:             string(s.RawPayload),
		fieldUpdatedAt:           strconv.FormatInt(s.UpdatedAt.Unix(), 10),
	}, nil
}

// studyFromHash rebuilds a study from stored hash fields. Missing optional
// fields decode to zero values.
func studyFromHash(m map[string]string) (trial.Study, error) {
	id, err := strconv.ParseInt(m[fieldID], 10, 64)
	if err != nil {
		return trial.Study{}, fmt.Errorf("parse id %q: %w", m[fieldID], err)
	}

	s := trial.Study{
		ID:                  id,
		Source:              m[fieldSource],
		SourceID:            m[fieldSourceID],
		Title:               m[fieldTitle],
		BriefSummary:        m[fieldBriefSummary],
		DetailedDescription: m[fieldDetailedDescription],
		EligibilityCriteria: m[fieldEligibility],
		Description:         m[fieldDescription],
		RecruitingStatus:    m[fieldStatus],
		StudyType:           m[fieldStudyType],
		SiteZIPs:            splitTags(m[fieldSiteZIPs]),
		AIPlainTitle:        m[fieldPlainTitle],
		Published:           m[fieldPublished] == tagTrue,
		HasEmbedding:        m[fieldHasEmbedding] == tagTrue,
	}

	if err := decodeList(m, fieldConditionsJSON, &s.Conditions); err != nil {
		return trial.Study{}, err
	}
	if err := decodeList(m, fieldLocations, &s.Locations); err != nil {
		return trial.Study{}, err
	}
	if err := decodeList(m, fieldInterventions, &s.Interventions); err != nil {
		return trial.Study{}, err
	}
	if err := decodeList(m, fieldContacts, &s.Contacts); err != nil {
		return trial.Study{}, err
	}
	if raw := m[fieldRawJSON]; raw != "" {
		s.RawPayload = json.RawMessage(raw)
	}
	if ts, err := strconv.ParseInt(m[fieldUpdatedAt], 10, 64); err == nil && ts > 0 {
		s.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return s, nil
}

func decodeList[T any](m map[string]string, field string, dst *[]T) error {
	raw := m[field]
	if raw == "" {
		*dst = []T{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	if *dst == nil {
		*dst = []T{}
	}
	return nil
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, tagSeparator)
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func boolTag(b bool) string {
	if b {
		return tagTrue
	}
	return tagFalse
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
