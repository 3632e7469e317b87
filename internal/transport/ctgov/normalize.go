package ctgov

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

const (
	untitledStudy = "Untitled Study"
	unknownName   = "Unknown"
)

var errMissingNCT = errors.New("missing nctId")

// rawStudy is the subset of the API v2 study document the service reads.
type rawStudy struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID         string `json:"nctId"`
			BriefTitle    string `json:"briefTitle"`
			OfficialTitle string `json:"officialTitle"`
		} `json:"identificationModule"`
		DescriptionModule struct {
			BriefSummary        string `json:"briefSummary"`
			DetailedDescription string `json:"detailedDescription"`
		} `json:"descriptionModule"`
		EligibilityModule struct {
			EligibilityCriteria string `json:"eligibilityCriteria"`
		} `json:"eligibilityModule"`
		StatusModule struct {
			OverallStatus string `json:"overallStatus"`
		} `json:"statusModule"`
		DesignModule struct {
			StudyType string `json:"studyType"`
		} `json:"designModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Type        string `json:"type"`
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
		ContactsLocationsModule struct {
			CentralContacts []struct {
				Name  string `json:"name"`
				Role  string `json:"role"`
				Phone string `json:"phone"`
				Email string `json:"email"`
			} `json:"centralContacts"`
			Locations []struct {
				Facility string `json:"facility"`
				City     string `json:"city"`
				State    string `json:"state"`
				Zip      string `json:"zip"`
				Country  string `json:"country"`
				GeoPoint *struct {
					Lat *float64 `json:"lat"`
					Lon *float64 `json:"lon"`
				} `json:"geoPoint"`
			} `json:"locations"`
		} `json:"contactsLocationsModule"`
	} `json:"protocolSection"`
}

// Normalize maps one API v2 study document to a trial.Study. The original
// document is kept verbatim in RawPayload.
func Normalize(raw json.RawMessage) (trial.Study, error) {
	var r rawStudy
	if err := json.Unmarshal(raw, &r); err != nil {
		return trial.Study{}, fmt.Errorf("decode study: %w", err)
	}
	p := &r.ProtocolSection

	nctID := strings.TrimSpace(p.IdentificationModule.NCTID)
	if nctID == "" {
		return trial.Study{}, errMissingNCT
	}

	s := trial.Study{
		Source:              trial.SourceCTGov,
		SourceID:            nctID,
		Title:               firstNonBlank(p.IdentificationModule.OfficialTitle, p.IdentificationModule.BriefTitle, untitledStudy),
		BriefSummary:        p.DescriptionModule.BriefSummary,
		DetailedDescription: p.DescriptionModule.DetailedDescription,
		EligibilityCriteria: p.EligibilityModule.EligibilityCriteria,
		RecruitingStatus:    firstNonBlank(p.StatusModule.OverallStatus, trial.DefaultStatus),
		StudyType:           p.DesignModule.StudyType,
		Conditions:          make([]string, 0, len(p.ConditionsModule.Conditions)),
		SiteZIPs:            []string{},
		Locations:           make([]trial.Location, 0, len(p.ContactsLocationsModule.Locations)),
		Interventions:       make([]trial.Intervention, 0, len(p.ArmsInterventionsModule.Interventions)),
		Contacts:            make([]trial.Contact, 0, len(p.ContactsLocationsModule.CentralContacts)),
		RawPayload:          append(json.RawMessage(nil), raw...),
	}

	for _, c := range p.ConditionsModule.Conditions {
		s.Conditions = append(s.Conditions, conditionTag(c))
	}

	for _, in := range p.ArmsInterventionsModule.Interventions {
		s.Interventions = append(s.Interventions, trial.Intervention{
			Type:        in.Type,
			Name:        firstNonBlank(in.Name, unknownName),
			Description: in.Description,
		})
	}

	seenZIP := make(map[string]struct{})
	for _, loc := range p.ContactsLocationsModule.Locations {
		l := trial.Location{
			FacilityName: loc.Facility,
			City:         loc.City,
			State:        loc.State,
			Country:      loc.Country,
		}
		if loc.GeoPoint != nil {
			l.Lat, l.Lon = loc.GeoPoint.Lat, loc.GeoPoint.Lon
		}
		s.Locations = append(s.Locations, l)

		if zip := strings.TrimSpace(loc.Zip); zip != "" {
			if _, ok := seenZIP[zip]; !ok {
				seenZIP[zip] = struct{}{}
				s.SiteZIPs = append(s.SiteZIPs, zip)
			}
		}
	}

	for _, c := range p.ContactsLocationsModule.CentralContacts {
		s.Contacts = append(s.Contacts, trial.Contact{
			Name:  firstNonBlank(c.Name, unknownName),
			Role:  c.Role,
			Phone: c.Phone,
			Email: c.Email,
		})
	}

	return s, nil
}

// conditionTag lowercases a condition and joins its words with "-".
func conditionTag(c string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "-")
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
