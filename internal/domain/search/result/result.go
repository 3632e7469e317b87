package result

import "github.com/kailas-cloud/trialfinder/internal/domain/search/mode"

// GeneralMatch is the reason given when no scoring factor fired.
const GeneralMatch = "General match"

// Item is a single ranked study in a search response.
type Item struct {
	StudyID          int64
	Title            string
	PlainTitle       string // empty when no cached plain title exists
	Snippet          string
	Score            int
	Reasons          []string
	RecruitingStatus string
	StudyType        string
	Conditions       []string
	LocationSummary  string   // empty when the study lists no cities
	NearestSiteKm    *float64 // set only when the request carried a reference point
}

// Response is one page of ranked items.
type Response struct {
	Items []Item
	Total int // matches before pagination
	Mode  mode.Mode
}
