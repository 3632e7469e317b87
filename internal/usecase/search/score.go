package search

import (
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/trialfinder/internal/domain/search/request"
	"github.com/kailas-cloud/trialfinder/internal/domain/search/result"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// Scoring weights.
const (
	conditionPoints       = 10
	keywordPoints         = 2
	zipPoints             = 5
	semanticReasonMinimum = 50
)

// Reason texts, in the order they are emitted.
const (
	reasonConditionsPrefix = "Matched conditions: "
	reasonKeyword          = "Keyword match in study content"
	reasonSemanticPrefix   = "Semantic match ("
	reasonZIP              = "ZIP match"
)

// scoreCandidate computes the additive score and ordered, non-empty reasons for c.
func scoreCandidate(c candidate, req *request.Request) (int, []string) {
	score := 0
	var reasons []string

	if matched := matchedConditions(c.study, req.Include()); len(matched) > 0 {
		score += len(matched) * conditionPoints
		reasons = append(reasons, reasonConditionsPrefix+strings.Join(matched, ", "))
	}

	if req.HasQuery() {
		if kw, ok := keywordScore(req.NormalizedQuery(), c.study); ok {
			score += kw
			reasons = append(reasons, reasonKeyword)
		}
	}

	if c.hasDistance {
		bonus := vectorBonus(c.distance)
		score += bonus
		if bonus > semanticReasonMinimum {
			reasons = append(reasons, reasonSemanticPrefix+strconv.Itoa(bonus)+")")
		}
	}

	if zip := req.ZIP(); zip != "" && containsString(c.study.SiteZIPs, zip) {
		score += zipPoints
		reasons = append(reasons, reasonZIP)
	}

	if len(reasons) == 0 {
		reasons = []string{result.GeneralMatch}
	}
	return score, reasons
}

// matchedConditions returns the include tags present on s, in include order.
// Duplicated include tags are counted each time.
func matchedConditions(s *trial.Study, include []string) []string {
	if len(include) == 0 {
		return nil
	}
	tags := studyTags(s)
	var matched []string
	for _, tag := range include {
		if _, ok := tags[tag]; ok {
			matched = append(matched, tag)
		}
	}
	return matched
}

// keywordScore adds keywordPoints for every non-overlapping occurrence of each
// whitespace-separated query token in the study corpus. Tokens are matched as
// substrings, so short tokens also hit inside longer words.
func keywordScore(normalizedQuery string, s *trial.Study) (int, bool) {
	tokens := strings.Fields(normalizedQuery)
	if len(tokens) == 0 {
		return 0, false
	}
	corpus := trial.Corpus(s)

	total := 0
	matched := false
	for _, tok := range tokens {
		if n := strings.Count(corpus, tok); n > 0 {
			total += n * keywordPoints
			matched = true
		}
	}
	return total, matched
}

// vectorBonus maps a cosine distance to floor((1 - clamp(d, 0, 1)) * 100).
func vectorBonus(distance float64) int {
	d := math.Min(math.Max(distance, 0), 1)
	return int(math.Floor((1 - d) * 100))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
