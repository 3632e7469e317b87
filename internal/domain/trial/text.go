package trial

import "strings"

// NormalizeText lowercases s after trimming surrounding whitespace.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// EmbeddingText is the canonical embedding input "title | summary",
// whitespace runs collapsed to a single space, lowercased and trimmed.
func EmbeddingText(title, summary string) string {
	return strings.ToLower(strings.Join(strings.Fields(title+" | "+summary), " "))
}

// SearchText is the text indexed for store-side similarity lookups.
func SearchText(s *Study) string {
	return EmbeddingText(s.Title, s.BriefSummary)
}

// Corpus joins the searchable fields of s with single spaces, lowercased.
// Missing fields contribute an empty segment.
func Corpus(s *Study) string {
	return strings.ToLower(strings.Join([]string{
		s.Title,
		s.BriefSummary,
		s.DetailedDescription,
		s.EligibilityCriteria,
		s.Description,
	}, " "))
}
