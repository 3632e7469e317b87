package search

import (
	"strings"
	"unicode"

	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

// Snippet limits, in runes.
const (
	snippetMaxLen      = 180
	snippetMinSentence = 140
)

const noDescription = "No description available"

var sentenceEnds = []string{". ", "? ", "! "}

// snippetSource picks the first non-empty descriptive field of s.
func snippetSource(s *trial.Study) string {
	for _, text := range []string{s.BriefSummary, s.DetailedDescription, s.Description} {
		if text != "" {
			return text
		}
	}
	return noDescription
}

// makeSnippet shortens text to at most snippetMaxLen runes, preferring to cut
// at a sentence end found at or after rune snippetMinSentence.
func makeSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxLen {
		return text
	}

	window := string(runes[:snippetMaxLen])

	cut := -1
	for _, end := range sentenceEnds {
		if i := strings.LastIndex(window, end); i > cut {
			cut = i
		}
	}
	// cut is a byte offset; the threshold is in runes.
	if cut >= 0 && len([]rune(window[:cut])) >= snippetMinSentence {
		return strings.TrimSpace(window[:cut+1])
	}

	return strings.TrimRightFunc(window, unicode.IsSpace) + "..."
}
