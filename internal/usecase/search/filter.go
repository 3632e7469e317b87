package search

import "github.com/kailas-cloud/trialfinder/internal/domain/trial"

// filterCandidates drops studies carrying an excluded tag, then, when include
// is non-empty, keeps only studies with at least one included tag.
// Exclusion wins over inclusion. Relative order is preserved.
func filterCandidates(in []candidate, include, exclude []string) []candidate {
	if len(include) == 0 && len(exclude) == 0 {
		return in
	}

	excluded := toSet(exclude)
	included := toSet(include)

	out := make([]candidate, 0, len(in))
	for _, c := range in {
		tags := studyTags(c.study)
		if hasAny(tags, excluded) {
			continue
		}
		if len(included) > 0 && !hasAny(tags, included) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// studyTags returns the normalized condition tags of s as a set.
func studyTags(s *trial.Study) map[string]struct{} {
	tags := make(map[string]struct{}, len(s.Conditions))
	for _, c := range s.Conditions {
		tags[trial.NormalizeText(c)] = struct{}{}
	}
	return tags
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func hasAny(tags, wanted map[string]struct{}) bool {
	for w := range wanted {
		if _, ok := tags[w]; ok {
			return true
		}
	}
	return false
}
