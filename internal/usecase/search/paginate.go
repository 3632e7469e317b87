package search

import (
	"sort"

	"github.com/kailas-cloud/trialfinder/internal/domain/search/result"
)

// rankItems orders items by descending score. Ties keep candidate order.
func rankItems(items []result.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}

// paginate returns the 1-based page of size limit, empty when out of range.
func paginate(items []result.Item, page, limit int) []result.Item {
	start := (page - 1) * limit
	if start >= len(items) {
		return []result.Item{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
