package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// Filter is a raw FT.SEARCH pre-filter, e.g. "@published:{true}". Empty matches all.
	Filter       string
	Field        string // vector field name, "vector" when empty
	Vector       []float32
	K            int
	ReturnFields []string
	RawScores    bool // return __vector_score as-is (cosine distance) instead of similarity
}

// TextQuery is the input for BM25 text search.
type TextQuery struct {
	IndexName string
	Query     string
	Field     string // text field name, "__content" when empty
	Filter    string
	// Fuzzy matches every query term within Levenshtein distance 1 and ORs
	// the terms together instead of requiring all of them.
	Fuzzy        bool
	TopK         int
	ReturnFields []string
}

// ListQuery is the input for a paginated, optionally sorted listing.
type ListQuery struct {
	IndexName    string
	Query        string
	Offset       int
	Limit        int
	SortBy       string
	Descending   bool
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
