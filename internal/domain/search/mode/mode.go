package mode

// Mode is the candidate retrieval strategy actually used for a search.
type Mode string

// Retrieval modes.
const (
	// Lexical scans every published study.
	Lexical Mode = "lexical"
	// Hybrid unions vector nearest neighbours with text-similarity matches.
	Hybrid Mode = "hybrid"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Lexical || m == Hybrid
}

// Switch reports whether semantic retrieval is enabled.
// It is consulted once per request.
type Switch interface {
	SemanticEnabled() bool
}

// Static is a Switch with a fixed value.
type Static bool

// SemanticEnabled implements Switch.
func (s Static) SemanticEnabled() bool { return bool(s) }
