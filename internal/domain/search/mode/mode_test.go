package mode

import "testing"

func TestIsValid(t *testing.T) {
	valid := []Mode{Lexical, Hybrid}
	for _, m := range valid {
		if !m.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", m)
		}
	}

	invalid := []Mode{"", "semantic", "keyword", "HYBRID"}
	for _, m := range invalid {
		if m.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", m)
		}
	}
}

func TestStatic(t *testing.T) {
	var s Switch = Static(true)
	if !s.SemanticEnabled() {
		t.Error("Static(true).SemanticEnabled() = false")
	}
	if Static(false).SemanticEnabled() {
		t.Error("Static(false).SemanticEnabled() = true")
	}
}
