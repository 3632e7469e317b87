package trial

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/trialfinder/internal/domain"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  Diabetes ", "diabetes"},
		{"Type 2 DIABETES", "type 2 diabetes"},
		{"\tasthma\n", "asthma"},
	}
	for _, tc := range tests {
		if got := NormalizeText(tc.in); got != tc.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmbeddingText(t *testing.T) {
	got := EmbeddingText("  Insulin   Pump\tStudy ", "Tests a NEW\n pump")
	want := "insulin pump study | tests a new pump"
	if got != want {
		t.Errorf("EmbeddingText = %q, want %q", got, want)
	}
	if got := EmbeddingText("Title", ""); got != "title |" {
		t.Errorf("EmbeddingText with empty summary = %q", got)
	}
}

func TestCorpus_JoinsFieldsLowercased(t *testing.T) {
	s := &Study{
		Title:               "Insulin Trial",
		BriefSummary:        "Brief",
		EligibilityCriteria: "Adults",
	}
	want := "insulin trial brief  adults "
	if got := Corpus(s); got != want {
		t.Errorf("Corpus = %q, want %q", got, want)
	}
}

func TestPrepare_NormalizesLists(t *testing.T) {
	s := &Study{
		Title:      "  A study ",
		Conditions: []string{" Diabetes", "", "ASTHMA "},
		SiteZIPs:   []string{" 02139 ", " "},
	}
	if err := s.Prepare(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Title != "A study" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Source != SourceManual {
		t.Errorf("Source = %q, want %q", s.Source, SourceManual)
	}
	if len(s.Conditions) != 2 || s.Conditions[0] != "diabetes" || s.Conditions[1] != "asthma" {
		t.Errorf("Conditions = %v", s.Conditions)
	}
	if len(s.SiteZIPs) != 1 || s.SiteZIPs[0] != "02139" {
		t.Errorf("SiteZIPs = %v", s.SiteZIPs)
	}
}

func TestPrepare_RequiresTitle(t *testing.T) {
	s := &Study{Title: "   "}
	err := s.Prepare()
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSourceKey(t *testing.T) {
	s := &Study{Source: SourceCTGov, SourceID: "NCT001"}
	if got := s.SourceKey(); got != "ctgov:NCT001" {
		t.Errorf("SourceKey = %q", got)
	}
	if got := (&Study{Source: SourceManual}).SourceKey(); got != "" {
		t.Errorf("SourceKey without id = %q, want empty", got)
	}
}
