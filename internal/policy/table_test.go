package policy

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/ledger"
)

func event(driftType, severity, queryType string) *drift.Event {
	dims := []string{driftType}
	if driftType == "compound" {
		dims = []string{drift.DimFiller, drift.DimDensity}
	}
	return &drift.Event{
		Dimensions: dims,
		Severity:   severity,
		QueryType:  queryType,
		Reasons:    []string{"filler:2", "density:0.125"},
		Record:     ledger.Record{PaddingCount: 2, AnswerPosition: 7, InfoDensity: 0.125},
	}
}

func TestSelect_SpecificityOrder(t *testing.T) {
	table := Table{Strategies: []Strategy{
		{ID: "wild", Drift: "filler", Severity: Wildcard, Query: Wildcard, Template: "w"},
		{ID: "sev", Drift: "filler", Severity: "high", Query: Wildcard, Template: "s"},
		{ID: "query", Drift: "filler", Severity: Wildcard, Query: "factual", Template: "q"},
		{ID: "exact", Drift: "filler", Severity: "high", Query: "factual", Template: "e"},
	}}

	tests := []struct {
		severity, queryType, wantID string
	}{
		{"high", "factual", "exact"},
		{"high", "code", "sev"},
		{"low", "factual", "query"},
		{"low", "code", "wild"},
	}
	for _, tt := range tests {
		st, ok := table.Select(event("filler", tt.severity, tt.queryType))
		if !ok {
			t.Fatalf("Select(%s, %s) ok = false", tt.severity, tt.queryType)
		}
		if st.ID != tt.wantID {
			t.Errorf("Select(%s, %s) = %q, want %q", tt.severity, tt.queryType, st.ID, tt.wantID)
		}
	}
}

func TestSelect_QueryOutranksSeverity(t *testing.T) {
	table := Table{Strategies: []Strategy{
		{ID: "by-severity", Drift: "density", Severity: "high", Query: Wildcard, Template: "s"},
		{ID: "by-query", Drift: "density", Severity: Wildcard, Query: "claim", Template: "q"},
	}}
	st, ok := table.Select(event("density", "high", "claim"))
	if !ok {
		t.Fatal("Select() ok = false")
	}
	if st.ID != "by-query" {
		t.Errorf("Select() = %q, want by-query", st.ID)
	}
}

func TestSelect_NoMatchDistinctFromNoCorrection(t *testing.T) {
	table := DefaultTable()

	// Density drift on code matches the explicit no-correction rule.
	st, ok := table.Select(event("density", "low", "code"))
	if !ok {
		t.Fatal("Select(density, code) ok = false, want explicit match")
	}
	if !st.NoCorrection() {
		t.Errorf("Select(density, code) = %+v, want no-correction strategy", st)
	}

	// An unknown drift type matches nothing at all.
	if _, ok := table.Select(event("verbosity", "low", "factual")); ok {
		t.Error("Select(unknown drift) ok = true, want false")
	}
}

func TestSelect_CompoundBeatsPerDimension(t *testing.T) {
	st, ok := DefaultTable().Select(event("compound", "compound", "factual"))
	if !ok {
		t.Fatal("Select() ok = false")
	}
	if st.ID != "compound-reset" {
		t.Errorf("Select() = %q, want compound-reset", st.ID)
	}
}

func TestFormatTemplate(t *testing.T) {
	ev := event("compound", "compound", "factual")
	got := FormatTemplate("[Prior drift: {reasons}. Count {count}, pos {position}, density {density}, type {query_type}.]", ev)
	want := "[Prior drift: filler:2, density:0.125. Count 2, pos 7, density 0.125, type factual.]"
	if got != want {
		t.Errorf("FormatTemplate() = %q, want %q", got, want)
	}
}

func TestStore_MissingFileYieldsDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "corrections.json"))
	table, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if table.Version != 1 || len(table.Strategies) == 0 {
		t.Errorf("Load() = version %d with %d strategies, want defaults", table.Version, len(table.Strategies))
	}
}

func TestStore_SaveRejectsMalformed(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "corrections.json"))
	err := s.Save(Table{Strategies: []Strategy{{ID: "bad"}}})
	if !errors.Is(err, ErrMalformedTable) {
		t.Errorf("Save() error = %v, want ErrMalformedTable", err)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "corrections.json"))
	in := DefaultTable()
	in.Version = 3
	if err := s.Save(in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.Version != 3 || len(out.Strategies) != len(in.Strategies) {
		t.Errorf("Load() = version %d with %d strategies, want 3 with %d", out.Version, len(out.Strategies), len(in.Strategies))
	}
}
