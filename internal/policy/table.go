// Package policy owns the correction decision table and the single-slot
// correction flag. The table is an ordered list of match rules keyed by
// (drift type, severity, query type), where severity and query type may be
// the wildcard "*"; lookups resolve by specificity, exact beating wildcard.
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/storage"
)

// Wildcard matches any severity or query type in a strategy rule.
const Wildcard = "*"

// ErrMalformedTable is the configuration error for an unusable policy table.
// Writers treat it as fatal; readers fall back to the built-in table.
var ErrMalformedTable = errors.New("malformed policy table")

// Strategy is one row of the decision table. An empty Template is an explicit
// "no correction" marker: the match is intentional silence, distinct from no
// rule matching at all.
type Strategy struct {
	ID       string `json:"id"`
	Drift    string `json:"drift"`
	Severity string `json:"severity"`
	Query    string `json:"query"`
	Template string `json:"template"`
	Source   string `json:"source,omitempty"`
	Note     string `json:"note,omitempty"`
}

// NoCorrection reports whether this strategy explicitly suppresses output.
func (s Strategy) NoCorrection() bool {
	return s.Template == ""
}

// Table is the on-disk policy document. Version increments on every accepted
// foundry application.
type Table struct {
	Version    int        `json:"version"`
	Strategies []Strategy `json:"strategies"`
}

// Store reads and rewrites the policy table at one path.
type Store struct {
	Path string
}

// NewStore returns a store backed by the table document at path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// DefaultTable is the built-in policy shipped before any foundry evolution.
func DefaultTable() Table {
	return Table{
		Version: 1,
		Strategies: []Strategy{
			{ID: "compound-reset", Drift: "compound", Severity: Wildcard, Query: Wildcard,
				Template: "[Prior drift: {reasons}. Reset: answer first, no filler.]"},
			{ID: "filler-high", Drift: drift.DimFiller, Severity: drift.SeverityHigh, Query: Wildcard,
				Template: "[Prior response had {count} filler phrases. Cut them.]"},
			{ID: "filler-low", Drift: drift.DimFiller, Severity: drift.SeverityLow, Query: Wildcard,
				Template: "[Filler detected ({count}). Answer directly.]"},
			{ID: "preamble-high", Drift: drift.DimPreamble, Severity: drift.SeverityHigh, Query: Wildcard,
				Template: "[Prior answer arrived after {position} preamble words. Lead with the answer.]"},
			{ID: "preamble-low", Drift: drift.DimPreamble, Severity: drift.SeverityLow, Query: Wildcard,
				Template: "[Slight preamble ({position}w). Answer first.]"},
			{ID: "density-code-expected", Drift: drift.DimDensity, Severity: Wildcard, Query: "code",
				Template: "", Note: "code responses run dense with symbols; low prose density is expected"},
			{ID: "density-high", Drift: drift.DimDensity, Severity: drift.SeverityHigh, Query: Wildcard,
				Template: "[Prior density {density}. Tighten: more signal, fewer words.]"},
			{ID: "density-low", Drift: drift.DimDensity, Severity: drift.SeverityLow, Query: Wildcard,
				Template: "[Density {density}, marginally low. Trim function words.]"},
		},
	}
}

// Load reads and validates the table. Missing file yields the defaults; a
// malformed document is a configuration error.
func (s *Store) Load() (Table, error) {
	var t Table
	if err := storage.ReadJSON(s.Path, &t); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultTable(), nil
		}
		return Table{}, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	for i, st := range t.Strategies {
		if st.Drift == "" {
			return Table{}, fmt.Errorf("%w: strategy %d missing drift type", ErrMalformedTable, i)
		}
	}
	return t, nil
}

// LoadOrDefault is the reader-side load: any error degrades to the built-in
// table so the synchronous injection path never fails on bad config.
func (s *Store) LoadOrDefault() Table {
	t, err := s.Load()
	if err != nil {
		return DefaultTable()
	}
	return t
}

// Save validates and atomically rewrites the table under its lock.
func (s *Store) Save(t Table) error {
	for i, st := range t.Strategies {
		if st.Drift == "" {
			return fmt.Errorf("%w: strategy %d missing drift type", ErrMalformedTable, i)
		}
	}
	return storage.WriteJSON(s.Path, t)
}

// Select resolves the strategy for a drift event. Specificity order: an
// exact query type beats a wildcard, then an exact severity beats a wildcard;
// ties break toward the earlier rule. Returns false when no rule matches —
// distinct from a matching no-correction rule, which is returned with
// ok=true.
func (t Table) Select(ev *drift.Event) (Strategy, bool) {
	driftType := ev.Type()
	best := Strategy{}
	bestScore := -1
	for _, st := range t.Strategies {
		if st.Drift != driftType {
			continue
		}
		score := 0
		switch st.Query {
		case ev.QueryType:
			score += 2
		case Wildcard:
		default:
			continue
		}
		switch st.Severity {
		case ev.Severity:
			score++
		case Wildcard:
		default:
			continue
		}
		if score > bestScore {
			best = st
			bestScore = score
		}
	}
	return best, bestScore >= 0
}

// FormatTemplate expands the strategy placeholders from the event:
// {count}, {position}, {density}, {reasons}, {query_type}.
func FormatTemplate(template string, ev *drift.Event) string {
	r := strings.NewReplacer(
		"{count}", fmt.Sprintf("%d", ev.Record.PaddingCount),
		"{position}", fmt.Sprintf("%d", ev.Record.AnswerPosition),
		"{density}", fmt.Sprintf("%.3f", ev.Record.InfoDensity),
		"{reasons}", ev.Describe(),
		"{query_type}", ev.QueryType,
	)
	return r.Replace(template)
}
