// Package foundry mines validated patterns and fitness data into staged
// policy proposals. The process is strictly two-phase: Analyze is pure and
// read-only, producing proposals; Apply is the only mutator of the live
// policy table and thresholds, and fires solely on external approval. Nothing
// is ever auto-applied.
package foundry

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ergohq/ergo/internal/consolidate"
	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/fitness"
	"github.com/ergohq/ergo/internal/policy"
	"github.com/ergohq/ergo/internal/storage"
)

// Analysis thresholds.
const (
	MinOutcomes     = 5
	LowFitness      = 0.50
	HighFireRate    = 0.30
	densityStepDown = 0.05
)

// Proposal types.
const (
	TypeGap         = "gap"
	TypeRefinement  = "refinement"
	TypeSuppression = "suppression"
)

// Evidence carries the counts behind a proposal.
type Evidence struct {
	Sessions  int     `json:"sessions,omitempty"`
	Days      int     `json:"days,omitempty"`
	Outcomes  int     `json:"outcomes,omitempty"`
	Effective int     `json:"effective,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	FireRate  float64 `json:"fire_rate,omitempty"`
}

// Proposal is one staged change to the policy table or thresholds. Mutated
// only by the external approval action; never auto-applied.
type Proposal struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Drift             string    `json:"drift"`
	Severity          string    `json:"severity"`
	Query             string    `json:"query"`
	Reason            string    `json:"reason"`
	SuggestedTemplate string    `json:"suggested_template,omitempty"`
	Evidence          Evidence  `json:"evidence"`
	CreatedAt         time.Time `json:"created_at"`
}

func (p Proposal) dedupKey() string {
	return p.Type + "|" + p.Drift + "|" + p.Severity + "|" + p.Query
}

// Input is the read-only snapshot Analyze works from.
type Input struct {
	Patterns     []consolidate.Pattern
	Table        policy.Table
	Outcomes     []fitness.Outcome
	SessionCount int
	Now          time.Time
}

// Analyze derives proposals from validated patterns and outcome fitness.
// Pure: no file is read or written here.
func Analyze(in Input) []Proposal {
	var proposals []Proposal
	proposals = append(proposals, findGaps(in)...)
	proposals = append(proposals, findRefinements(in)...)
	proposals = append(proposals, findSuppressions(in)...)
	return proposals
}

// findGaps proposes a new strategy for every validated pattern with no
// query-type-specific strategy covering its (drift, query) pair.
func findGaps(in Input) []Proposal {
	var proposals []Proposal
	for _, p := range in.Patterns {
		if p.Status != consolidate.StatusValidated {
			continue
		}
		if hasSpecificStrategy(in.Table, p.Drift, p.Query) {
			continue
		}
		rate, total, ok := fitness.RateOf(in.Outcomes, "", p.Query)
		ev := Evidence{Sessions: p.Sessions, Days: p.Days}
		if ok {
			ev.Outcomes = total
			ev.Rate = rate
		}
		proposals = append(proposals, Proposal{
			ID:       uuid.NewString(),
			Type:     TypeGap,
			Drift:    p.Drift,
			Severity: policy.Wildcard,
			Query:    p.Query,
			Reason: fmt.Sprintf("validated %s pattern on %s queries (%d sessions over %d days) has no query-specific strategy",
				p.Drift, p.Query, p.Sessions, p.Days),
			SuggestedTemplate: suggestTemplate(p.Drift, p.Query),
			Evidence:          ev,
			CreatedAt:         in.Now,
		})
	}
	return proposals
}

// findRefinements proposes template revisions for strategies whose measured
// fitness is low for a query type with enough outcomes to judge.
func findRefinements(in Input) []Proposal {
	type group struct {
		total     int
		effective int
	}
	grouped := map[[2]string]*group{}
	for _, o := range in.Outcomes {
		key := [2]string{o.StrategyID, o.QueryType}
		g := grouped[key]
		if g == nil {
			g = &group{}
			grouped[key] = g
		}
		g.total++
		if o.Effective {
			g.effective++
		}
	}

	var proposals []Proposal
	for _, st := range in.Table.Strategies {
		for key, g := range grouped {
			if key[0] != st.ID || g.total < MinOutcomes {
				continue
			}
			rate := float64(g.effective) / float64(g.total)
			if rate >= LowFitness {
				continue
			}
			proposals = append(proposals, Proposal{
				ID:       uuid.NewString(),
				Type:     TypeRefinement,
				Drift:    st.Drift,
				Severity: policy.Wildcard,
				Query:    key[1],
				Reason: fmt.Sprintf("strategy %s has fitness %.2f (%d/%d) on %s queries; template needs revision",
					st.ID, rate, g.effective, g.total, key[1]),
				SuggestedTemplate: suggestTemplate(st.Drift, key[1]),
				Evidence:          Evidence{Outcomes: g.total, Effective: g.effective, Rate: rate},
				CreatedAt:         in.Now,
			})
		}
	}
	return proposals
}

// findSuppressions flags strategies that fire in a large share of sessions
// without measurable effect, recommending a threshold raise instead of yet
// another template edit.
func findSuppressions(in Input) []Proposal {
	if in.SessionCount == 0 || len(in.Outcomes) < MinOutcomes {
		return nil
	}
	type tally struct {
		fired     int
		effective int
		drift     string
		severity  string
	}
	byStrategy := map[string]*tally{}
	for _, o := range in.Outcomes {
		t := byStrategy[o.StrategyID]
		if t == nil {
			t = &tally{}
			byStrategy[o.StrategyID] = t
		}
		t.fired++
		if o.Effective {
			t.effective++
		}
	}
	for _, st := range in.Table.Strategies {
		if t, ok := byStrategy[st.ID]; ok {
			t.drift = st.Drift
			t.severity = st.Severity
		}
	}

	var proposals []Proposal
	for id, t := range byStrategy {
		if t.drift == "" {
			continue // outcome for a strategy no longer in the table
		}
		fireRate := float64(t.fired) / float64(in.SessionCount)
		rate := float64(t.effective) / float64(t.fired)
		if fireRate <= HighFireRate || rate >= LowFitness {
			continue
		}
		proposals = append(proposals, Proposal{
			ID:       uuid.NewString(),
			Type:     TypeSuppression,
			Drift:    t.drift,
			Severity: policy.Wildcard,
			Query:    policy.Wildcard,
			Reason: fmt.Sprintf("strategy %s fires in %.0f%% of sessions but only %.0f%% of corrections land; raise the trigger threshold",
				id, fireRate*100, rate*100),
			Evidence:  Evidence{Outcomes: t.fired, Effective: t.effective, Rate: rate, FireRate: fireRate},
			CreatedAt: in.Now,
		})
	}
	return proposals
}

func hasSpecificStrategy(t policy.Table, driftType, query string) bool {
	for _, st := range t.Strategies {
		if st.Drift == driftType && st.Query == query {
			return true
		}
	}
	return false
}

// suggestTemplate picks a starting template for a (drift, query) pair.
// Empty templates are deliberate: some pairs warrant suppression, not
// correction.
func suggestTemplate(driftType, query string) string {
	switch {
	case driftType == drift.DimFiller && query == "emotional":
		return "" // softer framing is acceptable on emotional queries
	case driftType == drift.DimDensity && query == "emotional":
		return "" // lower density is acceptable on emotional queries
	case driftType == drift.DimPreamble && query == "factual":
		return "[Prior factual response had preamble. Data first.]"
	case driftType == drift.DimPreamble && query == "code":
		return "[Prior code response had preamble. Code first, explain after.]"
	case driftType == drift.DimDensity && query == "meta":
		return "[Prior meta-response had low density. Be specific.]"
	case driftType == drift.DimFiller && query == "meta":
		return "[Prior response to meta-query contained filler. Answer directly.]"
	}
	return fmt.Sprintf("[Prior %s response had %s drift. Correct.]", query, driftType)
}

// Store persists the staged proposal set.
type Store struct {
	Path string
}

// NewStore returns a staged-proposal store at path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the staged set; a missing file is an empty set.
func (s *Store) Load() ([]Proposal, error) {
	var staged []Proposal
	if err := storage.ReadJSON(s.Path, &staged); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return staged, nil
}

// Stage appends new proposals, deduplicating by (type, drift, severity,
// query) against existing undecided proposals, which are never overwritten.
func (s *Store) Stage(proposals []Proposal) (int, error) {
	var added int
	err := storage.WithLock(s.Path, func() error {
		staged, err := s.Load()
		if err != nil {
			return err
		}
		existing := map[string]bool{}
		for _, p := range staged {
			existing[p.dedupKey()] = true
		}
		for _, p := range proposals {
			if existing[p.dedupKey()] {
				continue
			}
			existing[p.dedupKey()] = true
			staged = append(staged, p)
			added++
		}
		if added == 0 {
			return nil
		}
		return storage.WriteJSONUnlocked(s.Path, staged)
	})
	return added, err
}
