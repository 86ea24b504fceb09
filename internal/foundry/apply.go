package foundry

import (
	"fmt"
	"math"

	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/policy"
	"github.com/ergohq/ergo/internal/storage"
	"github.com/ergohq/ergo/internal/thresholds"
)

// Applier is the only component that turns staged proposals into live policy.
// Every mutation here runs on explicit, per-proposal approval.
type Applier struct {
	Staged     *Store
	Table      *policy.Store
	Thresholds *thresholds.Store
}

// Result reports what one Apply or Reject pass did.
type Result struct {
	Applied  []string `json:"applied,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

// Apply commits the identified proposals: gap and refinement proposals become
// policy-table strategies, suppression proposals adjust thresholds or blank
// templates. The table version bumps once per pass that changes it. Applied
// proposals leave the staged set; unknown ids are skipped, not errors.
func (a *Applier) Apply(ids []string) (Result, error) {
	var res Result
	staged, err := a.Staged.Load()
	if err != nil {
		return res, err
	}
	byID := map[string]Proposal{}
	for _, p := range staged {
		byID[p.ID] = p
	}

	table, err := a.Table.Load()
	if err != nil {
		return res, err
	}
	tableDirty := false

	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		switch p.Type {
		case TypeGap, TypeRefinement:
			upsertStrategy(&table, p)
			tableDirty = true
			res.Applied = append(res.Applied, id)
		case TypeSuppression:
			note, changed, err := a.suppress(&table, p)
			if err != nil {
				return res, fmt.Errorf("apply %s: %w", id, err)
			}
			tableDirty = tableDirty || changed
			if note != "" {
				res.Notes = append(res.Notes, note)
			}
			res.Applied = append(res.Applied, id)
		default:
			res.Skipped = append(res.Skipped, id)
		}
	}

	if tableDirty {
		table.Version++
		if err := a.Table.Save(table); err != nil {
			return res, err
		}
	}
	if len(res.Applied) > 0 {
		applied := map[string]bool{}
		for _, id := range res.Applied {
			applied[id] = true
		}
		if err := a.remove(applied); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Reject drops the identified proposals from the staged set without touching
// the live table or thresholds.
func (a *Applier) Reject(ids []string) (Result, error) {
	var res Result
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	staged, err := a.Staged.Load()
	if err != nil {
		return res, err
	}
	drop := map[string]bool{}
	for _, p := range staged {
		if wanted[p.ID] {
			drop[p.ID] = true
			res.Rejected = append(res.Rejected, p.ID)
		}
	}
	for _, id := range ids {
		if !drop[id] {
			res.Skipped = append(res.Skipped, id)
		}
	}
	if len(drop) == 0 {
		return res, nil
	}
	return res, a.remove(drop)
}

func (a *Applier) remove(ids map[string]bool) error {
	return storage.WithLock(a.Staged.Path, func() error {
		staged, err := a.Staged.Load()
		if err != nil {
			return err
		}
		kept := staged[:0]
		for _, p := range staged {
			if !ids[p.ID] {
				kept = append(kept, p)
			}
		}
		return storage.WriteJSONUnlocked(a.Staged.Path, kept)
	})
}

// upsertStrategy installs the proposal as a (drift, query)-specific rule,
// replacing a prior foundry rule for the same pair if one exists.
func upsertStrategy(t *policy.Table, p Proposal) {
	st := policy.Strategy{
		ID:       fmt.Sprintf("%s-%s-foundry", p.Drift, p.Query),
		Drift:    p.Drift,
		Severity: p.Severity,
		Query:    p.Query,
		Template: p.SuggestedTemplate,
		Source:   "foundry",
		Note:     p.Reason,
	}
	for i, old := range t.Strategies {
		if old.Drift == st.Drift && old.Query == st.Query && old.Severity == st.Severity {
			t.Strategies[i] = st
			return
		}
	}
	t.Strategies = append(t.Strategies, st)
}

// suppress weakens the trigger for an over-firing dimension. Filler and
// density move the global threshold one step within its hard bounds; preamble
// has no tunable threshold, so its strategies become explicit no-correction
// rules instead.
func (a *Applier) suppress(t *policy.Table, p Proposal) (note string, tableChanged bool, err error) {
	switch p.Drift {
	case drift.DimFiller:
		cur := a.Thresholds.Effective("").FillerMax
		if cur >= thresholds.FillerMaxCeiling {
			return fmt.Sprintf("filler_max already at ceiling %d; no change", cur), false, nil
		}
		_, err = a.Thresholds.Set(thresholds.ScopeGlobal, thresholds.FieldFillerMax, float64(cur+1))
		return fmt.Sprintf("filler_max raised to %d", cur+1), false, err
	case drift.DimDensity:
		cur := a.Thresholds.Effective("").DensityMin
		next := math.Max(round2(cur-densityStepDown), thresholds.DensityMinFloor)
		if next >= cur {
			return fmt.Sprintf("density_min already at floor %.2f; no change", cur), false, nil
		}
		_, err = a.Thresholds.Set(thresholds.ScopeGlobal, thresholds.FieldDensityMin, next)
		return fmt.Sprintf("density_min lowered to %.2f", next), false, err
	case drift.DimPreamble:
		changed := 0
		for i, st := range t.Strategies {
			if st.Drift == drift.DimPreamble && !st.NoCorrection() {
				t.Strategies[i].Template = ""
				t.Strategies[i].Source = "foundry"
				t.Strategies[i].Note = p.Reason
				changed++
			}
		}
		if changed == 0 {
			return "preamble strategies already silent; no change", false, nil
		}
		return fmt.Sprintf("%d preamble strategies set to no-correction", changed), true, nil
	}
	return "", false, fmt.Errorf("unknown drift dimension %q", p.Drift)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
