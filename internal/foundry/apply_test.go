package foundry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ergohq/ergo/internal/policy"
	"github.com/ergohq/ergo/internal/thresholds"
)

func testApplier(t *testing.T) *Applier {
	t.Helper()
	dir := t.TempDir()
	return &Applier{
		Staged:     NewStore(filepath.Join(dir, "staged.json")),
		Table:      policy.NewStore(filepath.Join(dir, "corrections.json")),
		Thresholds: thresholds.NewStore(filepath.Join(dir, "thresholds.json")),
	}
}

func stage(t *testing.T, a *Applier, proposals ...Proposal) {
	t.Helper()
	_, err := a.Staged.Stage(proposals)
	require.NoError(t, err)
}

func gapProposal(id string) Proposal {
	return Proposal{
		ID:                id,
		Type:              TypeGap,
		Drift:             "preamble",
		Severity:          policy.Wildcard,
		Query:             "factual",
		SuggestedTemplate: "[Data first.]",
		CreatedAt:         time.Now().UTC(),
	}
}

func TestApply_GapAddsStrategyAndBumpsVersion(t *testing.T) {
	a := testApplier(t)
	stage(t, a, gapProposal("p1"))

	res, err := a.Apply([]string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, res.Applied)

	table, err := a.Table.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, table.Version, "version must bump on accepted application")

	var found *policy.Strategy
	for i := range table.Strategies {
		if table.Strategies[i].ID == "preamble-factual-foundry" {
			found = &table.Strategies[i]
		}
	}
	require.NotNil(t, found, "applied strategy missing from table")
	assert.Equal(t, "foundry", found.Source)
	assert.Equal(t, "[Data first.]", found.Template)

	staged, err := a.Staged.Load()
	require.NoError(t, err)
	assert.Empty(t, staged, "applied proposal must leave the staged set")
}

func TestApply_UnknownIDSkipped(t *testing.T) {
	a := testApplier(t)
	stage(t, a, gapProposal("p1"))

	res, err := a.Apply([]string{"ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, res.Skipped)
	assert.Empty(t, res.Applied)

	table, err := a.Table.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, table.Version, "version must not bump when nothing applied")

	staged, err := a.Staged.Load()
	require.NoError(t, err)
	assert.Len(t, staged, 1, "skipped ids leave the staged set untouched")
}

func TestApply_SuppressionRaisesFillerMax(t *testing.T) {
	a := testApplier(t)
	p := Proposal{ID: "s1", Type: TypeSuppression, Drift: "filler", Severity: policy.Wildcard, Query: policy.Wildcard}
	stage(t, a, p)

	res, err := a.Apply([]string{"s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, res.Applied)
	assert.Equal(t, 1, a.Thresholds.Effective("").FillerMax)
}

func TestApply_SuppressionRespectsFillerCeiling(t *testing.T) {
	a := testApplier(t)
	_, err := a.Thresholds.Set(thresholds.ScopeGlobal, thresholds.FieldFillerMax, thresholds.FillerMaxCeiling)
	require.NoError(t, err)

	p := Proposal{ID: "s1", Type: TypeSuppression, Drift: "filler", Severity: policy.Wildcard, Query: policy.Wildcard}
	stage(t, a, p)
	res, err := a.Apply([]string{"s1"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Notes)
	assert.Equal(t, thresholds.FillerMaxCeiling, a.Thresholds.Effective("").FillerMax, "ceiling must hold")
}

func TestApply_SuppressionLowersDensityMinWithinFloor(t *testing.T) {
	a := testApplier(t)
	p := Proposal{ID: "s1", Type: TypeSuppression, Drift: "density", Severity: policy.Wildcard, Query: policy.Wildcard}
	stage(t, a, p)

	_, err := a.Apply([]string{"s1"})
	require.NoError(t, err)
	assert.InDelta(t, 0.55, a.Thresholds.Effective("").DensityMin, 1e-9)

	// Repeated suppressions bottom out at the floor.
	for i := 0; i < 5; i++ {
		q := p
		q.ID = "again"
		stage(t, a, q)
		_, err := a.Apply([]string{"again"})
		require.NoError(t, err)
	}
	assert.InDelta(t, thresholds.DensityMinFloor, a.Thresholds.Effective("").DensityMin, 1e-9)
}

func TestApply_SuppressionBlanksPreambleTemplates(t *testing.T) {
	a := testApplier(t)
	p := Proposal{ID: "s1", Type: TypeSuppression, Drift: "preamble", Severity: policy.Wildcard, Query: policy.Wildcard, Reason: "over-fires"}
	stage(t, a, p)

	_, err := a.Apply([]string{"s1"})
	require.NoError(t, err)

	table, err := a.Table.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, table.Version)
	for _, st := range table.Strategies {
		if st.Drift == "preamble" {
			assert.True(t, st.NoCorrection(), "strategy %s must be silenced", st.ID)
		}
	}
}

func TestReject_DropsWithoutMutation(t *testing.T) {
	a := testApplier(t)
	stage(t, a, gapProposal("p1"), gapProposal("p2"))

	staged, err := a.Staged.Load()
	require.NoError(t, err)
	require.Len(t, staged, 1, "same dedup key collapses to one staged proposal")

	res, err := a.Reject([]string{staged[0].ID, "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{staged[0].ID}, res.Rejected)
	assert.Equal(t, []string{"ghost"}, res.Skipped)

	table, err := a.Table.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, table.Version, "reject must not touch the live table")

	remaining, err := a.Staged.Load()
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestApply_RefinementReplacesFoundryRule(t *testing.T) {
	a := testApplier(t)
	stage(t, a, gapProposal("p1"))
	_, err := a.Apply([]string{"p1"})
	require.NoError(t, err)

	refine := gapProposal("p2")
	refine.Type = TypeRefinement
	refine.SuggestedTemplate = "[Answer, then cite.]"
	stage(t, a, refine)
	_, err = a.Apply([]string{"p2"})
	require.NoError(t, err)

	table, err := a.Table.Load()
	require.NoError(t, err)
	count := 0
	for _, st := range table.Strategies {
		if st.Drift == "preamble" && st.Query == "factual" {
			count++
			assert.Equal(t, "[Answer, then cite.]", st.Template)
		}
	}
	assert.Equal(t, 1, count, "refinement must replace, not duplicate, the rule")
	assert.Equal(t, 3, table.Version)
}
