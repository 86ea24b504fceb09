// Package fitness tracks whether applied corrections actually improved the
// dimension they targeted. A single-slot pending record bridges the gap
// between injecting a correction and scoring the next response; judged
// outcomes accumulate in an append-only log from which effectiveness rates
// are computed per strategy and per query type.
package fitness

import (
	"path/filepath"
	"time"

	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/policy"
	"github.com/ergohq/ergo/internal/storage"
)

const (
	// PendingTTL discards pending corrections never followed by a scored
	// response, e.g. when a session ended right after injection.
	PendingTTL = 24 * time.Hour

	// OutcomeWindow bounds how far back rate computations look.
	OutcomeWindow = 30 * 24 * time.Hour
)

// Interpretation bands consumers apply to rates. Contracts, not decisions:
// this package only reports the numbers.
const (
	RateWorking  = 0.70
	RateMarginal = 0.50
)

// Pending is the slot written at injection time and consumed at the next
// scoring pass.
type Pending struct {
	StrategyID string    `json:"strategy_id"`
	QueryType  string    `json:"query_type"`
	Severity   string    `json:"severity"`
	Dimensions []string  `json:"dimensions"`
	AppliedAt  time.Time `json:"applied_at"`

	PrePadding  int     `json:"pre_padding"`
	PrePosition int     `json:"pre_position"`
	PreDensity  float64 `json:"pre_density"`
}

// Outcome is one judged correction, appended to the outcomes log.
type Outcome struct {
	StrategyID string          `json:"strategy_id"`
	QueryType  string          `json:"query_type"`
	Severity   string          `json:"severity"`
	Dimensions []string        `json:"dimensions"`
	AppliedAt  time.Time       `json:"applied_at"`
	JudgedAt   time.Time       `json:"judged_at"`
	Effective  bool            `json:"effective"`
	Details    map[string]bool `json:"details,omitempty"`
}

// Tracker owns the pending slot and the outcomes log under one directory.
type Tracker struct {
	pending      *storage.Slot
	outcomesPath string
}

// New returns a tracker rooted at the memory directory.
func New(memoryDir string) *Tracker {
	return &Tracker{
		pending:      storage.NewSlot(filepath.Join(memoryDir, "pending-correction.json")),
		outcomesPath: filepath.Join(memoryDir, "outcomes.jsonl"),
	}
}

// RecordPending notes that a correction flag was just injected, so the next
// scored response can be judged against the pre-correction metrics.
func (t *Tracker) RecordPending(f policy.Flag, now time.Time) error {
	return t.pending.Put(Pending{
		StrategyID:  f.StrategyID,
		QueryType:   f.QueryType,
		Severity:    f.Severity,
		Dimensions:  f.Dimensions(),
		AppliedAt:   now,
		PrePadding:  f.PrePadding,
		PrePosition: f.PrePosition,
		PreDensity:  f.PreDensity,
	})
}

// PendingCorrection reports the unconsumed pending slot without touching it,
// for status output.
func (t *Tracker) PendingCorrection() (Pending, bool) {
	var p Pending
	ok := t.pending.Peek(&p)
	return p, ok
}

// Evaluate consumes the pending correction, if any, and judges it against the
// newly scored record: effective only when every targeted dimension improved.
// Stale pendings past the TTL are dropped without producing an outcome.
func (t *Tracker) Evaluate(post ledger.Record, now time.Time) (*Outcome, error) {
	var p Pending
	ok, err := t.pending.Consume(&p)
	if err != nil || !ok {
		return nil, err
	}
	if now.Sub(p.AppliedAt) > PendingTTL {
		return nil, nil
	}

	details := map[string]bool{}
	effective := len(p.Dimensions) > 0
	for _, dim := range p.Dimensions {
		var improved bool
		switch dim {
		case drift.DimFiller:
			improved = post.PaddingCount < p.PrePadding
		case drift.DimPreamble:
			improved = post.AnswerPosition < p.PrePosition
		case drift.DimDensity:
			improved = post.InfoDensity > p.PreDensity
		}
		details[dim] = improved
		if !improved {
			effective = false
		}
	}

	outcome := &Outcome{
		StrategyID: p.StrategyID,
		QueryType:  p.QueryType,
		Severity:   p.Severity,
		Dimensions: p.Dimensions,
		AppliedAt:  p.AppliedAt,
		JudgedAt:   now,
		Effective:  effective,
		Details:    details,
	}
	if err := storage.AppendJSONL(t.outcomesPath, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// Outcomes loads judged outcomes newer than the rate window.
func (t *Tracker) Outcomes(now time.Time) ([]Outcome, int, error) {
	all, skipped, err := storage.DecodeJSONL[Outcome](t.outcomesPath)
	if err != nil {
		return nil, skipped, err
	}
	cutoff := now.Add(-OutcomeWindow)
	var recent []Outcome
	for _, o := range all {
		if !o.JudgedAt.Before(cutoff) {
			recent = append(recent, o)
		}
	}
	return recent, skipped, nil
}

// Rate computes effective/total over outcomes matching the given strategy and
// query type; an empty filter matches everything. The second return is false
// when no outcomes match — the rate is undefined, not zero.
func (t *Tracker) Rate(strategyID, queryType string, now time.Time) (float64, int, bool) {
	outcomes, _, err := t.Outcomes(now)
	if err != nil {
		return 0, 0, false
	}
	return RateOf(outcomes, strategyID, queryType)
}

// RateOf is the pure rate computation over an outcome slice.
func RateOf(outcomes []Outcome, strategyID, queryType string) (float64, int, bool) {
	total := 0
	effective := 0
	for _, o := range outcomes {
		if strategyID != "" && o.StrategyID != strategyID {
			continue
		}
		if queryType != "" && o.QueryType != queryType {
			continue
		}
		total++
		if o.Effective {
			effective++
		}
	}
	if total == 0 {
		return 0, 0, false
	}
	return float64(effective) / float64(total), total, true
}
