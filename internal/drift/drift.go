// Package drift evaluates score records against effective thresholds. The
// evaluation is stateless: a drift event is recomputed on demand from the
// record and thresholds, never persisted on its own.
package drift

import (
	"fmt"
	"strings"

	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/thresholds"
)

// Drift dimensions.
const (
	DimFiller   = "filler"
	DimPreamble = "preamble"
	DimDensity  = "density"
)

// Severities, in ascending precedence. Compound beats high beats low when
// multiple rules would apply.
const (
	SeverityLow      = "low"
	SeverityHigh     = "high"
	SeverityCompound = "compound"
)

// Margins separating low from high severity on a single dimension.
const (
	highFillerCount   = 3
	highPreambleWords = 10
	highDensityGap    = 0.10
	lowDensityBand    = 0.02
)

// Event is one detected drift: which dimensions moved, how far, and the
// record that produced it.
type Event struct {
	Dimensions []string
	Severity   string
	QueryType  string
	Reasons    []string
	Record     ledger.Record
}

// Type is the policy-table drift key: the single drifted dimension, or
// "compound" when two or more dimensions drifted together.
func (e *Event) Type() string {
	if len(e.Dimensions) > 1 {
		return "compound"
	}
	return e.Dimensions[0]
}

// Evaluate compares a record against the effective thresholds for its query
// type. Returns nil when nothing drifted.
func Evaluate(rec ledger.Record, th thresholds.Threshold) *Event {
	var dims, reasons []string

	if rec.PaddingCount > th.FillerMax {
		dims = append(dims, DimFiller)
		reasons = append(reasons, fmt.Sprintf("filler:%d", rec.PaddingCount))
	}
	if rec.AnswerPosition > 0 {
		dims = append(dims, DimPreamble)
		reasons = append(reasons, fmt.Sprintf("preamble:%dw", rec.AnswerPosition))
	}
	if rec.InfoDensity < th.DensityMin {
		dims = append(dims, DimDensity)
		reasons = append(reasons, fmt.Sprintf("density:%.3f", rec.InfoDensity))
	}

	if len(dims) == 0 {
		return nil
	}

	return &Event{
		Dimensions: dims,
		Severity:   classifySeverity(rec, dims, th),
		QueryType:  rec.QueryType,
		Reasons:    reasons,
		Record:     rec,
	}
}

// classifySeverity: compound for 2+ dimensions regardless of margins; high
// when a single dimension moved far past its threshold; low otherwise,
// including the marginal band just past the threshold.
func classifySeverity(rec ledger.Record, dims []string, th thresholds.Threshold) string {
	if len(dims) >= 2 {
		return SeverityCompound
	}
	switch dims[0] {
	case DimFiller:
		if rec.PaddingCount >= highFillerCount {
			return SeverityHigh
		}
	case DimPreamble:
		if rec.AnswerPosition >= highPreambleWords {
			return SeverityHigh
		}
	case DimDensity:
		if th.DensityMin-rec.InfoDensity > highDensityGap {
			return SeverityHigh
		}
	}
	return SeverityLow
}

// Describe renders the event's reasons as a single comma-joined string for
// correction templates and logs.
func (e *Event) Describe() string {
	return strings.Join(e.Reasons, ", ")
}
