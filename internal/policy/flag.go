package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/storage"
)

// Flag is the single live correction pending injection. At most one exists;
// a new drift overwrites an unconsumed flag (last drift wins), and consuming
// reads and clears it in one locked step.
type Flag struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Drift      string    `json:"drift"`
	Severity   string    `json:"severity"`
	QueryType  string    `json:"query_type"`
	Correction string    `json:"correction"`
	Reasons    []string  `json:"reasons"`
	CreatedAt  time.Time `json:"created_at"`

	// Pre-correction metrics, carried so the fitness tracker can judge the
	// next response against them.
	PrePadding  int     `json:"pre_padding"`
	PrePosition int     `json:"pre_position"`
	PreDensity  float64 `json:"pre_density"`
}

// Dimensions reconstructs the drifted dimensions from the flag's drift type
// and recorded reasons.
func (f Flag) Dimensions() []string {
	if f.Drift != "compound" {
		return []string{f.Drift}
	}
	var dims []string
	for _, reason := range f.Reasons {
		for _, dim := range []string{drift.DimFiller, drift.DimPreamble, drift.DimDensity} {
			if len(reason) >= len(dim) && reason[:len(dim)] == dim {
				dims = append(dims, dim)
			}
		}
	}
	return dims
}

// FlagStore is the single-slot transactional home of the live flag.
type FlagStore struct {
	slot *storage.Slot
}

// NewFlagStore returns the flag store backed by the document at path.
func NewFlagStore(path string) *FlagStore {
	return &FlagStore{slot: storage.NewSlot(path)}
}

// NewFlag builds a flag for a selected strategy and the event that fired it.
func NewFlag(st Strategy, ev *drift.Event, now time.Time) Flag {
	return Flag{
		ID:          uuid.NewString(),
		StrategyID:  st.ID,
		Drift:       ev.Type(),
		Severity:    ev.Severity,
		QueryType:   ev.QueryType,
		Correction:  FormatTemplate(st.Template, ev),
		Reasons:     ev.Reasons,
		CreatedAt:   now,
		PrePadding:  ev.Record.PaddingCount,
		PrePosition: ev.Record.AnswerPosition,
		PreDensity:  ev.Record.InfoDensity,
	}
}

// Write replaces any unconsumed flag. Non-blocking: background detection
// drops the flag write rather than stall behind a concurrent consumer.
func (fs *FlagStore) Write(f Flag) error {
	return fs.slot.TryPut(f)
}

// Consume atomically reads and clears the live flag. A second consume with
// no intervening write returns ok=false — the idempotence contract that lets
// exactly one downstream context receive the correction.
func (fs *FlagStore) Consume() (Flag, bool, error) {
	var f Flag
	ok, err := fs.slot.Consume(&f)
	return f, ok, err
}

// Pending reports the live flag without consuming it, for status output.
func (fs *FlagStore) Pending() (Flag, bool) {
	var f Flag
	ok := fs.slot.Peek(&f)
	return f, ok
}
