// Package inject assembles the context block delivered back into a session.
// Three named layers, in order: the behavioral anchor (always), a pending
// drift correction (consumed from the single-slot flag), and rolling stats
// (only on resume, post-compaction, or after a long idle gap). Every layer is
// best-effort; an unreadable layer is skipped, never an error.
package inject

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ergohq/ergo/internal/config"
	"github.com/ergohq/ergo/internal/fitness"
	"github.com/ergohq/ergo/internal/hookio"
	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/policy"
)

// statsWindow is the rolling-stats aggregation window.
const statsWindow = 7 * 24 * time.Hour

// Assembler builds the injected context from its layers.
type Assembler struct {
	Cfg     *config.Config
	Flags   *policy.FlagStore
	Fitness *fitness.Tracker
	Ledger  *ledger.Ledger
	Log     *zap.Logger
}

// Assemble returns the context block for a session starting from the given
// source. Empty result means nothing to inject.
func (a *Assembler) Assemble(source string, now time.Time) string {
	var parts []string

	if anchor := a.loadAnchor(); anchor != "" {
		parts = append(parts, anchor)
	}
	if correction := a.loadCorrection(now); correction != "" {
		parts = append(parts, correction)
	}
	if stats := a.loadStats(source, now); stats != "" {
		parts = append(parts, stats)
	}

	return strings.Join(parts, "\n")
}

// Correction returns only the correction layer. Used when the injection
// point is the prompt hook, where the anchor and stats would repeat on every
// turn.
func (a *Assembler) Correction(now time.Time) string {
	return a.loadCorrection(now)
}

// loadAnchor reads the behavioral anchor. Always injected when present.
func (a *Assembler) loadAnchor() string {
	data, err := os.ReadFile(a.Cfg.AnchorPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// loadCorrection consumes the pending drift flag. Consumption and delivery
// are one step: a consumed correction is recorded as pending for the fitness
// tracker before it reaches the session.
func (a *Assembler) loadCorrection(now time.Time) string {
	flag, ok, err := a.Flags.Consume()
	if err != nil {
		a.Log.Warn("correction flag consume failed", zap.Error(err))
		return ""
	}
	if !ok || flag.Correction == "" {
		return ""
	}
	if err := a.Fitness.RecordPending(flag, now); err != nil {
		a.Log.Warn("record pending correction failed", zap.Error(err))
	}
	return flag.Correction
}

// loadStats injects rolling stats on resume or post-compaction, or on a
// fresh startup after a long idle gap.
func (a *Assembler) loadStats(source string, now time.Time) string {
	if source != hookio.SourceResume && source != hookio.SourceCompact {
		age, ok := a.Ledger.LastRecordAge(now)
		gap := time.Duration(a.Cfg.Inject.StatsGapHours * float64(time.Hour))
		if !ok || age < gap {
			return ""
		}
	}

	stats, ok := a.Ledger.RollingStats(statsWindow, now)
	if !ok || stats.Responses == 0 {
		return ""
	}
	driftRate := float64(stats.DriftCount) / float64(stats.Responses)
	return fmt.Sprintf("[7d: %d responses, drift %.0f%%, density %.2f, avg %.0fw]",
		stats.Responses, driftRate*100, stats.AvgDensity, stats.AvgWords)
}
