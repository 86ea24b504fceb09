package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ergohq/ergo/internal/consolidate"
	"github.com/ergohq/ergo/internal/fitness"
	"github.com/ergohq/ergo/internal/foundry"
	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/thresholds"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ergo status",
	Long: `Display the current state of scoring, drift, and learning.

Shows:
  - Rolling 7-day response stats
  - Effective thresholds
  - Validated and candidate patterns
  - Pending correction flag and staged foundry proposals
  - Strategy fitness rates

Examples:
  ergo status
  ergo status -o json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	DataDir       string                 `json:"data_dir"`
	Stats         *ledger.Stats          `json:"stats,omitempty"`
	Thresholds    thresholds.Document    `json:"thresholds"`
	Patterns      []consolidate.Pattern  `json:"patterns,omitempty"`
	PendingFlag   *pendingFlagBrief      `json:"pending_flag,omitempty"`
	PendingJudge  *fitness.Pending       `json:"pending_correction,omitempty"`
	StagedCount   int                    `json:"staged_proposals"`
	Staged        []foundry.Proposal     `json:"staged,omitempty"`
	StrategyRates []strategyRate         `json:"strategy_rates,omitempty"`
	SkippedLines  int                    `json:"skipped_lines"`
}

type pendingFlagBrief struct {
	StrategyID string    `json:"strategy_id"`
	Drift      string    `json:"drift"`
	Severity   string    `json:"severity"`
	CreatedAt  time.Time `json:"created_at"`
}

type strategyRate struct {
	StrategyID string  `json:"strategy_id"`
	Rate       float64 `json:"rate"`
	Outcomes   int     `json:"outcomes"`
	Band       string  `json:"band"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	now := time.Now().UTC()
	out := statusOutput{DataDir: a.Cfg.DataDir}

	// The layers live in independent files; gather them concurrently.
	var g errgroup.Group
	g.Go(func() error {
		if stats, ok := a.Ledger.RollingStats(7*24*time.Hour, now); ok {
			out.Stats = &stats
			out.SkippedLines = stats.SkippedLines
		}
		return nil
	})
	g.Go(func() error {
		doc, err := a.Thresholds.Load()
		if err != nil {
			doc = thresholds.Defaults()
		}
		out.Thresholds = doc
		return nil
	})
	g.Go(func() error {
		patterns, err := a.consolidator().LoadPatterns()
		if err == nil {
			out.Patterns = patterns
		}
		return nil
	})
	g.Go(func() error {
		staged, err := a.foundryStore().Load()
		if err == nil {
			out.Staged = staged
			out.StagedCount = len(staged)
		}
		return nil
	})
	g.Go(func() error {
		out.StrategyRates = collectStrategyRates(a, now)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if flag, ok := a.Flags.Pending(); ok {
		out.PendingFlag = &pendingFlagBrief{
			StrategyID: flag.StrategyID,
			Drift:      flag.Drift,
			Severity:   flag.Severity,
			CreatedAt:  flag.CreatedAt,
		}
	}
	if p, ok := a.Fitness.PendingCorrection(); ok {
		out.PendingJudge = &p
	}

	if GetOutput() == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printStatus(cmd, out)
	return nil
}

func collectStrategyRates(a *app, now time.Time) []strategyRate {
	outcomes, _, err := a.Fitness.Outcomes(now)
	if err != nil || len(outcomes) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var rates []strategyRate
	for _, o := range outcomes {
		if seen[o.StrategyID] {
			continue
		}
		seen[o.StrategyID] = true
		rate, total, ok := fitness.RateOf(outcomes, o.StrategyID, "")
		if !ok {
			continue
		}
		rates = append(rates, strategyRate{
			StrategyID: o.StrategyID,
			Rate:       rate,
			Outcomes:   total,
			Band:       rateBand(rate),
		})
	}
	return rates
}

func rateBand(rate float64) string {
	switch {
	case rate >= fitness.RateWorking:
		return "working"
	case rate >= fitness.RateMarginal:
		return "marginal"
	default:
		return "failing"
	}
}

func printStatus(cmd *cobra.Command, out statusOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Data dir: %s\n\n", out.DataDir)

	if out.Stats != nil {
		driftRate := 0.0
		if out.Stats.Responses > 0 {
			driftRate = float64(out.Stats.DriftCount) / float64(out.Stats.Responses)
		}
		fmt.Fprintf(w, "Last 7 days: %d responses, drift %.0f%%, density %.2f, avg %.0f words\n",
			out.Stats.Responses, driftRate*100, out.Stats.AvgDensity, out.Stats.AvgWords)
		if out.SkippedLines > 0 {
			fmt.Fprintf(w, "  (%d malformed ledger lines skipped)\n", out.SkippedLines)
		}
	} else {
		fmt.Fprintln(w, "No scored responses yet.")
	}

	fmt.Fprintf(w, "\nThresholds (v%d): density_min %.2f, filler_max %d\n",
		out.Thresholds.Version, out.Thresholds.Global.DensityMin, out.Thresholds.Global.FillerMax)
	for qt, ov := range out.Thresholds.Overrides {
		if ov.DensityMin != nil {
			fmt.Fprintf(w, "  %s: density_min %.2f\n", qt, *ov.DensityMin)
		}
		if ov.FillerMax != nil {
			fmt.Fprintf(w, "  %s: filler_max %d\n", qt, *ov.FillerMax)
		}
	}

	if len(out.Patterns) > 0 {
		fmt.Fprintf(w, "\nPatterns:\n")
		for _, p := range out.Patterns {
			fmt.Fprintf(w, "  %-10s %s on %s queries (%d sessions, %d days)\n",
				p.Status, p.Drift, p.Query, p.Sessions, p.Days)
		}
	}

	if out.PendingFlag != nil {
		fmt.Fprintf(w, "\nPending correction flag: %s (%s/%s)\n",
			out.PendingFlag.StrategyID, out.PendingFlag.Drift, out.PendingFlag.Severity)
	}
	if out.StagedCount > 0 {
		fmt.Fprintf(w, "\nStaged foundry proposals: %d (run `ergo foundry list`)\n", out.StagedCount)
	}

	if len(out.StrategyRates) > 0 {
		fmt.Fprintf(w, "\nStrategy fitness:\n")
		for _, r := range out.StrategyRates {
			fmt.Fprintf(w, "  %-24s %.2f over %d outcomes (%s)\n",
				r.StrategyID, r.Rate, r.Outcomes, r.Band)
		}
	}
}
