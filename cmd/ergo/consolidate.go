package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ergohq/ergo/internal/consolidate"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Mine session summaries into validated patterns",
	Long: `Group ledger records by session, summarize each session, and mine
recurring drift observations into patterns. A pattern validates only after
appearing in at least 5 sessions spanning at least 3 calendar days.

Runs automatically on the pre-compact hook; run manually to force a pass.

Examples:
  ergo consolidate
  ergo consolidate --rotate
  ergo consolidate -o json`,
	RunE: runConsolidate,
}

var consolidateRotate bool

func init() {
	consolidateCmd.Flags().BoolVar(&consolidateRotate, "rotate", false,
		"rotate the active ledger segment before consolidating")
	rootCmd.AddCommand(consolidateCmd)
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	now := time.Now().UTC()
	if consolidateRotate {
		if err := a.Ledger.Rotate(now); err != nil {
			return fmt.Errorf("rotate ledger: %w", err)
		}
	}

	report, err := a.consolidator().Run(now)
	if err != nil {
		return err
	}

	if GetOutput() == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := cmd.OutOrStdout()
	if report.Status == consolidate.ReportInsufficient {
		fmt.Fprintf(w, "Insufficient data: %d of %d sessions required.\n",
			report.SessionsAnalyzed, report.SessionsRequired)
		return nil
	}
	fmt.Fprintf(w, "Consolidated %d sessions: %d validated patterns\n",
		report.SessionsAnalyzed, report.PatternsValidated)
	if len(report.PatternsAdded) > 0 {
		fmt.Fprintf(w, "  newly validated: %s\n", strings.Join(report.PatternsAdded, ", "))
	}
	if len(report.PatternsStaled) > 0 {
		fmt.Fprintf(w, "  demoted stale:   %s\n", strings.Join(report.PatternsStaled, ", "))
	}
	if report.SkippedLines > 0 {
		fmt.Fprintf(w, "  %d malformed ledger lines skipped\n", report.SkippedLines)
	}
	return nil
}
