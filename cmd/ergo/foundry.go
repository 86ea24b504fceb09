package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ergohq/ergo/internal/foundry"
)

func init() {
	foundryCmd := &cobra.Command{
		Use:   "foundry",
		Short: "Analyze, stage, and apply policy proposals",
		Long: `The foundry evolves the correction policy in two strict phases.

Analyze reads patterns and outcome fitness and derives proposals; stage
persists them for review. Nothing changes until you approve: apply is the
only operation that mutates the live policy table or thresholds, and it
acts solely on the proposal ids you name.

Examples:
  ergo foundry analyze
  ergo foundry stage
  ergo foundry list
  ergo foundry apply <id> [<id>...]
  ergo foundry reject <id> [<id>...]`,
	}

	foundryCmd.AddCommand(
		&cobra.Command{Use: "analyze", Short: "Derive proposals without staging them", RunE: runFoundryAnalyze},
		&cobra.Command{Use: "stage", Short: "Analyze and stage new proposals", RunE: runFoundryStage},
		&cobra.Command{Use: "list", Short: "List staged proposals", RunE: runFoundryList},
		&cobra.Command{Use: "apply <id>...", Short: "Apply approved proposals", Args: cobra.MinimumNArgs(1), RunE: runFoundryApply},
		&cobra.Command{Use: "reject <id>...", Short: "Discard staged proposals", Args: cobra.MinimumNArgs(1), RunE: runFoundryReject},
	)
	rootCmd.AddCommand(foundryCmd)
}

// analysisInput gathers the read-only snapshot the analyzer works from.
func analysisInput(a *app, now time.Time) (foundry.Input, error) {
	patterns, err := a.consolidator().LoadPatterns()
	if err != nil {
		return foundry.Input{}, fmt.Errorf("load patterns: %w", err)
	}
	table, err := a.Policy.Load()
	if err != nil {
		return foundry.Input{}, err
	}
	outcomes, _, err := a.Fitness.Outcomes(now)
	if err != nil {
		return foundry.Input{}, err
	}
	summaries, err := a.consolidator().Summaries(now)
	if err != nil {
		return foundry.Input{}, err
	}
	return foundry.Input{
		Patterns:     patterns,
		Table:        table,
		Outcomes:     outcomes,
		SessionCount: len(summaries),
		Now:          now,
	}, nil
}

func runFoundryAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	in, err := analysisInput(a, time.Now().UTC())
	if err != nil {
		return err
	}
	proposals := foundry.Analyze(in)

	if GetOutput() == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(proposals)
	}
	if len(proposals) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No proposals: policy fits the observed data.")
		return nil
	}
	printProposals(cmd, proposals)
	return nil
}

func runFoundryStage(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	in, err := analysisInput(a, time.Now().UTC())
	if err != nil {
		return err
	}
	proposals := foundry.Analyze(in)
	added, err := a.foundryStore().Stage(proposals)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Staged %d new proposals (%d analyzed).\n", added, len(proposals))
	return nil
}

func runFoundryList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	staged, err := a.foundryStore().Load()
	if err != nil {
		return err
	}
	if GetOutput() == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(staged)
	}
	if len(staged) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing staged.")
		return nil
	}
	printProposals(cmd, staged)
	return nil
}

func printProposals(cmd *cobra.Command, proposals []foundry.Proposal) {
	w := cmd.OutOrStdout()
	for _, p := range proposals {
		fmt.Fprintf(w, "%s  %-11s %s/%s/%s\n", p.ID, p.Type, p.Drift, p.Severity, p.Query)
		fmt.Fprintf(w, "    %s\n", p.Reason)
		if p.SuggestedTemplate != "" {
			fmt.Fprintf(w, "    template: %s\n", p.SuggestedTemplate)
		}
	}
}

func runFoundryApply(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.foundryApplier().Apply(args)
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func runFoundryReject(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.foundryApplier().Reject(args)
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func printResult(cmd *cobra.Command, res foundry.Result) {
	w := cmd.OutOrStdout()
	if len(res.Applied) > 0 {
		fmt.Fprintf(w, "Applied: %s\n", strings.Join(res.Applied, ", "))
	}
	if len(res.Rejected) > 0 {
		fmt.Fprintf(w, "Rejected: %s\n", strings.Join(res.Rejected, ", "))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped (not staged): %s\n", strings.Join(res.Skipped, ", "))
	}
	for _, note := range res.Notes {
		fmt.Fprintf(w, "  %s\n", note)
	}
}
