package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Inspect or adjust drift thresholds",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective thresholds document",
		RunE:  runCalibrateShow,
	}

	setCmd := &cobra.Command{
		Use:   "set <scope> <field> <value>",
		Short: "Set one threshold field, bounds-checked",
		Long: `Set a threshold field for the global scope or one query type.

Fields: density_min (0.40-0.80), filler_max (0-2).
An out-of-bounds value is rejected and the on-disk document is untouched.

Examples:
  ergo calibrate set global density_min 0.55
  ergo calibrate set code density_min 0.45
  ergo calibrate set emotional filler_max 2`,
		Args: cobra.ExactArgs(3),
		RunE: runCalibrateSet,
	}

	calibrateCmd.AddCommand(showCmd, setCmd)
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrateShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.Thresholds.Load()
	if err != nil {
		return err
	}
	if GetOutput() == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Version: %d\n", doc.Version)
	fmt.Fprintf(w, "Global:  density_min %.2f, filler_max %d\n", doc.Global.DensityMin, doc.Global.FillerMax)
	for qt, ov := range doc.Overrides {
		fmt.Fprintf(w, "  %s:", qt)
		if ov.DensityMin != nil {
			fmt.Fprintf(w, " density_min %.2f", *ov.DensityMin)
		}
		if ov.FillerMax != nil {
			fmt.Fprintf(w, " filler_max %d", *ov.FillerMax)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func runCalibrateSet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	scope, field := args[0], args[1]
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("parse value %q: %w", args[2], err)
	}

	doc, err := a.Thresholds.Set(scope, field, value)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = %s (document now v%d)\n", scope, field, args[2], doc.Version)
	return nil
}
