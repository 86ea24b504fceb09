package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check ergo data-file health",
	Long: `Run health checks on the ergo data directory.

Validates that the config documents parse, counts malformed ledger lines,
and reports pending state that might be stuck.

Examples:
  ergo doctor
  ergo doctor -o json`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "warn", "fail"
	Detail string `json:"detail"`
}

type doctorOutput struct {
	Checks []doctorCheck `json:"checks"`
	Result string        `json:"result"` // "HEALTHY", "DEGRADED", "UNHEALTHY"
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	checks := []doctorCheck{
		{Name: "ergo CLI", Status: "pass", Detail: "v" + version},
		checkDataDir(a),
		checkThresholds(a),
		checkPolicyTable(a),
		checkLedger(a),
		checkAnchor(a),
		checkStaleFlag(a),
	}

	result := "HEALTHY"
	for _, c := range checks {
		if c.Status == "fail" {
			result = "UNHEALTHY"
			break
		}
		if c.Status == "warn" {
			result = "DEGRADED"
		}
	}
	out := doctorOutput{Checks: checks, Result: result}

	if GetOutput() == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	w := cmd.OutOrStdout()
	for _, c := range checks {
		fmt.Fprintf(w, "%s %-16s %s\n", doctorStatusIcon(c.Status), c.Name, c.Detail)
	}
	fmt.Fprintf(w, "\n%s\n", result)
	return nil
}

func doctorStatusIcon(status string) string {
	switch status {
	case "pass":
		return "✓"
	case "warn":
		return "!"
	case "fail":
		return "✗"
	}
	return "?"
}

func checkDataDir(a *app) doctorCheck {
	info, err := os.Stat(a.Cfg.DataDir)
	if err != nil || !info.IsDir() {
		return doctorCheck{Name: "data dir", Status: "fail", Detail: a.Cfg.DataDir + " missing"}
	}
	return doctorCheck{Name: "data dir", Status: "pass", Detail: a.Cfg.DataDir}
}

func checkThresholds(a *app) doctorCheck {
	doc, err := a.Thresholds.Load()
	if err != nil {
		return doctorCheck{Name: "thresholds", Status: "fail", Detail: err.Error()}
	}
	return doctorCheck{Name: "thresholds", Status: "pass",
		Detail: fmt.Sprintf("v%d, density_min %.2f, filler_max %d", doc.Version, doc.Global.DensityMin, doc.Global.FillerMax)}
}

func checkPolicyTable(a *app) doctorCheck {
	table, err := a.Policy.Load()
	if err != nil {
		return doctorCheck{Name: "policy table", Status: "fail", Detail: err.Error()}
	}
	silent := 0
	for _, st := range table.Strategies {
		if st.NoCorrection() {
			silent++
		}
	}
	return doctorCheck{Name: "policy table", Status: "pass",
		Detail: fmt.Sprintf("v%d, %d strategies (%d no-correction)", table.Version, len(table.Strategies), silent)}
}

func checkLedger(a *app) doctorCheck {
	records, skipped, err := a.Ledger.Records()
	if err != nil {
		return doctorCheck{Name: "ledger", Status: "fail", Detail: err.Error()}
	}
	detail := fmt.Sprintf("%d records", len(records))
	if skipped > 0 {
		return doctorCheck{Name: "ledger", Status: "warn",
			Detail: fmt.Sprintf("%s, %d malformed lines skipped", detail, skipped)}
	}
	return doctorCheck{Name: "ledger", Status: "pass", Detail: detail}
}

func checkAnchor(a *app) doctorCheck {
	path := a.Cfg.AnchorPath()
	if _, err := os.Stat(path); err != nil {
		return doctorCheck{Name: "anchor", Status: "warn",
			Detail: filepath.Base(path) + " missing; run `ergo init` to seed one"}
	}
	return doctorCheck{Name: "anchor", Status: "pass", Detail: path}
}

// checkStaleFlag warns about a correction flag that nothing has consumed,
// which usually means the session-start hook is not wired.
func checkStaleFlag(a *app) doctorCheck {
	flag, ok := a.Flags.Pending()
	if !ok {
		return doctorCheck{Name: "correction flag", Status: "pass", Detail: "empty"}
	}
	age := time.Since(flag.CreatedAt)
	if age > 24*time.Hour {
		return doctorCheck{Name: "correction flag", Status: "warn",
			Detail: fmt.Sprintf("unconsumed for %s; is the session-start hook wired?", age.Round(time.Hour))}
	}
	return doctorCheck{Name: "correction flag", Status: "pass",
		Detail: fmt.Sprintf("pending %s", flag.StrategyID)}
}
