package main

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Go      string `json:"go"`
}

func runVersion(cmd *cobra.Command, args []string) {
	info := versionInfo{Version: version}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Go = bi.GoVersion
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 12 {
				info.Commit = s.Value[:12]
			}
		}
	}

	w := cmd.OutOrStdout()
	if GetOutput() == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(info) //nolint:errcheck
		return
	}
	line := "ergo " + info.Version
	if info.Commit != "" {
		line += " (" + info.Commit + ")"
	}
	if info.Go != "" {
		line += " " + info.Go
	}
	fmt.Fprintln(w, line)
}
