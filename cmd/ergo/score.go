package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ergohq/ergo/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score text for filler, preamble, and density",
	Long: `Score a response directly, reading from the given file or stdin.
Scoring is pure: no state is read or written.

Examples:
  ergo score response.txt
  cat response.txt | ergo score
  ergo score -o json response.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	m := scoring.Score(string(data))

	if GetOutput() == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Words:           %d\n", m.WordCount)
	fmt.Fprintf(out, "Answer position: %d\n", m.AnswerPosition)
	fmt.Fprintf(out, "Filler phrases:  %d\n", m.PaddingCount)
	if len(m.FillerPhrases) > 0 {
		fmt.Fprintf(out, "                 %s\n", strings.Join(m.FillerPhrases, ", "))
	}
	fmt.Fprintf(out, "Info density:    %.3f\n", m.InfoDensity)
	return nil
}
