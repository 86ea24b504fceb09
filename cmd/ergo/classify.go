package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ergohq/ergo/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <query>",
	Short: "Classify a query into its type",
	Long: `Classify a query into one of: ` + strings.Join(classify.Types(), ", ") + `.

Examples:
  ergo classify "why is my test failing"
  ergo classify -o json "write a parser for this format"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	qt := classify.Classify(query)

	if GetOutput() == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
			"query":      query,
			"query_type": qt,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), qt)
	return nil
}
