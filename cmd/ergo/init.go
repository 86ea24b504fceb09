package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ergohq/ergo/embedded"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the data directory and print the hook configuration",
	Long: `Creates the ergo data directory, seeds the default behavioral anchor,
and prints the hooks snippet to merge into Claude Code settings
(~/.claude/settings.json).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing anchor file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	anchorPath := a.Cfg.AnchorPath()
	if _, err := os.Stat(anchorPath); err == nil && !initForce {
		fmt.Printf("anchor exists at %s (use --force to overwrite)\n", anchorPath)
	} else {
		if err := os.WriteFile(anchorPath, embedded.DefaultAnchor, 0o644); err != nil {
			return fmt.Errorf("seed anchor: %w", err)
		}
		fmt.Printf("seeded anchor at %s\n", anchorPath)
	}

	fmt.Printf("data directory: %s\n\n", a.Cfg.DataDir)
	fmt.Println("Merge into ~/.claude/settings.json:")
	fmt.Println(string(embedded.HooksJSON))
	return nil
}
