package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ergohq/ergo/internal/ledger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail scored responses live",
	Long: `Watch the data directory and print each score as the stop hook
appends it, plus drift-flag raises. Useful while tuning thresholds.

Examples:
  ergo watch
  ergo watch -o json`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(a.Cfg.DataDir); err != nil {
		return fmt.Errorf("watch %s: %w", a.Cfg.DataDir, err)
	}

	offset := ledgerRecordCount(a.Ledger)
	activeName := filepath.Base(a.Ledger.ActivePath())
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", a.Cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	// Writers append then rename; coalesce the burst before re-reading.
	var pending bool
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(ev.Name)
			if base == activeName && ev.Has(fsnotify.Write|fsnotify.Create) {
				if !pending {
					pending = true
					debounce.Reset(200 * time.Millisecond)
				}
			}
			if base == "drift-flag.json" && ev.Has(fsnotify.Write|fsnotify.Create) {
				printFlagRaise(cmd, a)
			}
		case <-debounce.C:
			pending = false
			offset = printNewRecords(cmd, a.Ledger, offset)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.Log.Warn("watch error: " + err.Error())
		case <-sig:
			return nil
		}
	}
}

func ledgerRecordCount(l *ledger.Ledger) int {
	records, _, err := l.Records()
	if err != nil {
		return 0
	}
	return len(records)
}

func printNewRecords(cmd *cobra.Command, l *ledger.Ledger, offset int) int {
	records, _, err := l.Records()
	if err != nil || len(records) <= offset {
		return offset
	}
	w := cmd.OutOrStdout()
	for _, rec := range records[offset:] {
		if GetOutput() == "json" {
			_ = json.NewEncoder(w).Encode(rec)
			continue
		}
		marker := " "
		if rec.Drifted() {
			marker = "!"
		}
		fmt.Fprintf(w, "%s %s  %-10s %4dw  pos %2d  filler %d  density %.3f\n",
			marker, rec.Timestamp.Format("15:04:05"), rec.QueryType,
			rec.WordCount, rec.AnswerPosition, rec.PaddingCount, rec.InfoDensity)
	}
	return len(records)
}

func printFlagRaise(cmd *cobra.Command, a *app) {
	flag, ok := a.Flags.Pending()
	if !ok {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "* correction flag raised: %s (%s/%s) %q\n",
		flag.StrategyID, flag.Drift, flag.Severity, flag.Correction)
}
