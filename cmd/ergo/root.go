package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ergohq/ergo/internal/config"
	"github.com/ergohq/ergo/internal/consolidate"
	"github.com/ergohq/ergo/internal/fitness"
	"github.com/ergohq/ergo/internal/foundry"
	"github.com/ergohq/ergo/internal/inject"
	"github.com/ergohq/ergo/internal/judge"
	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/logging"
	"github.com/ergohq/ergo/internal/policy"
	"github.com/ergohq/ergo/internal/thresholds"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string
	dataDir string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ergo",
	Short: "Response discipline engine for Claude Code sessions",
	Long: `ergo scores every assistant response for filler, preamble, and
information density, detects drift against calibrated thresholds, and feeds
one targeted correction back into the next session.

Hook Commands (wired into Claude Code settings):
  hook prompt         Classify the query, optionally inject a correction
  hook stop           Score the last response, detect drift
  hook session-start  Inject anchor, correction, and rolling stats
  hook pre-compact    Consolidate session summaries before compaction
  hook observe        Log tool usage

Core Commands:
  init         Seed the data directory and print hook config
  score        Score text directly
  classify     Classify a query
  watch        Tail scored responses live
  status       Show ledger, thresholds, patterns, and pending work
  calibrate    Inspect or adjust drift thresholds
  consolidate  Mine session summaries into patterns
  foundry      Analyze, stage, and apply policy proposals
  doctor       Check data-file health

All learning is observable and every policy change is human-gated.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.ergo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.ergo)")
}

// GetOutput returns the output format for use by subcommands.
func GetOutput() string {
	return output
}

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool {
	return verbose
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("ERGO_CONFIG", path)
}

// app bundles the wired components every subcommand works through.
type app struct {
	Cfg        *config.Config
	Log        *zap.Logger
	Ledger     *ledger.Ledger
	Thresholds *thresholds.Store
	Policy     *policy.Store
	Flags      *policy.FlagStore
	Fitness    *fitness.Tracker
	Judge      *judge.Judge
}

// newApp loads config and wires the component graph. The data directory is
// created on first use.
func newApp() (*app, error) {
	overrides := &config.Config{Output: "", DataDir: dataDir, Verbose: verbose}
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.MemoryDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	log := logging.New(cfg.LogPath(), cfg.Logging.Level, cfg.Verbose)

	led := ledger.New(cfg.DataDir)
	if cfg.Retention.KeepSegments > 0 {
		led.KeepSegments = cfg.Retention.KeepSegments
	}

	j := judge.New(cfg.Judge.Command, cfg.Judge.Args...)
	j.Timeout = time.Duration(cfg.Judge.TimeoutSeconds) * time.Second

	return &app{
		Cfg:        cfg,
		Log:        log,
		Ledger:     led,
		Thresholds: thresholds.NewStore(filepath.Join(cfg.DataDir, "thresholds.json")),
		Policy:     policy.NewStore(filepath.Join(cfg.DataDir, "corrections.json")),
		Flags:      policy.NewFlagStore(filepath.Join(cfg.DataDir, "drift-flag.json")),
		Fitness:    fitness.New(cfg.MemoryDir()),
		Judge:      j,
	}, nil
}

// close flushes the logger.
func (a *app) close() {
	_ = a.Log.Sync()
}

// consolidator wires the session consolidator on demand.
func (a *app) consolidator() *consolidate.Consolidator {
	return consolidate.New(a.Ledger, a.Thresholds, a.Cfg.MemoryDir())
}

// assembler wires the context-injection assembler on demand.
func (a *app) assembler() *inject.Assembler {
	return &inject.Assembler{
		Cfg:     a.Cfg,
		Flags:   a.Flags,
		Fitness: a.Fitness,
		Ledger:  a.Ledger,
		Log:     a.Log,
	}
}

// foundryStore wires the staged-proposal store on demand.
func (a *app) foundryStore() *foundry.Store {
	return foundry.NewStore(filepath.Join(a.Cfg.MemoryDir(), "staged.json"))
}

// foundryApplier wires the gated applier on demand.
func (a *app) foundryApplier() *foundry.Applier {
	return &foundry.Applier{
		Staged:     a.foundryStore(),
		Table:      a.Policy,
		Thresholds: a.Thresholds,
	}
}
