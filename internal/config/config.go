// Package config provides configuration management for ergo.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (ERGO_*)
// 3. Project config (.ergo/config.yaml in cwd)
// 4. Home config (~/.ergo/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Injection points for assembled context.
const (
	InjectSessionStart = "session-start"
	InjectPrompt       = "prompt"
)

// Config holds all ergo configuration.
type Config struct {
	// Output controls the default output format (table, json).
	Output string `yaml:"output" json:"output"`

	// DataDir is the ergo data directory (default: ~/.ergo).
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Inject settings
	Inject InjectConfig `yaml:"inject" json:"inject"`

	// Judge settings
	Judge JudgeConfig `yaml:"judge" json:"judge"`

	// Retention settings
	Retention RetentionConfig `yaml:"retention" json:"retention"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InjectConfig holds context-injection settings.
type InjectConfig struct {
	// Point selects where assembled context enters the session.
	// Values: "session-start" (default), "prompt".
	Point string `yaml:"point" json:"point"`

	// StatsGapHours is the idle gap after which rolling stats are
	// injected even on a fresh startup. Default: 4.
	StatsGapHours float64 `yaml:"stats_gap_hours" json:"stats_gap_hours"`

	// AnchorFile is the behavioral anchor path, relative to DataDir
	// unless absolute. Default: anchor.txt.
	AnchorFile string `yaml:"anchor_file" json:"anchor_file"`
}

// JudgeConfig holds the optional LLM-judge settings.
type JudgeConfig struct {
	// Command is the external judge binary; empty disables the judge.
	Command string `yaml:"command" json:"command"`

	// Args are passed to the judge command.
	Args []string `yaml:"args" json:"args"`

	// TimeoutSeconds bounds one judge invocation. Default: 10.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RetentionConfig holds ledger and memory retention settings.
type RetentionConfig struct {
	// RotateDays is the active-segment rotation period. Default: 7.
	RotateDays int `yaml:"rotate_days" json:"rotate_days"`

	// KeepSegments is how many rotated segments survive pruning.
	// Default: 4.
	KeepSegments int `yaml:"keep_segments" json:"keep_segments"`

	// SummaryDays is the session-summary retention window. Default: 30.
	SummaryDays int `yaml:"summary_days" json:"summary_days"`
}

// LoggingConfig holds structured-log settings.
type LoggingConfig struct {
	// Level is the minimum level written (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`

	// File overrides the log path; default is <DataDir>/logs/ergo.log.
	File string `yaml:"file" json:"file"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput        = "table"
	defaultInjectPoint   = InjectSessionStart
	defaultStatsGapHours = 4.0
	defaultAnchorFile    = "anchor.txt"
	defaultJudgeTimeout  = 10
	defaultRotateDays    = 7
	defaultKeepSegments  = 4
	defaultSummaryDays   = 30
	defaultLogLevel      = "info"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Output:  defaultOutput,
		DataDir: filepath.Join(homeDir, ".ergo"),
		Verbose: false,
		Inject: InjectConfig{
			Point:         defaultInjectPoint,
			StatsGapHours: defaultStatsGapHours,
			AnchorFile:    defaultAnchorFile,
		},
		Judge: JudgeConfig{
			TimeoutSeconds: defaultJudgeTimeout,
		},
		Retention: RetentionConfig{
			RotateDays:   defaultRotateDays,
			KeepSegments: defaultKeepSegments,
			SummaryDays:  defaultSummaryDays,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// AnchorPath resolves the anchor file against DataDir.
func (c *Config) AnchorPath() string {
	if filepath.IsAbs(c.Inject.AnchorFile) {
		return c.Inject.AnchorFile
	}
	return filepath.Join(c.DataDir, c.Inject.AnchorFile)
}

// MemoryDir is where consolidation and fitness state lives.
func (c *Config) MemoryDir() string {
	return filepath.Join(c.DataDir, "memory")
}

// LogPath resolves the structured-log destination.
func (c *Config) LogPath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.DataDir, "logs", "ergo.log")
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ergo", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("ERGO_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".ergo", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("ERGO_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("ERGO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ERGO_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("ERGO_INJECT_POINT"); v != "" {
		cfg.Inject.Point = v
	}
	if v := os.Getenv("ERGO_JUDGE_COMMAND"); v != "" {
		cfg.Judge.Command = v
	}
	if v := os.Getenv("ERGO_JUDGE_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Judge.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("ERGO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeFloat overwrites dst with src when src is non-zero.
func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.DataDir, src.DataDir)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeStr(&dst.Inject.Point, src.Inject.Point)
	mergeFloat(&dst.Inject.StatsGapHours, src.Inject.StatsGapHours)
	mergeStr(&dst.Inject.AnchorFile, src.Inject.AnchorFile)

	mergeStr(&dst.Judge.Command, src.Judge.Command)
	if len(src.Judge.Args) > 0 {
		dst.Judge.Args = src.Judge.Args
	}
	mergeInt(&dst.Judge.TimeoutSeconds, src.Judge.TimeoutSeconds)

	mergeInt(&dst.Retention.RotateDays, src.Retention.RotateDays)
	mergeInt(&dst.Retention.KeepSegments, src.Retention.KeepSegments)
	mergeInt(&dst.Retention.SummaryDays, src.Retention.SummaryDays)

	mergeStr(&dst.Logging.Level, src.Logging.Level)
	mergeStr(&dst.Logging.File, src.Logging.File)

	return dst
}
