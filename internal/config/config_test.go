package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ERGO_CONFIG", filepath.Join(home, "nonexistent.yaml"))
	return home
}

func TestDefault(t *testing.T) {
	isolate(t)
	cfg := Default()
	if cfg.Output != "table" {
		t.Errorf("Output = %q, want table", cfg.Output)
	}
	if cfg.Inject.Point != InjectSessionStart {
		t.Errorf("Inject.Point = %q, want %q", cfg.Inject.Point, InjectSessionStart)
	}
	if cfg.Inject.StatsGapHours != 4 {
		t.Errorf("StatsGapHours = %v, want 4", cfg.Inject.StatsGapHours)
	}
	if cfg.Judge.Command != "" {
		t.Errorf("Judge.Command = %q, want empty (judge disabled)", cfg.Judge.Command)
	}
	if cfg.Retention.RotateDays != 7 || cfg.Retention.KeepSegments != 4 {
		t.Errorf("Retention = %+v, want rotate 7 keep 4", cfg.Retention)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != filepath.Join(home, ".ergo") {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, filepath.Join(home, ".ergo"))
	}
}

func TestLoad_HomeConfig(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".ergo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	yaml := "output: json\ninject:\n  point: prompt\n  stats_gap_hours: 8\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output != "json" {
		t.Errorf("Output = %q, want json", cfg.Output)
	}
	if cfg.Inject.Point != InjectPrompt {
		t.Errorf("Inject.Point = %q, want prompt", cfg.Inject.Point)
	}
	if cfg.Inject.StatsGapHours != 8 {
		t.Errorf("StatsGapHours = %v, want 8", cfg.Inject.StatsGapHours)
	}
	// Unset fields keep their defaults.
	if cfg.Retention.RotateDays != 7 {
		t.Errorf("RotateDays = %d, want default 7", cfg.Retention.RotateDays)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".ergo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("output: json\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("ERGO_OUTPUT", "table")
	t.Setenv("ERGO_JUDGE_COMMAND", "judge-cli")
	t.Setenv("ERGO_JUDGE_TIMEOUT", "20")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output != "table" {
		t.Errorf("Output = %q, want env override table", cfg.Output)
	}
	if cfg.Judge.Command != "judge-cli" || cfg.Judge.TimeoutSeconds != 20 {
		t.Errorf("Judge = %+v, want judge-cli with timeout 20", cfg.Judge)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("ERGO_DATA_DIR", "/env/dir")

	cfg, err := Load(&Config{DataDir: "/flag/dir", Verbose: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/flag/dir" {
		t.Errorf("DataDir = %q, want flag override", cfg.DataDir)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true from flag")
	}
}

func TestLoad_ProjectConfigViaErgoConfig(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "project.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /project/data\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("ERGO_CONFIG", path)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/project/data" {
		t.Errorf("DataDir = %q, want /project/data", cfg.DataDir)
	}
}

func TestAnchorPath(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.DataDir = "/data"

	if got := cfg.AnchorPath(); got != filepath.Join("/data", "anchor.txt") {
		t.Errorf("AnchorPath() = %q", got)
	}
	cfg.Inject.AnchorFile = "/abs/anchor.md"
	if got := cfg.AnchorPath(); got != "/abs/anchor.md" {
		t.Errorf("AnchorPath() with absolute file = %q", got)
	}
}

func TestDerivedPaths(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.DataDir = "/data"
	if got := cfg.MemoryDir(); got != filepath.Join("/data", "memory") {
		t.Errorf("MemoryDir() = %q", got)
	}
	if got := cfg.LogPath(); got != filepath.Join("/data", "logs", "ergo.log") {
		t.Errorf("LogPath() = %q", got)
	}
	cfg.Logging.File = "/var/log/ergo.log"
	if got := cfg.LogPath(); got != "/var/log/ergo.log" {
		t.Errorf("LogPath() with override = %q", got)
	}
}
