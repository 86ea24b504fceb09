package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestVersion_Text(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	runVersion(cmd, nil)

	got := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(got, "ergo "+version) {
		t.Errorf("version output = %q, want prefix %q", got, "ergo "+version)
	}
	if strings.Contains(got, "\n") {
		t.Errorf("version output spans %d lines, want one", strings.Count(got, "\n")+1)
	}
}

func TestVersion_JSON(t *testing.T) {
	prev := output
	output = "json"
	t.Cleanup(func() { output = prev })

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	runVersion(cmd, nil)

	var info versionInfo
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("Unmarshal() error = %v (output %q)", err, buf.String())
	}
	if info.Version != version {
		t.Errorf("Version = %q, want %q", info.Version, version)
	}
}
