// Package judge runs the optional LLM scoring pass. The judge is an external
// command given the response text on stdin and expected to print a JSON
// object with 0-3 scores per dimension. Every failure mode, from a missing
// binary to a timeout to malformed output, degrades to absent scores: the
// deterministic metrics always stand alone.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ergohq/ergo/internal/ledger"
)

// DefaultTimeout bounds one judge invocation. The stop hook runs on the
// session's critical path, so the judge never gets long.
const DefaultTimeout = 10 * time.Second

const (
	scoreMin = 0
	scoreMax = 3
)

// Judge invokes an external scoring command.
type Judge struct {
	// Command and Args name the external judge binary. Empty Command
	// disables the judge entirely.
	Command string
	Args    []string
	Timeout time.Duration
}

// New returns a judge for the given command line; empty command means
// disabled.
func New(command string, args ...string) *Judge {
	return &Judge{Command: command, Args: args, Timeout: DefaultTimeout}
}

// Enabled reports whether a judge command is configured.
func (j *Judge) Enabled() bool {
	return j != nil && strings.TrimSpace(j.Command) != ""
}

// Score runs the judge on the response text. The second return is false on
// any failure or when disabled; the caller records the deterministic result
// either way.
func (j *Judge) Score(ctx context.Context, text string) (ledger.JudgeScores, bool) {
	if !j.Enabled() {
		return ledger.JudgeScores{}, false
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, j.Command, j.Args...)
	cmd.Stdin = strings.NewReader(text)
	out, err := cmd.Output()
	if err != nil {
		return ledger.JudgeScores{}, false
	}
	return parseScores(out)
}

// parseScores validates the judge's JSON output. Scores outside 0-3 are
// malformed, which counts as failure, not as clamping.
func parseScores(out []byte) (ledger.JudgeScores, bool) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return ledger.JudgeScores{}, false
	}
	var s ledger.JudgeScores
	if err := json.Unmarshal(out, &s); err != nil {
		return ledger.JudgeScores{}, false
	}
	for _, v := range []int{s.Filler, s.Preamble, s.Density} {
		if v < scoreMin || v > scoreMax {
			return ledger.JudgeScores{}, false
		}
	}
	return s, true
}

// String describes the configured judge for diagnostics.
func (j *Judge) String() string {
	if !j.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("%s %s", j.Command, strings.Join(j.Args, " "))
}
