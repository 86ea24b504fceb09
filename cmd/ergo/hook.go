package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ergohq/ergo/internal/config"
	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/hookio"
	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/policy"
	"github.com/ergohq/ergo/internal/scoring"
	"github.com/ergohq/ergo/internal/storage"
)

func init() {
	hookCmd := &cobra.Command{
		Use:   "hook",
		Short: "Claude Code hook entry points",
		Long: `Hook entry points, each reading the hook payload JSON on stdin.

Wire them in Claude Code settings:
  UserPromptSubmit -> ergo hook prompt
  Stop             -> ergo hook stop
  SessionStart     -> ergo hook session-start
  PreCompact       -> ergo hook pre-compact
  PostToolUse      -> ergo hook observe

Hooks never fail the host session: every internal error is logged and
swallowed, and a contended lock drops the observation.`,
	}

	hookCmd.AddCommand(
		&cobra.Command{Use: "prompt", Short: "Classify the prompt, optionally inject a correction", RunE: runHookPrompt},
		&cobra.Command{Use: "stop", Short: "Score the last response and detect drift", RunE: runHookStop},
		&cobra.Command{Use: "session-start", Short: "Assemble and inject session context", RunE: runHookSessionStart},
		&cobra.Command{Use: "pre-compact", Short: "Consolidate summaries before compaction", RunE: runHookPreCompact},
		&cobra.Command{Use: "observe", Short: "Log tool usage", RunE: runHookObserve},
	)
	rootCmd.AddCommand(hookCmd)
}

func runHookPrompt(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return nil // a broken install must not block the prompt
	}
	defer a.close()

	payload, err := hookio.ReadPayload(cmd.InOrStdin())
	if err != nil {
		a.Log.Warn("prompt hook payload unreadable", zap.Error(err))
		return nil
	}
	if payload.Prompt == "" {
		return nil
	}

	now := time.Now().UTC()
	qt := a.writeQueryType(payload.SessionID, payload.Prompt, now)
	a.Log.Debug("prompt classified",
		zap.String("session_id", payload.SessionID),
		zap.String("query_type", qt))

	if a.Cfg.Inject.Point == config.InjectPrompt {
		if correction := a.assembler().Correction(now); correction != "" {
			return hookio.EmitContext(cmd.OutOrStdout(), "UserPromptSubmit", correction)
		}
	}
	return nil
}

func runHookStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return nil
	}
	defer a.close()

	payload, err := hookio.ReadPayload(cmd.InOrStdin())
	if err != nil {
		a.Log.Warn("stop hook payload unreadable", zap.Error(err))
		return nil
	}
	if payload.StopHookActive {
		return nil // a hook-triggered continuation must not re-score
	}
	text, ok := hookio.LastAssistantText(payload.TranscriptPath)
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	rec := a.scoreResponse(cmd.Context(), payload.SessionID, text, now)

	if err := a.Ledger.TryAppend(rec); err != nil {
		if errors.Is(err, storage.ErrLockBusy) {
			a.Log.Debug("score dropped on ledger contention")
		} else {
			a.Log.Warn("score append failed", zap.Error(err))
		}
		return nil
	}
	if rotated, err := a.Ledger.MaybeRotate(now); err != nil {
		a.Log.Warn("ledger rotation failed", zap.Error(err))
	} else if rotated {
		a.Log.Info("ledger segment rotated")
	}

	if outcome, err := a.Fitness.Evaluate(rec, now); err != nil {
		a.Log.Warn("correction outcome evaluation failed", zap.Error(err))
	} else if outcome != nil {
		a.Log.Info("correction outcome recorded",
			zap.String("strategy_id", outcome.StrategyID),
			zap.Bool("effective", outcome.Effective))
	}

	a.detectDrift(rec, now)
	return nil
}

// scoreResponse builds the ledger record: deterministic metrics always, judge
// enrichment only when the judge succeeds.
func (a *app) scoreResponse(ctx context.Context, sessionID, text string, now time.Time) ledger.Record {
	m := scoring.Score(text)
	rec := ledger.Record{
		Timestamp:      now,
		SessionID:      sessionID,
		QueryType:      a.readQueryType(sessionID),
		WordCount:      m.WordCount,
		AnswerPosition: m.AnswerPosition,
		PaddingCount:   m.PaddingCount,
		FillerPhrases:  m.FillerPhrases,
		InfoDensity:    m.InfoDensity,
	}
	if scores, ok := a.Judge.Score(ctx, text); ok {
		rec.Judge = &scores
	}
	return rec
}

// detectDrift evaluates the record, resolves a strategy, and raises the
// correction flag. An explicit no-correction match logs and raises nothing.
func (a *app) detectDrift(rec ledger.Record, now time.Time) {
	ev := drift.Evaluate(rec, a.Thresholds.Effective(rec.QueryType))
	if ev == nil {
		return
	}
	a.Log.Info("drift detected",
		zap.String("type", ev.Type()),
		zap.String("severity", ev.Severity),
		zap.String("query_type", ev.QueryType),
		zap.Strings("reasons", ev.Reasons))

	table := a.Policy.LoadOrDefault()
	st, matched := table.Select(ev)
	if !matched || st.NoCorrection() {
		return
	}
	flag := policy.NewFlag(st, ev, now)
	if err := a.Flags.Write(flag); err != nil {
		if errors.Is(err, storage.ErrLockBusy) {
			a.Log.Debug("correction flag dropped on contention")
		} else {
			a.Log.Warn("correction flag write failed", zap.Error(err))
		}
	}
}

func runHookSessionStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return nil
	}
	defer a.close()

	payload, err := hookio.ReadPayload(cmd.InOrStdin())
	if err != nil {
		a.Log.Warn("session-start payload unreadable", zap.Error(err))
		return nil
	}
	source := payload.Source
	if source == "" {
		source = hookio.SourceStartup
	}
	if a.Cfg.Inject.Point != config.InjectSessionStart {
		return nil
	}
	assembled := a.assembler().Assemble(source, time.Now().UTC())
	return hookio.EmitContext(cmd.OutOrStdout(), "SessionStart", assembled)
}

func runHookPreCompact(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return nil
	}
	defer a.close()

	now := time.Now().UTC()
	if report, err := a.consolidator().Run(now); err != nil {
		a.Log.Warn("pre-compact consolidation failed", zap.Error(err))
	} else {
		a.Log.Info("pre-compact consolidation",
			zap.String("status", report.Status),
			zap.Int("sessions", report.SessionsAnalyzed))
	}
	if _, err := a.Ledger.MaybeRotate(now); err != nil {
		a.Log.Warn("ledger rotation failed", zap.Error(err))
	}
	return nil
}

// toolUsage is one observed tool call. Accumulates for correlation with
// drift; nothing reads it synchronously.
type toolUsage struct {
	Timestamp time.Time `json:"ts"`
	Tool      string    `json:"tool"`
	OK        bool      `json:"ok"`
}

func runHookObserve(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return nil
	}
	defer a.close()

	payload, err := hookio.ReadPayload(cmd.InOrStdin())
	if err != nil || payload.ToolName == "" {
		return nil
	}
	entry := toolUsage{
		Timestamp: time.Now().UTC(),
		Tool:      payload.ToolName,
		OK:        !toolResponseIsError(payload.ToolResponse),
	}
	path := filepath.Join(a.Cfg.DataDir, "tool-usage.jsonl")
	if err := storage.TryAppendJSONL(path, entry); err != nil && !errors.Is(err, storage.ErrLockBusy) {
		a.Log.Debug("tool usage append failed", zap.Error(err))
	}
	return nil
}

func toolResponseIsError(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	var resp struct {
		IsError bool `json:"is_error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false
	}
	return resp.IsError
}
