package consolidate

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/thresholds"
)

func testConsolidator(t *testing.T) (*Consolidator, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()
	l := ledger.New(dir)
	th := thresholds.NewStore(filepath.Join(dir, "thresholds.json"))
	return New(l, th, dir), l
}

func driftedRecord(ts time.Time, session string) ledger.Record {
	return ledger.Record{
		Timestamp:    ts,
		SessionID:    session,
		QueryType:    "factual",
		WordCount:    20,
		PaddingCount: 2,
		InfoDensity:  0.8,
	}
}

func cleanRecord(ts time.Time, session string) ledger.Record {
	return ledger.Record{
		Timestamp:   ts,
		SessionID:   session,
		QueryType:   "factual",
		WordCount:   10,
		InfoDensity: 0.8,
	}
}

// appendSessions writes one drifted record per session, spread over the given
// number of distinct days.
func appendSessions(t *testing.T, l *ledger.Ledger, now time.Time, sessions, days int) {
	t.Helper()
	for i := 0; i < sessions; i++ {
		day := i % days
		ts := now.Add(-time.Duration(day)*24*time.Hour - time.Duration(i)*time.Minute)
		if err := l.Append(driftedRecord(ts, fmt.Sprintf("s%d", i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

func TestSummarize(t *testing.T) {
	c, _ := testConsolidator(t)
	now := time.Now().UTC()
	records := []ledger.Record{
		cleanRecord(now, "s1"),
		driftedRecord(now.Add(time.Minute), "s1"),
		driftedRecord(now.Add(2*time.Minute), "s1"),
	}
	s := c.Summarize("s1", records)
	if s.Records != 3 {
		t.Errorf("Records = %d, want 3", s.Records)
	}
	if s.QueryTypes["factual"] != 3 {
		t.Errorf("QueryTypes = %v, want factual:3", s.QueryTypes)
	}
	// Same (dim, query) drift twice still yields one observation.
	if len(s.Observations) != 1 {
		t.Fatalf("Observations = %v, want one deduped entry", s.Observations)
	}
	if s.Observations[0].Dim != "filler" || s.Observations[0].Query != "factual" {
		t.Errorf("Observations[0] = %+v, want filler/factual", s.Observations[0])
	}
}

func TestRun_InsufficientSessions(t *testing.T) {
	c, l := testConsolidator(t)
	now := time.Now().UTC()
	appendSessions(t, l, now, 3, 3)

	report, err := c.Run(now)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != ReportInsufficient {
		t.Errorf("Status = %q, want %q", report.Status, ReportInsufficient)
	}
	if report.SessionsAnalyzed != 3 || report.SessionsRequired != MinSessions {
		t.Errorf("report = %+v, want 3 analyzed, %d required", report, MinSessions)
	}
}

func TestRun_SessionGateAlone_NotValidated(t *testing.T) {
	c, l := testConsolidator(t)
	now := time.Now().UTC()
	// Five sessions, every one on the same calendar day.
	appendSessions(t, l, now, 5, 1)

	report, err := c.Run(now)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != ReportConsolidated {
		t.Fatalf("Status = %q, want %q", report.Status, ReportConsolidated)
	}
	if report.PatternsValidated != 0 {
		t.Errorf("PatternsValidated = %d, want 0 (single calendar day)", report.PatternsValidated)
	}
	patterns, err := c.LoadPatterns()
	if err != nil {
		t.Fatalf("LoadPatterns() error = %v", err)
	}
	if len(patterns) != 1 || patterns[0].Status != StatusCandidate {
		t.Errorf("patterns = %+v, want one candidate", patterns)
	}
}

func TestRun_DayGateAlone_NotValidated(t *testing.T) {
	c, l := testConsolidator(t)
	now := time.Now().UTC()
	// Three drifted sessions over three days, padded to the session minimum
	// with clean sessions so consolidation runs at all.
	appendSessions(t, l, now, 3, 3)
	for i := 0; i < 3; i++ {
		if err := l.Append(cleanRecord(now.Add(-time.Duration(i)*time.Hour), fmt.Sprintf("clean%d", i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	report, err := c.Run(now)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != ReportConsolidated {
		t.Fatalf("Status = %q, want %q", report.Status, ReportConsolidated)
	}
	if report.PatternsValidated != 0 {
		t.Errorf("PatternsValidated = %d, want 0 (only 3 drifted sessions)", report.PatternsValidated)
	}
}

func TestRun_BothGatesMet_Validated(t *testing.T) {
	c, l := testConsolidator(t)
	now := time.Now().UTC()
	appendSessions(t, l, now, 6, 3)

	report, err := c.Run(now)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.PatternsValidated != 1 {
		t.Errorf("PatternsValidated = %d, want 1", report.PatternsValidated)
	}
	if len(report.PatternsAdded) != 1 || report.PatternsAdded[0] != "filler|factual" {
		t.Errorf("PatternsAdded = %v, want [filler|factual]", report.PatternsAdded)
	}
	patterns, err := c.LoadPatterns()
	if err != nil {
		t.Fatalf("LoadPatterns() error = %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("len(patterns) = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Status != StatusValidated || p.Sessions != 6 || p.Days != 3 {
		t.Errorf("pattern = %+v, want validated with 6 sessions over 3 days", p)
	}
}

func TestRun_StaleDemotion(t *testing.T) {
	c, l := testConsolidator(t)
	now := time.Now().UTC()
	appendSessions(t, l, now.Add(-20*24*time.Hour), 6, 3)

	if _, err := c.Run(now.Add(-20 * 24 * time.Hour)); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// The drifted sessions age out of retention; replace them with enough
	// clean sessions that consolidation still runs.
	later := now.Add(15 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		if err := l.Append(cleanRecord(later.Add(-time.Duration(i)*time.Hour), fmt.Sprintf("fresh%d", i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	report, err := c.Run(later)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(report.PatternsStaled) != 1 || report.PatternsStaled[0] != "filler|factual" {
		t.Errorf("PatternsStaled = %v, want [filler|factual]", report.PatternsStaled)
	}
	patterns, err := c.LoadPatterns()
	if err != nil {
		t.Fatalf("LoadPatterns() error = %v", err)
	}
	var stale *Pattern
	for i := range patterns {
		if patterns[i].Key() == "filler|factual" {
			stale = &patterns[i]
		}
	}
	if stale == nil {
		t.Fatal("demoted pattern missing from the set")
	}
	if stale.Status != StatusStale || stale.SupersededAt == "" {
		t.Errorf("pattern = %+v, want stale with supersession mark", *stale)
	}
}

func TestMinePatterns_DeterministicOrder(t *testing.T) {
	obs := []Observation{
		{Dim: "preamble", Query: "factual"},
		{Dim: "filler", Query: "code"},
		{Dim: "density", Query: "claim"},
		{Dim: "filler", Query: "factual"},
	}
	var summaries []Summary
	for i := 0; i < 3; i++ {
		summaries = append(summaries, Summary{
			Date:         fmt.Sprintf("2026-08-%02d", 10+i),
			Observations: obs,
		})
	}

	want := []string{"density|claim", "filler|code", "filler|factual", "preamble|factual"}
	for run := 0; run < 5; run++ {
		patterns := minePatterns(summaries)
		got := make([]string, len(patterns))
		for i, p := range patterns {
			got[i] = p.Key()
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("run %d pattern order mismatch (-want +got):\n%s", run, diff)
		}
	}
}

func TestRun_SummariesCached(t *testing.T) {
	c, l := testConsolidator(t)
	now := time.Now().UTC()
	appendSessions(t, l, now, 5, 3)

	if _, err := c.Run(now); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	summaries, err := c.Summaries(now)
	if err != nil {
		t.Fatalf("Summaries() error = %v", err)
	}
	if len(summaries) != 5 {
		t.Fatalf("len(summaries) = %d, want 5", len(summaries))
	}

	// A second run must not duplicate cache entries.
	if _, err := c.Run(now); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	summaries, err = c.Summaries(now)
	if err != nil {
		t.Fatalf("Summaries() error = %v", err)
	}
	if len(summaries) != 5 {
		t.Errorf("len(summaries) after rerun = %d, want 5", len(summaries))
	}
}
