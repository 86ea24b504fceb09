// Package consolidate derives per-session summaries from the ledger and
// mines recurring drift into patterns, gated against overfitting. Sessions
// come from grouping ledger records on session_id — the summaries file is
// only a write-through cache, so consolidation stays correct for sessions
// that ended abnormally and never wrote a summary.
package consolidate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ergohq/ergo/internal/drift"
	"github.com/ergohq/ergo/internal/ledger"
	"github.com/ergohq/ergo/internal/storage"
	"github.com/ergohq/ergo/internal/thresholds"
)

// Overfit gates: a pattern is validated only with enough distinct sessions
// spread over enough distinct calendar days.
const (
	MinSessions     = 5
	MinCalendarDays = 3

	// SummaryRetention bounds how far back sessions contribute.
	SummaryRetention = 30 * 24 * time.Hour
)

// Pattern statuses.
const (
	StatusCandidate = "candidate"
	StatusValidated = "validated"
	StatusStale     = "stale"
)

// Observation is one drifted (dimension, query type) pair within a session.
type Observation struct {
	Dim   string `json:"dim"`
	Query string `json:"query"`
}

// Summary aggregates one session's records.
type Summary struct {
	SessionID    string         `json:"session_id"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Date         string         `json:"date"`
	Records      int            `json:"records"`
	AvgDensity   float64        `json:"avg_density"`
	AvgPadding   float64        `json:"avg_padding"`
	AvgPosition  float64        `json:"avg_position"`
	QueryTypes   map[string]int `json:"query_types"`
	Observations []Observation  `json:"observations,omitempty"`
}

// Pattern is a recurring drift signature across sessions.
type Pattern struct {
	Drift        string `json:"drift"`
	Query        string `json:"query"`
	Sessions     int    `json:"sessions"`
	Days         int    `json:"days"`
	FirstSeen    string `json:"first_seen"`
	LastSeen     string `json:"last_seen"`
	Status       string `json:"status"`
	SupersededAt string `json:"superseded_at,omitempty"`
}

// Key identifies a pattern by its drifted dimension and query type.
func (p Pattern) Key() string { return p.Drift + "|" + p.Query }

// Report is the result of one consolidation run.
type Report struct {
	Status            string   `json:"status"`
	SessionsAnalyzed  int      `json:"sessions_analyzed"`
	SessionsRequired  int      `json:"sessions_required,omitempty"`
	PatternsValidated int      `json:"patterns_validated"`
	PatternsAdded     []string `json:"patterns_added,omitempty"`
	PatternsStaled    []string `json:"patterns_staled,omitempty"`
	SkippedLines      int      `json:"skipped_lines"`
}

// Statuses for Report.Status.
const (
	ReportInsufficient = "insufficient_data"
	ReportConsolidated = "consolidated"
)

// Consolidator scans the ledger and maintains the pattern set.
type Consolidator struct {
	Ledger     *ledger.Ledger
	Thresholds *thresholds.Store

	summariesPath string
	patternsPath  string
}

// New returns a consolidator writing derived state under memoryDir.
func New(l *ledger.Ledger, th *thresholds.Store, memoryDir string) *Consolidator {
	return &Consolidator{
		Ledger:        l,
		Thresholds:    th,
		summariesPath: filepath.Join(memoryDir, "summaries.jsonl"),
		patternsPath:  filepath.Join(memoryDir, "patterns.json"),
	}
}

// Summarize aggregates one session's records into a summary. Drift
// observations use the same threshold-aware evaluation as live detection.
func (c *Consolidator) Summarize(sessionID string, records []ledger.Record) Summary {
	s := Summary{
		SessionID:  sessionID,
		QueryTypes: map[string]int{},
	}
	if len(records) == 0 {
		return s
	}
	s.Start = records[0].Timestamp
	s.End = records[len(records)-1].Timestamp
	s.Date = s.Start.Format("2006-01-02")
	s.Records = len(records)

	var densitySum, paddingSum, positionSum float64
	seen := map[Observation]bool{}
	for _, rec := range records {
		densitySum += rec.InfoDensity
		paddingSum += float64(rec.PaddingCount)
		positionSum += float64(rec.AnswerPosition)
		s.QueryTypes[rec.QueryType]++

		ev := drift.Evaluate(rec, c.Thresholds.Effective(rec.QueryType))
		if ev == nil {
			continue
		}
		for _, dim := range ev.Dimensions {
			obs := Observation{Dim: dim, Query: rec.QueryType}
			if !seen[obs] {
				seen[obs] = true
				s.Observations = append(s.Observations, obs)
			}
		}
	}
	n := float64(len(records))
	s.AvgDensity = densitySum / n
	s.AvgPadding = paddingSum / n
	s.AvgPosition = positionSum / n
	return s
}

// Run performs a full consolidation pass: sessions from the ledger, cache
// write-through, overfit gating, and stale demotion of previously validated
// patterns that no longer hold.
func (c *Consolidator) Run(now time.Time) (Report, error) {
	records, skipped, err := c.Ledger.Records()
	if err != nil {
		return Report{}, fmt.Errorf("scan ledger: %w", err)
	}

	sessions := groupBySession(records)
	cutoff := now.Add(-SummaryRetention)

	cached := c.cachedSessionIDs()
	var summaries []Summary
	for _, sess := range sessions {
		summary := c.Summarize(sess.id, sess.records)
		if summary.Records == 0 || summary.Start.Before(cutoff) {
			continue
		}
		if !cached[summary.SessionID] {
			// Best-effort cache write; consolidation never depends on it.
			_ = storage.AppendJSONL(c.summariesPath, summary) //nolint:errcheck
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) < MinSessions {
		return Report{
			Status:           ReportInsufficient,
			SessionsAnalyzed: len(summaries),
			SessionsRequired: MinSessions,
			SkippedLines:     skipped,
		}, nil
	}

	fresh := minePatterns(summaries)
	existing, err := c.LoadPatterns()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Report{}, err
	}

	merged, added, staled := mergePatterns(existing, fresh, now)
	if err := storage.WriteJSON(c.patternsPath, merged); err != nil {
		return Report{}, fmt.Errorf("save patterns: %w", err)
	}

	validated := 0
	for _, p := range merged {
		if p.Status == StatusValidated {
			validated++
		}
	}
	return Report{
		Status:            ReportConsolidated,
		SessionsAnalyzed:  len(summaries),
		PatternsValidated: validated,
		PatternsAdded:     added,
		PatternsStaled:    staled,
		SkippedLines:      skipped,
	}, nil
}

// LoadPatterns reads the current pattern set.
func (c *Consolidator) LoadPatterns() ([]Pattern, error) {
	var patterns []Pattern
	if err := storage.ReadJSON(c.patternsPath, &patterns); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return patterns, nil
}

// Summaries loads cached session summaries within the retention window.
func (c *Consolidator) Summaries(now time.Time) ([]Summary, error) {
	all, _, err := storage.DecodeJSONL[Summary](c.summariesPath)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-SummaryRetention)
	var recent []Summary
	for _, s := range all {
		if !s.Start.Before(cutoff) {
			recent = append(recent, s)
		}
	}
	return recent, nil
}

// cachedSessionIDs indexes which sessions already have a cached summary.
func (c *Consolidator) cachedSessionIDs() map[string]bool {
	ids := map[string]bool{}
	all, _, err := storage.DecodeJSONL[Summary](c.summariesPath)
	if err != nil {
		return ids
	}
	for _, s := range all {
		ids[s.SessionID] = true
	}
	return ids
}

type sessionGroup struct {
	id      string
	records []ledger.Record
}

// groupBySession splits records on session_id in order of first appearance,
// preserving record order within each session.
func groupBySession(records []ledger.Record) []sessionGroup {
	index := map[string]int{}
	var groups []sessionGroup
	for _, rec := range records {
		id := rec.SessionID
		if id == "" {
			id = "untagged"
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, sessionGroup{id: id})
		}
		groups[i].records = append(groups[i].records, rec)
	}
	return groups
}

// minePatterns counts, per (dim, query) pair, the distinct sessions and
// calendar days it drifted in, and gates each pair.
func minePatterns(summaries []Summary) []Pattern {
	type tally struct {
		sessions int
		days     map[string]bool
		first    string
		last     string
	}
	tallies := map[Observation]*tally{}
	for _, s := range summaries {
		for _, obs := range s.Observations {
			t := tallies[obs]
			if t == nil {
				t = &tally{days: map[string]bool{}, first: s.Date, last: s.Date}
				tallies[obs] = t
			}
			t.sessions++
			t.days[s.Date] = true
			if s.Date < t.first {
				t.first = s.Date
			}
			if s.Date > t.last {
				t.last = s.Date
			}
		}
	}

	var patterns []Pattern
	for obs, t := range tallies {
		status := StatusCandidate
		if t.sessions >= MinSessions && len(t.days) >= MinCalendarDays {
			status = StatusValidated
		}
		patterns = append(patterns, Pattern{
			Drift:     obs.Dim,
			Query:     obs.Query,
			Sessions:  t.sessions,
			Days:      len(t.days),
			FirstSeen: t.first,
			LastSeen:  t.last,
			Status:    status,
		})
	}
	// Map iteration order would otherwise leak into patterns.json and the
	// report; keep runs reproducible.
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Key() < patterns[j].Key() })
	return patterns
}

// mergePatterns overlays fresh mining onto the existing set. Fresh entries
// replace same-key predecessors; previously validated patterns absent from
// the fresh validated set are demoted to stale with a supersession mark.
func mergePatterns(existing, fresh []Pattern, now time.Time) (merged []Pattern, added, staled []string) {
	freshValidated := map[string]bool{}
	for _, p := range fresh {
		if p.Status == StatusValidated {
			freshValidated[p.Key()] = true
		}
	}
	wasValidated := map[string]bool{}
	keys := []string{}
	byKey := map[string]Pattern{}
	for _, p := range existing {
		byKey[p.Key()] = p
		keys = append(keys, p.Key())
		if p.Status == StatusValidated {
			wasValidated[p.Key()] = true
		}
	}
	for _, p := range fresh {
		if _, ok := byKey[p.Key()]; !ok {
			keys = append(keys, p.Key())
		}
		byKey[p.Key()] = p
	}

	for _, key := range keys {
		p := byKey[key]
		if wasValidated[key] && !freshValidated[key] {
			p.Status = StatusStale
			p.SupersededAt = now.Format(time.RFC3339)
			staled = append(staled, key)
		}
		if !wasValidated[key] && p.Status == StatusValidated {
			added = append(added, key)
		}
		merged = append(merged, p)
	}
	return merged, added, staled
}
