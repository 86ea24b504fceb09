// Package ledger owns the append-only score history: an active JSONL segment
// plus dated archive segments produced by rotation. Appends happen under the
// ledger's exclusive lock; scans read segments sequentially without a lock,
// which is safe because appends are line-atomic and rotation renames whole
// segments instead of truncating in place.
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ergohq/ergo/internal/storage"
)

const (
	activeSegment = "scores.jsonl"
	segmentPrefix = "scores-"
	segmentSuffix = ".jsonl"

	// tailReadBytes bounds the read used to find the last record's age.
	tailReadBytes = 4096
)

// Record is one scored response. Immutable once appended; logically deleted
// only when its segment ages out of retention.
type Record struct {
	Timestamp      time.Time `json:"ts"`
	SessionID      string    `json:"session_id"`
	QueryType      string    `json:"query_type"`
	WordCount      int       `json:"word_count"`
	AnswerPosition int       `json:"answer_position"`
	PaddingCount   int       `json:"padding_count"`
	FillerPhrases  []string  `json:"filler_phrases,omitempty"`
	InfoDensity    float64   `json:"info_density"`

	// Judge carries optional enrichment scores (0-3 per dimension); absent
	// whenever the judge path failed or was disabled.
	Judge *JudgeScores `json:"judge,omitempty"`
}

// JudgeScores is the optional enrichment attached by the LLM judge.
type JudgeScores struct {
	Filler   int `json:"filler"`
	Preamble int `json:"preamble"`
	Density  int `json:"density"`
}

// Drifted reports whether the record drifted on either always-on dimension.
// Used by rolling stats; full threshold-aware evaluation lives in drift.
func (r Record) Drifted() bool {
	return r.PaddingCount > 0 || r.AnswerPosition > 0
}

// Stats is the rolling aggregate over a window of records.
type Stats struct {
	Responses    int     `json:"responses"`
	DriftCount   int     `json:"drift_count"`
	AvgDensity   float64 `json:"avg_density"`
	AvgWords     float64 `json:"avg_words"`
	SkippedLines int     `json:"skipped_lines"`
}

// Ledger is the file-backed score history rooted at one directory.
type Ledger struct {
	Dir string

	// KeepSegments is how many rotated segments survive pruning.
	KeepSegments int
}

// New returns a ledger rooted at dir keeping four rotated segments, roughly
// four weeks of history at the weekly rotation period.
func New(dir string) *Ledger {
	return &Ledger{Dir: dir, KeepSegments: 4}
}

// ActivePath returns the path of the active segment.
func (l *Ledger) ActivePath() string {
	return filepath.Join(l.Dir, activeSegment)
}

// Append writes one record to the active segment, blocking on the ledger
// lock. Interactive callers use this; background scorers use TryAppend.
func (l *Ledger) Append(rec Record) error {
	return storage.AppendJSONL(l.ActivePath(), rec)
}

// TryAppend writes one record without blocking on the ledger lock. A
// contended lock returns storage.ErrLockBusy: a dropped score is preferable
// to blocking the host.
func (l *Ledger) TryAppend(rec Record) error {
	return storage.TryAppendJSONL(l.ActivePath(), rec)
}

// Segments lists readable segment paths in chronological order: dated
// archives ascending, then the active segment.
func (l *Ledger) Segments() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger dir: %w", err)
	}
	var archived []string
	active := false
	for _, e := range entries {
		name := e.Name()
		switch {
		case name == activeSegment:
			active = true
		case strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix):
			archived = append(archived, filepath.Join(l.Dir, name))
		}
	}
	sort.Strings(archived)
	if active {
		archived = append(archived, l.ActivePath())
	}
	return archived, nil
}

// Scan streams every record across all segments in append order. The fn
// position argument increases monotonically across segment boundaries.
// Malformed lines are skipped and counted, never fatal.
func (l *Ledger) Scan(fn func(pos int, rec Record) error) (skipped int, err error) {
	segments, err := l.Segments()
	if err != nil {
		return 0, err
	}
	pos := 0
	for _, seg := range segments {
		s, err := storage.ScanJSONL(seg, func(line []byte) error {
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				skipped++
				return nil
			}
			if err := fn(pos, rec); err != nil {
				return err
			}
			pos++
			return nil
		})
		skipped += s
		if err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

// Records loads the full logical record set across segments.
func (l *Ledger) Records() ([]Record, int, error) {
	var records []Record
	skipped, err := l.Scan(func(_ int, rec Record) error {
		records = append(records, rec)
		return nil
	})
	return records, skipped, err
}

// RollingStats aggregates records newer than the window. Returns false when
// the window holds no records.
func (l *Ledger) RollingStats(window time.Duration, now time.Time) (Stats, bool) {
	cutoff := now.Add(-window)
	var stats Stats
	var densitySum, wordSum float64
	skipped, err := l.Scan(func(_ int, rec Record) error {
		if rec.Timestamp.Before(cutoff) {
			return nil
		}
		stats.Responses++
		if rec.Drifted() {
			stats.DriftCount++
		}
		densitySum += rec.InfoDensity
		wordSum += float64(rec.WordCount)
		return nil
	})
	stats.SkippedLines = skipped
	if err != nil || stats.Responses == 0 {
		return Stats{SkippedLines: skipped}, false
	}
	n := float64(stats.Responses)
	stats.AvgDensity = round3(densitySum / n)
	stats.AvgWords = round1(wordSum / n)
	return stats, true
}

// LastRecordAge returns the time since the newest record in the active
// segment, via a bounded tail read. False when the segment is empty.
func (l *Ledger) LastRecordAge(now time.Time) (time.Duration, bool) {
	f, err := os.Open(l.ActivePath())
	if err != nil {
		return 0, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return 0, false
	}
	offset := info.Size() - tailReadBytes
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return 0, false
	}
	lines := bytes.Split(bytes.TrimSpace(buf), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		var rec Record
		if json.Unmarshal(lines[i], &rec) == nil && !rec.Timestamp.IsZero() {
			return now.Sub(rec.Timestamp), true
		}
	}
	return 0, false
}

func round3(v float64) float64 { return float64(int(v*1000+0.5)) / 1000 }
func round1(v float64) float64 { return float64(int(v*10+0.5)) / 10 }
