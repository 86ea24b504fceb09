package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(t.TempDir())
}

func rec(ts time.Time, session string, padding int, density float64) Record {
	return Record{
		Timestamp:    ts,
		SessionID:    session,
		QueryType:    "default",
		WordCount:    10,
		PaddingCount: padding,
		InfoDensity:  density,
	}
}

func TestAppendAndRecords(t *testing.T) {
	l := testLedger(t)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := l.Append(rec(now.Add(time.Duration(i)*time.Minute), "s1", i, 0.5)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	records, skipped, err := l.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for i, r := range records {
		if r.PaddingCount != i {
			t.Errorf("records[%d].PaddingCount = %d, want %d (append order lost)", i, r.PaddingCount, i)
		}
	}
}

func TestScan_SkipsMalformedLines(t *testing.T) {
	l := testLedger(t)
	now := time.Now().UTC()
	if err := l.Append(rec(now, "s1", 0, 0.8)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	f, err := os.OpenFile(l.ActivePath(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	f.Close()
	if err := l.Append(rec(now.Add(time.Minute), "s1", 1, 0.4)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, skipped, err := l.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
}

func TestRollingStats(t *testing.T) {
	l := testLedger(t)
	now := time.Now().UTC()
	inside := []Record{
		rec(now.Add(-time.Hour), "s1", 2, 0.2),  // drifted
		rec(now.Add(-2*time.Hour), "s1", 0, 0.8),
		rec(now.Add(-3*time.Hour), "s2", 0, 0.6),
	}
	outside := rec(now.Add(-8*24*time.Hour), "s0", 5, 0.1)
	for _, r := range append(inside, outside) {
		if err := l.Append(r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	stats, ok := l.RollingStats(7*24*time.Hour, now)
	if !ok {
		t.Fatal("RollingStats() ok = false, want true")
	}
	if stats.Responses != 3 {
		t.Errorf("Responses = %d, want 3 (record outside window counted)", stats.Responses)
	}
	if stats.DriftCount != 1 {
		t.Errorf("DriftCount = %d, want 1", stats.DriftCount)
	}
	const wantDensity = 0.533
	if stats.AvgDensity != wantDensity {
		t.Errorf("AvgDensity = %v, want %v", stats.AvgDensity, wantDensity)
	}
	if stats.AvgWords != 10 {
		t.Errorf("AvgWords = %v, want 10", stats.AvgWords)
	}
}

func TestRollingStats_EmptyWindow(t *testing.T) {
	l := testLedger(t)
	if _, ok := l.RollingStats(7*24*time.Hour, time.Now()); ok {
		t.Error("RollingStats() ok = true for empty ledger, want false")
	}
}

func TestRotate_PreservesLogicalRecordSet(t *testing.T) {
	l := testLedger(t)
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		if err := l.Append(rec(now.Add(time.Duration(i)*time.Minute), "s1", i, 0.5)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	before, _, err := l.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}

	if err := l.Rotate(now); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if _, err := os.Stat(l.ActivePath()); !os.IsNotExist(err) {
		t.Errorf("active segment still present after rotate: stat error = %v", err)
	}

	after, _, err := l.Records()
	if err != nil {
		t.Fatalf("Records() after rotate error = %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("record count changed across rotation: %d != %d", len(after), len(before))
	}
	for i := range after {
		if after[i].PaddingCount != before[i].PaddingCount {
			t.Errorf("record %d changed across rotation", i)
		}
	}

	// New appends land in a fresh active segment.
	if err := l.Append(rec(now.Add(time.Hour), "s2", 0, 0.9)); err != nil {
		t.Fatalf("Append() after rotate error = %v", err)
	}
	all, _, err := l.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(all) != len(before)+1 {
		t.Errorf("len(all) = %d, want %d", len(all), len(before)+1)
	}
}

func TestMaybeRotate(t *testing.T) {
	l := testLedger(t)
	now := time.Now().UTC()

	if rotated, err := l.MaybeRotate(now); err != nil || rotated {
		t.Errorf("MaybeRotate() on empty ledger = (%v, %v), want (false, nil)", rotated, err)
	}

	if err := l.Append(rec(now.Add(-time.Hour), "s1", 0, 0.5)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if rotated, err := l.MaybeRotate(now); err != nil || rotated {
		t.Errorf("MaybeRotate() with fresh segment = (%v, %v), want (false, nil)", rotated, err)
	}

	l2 := New(t.TempDir())
	if err := l2.Append(rec(now.Add(-8*24*time.Hour), "s1", 0, 0.5)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	rotated, err := l2.MaybeRotate(now)
	if err != nil {
		t.Fatalf("MaybeRotate() error = %v", err)
	}
	if !rotated {
		t.Error("MaybeRotate() = false for stale segment, want true")
	}
}

func TestRotate_Prunes(t *testing.T) {
	l := testLedger(t)
	l.KeepSegments = 2
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		day := now.Add(time.Duration(i) * 24 * time.Hour)
		if err := l.Append(rec(day, "s1", 0, 0.5)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := l.Rotate(day); err != nil {
			t.Fatalf("Rotate() error = %v", err)
		}
	}
	segments, err := l.Segments()
	if err != nil {
		t.Fatalf("Segments() error = %v", err)
	}
	if len(segments) != 2 {
		t.Errorf("len(segments) = %d, want 2: %v", len(segments), segments)
	}
}

func TestLastRecordAge(t *testing.T) {
	l := testLedger(t)
	now := time.Now().UTC()

	if _, ok := l.LastRecordAge(now); ok {
		t.Error("LastRecordAge() ok = true for empty ledger, want false")
	}

	if err := l.Append(rec(now.Add(-5*time.Hour), "s1", 0, 0.5)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append(rec(now.Add(-2*time.Hour), "s1", 0, 0.5)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	age, ok := l.LastRecordAge(now)
	if !ok {
		t.Fatal("LastRecordAge() ok = false, want true")
	}
	if age < 2*time.Hour-time.Second || age > 2*time.Hour+time.Second {
		t.Errorf("age = %v, want ~2h (newest record, not oldest)", age)
	}
}

func TestSegments_MissingDir(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "absent"))
	segments, err := l.Segments()
	if err != nil {
		t.Fatalf("Segments() error = %v", err)
	}
	if segments != nil {
		t.Errorf("Segments() = %v, want nil", segments)
	}
}
