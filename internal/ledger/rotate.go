package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ergohq/ergo/internal/storage"
)

// RotatePeriod is how old the active segment may grow before Rotate archives
// it. Rotation is amortized: callers invoke MaybeRotate opportunistically.
const RotatePeriod = 7 * 24 * time.Hour

// Rotate archives the active segment by renaming it to a dated segment and
// letting the next append start a fresh one. The rename is atomic, so a
// concurrent sequential reader sees either the old layout or the new one,
// never a truncated file; the logical record set is unchanged. Old archives
// beyond KeepSegments are pruned.
func (l *Ledger) Rotate(now time.Time) error {
	active := l.ActivePath()
	return storage.WithLock(active, func() error {
		if _, err := os.Stat(active); os.IsNotExist(err) {
			return l.prune()
		}
		dated := filepath.Join(l.Dir, segmentPrefix+now.Format("2006-01-02")+segmentSuffix)
		if _, err := os.Stat(dated); err == nil {
			// Already rotated today; nothing to archive.
			return l.prune()
		}
		if err := os.Rename(active, dated); err != nil {
			return fmt.Errorf("archive segment: %w", err)
		}
		return l.prune()
	})
}

// MaybeRotate rotates only when the oldest record in the active segment is
// older than the rotation period. Errors are returned for logging but leave
// the ledger fully usable.
func (l *Ledger) MaybeRotate(now time.Time) (bool, error) {
	first, ok := l.firstRecordTime()
	if !ok || now.Sub(first) < RotatePeriod {
		return false, nil
	}
	if err := l.Rotate(now); err != nil {
		return false, err
	}
	return true, nil
}

// prune removes archived segments beyond KeepSegments, oldest first.
// Caller holds the ledger lock.
func (l *Ledger) prune() error {
	segments, err := l.Segments()
	if err != nil {
		return err
	}
	// Drop the active segment from consideration if present.
	if len(segments) > 0 && segments[len(segments)-1] == l.ActivePath() {
		segments = segments[:len(segments)-1]
	}
	for len(segments) > l.KeepSegments {
		if err := os.Remove(segments[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune segment: %w", err)
		}
		segments = segments[1:]
	}
	return nil
}

func (l *Ledger) firstRecordTime() (time.Time, bool) {
	var first time.Time
	found := false
	_, _ = storage.ScanJSONL(l.ActivePath(), func(line []byte) error { //nolint:errcheck // best-effort probe
		if found {
			return nil
		}
		var rec Record
		if unmarshalErr := json.Unmarshal(line, &rec); unmarshalErr == nil && !rec.Timestamp.IsZero() {
			first = rec.Timestamp
			found = true
		}
		return nil
	})
	return first, found
}
