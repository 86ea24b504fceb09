package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxLineBytes bounds a single JSONL record. Transcript-derived records stay
// well under this; anything larger is treated as corruption.
const maxLineBytes = 1 << 20

// AppendJSONL marshals v and appends it as one line to path under the
// resource lock, with fsync + directory sync for durability.
func AppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal jsonl record: %w", err)
	}
	return WithLock(path, func() error {
		return appendLine(path, data)
	})
}

// TryAppendJSONL is AppendJSONL with non-blocking lock acquisition, for
// best-effort background writers. Returns ErrLockBusy when contended.
func TryAppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal jsonl record: %w", err)
	}
	return TryWithLock(path, func() error {
		return appendLine(path, data)
	})
}

func appendLine(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek end: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", path, err)
	}
	return syncDir(dir)
}

// ScanJSONL streams every well-formed line of path to fn as raw JSON.
// Malformed lines are skipped and counted, never fatal; an oversized line
// counts as one skip and the scan continues at the next newline; a missing
// file yields zero lines. The scan takes no lock: appends are line-atomic and
// rotation renames whole segments, so a sequential read sees a consistent
// snapshot.
func ScanJSONL(path string, fn func(line []byte) error) (skipped int, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	line := make([]byte, 0, 64*1024)
	for {
		chunk, rerr := r.ReadSlice('\n')
		line = append(line, chunk...)
		if rerr == bufio.ErrBufferFull {
			if len(line) <= maxLineBytes {
				continue
			}
			skipped++
			line = line[:0]
			switch derr := discardLine(r); derr {
			case nil:
				continue
			case io.EOF:
				return skipped, nil
			default:
				return skipped, fmt.Errorf("scan %s: %w", path, derr)
			}
		}
		if rerr != nil && rerr != io.EOF {
			return skipped, fmt.Errorf("scan %s: %w", path, rerr)
		}
		rec := bytes.TrimSuffix(line, []byte{'\n'})
		rec = bytes.TrimSuffix(rec, []byte{'\r'})
		if len(rec) > 0 {
			if !json.Valid(rec) {
				skipped++
			} else if err := fn(rec); err != nil {
				return skipped, err
			}
		}
		line = line[:0]
		if rerr == io.EOF {
			return skipped, nil
		}
	}
}

// discardLine consumes input through the next newline, for resuming after an
// oversized record.
func discardLine(r *bufio.Reader) error {
	for {
		if _, err := r.ReadSlice('\n'); err != bufio.ErrBufferFull {
			return err
		}
	}
}

// DecodeJSONL unmarshals every well-formed line of path into a fresh T and
// returns them in file order, plus the count of skipped malformed lines.
// Lines that are valid JSON but do not fit T count as skipped too.
func DecodeJSONL[T any](path string) (records []T, skipped int, err error) {
	badShape := 0
	skipped, err = ScanJSONL(path, func(line []byte) error {
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			badShape++
			return nil
		}
		records = append(records, rec)
		return nil
	})
	return records, skipped + badShape, err
}
