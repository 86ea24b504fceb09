package storage

import (
	"encoding/json"
	"fmt"
	"os"
)

// Slot is a single-document store with consume-on-read semantics: at most one
// value lives in the file, Put overwrites it (last writer wins), and Consume
// atomically reads and deletes it under the slot's exclusive lock. A write
// racing a consume either lands before the delete (and is consumed) or after
// it (and survives); neither is lost mid-write.
type Slot struct {
	Path string
}

// NewSlot returns a slot backed by the document at path.
func NewSlot(path string) *Slot {
	return &Slot{Path: path}
}

// Put replaces the slot's value, overwriting any unconsumed predecessor.
func (s *Slot) Put(v any) error {
	return WithLock(s.Path, func() error {
		return WriteJSONUnlocked(s.Path, v)
	})
}

// TryPut is Put with non-blocking lock acquisition for background writers.
func (s *Slot) TryPut(v any) error {
	return TryWithLock(s.Path, func() error {
		return WriteJSONUnlocked(s.Path, v)
	})
}

// Consume reads the slot into v and clears it in one locked step. Returns
// false when the slot is empty; a second Consume with no intervening Put
// always returns false. A corrupt slot document is cleared and treated as
// empty.
func (s *Slot) Consume(v any) (bool, error) {
	found := false
	err := WithLock(s.Path, func() error {
		data, err := os.ReadFile(s.Path)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read slot %s: %w", s.Path, err)
		}
		if err := os.Remove(s.Path); err != nil {
			return fmt.Errorf("clear slot %s: %w", s.Path, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			// Corrupt slot: already cleared, report empty.
			return nil
		}
		found = true
		return nil
	})
	return found, err
}

// Peek reads the slot without clearing it. Returns false when empty or
// unreadable.
func (s *Slot) Peek(v any) bool {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
