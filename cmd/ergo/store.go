package main

import (
	"path/filepath"
	"time"

	"github.com/ergohq/ergo/internal/classify"
	"github.com/ergohq/ergo/internal/storage"
)

// queryTypeDoc is the handoff from the prompt hook to the stop hook: the
// classification of the prompt whose response is scored next.
type queryTypeDoc struct {
	SessionID string    `json:"session_id"`
	QueryType string    `json:"query_type"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// queryTypeSlot is the single-document home of the latest classification.
func (a *app) queryTypeSlot() *storage.Slot {
	return storage.NewSlot(filepath.Join(a.Cfg.DataDir, "query-type.json"))
}

// writeQueryType records the classification, non-blocking. A dropped write
// costs one default-typed score, never a stalled prompt.
func (a *app) writeQueryType(sessionID, prompt string, now time.Time) string {
	qt := classify.Classify(prompt)
	doc := queryTypeDoc{SessionID: sessionID, QueryType: qt, Prompt: prompt, CreatedAt: now}
	if err := a.queryTypeSlot().TryPut(doc); err != nil {
		a.Log.Debug("query type write dropped")
	}
	return qt
}

// readQueryType resolves the query type for a session's next score. A stale
// or missing document falls back to the default type.
func (a *app) readQueryType(sessionID string) string {
	var doc queryTypeDoc
	if !a.queryTypeSlot().Peek(&doc) {
		return classify.TypeDefault
	}
	if doc.SessionID != "" && sessionID != "" && doc.SessionID != sessionID {
		return classify.TypeDefault
	}
	if !classify.Known(doc.QueryType) {
		return classify.TypeDefault
	}
	return doc.QueryType
}
