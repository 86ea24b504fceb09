// Package hookio speaks the Claude Code hook protocol: JSON payloads on
// stdin, optional hookSpecificOutput on stdout, and JSONL (or JSON-array)
// transcript files on disk.
package hookio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Session sources reported by the SessionStart hook.
const (
	SourceStartup = "startup"
	SourceResume  = "resume"
	SourceClear   = "clear"
	SourceCompact = "compact"
)

// Payload is the hook input document. Fields are populated per event type;
// absent fields stay zero.
type Payload struct {
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	Prompt         string          `json:"prompt,omitempty"`
	Source         string          `json:"source,omitempty"`
	StopHookActive bool            `json:"stop_hook_active,omitempty"`
	HookEventName  string          `json:"hook_event_name,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolResponse   json.RawMessage `json:"tool_response,omitempty"`
	Cwd            string          `json:"cwd,omitempty"`
}

// ReadPayload decodes one hook payload from r. Empty input yields a zero
// payload, matching hosts that invoke hooks with nothing on stdin.
func ReadPayload(r io.Reader) (Payload, error) {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return Payload{}, fmt.Errorf("read hook payload: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode hook payload: %w", err)
	}
	return p, nil
}

// Entry is one transcript line.
type Entry struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	Message   struct {
		Role    string          `json:"role,omitempty"`
		Model   string          `json:"model,omitempty"`
		Content json.RawMessage `json:"content,omitempty"`
	} `json:"message"`
}

// contentBlock is one element of an assistant content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

// ReadTranscript parses a transcript in JSONL or JSON-array form. Unparseable
// lines are skipped; a missing file is an empty transcript.
func ReadTranscript(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReaderSize(f, 64*1024)
	head, _ := br.Peek(1)
	if len(head) == 1 && head[0] == '[' {
		var entries []Entry
		if err := json.NewDecoder(br).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode transcript array: %w", err)
		}
		return entries, nil
	}

	var entries []Entry
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// LastAssistantText returns the final assistant text block in the transcript.
// The second return is false when no assistant text exists.
func LastAssistantText(path string) (string, bool) {
	entries, err := ReadTranscript(path)
	if err != nil {
		return "", false
	}
	var last string
	var found bool
	for _, e := range entries {
		if e.Type != "assistant" {
			continue
		}
		for _, b := range decodeBlocks(e.Message.Content) {
			if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
				last = b.Text
				found = true
			}
		}
	}
	return last, found
}

// CountAssistantMessages counts assistant entries carrying at least one text
// block.
func CountAssistantMessages(path string) int {
	entries, err := ReadTranscript(path)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if e.Type != "assistant" {
			continue
		}
		for _, b := range decodeBlocks(e.Message.Content) {
			if b.Type == "text" {
				count++
				break
			}
		}
	}
	return count
}

// ToolCall is one tool invocation paired with its result, when seen.
type ToolCall struct {
	Name    string `json:"name"`
	ID      string `json:"id,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

// ExtractToolCalls pairs tool_use blocks with their tool_result entries.
func ExtractToolCalls(path string) []ToolCall {
	entries, err := ReadTranscript(path)
	if err != nil {
		return nil
	}
	var calls []ToolCall
	for _, e := range entries {
		switch e.Type {
		case "assistant":
			for _, b := range decodeBlocks(e.Message.Content) {
				if b.Type == "tool_use" {
					name := b.Name
					if name == "" {
						name = "unknown"
					}
					calls = append(calls, ToolCall{Name: name, ID: b.ID})
				}
			}
		case "tool_result":
			ok := !e.IsError
			for i := len(calls) - 1; i >= 0; i-- {
				if calls[i].ID == e.ToolUseID && calls[i].Success == nil {
					calls[i].Success = &ok
					break
				}
			}
		}
	}
	return calls
}

// decodeBlocks accepts content as either a bare string or a block array.
func decodeBlocks(raw json.RawMessage) []contentBlock {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return []contentBlock{{Type: "text", Text: plain}}
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

// Output is the hook stdout document.
type Output struct {
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// HookSpecificOutput carries context back into the session.
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

// EmitContext writes a hookSpecificOutput document with additional context
// for the named event. Empty context writes nothing: silence means no
// injection.
func EmitContext(w io.Writer, event, context string) error {
	if strings.TrimSpace(context) == "" {
		return nil
	}
	out := Output{HookSpecificOutput: &HookSpecificOutput{
		HookEventName:     event,
		AdditionalContext: context,
	}}
	return json.NewEncoder(w).Encode(out)
}
