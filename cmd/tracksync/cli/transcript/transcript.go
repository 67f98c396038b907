// Package transcript parses Claude Code JSONL session transcripts and
// extracts the structured content the matcher and session processor consume.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Entry is a single line of a session transcript. Only user and assistant
// entries are retained; snapshot kinds (file-history-snapshot and friends)
// are dropped at parse time.
type Entry struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	CWD       string          `json:"cwd,omitempty"`
	GitBranch string          `json:"git_branch,omitempty"`
	Message   json.RawMessage `json:"message"`
}

// userMessage is the message body of a user entry. Content is a plain string
// in the common case but tool results arrive as block arrays.
type userMessage struct {
	Content any `json:"content"`
}

// assistantMessage is the message body of an assistant entry.
type assistantMessage struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block of an assistant message.
type ContentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// noiseMarkers flag injected host content that carries no signal about what
// the user actually asked for.
var noiseMarkers = []string{
	"<system-reminder>",
	"<local-command>",
	"<user-prompt-submit-hook>",
}

// Scanner buffer size for large transcript files (10MB).
const scannerBufferSize = 10 * 1024 * 1024

// ParseFile reads a JSONL transcript, keeping only user and assistant
// entries. Malformed lines are skipped.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a queue record written by our own hook
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scannerBufferSize), scannerBufferSize)

	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // skip malformed lines
		}
		if e.Type != "user" && e.Type != "assistant" {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan transcript: %w", err)
	}
	return entries, nil
}

// IsSubagentPath reports whether a transcript path belongs to a spawned
// subagent rather than the main session.
func IsSubagentPath(path string) bool {
	return strings.Contains(strings.ReplaceAll(path, "\\", "/"), "subagents/")
}

// FilterNoise drops entries whose textual content carries a noise marker.
// The filter is idempotent: filtering a filtered list is a no-op.
func FilterNoise(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if isNoise(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func isNoise(e Entry) bool {
	text := entryText(e)
	for _, marker := range noiseMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// entryText returns the full textual content of an entry for noise scanning.
func entryText(e Entry) string {
	if e.Type == "user" {
		return UserText(e)
	}

	var msg assistantMessage
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return ""
	}
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// UserText extracts the message text of a user entry. String content is
// returned as-is; block arrays contribute their text blocks. Tool-result
// blocks yield nothing, so pure tool-result entries read as empty.
func UserText(e Entry) string {
	var msg userMessage
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return ""
	}

	switch content := msg.Content.(type) {
	case string:
		return content
	case []any:
		var texts []string
		for _, item := range content {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if block["type"] == "text" {
				if text, ok := block["text"].(string); ok {
					texts = append(texts, text)
				}
			}
		}
		return strings.Join(texts, "\n\n")
	default:
		return ""
	}
}

// AssistantBlocks returns the content blocks of an assistant entry.
// Returns nil for anything else.
func AssistantBlocks(e Entry) []ContentBlock {
	if e.Type != "assistant" {
		return nil
	}
	var msg assistantMessage
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return nil
	}
	return msg.Content
}
