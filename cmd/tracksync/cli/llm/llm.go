// Package llm runs completions by shelling out to a local coding-assistant
// CLI. The transport is a single synchronous completion; structured variants
// are layered on top by parsing the output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single completion subprocess.
const DefaultTimeout = 60 * time.Second

// maxOutputBytes caps how much subprocess output we keep.
const maxOutputBytes = 1 << 20

// Transport produces text completions.
type Transport interface {
	// Complete runs the prompt and returns the raw text output.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Subprocess is a Transport that spawns an external command with the prompt
// as its final argument and reads stdout.
type Subprocess struct {
	// Command is the executable plus any fixed arguments, e.g. "claude -p".
	Command string
	Timeout time.Duration
}

// NewSubprocess returns a subprocess transport. An empty command defaults to
// "claude"; a zero timeout defaults to DefaultTimeout.
func NewSubprocess(command string, timeout time.Duration) *Subprocess {
	if command == "" {
		command = "claude"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Subprocess{Command: command, Timeout: timeout}
}

// Complete spawns the configured command and returns its trimmed stdout.
func (s *Subprocess) Complete(ctx context.Context, prompt string) (string, error) {
	parts := strings.Fields(s.Command)
	if len(parts) == 0 {
		return "", fmt.Errorf("llm command is empty")
	}
	args := append(parts[1:], prompt)

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("llm command timed out after %s", s.Timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("llm command failed: %w: %s", err, truncate(msg, 200))
		}
		return "", fmt.Errorf("llm command failed: %w", err)
	}

	out := stdout.String()
	if len(out) > maxOutputBytes {
		out = out[:maxOutputBytes]
	}
	return strings.TrimSpace(out), nil
}

// IssueMatch is one semantic-ranking entry returned by MatchIssues.
type IssueMatch struct {
	IssueID        string   `json:"issue_id"`
	RelevanceScore float64  `json:"relevance_score"`
	Reasoning      string   `json:"reasoning,omitempty"`
	MatchedAspects []string `json:"matched_aspects,omitempty"`
}

// MatchResponse is the typed payload of a semantic-ranking completion.
type MatchResponse struct {
	Matches []IssueMatch `json:"matches"`
}

// CompleteJSON runs the prompt and decodes the first {...} object in the
// output into out. Models often wrap JSON in prose or code fences, so the
// object is located by brace matching rather than decoding the whole output.
func CompleteJSON(ctx context.Context, t Transport, prompt string, out any) error {
	text, err := t.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	obj, err := firstJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("failed to decode llm JSON: %w", err)
	}
	return nil
}

// MatchIssues runs a semantic-ranking prompt and returns the typed matches.
func MatchIssues(ctx context.Context, t Transport, prompt string) (*MatchResponse, error) {
	var resp MatchResponse
	if err := CompleteJSON(ctx, t, prompt, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// firstJSONObject extracts the first balanced {...} substring, ignoring
// braces inside JSON strings.
func firstJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in llm output")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in llm output")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
