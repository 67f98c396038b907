package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func userLine(sessionID, text string) string {
	return fmt.Sprintf(`{"type":"user","session_id":%q,"timestamp":"2025-01-01T10:00:00Z","cwd":"/home/u/proj/web","git_branch":"main","message":{"role":"user","content":%q}}`, sessionID, text)
}

func TestParseFileKeepsOnlyUserAndAssistant(t *testing.T) {
	path := writeTranscript(t,
		userLine("s1", "fix the login bug"),
		`{"type":"file-history-snapshot","session_id":"s1"}`,
		`{"type":"assistant","session_id":"s1","timestamp":"2025-01-01T10:01:00Z","message":{"role":"assistant","content":[{"type":"text","text":"on it"}]}}`,
		`not json at all`,
		``,
	)

	entries, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Type)
	assert.Equal(t, "assistant", entries[1].Type)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestFilterNoiseDropsMarkedEntries(t *testing.T) {
	entries := []Entry{
		mustEntry(t, userLine("s1", "real request")),
		mustEntry(t, userLine("s1", "<system-reminder>internal</system-reminder>")),
		mustEntry(t, userLine("s1", "<local-command>ls</local-command>")),
		mustEntry(t, userLine("s1", "<user-prompt-submit-hook>ok</user-prompt-submit-hook>")),
	}

	filtered := FilterNoise(entries)
	require.Len(t, filtered, 1)
	assert.Equal(t, "real request", UserText(filtered[0]))
}

func TestFilterNoiseIsIdempotent(t *testing.T) {
	entries := []Entry{
		mustEntry(t, userLine("s1", "keep me")),
		mustEntry(t, userLine("s1", "<system-reminder>drop me")),
	}

	once := FilterNoise(entries)
	twice := FilterNoise(once)
	assert.Equal(t, once, twice)
}

func TestUserTextHandlesBlockContent(t *testing.T) {
	line := `{"type":"user","session_id":"s1","message":{"role":"user","content":[{"type":"text","text":"part one"},{"type":"tool_result","content":"ignored"},{"type":"text","text":"part two"}]}}`
	e := mustEntry(t, line)
	assert.Equal(t, "part one\n\npart two", UserText(e))
}

func TestUserTextToolResultOnlyIsEmpty(t *testing.T) {
	line := `{"type":"user","session_id":"s1","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"done"}]}}`
	assert.Empty(t, UserText(mustEntry(t, line)))
}

func TestIsSubagentPath(t *testing.T) {
	assert.True(t, IsSubagentPath("/home/u/.claude/projects/p/s1/subagents/agent-1.jsonl"))
	assert.False(t, IsSubagentPath("/home/u/.claude/projects/p/s1.jsonl"))
}

func mustEntry(t *testing.T, line string) Entry {
	t.Helper()
	path := writeTranscript(t, line)
	entries, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}
