package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBasicSession(t *testing.T) {
	path := writeTranscript(t,
		userLine("s1", "fix the login page redirect bug on mobile"),
		`{"type":"assistant","session_id":"s1","timestamp":"2025-01-01T10:05:00Z","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/home/u/proj/web/src/login.ts"}},{"type":"text","text":"done"}]}}`,
		userLine("s1", "also update the redirect tests"),
	)

	entries, err := ParseFile(path)
	require.NoError(t, err)
	content := Extract(FilterNoise(entries), "/fallback")

	assert.Equal(t, "fix the login page redirect bug on mobile", content.PrimaryRequest)
	assert.Equal(t, []string{"also update the redirect tests"}, content.AdditionalContext)
	assert.Equal(t, "s1", content.SessionID)
	assert.Equal(t, "/home/u/proj/web", content.CWD)
	assert.Equal(t, "web", content.ProjectName)
	assert.Equal(t, "main", content.GitBranch)
	assert.Equal(t, []string{"edit"}, content.ToolPatterns)
	assert.Equal(t, []string{"/home/u/proj/web/src/login.ts"}, content.FilePaths)

	assert.Contains(t, content.Keywords, "login")
	assert.Contains(t, content.Keywords, "redirect")
	assert.Contains(t, content.Keywords, "mobile")
	assert.Contains(t, content.Keywords, "web", "project name becomes a keyword")
	assert.Contains(t, content.Keywords, "login.ts", "file base names become keywords")
	assert.NotContains(t, content.Keywords, "the", "stop words are excluded")
	assert.NotContains(t, content.Keywords, "on", "short tokens are excluded")
}

func TestExtractTimeRange(t *testing.T) {
	path := writeTranscript(t,
		userLine("s1", "first"),
		`{"type":"assistant","session_id":"s1","timestamp":"2025-01-01T11:30:00Z","message":{"role":"assistant","content":[{"type":"text","text":"later"}]}}`,
	)
	entries, err := ParseFile(path)
	require.NoError(t, err)

	content := Extract(entries, "")
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), content.TimeRange.Start)
	assert.Equal(t, time.Date(2025, 1, 1, 11, 30, 0, 0, time.UTC), content.TimeRange.End)
}

func TestExtractUsesFallbackCWD(t *testing.T) {
	line := `{"type":"user","session_id":"s1","message":{"role":"user","content":"hello there friend"}}`
	content := Extract([]Entry{mustEntry(t, line)}, "/home/u/proj/mobile-app")

	assert.Equal(t, "/home/u/proj/mobile-app", content.CWD)
	assert.Equal(t, "mobile-app", content.ProjectName)
	assert.Contains(t, content.Keywords, "mobile-app")
}

func TestExtractFilePathKeyVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "file_path", input: `{"file_path":"/a/b.go"}`, want: "/a/b.go"},
		{name: "path", input: `{"path":"/a/c.go"}`, want: "/a/c.go"},
		{name: "filePath", input: `{"filePath":"/a/d.go"}`, want: "/a/d.go"},
		{name: "file", input: `{"file":"/a/e.go"}`, want: "/a/e.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTranscript(t,
				`{"type":"assistant","session_id":"s1","message":{"role":"assistant","content":[{"type":"tool_use","name":"Read","input":`+tt.input+`}]}}`,
			)
			entries, err := ParseFile(path)
			require.NoError(t, err)

			content := Extract(entries, "")
			assert.Equal(t, []string{tt.want}, content.FilePaths)
		})
	}
}

func TestUserMessagesOrder(t *testing.T) {
	c := &Content{PrimaryRequest: "first", AdditionalContext: []string{"second", "third"}}
	assert.Equal(t, []string{"first", "second", "third"}, c.UserMessages())

	empty := &Content{}
	assert.Empty(t, empty.UserMessages())
}
