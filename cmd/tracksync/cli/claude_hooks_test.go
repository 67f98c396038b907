package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallClaudeHooksFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude", "settings.json")

	installed, err := installClaudeHooks(path)
	require.NoError(t, err)
	assert.Equal(t, 2, installed)
	assert.True(t, claudeHooksInstalled(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed struct {
		Hooks claudeHooks `json:"hooks"`
	}
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Len(t, parsed.Hooks.Stop, 1)
	assert.Equal(t, stopHookCommand, parsed.Hooks.Stop[0].Hooks[0].Command)
	require.Len(t, parsed.Hooks.PostToolUse, 1)
	assert.Equal(t, postToolUseMatcher, parsed.Hooks.PostToolUse[0].Matcher)
}

func TestInstallClaudeHooksIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	first, err := installClaudeHooks(path)
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := installClaudeHooks(path)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestInstallClaudeHooksPreservesUnrelatedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	existing := `{
		"model": "opus",
		"hooks": {
			"Stop": [{"hooks": [{"type": "command", "command": "other-tool notify"}]}]
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o600))

	installed, err := installClaudeHooks(path)
	require.NoError(t, err)
	assert.Equal(t, 2, installed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.JSONEq(t, `"opus"`, string(parsed["model"]), "unrelated fields survive")

	var hooks struct {
		Hooks claudeHooks `json:"hooks"`
	}
	require.NoError(t, json.Unmarshal(data, &hooks))
	require.Len(t, hooks.Hooks.Stop, 1)
	require.Len(t, hooks.Hooks.Stop[0].Hooks, 2, "existing hook kept, ours appended")
	assert.Equal(t, "other-tool notify", hooks.Hooks.Stop[0].Hooks[0].Command)
	assert.Equal(t, stopHookCommand, hooks.Hooks.Stop[0].Hooks[1].Command)
}

func TestInstallClaudeHooksRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := installClaudeHooks(path)
	assert.Error(t, err)
}

func TestClaudeHooksInstalledMissingFile(t *testing.T) {
	assert.False(t, claudeHooksInstalled(filepath.Join(t.TempDir(), "nope.json")))
}
