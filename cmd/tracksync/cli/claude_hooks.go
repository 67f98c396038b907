package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Hook commands written into Claude Code's settings file.
const (
	stopHookCommand        = "tracksync hooks session-stop"
	postToolUseHookCommand = "tracksync hooks post-tool-use"
)

// postToolUseMatcher limits the post-tool-use hook to shell invocations,
// which is the only place a PR can be created.
const postToolUseMatcher = "Bash"

type claudeHookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type claudeHookMatcher struct {
	Matcher string            `json:"matcher,omitempty"`
	Hooks   []claudeHookEntry `json:"hooks"`
}

type claudeHooks struct {
	Stop        []claudeHookMatcher `json:"Stop,omitempty"`
	PostToolUse []claudeHookMatcher `json:"PostToolUse,omitempty"`
}

// claudeSettingsPath returns the user-level Claude Code settings file. The
// daemon observes every session, so hooks are installed user-wide rather
// than per repository.
func claudeSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

// installClaudeHooks adds the Stop and PostToolUse hooks to the settings
// file, preserving every unrelated field. Returns how many hooks were
// newly added.
func installClaudeHooks(settingsPath string) (int, error) {
	raw := make(map[string]json.RawMessage)
	var hooks claudeHooks

	if data, err := os.ReadFile(settingsPath); err == nil { //nolint:gosec // fixed path under the user's home
		if err := json.Unmarshal(data, &raw); err != nil {
			return 0, fmt.Errorf("failed to parse %s: %w", settingsPath, err)
		}
		if hooksRaw, ok := raw["hooks"]; ok {
			if err := json.Unmarshal(hooksRaw, &hooks); err != nil {
				return 0, fmt.Errorf("failed to parse hooks in %s: %w", settingsPath, err)
			}
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to read %s: %w", settingsPath, err)
	}

	count := 0
	if !hookInstalled(hooks.Stop, "", stopHookCommand) {
		hooks.Stop = addHook(hooks.Stop, "", stopHookCommand)
		count++
	}
	if !hookInstalled(hooks.PostToolUse, postToolUseMatcher, postToolUseHookCommand) {
		hooks.PostToolUse = addHook(hooks.PostToolUse, postToolUseMatcher, postToolUseHookCommand)
		count++
	}
	if count == 0 {
		return 0, nil
	}

	hooksJSON, err := json.Marshal(hooks)
	if err != nil {
		return 0, fmt.Errorf("failed to encode hooks: %w", err)
	}
	raw["hooks"] = hooksJSON

	output, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(settingsPath), err)
	}
	if err := os.WriteFile(settingsPath, output, 0o600); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", settingsPath, err)
	}
	return count, nil
}

// claudeHooksInstalled reports whether the session-stop hook is present.
func claudeHooksInstalled(settingsPath string) bool {
	data, err := os.ReadFile(settingsPath) //nolint:gosec // fixed path under the user's home
	if err != nil {
		return false
	}
	var parsed struct {
		Hooks claudeHooks `json:"hooks"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return false
	}
	return hookInstalled(parsed.Hooks.Stop, "", stopHookCommand)
}

func hookInstalled(matchers []claudeHookMatcher, matcher, command string) bool {
	for _, m := range matchers {
		if m.Matcher != matcher {
			continue
		}
		for _, h := range m.Hooks {
			if h.Command == command {
				return true
			}
		}
	}
	return false
}

// addHook appends the command to the matcher group, creating the group if
// needed.
func addHook(matchers []claudeHookMatcher, matcher, command string) []claudeHookMatcher {
	entry := claudeHookEntry{Type: "command", Command: command}
	for i := range matchers {
		if matchers[i].Matcher == matcher {
			matchers[i].Hooks = append(matchers[i].Hooks, entry)
			return matchers
		}
	}
	return append(matchers, claudeHookMatcher{Matcher: matcher, Hooks: []claudeHookEntry{entry}})
}
