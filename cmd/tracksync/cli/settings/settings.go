// Package settings provides configuration loading for tracksync.
// This package is separate from cli so the processor and matcher packages can
// import it without creating an import cycle (cli imports both).
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tracksync.io/cli/cmd/tracksync/cli/paths"
)

// Defaults applied when a field is absent from the settings file.
const (
	DefaultAPIKeyEnv          = "LINEAR_API_KEY"
	DefaultAPIURL             = "https://api.linear.app/graphql"
	DefaultBranchPattern      = `([A-Z]+-\d+)`
	DefaultLLMCommand         = "claude"
	DefaultLLMTimeoutSeconds  = 60
	DefaultMaxRetries         = 3
	DefaultCleanupHours       = 168
	DefaultMaxAPICallsPerMin  = 30
	DefaultKeywordWeight      = 0.6
	DefaultSemanticWeight     = 0.4
	DefaultConfidenceLevel    = 0.7
	DefaultMaxCandidates      = 10
	DefaultHTTPTimeoutSeconds = 30
)

// MatcherSettings configures the hybrid issue matcher.
type MatcherSettings struct {
	// KeywordWeight and SemanticWeight control how keyword and semantic
	// scores are combined. They are normalized at use, so only their ratio
	// matters.
	KeywordWeight  float64 `json:"keyword_weight,omitempty"`
	SemanticWeight float64 `json:"semantic_weight,omitempty"`

	// ConfidenceThreshold is the minimum combined score at which the matcher
	// commits to an issue instead of returning no match.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`

	// MaxCandidates caps how many keyword-scored issues are forwarded to
	// semantic ranking.
	MaxCandidates int `json:"max_candidates,omitempty"`

	// EnableSemantic toggles LLM-assisted ranking. nil means enabled.
	EnableSemantic *bool `json:"enable_semantic,omitempty"`
}

// Settings represents the <data_home>/settings.json configuration.
type Settings struct {
	// APIKeyEnv names the environment variable holding the tracker API key.
	// The key itself is never written to disk by tracksync.
	APIKeyEnv string `json:"api_key_env,omitempty"`

	// APIURL is the tracker GraphQL endpoint.
	APIURL string `json:"api_url,omitempty"`

	// TeamKey selects the tracker team. Empty means the first team the
	// credential can see.
	TeamKey string `json:"team_key,omitempty"`

	// DefaultAssignee is the email of the user new and matched issues are
	// assigned to. Empty means the authenticated viewer.
	DefaultAssignee string `json:"default_assignee,omitempty"`

	// BranchPattern is a regex whose capture group 1 yields an issue
	// identifier from a branch name.
	BranchPattern string `json:"branch_pattern,omitempty"`

	Matcher MatcherSettings `json:"matcher,omitempty"`

	// MaxAPICallsPerMinute is the token-bucket capacity for matcher-issued
	// tracker and LLM calls.
	MaxAPICallsPerMinute int `json:"max_api_calls_per_minute,omitempty"`

	// LLMCommand is the executable spawned for summaries and semantic
	// ranking. It receives the prompt as its single argument.
	LLMCommand string `json:"llm_command,omitempty"`

	// LLMTimeoutSeconds is the wall-clock timeout for one LLM invocation.
	LLMTimeoutSeconds int `json:"llm_timeout_seconds,omitempty"`

	// MaxRetries is how many times a failed queue record is retried.
	MaxRetries int `json:"max_retries,omitempty"`

	// CleanupHours is the age threshold for dropping processed records.
	CleanupHours int `json:"cleanup_hours,omitempty"`

	// LogLevel sets logging verbosity (debug, info, warn, error).
	// Can be overridden by the TRACKSYNC_LOG_LEVEL environment variable.
	LogLevel string `json:"log_level,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not asked yet, true = opted in, false = opted out.
	Telemetry *bool `json:"telemetry,omitempty"`
}

// Defaults returns settings with every default applied, independent of any
// settings file.
func Defaults() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

// Load reads settings.json from the data home, then applies any overrides
// from settings.local.json. Missing files yield defaults, not errors.
func Load() (*Settings, error) {
	settingsPath, err := paths.SettingsPath()
	if err != nil {
		return nil, err
	}
	localPath, err := paths.LocalSettingsPath()
	if err != nil {
		return nil, err
	}

	s := &Settings{}
	if err := readInto(settingsPath, s); err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	// A second unmarshal into the same struct only touches fields present in
	// the local file, which is exactly override semantics.
	if err := readInto(localPath, s); err != nil {
		return nil, fmt.Errorf("reading local settings file: %w", err)
	}

	s.applyDefaults()
	return s, nil
}

// Save writes the settings to settings.json in the data home, creating the
// directory if needed.
func Save(s *Settings) error {
	home, err := paths.EnsureDataHome()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(home, paths.SettingsFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}

func readInto(path string, s *Settings) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from paths package
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Settings) applyDefaults() {
	if s.APIKeyEnv == "" {
		s.APIKeyEnv = DefaultAPIKeyEnv
	}
	if s.APIURL == "" {
		s.APIURL = DefaultAPIURL
	}
	if s.BranchPattern == "" {
		s.BranchPattern = DefaultBranchPattern
	}
	if s.LLMCommand == "" {
		s.LLMCommand = DefaultLLMCommand
	}
	if s.LLMTimeoutSeconds <= 0 {
		s.LLMTimeoutSeconds = DefaultLLMTimeoutSeconds
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.CleanupHours <= 0 {
		s.CleanupHours = DefaultCleanupHours
	}
	if s.MaxAPICallsPerMinute <= 0 {
		s.MaxAPICallsPerMinute = DefaultMaxAPICallsPerMin
	}
	if s.Matcher.KeywordWeight <= 0 {
		s.Matcher.KeywordWeight = DefaultKeywordWeight
	}
	if s.Matcher.SemanticWeight <= 0 {
		s.Matcher.SemanticWeight = DefaultSemanticWeight
	}
	if s.Matcher.ConfidenceThreshold <= 0 {
		s.Matcher.ConfidenceThreshold = DefaultConfidenceLevel
	}
	if s.Matcher.MaxCandidates <= 0 {
		s.Matcher.MaxCandidates = DefaultMaxCandidates
	}
}

// SemanticEnabled reports whether LLM-assisted ranking is on.
func (s *Settings) SemanticEnabled() bool {
	return s.Matcher.EnableSemantic == nil || *s.Matcher.EnableSemantic
}

// APIKey resolves the tracker credential from the configured environment
// variable. An empty result means the credential is missing, not that the
// lookup failed.
func (s *Settings) APIKey() string {
	return os.Getenv(s.APIKeyEnv)
}
