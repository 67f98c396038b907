// Package paths resolves the tracksync data home and the files that live
// inside it (queue, settings, PID file, logs).
//
// Everything tracksync persists lives under a single directory, by default
// ~/.tracksync. Set TRACKSYNC_HOME to relocate it (tests do this with
// t.TempDir()).
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DataHomeEnvVar overrides the default data home directory.
const DataHomeEnvVar = "TRACKSYNC_HOME"

// Data home file and directory names.
const (
	DefaultDirName    = ".tracksync"
	QueueFileName     = "queue.jsonl"
	PIDFileName       = "daemon.pid"
	SettingsFileName  = "settings.json"
	LocalSettingsName = "settings.local.json"
	LogsDirName       = "logs"
	DaemonLogFileName = "daemon.log"
)

// dataHomeCache caches the resolved data home per env value so repeated
// lookups in hooks stay cheap.
var (
	dataHomeMu       sync.RWMutex
	dataHomeCache    string
	dataHomeCacheKey string
)

// DataHome returns the tracksync data directory. The directory is not
// created; callers that write ensure it exists first.
func DataHome() (string, error) {
	key := os.Getenv(DataHomeEnvVar)

	dataHomeMu.RLock()
	if dataHomeCache != "" && dataHomeCacheKey == key {
		cached := dataHomeCache
		dataHomeMu.RUnlock()
		return cached, nil
	}
	dataHomeMu.RUnlock()

	home := key
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, DefaultDirName)
	}

	dataHomeMu.Lock()
	dataHomeCache = home
	dataHomeCacheKey = key
	dataHomeMu.Unlock()

	return home, nil
}

// ClearDataHomeCache clears the cached data home. Primarily for tests that
// change TRACKSYNC_HOME between cases.
func ClearDataHomeCache() {
	dataHomeMu.Lock()
	dataHomeCache = ""
	dataHomeCacheKey = ""
	dataHomeMu.Unlock()
}

// EnsureDataHome returns the data home, creating it if necessary.
func EnsureDataHome() (string, error) {
	home, err := DataHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0o750); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return home, nil
}

// QueuePath returns the path to the durable queue file.
func QueuePath() (string, error) {
	home, err := DataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, QueueFileName), nil
}

// PIDPath returns the path to the daemon PID file.
func PIDPath() (string, error) {
	home, err := DataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, PIDFileName), nil
}

// SettingsPath returns the path to the settings file.
func SettingsPath() (string, error) {
	home, err := DataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, SettingsFileName), nil
}

// LocalSettingsPath returns the path to the local settings override file.
func LocalSettingsPath() (string, error) {
	home, err := DataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, LocalSettingsName), nil
}

// DaemonLogPath returns the path to the daemon log file.
func DaemonLogPath() (string, error) {
	home, err := DataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, LogsDirName, DaemonLogFileName), nil
}

// ValidateSessionID validates that a session ID is non-empty and doesn't
// contain path separators. Session IDs end up in log attributes and queue
// records, never as raw path segments, but we still refuse anything that
// smells like traversal.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid session ID %q: contains path separators", id)
	}
	return nil
}

// ProjectName returns the last path segment of a working directory, which
// doubles as the project name in issue titles and keyword queries.
func ProjectName(cwd string) string {
	if cwd == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(cwd))
}
