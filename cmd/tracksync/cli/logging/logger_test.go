package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracksync.io/cli/cmd/tracksync/cli/paths"
)

func setupDataHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(paths.DataHomeEnvVar, dir)
	paths.ClearDataHomeCache()
	t.Cleanup(paths.ClearDataHomeCache)
	return dir
}

func TestInitWritesJSONToDaemonLog(t *testing.T) {
	setupDataHome(t)
	require.NoError(t, Init())
	t.Cleanup(Close)

	ctx := WithComponent(WithSession(context.Background(), "s-1"), "processor")
	Info(ctx, "record processed", slog.String("record_id", "r-1"))
	Flush()

	logPath, err := paths.DaemonLogPath()
	require.NoError(t, err)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "record processed", entry["msg"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "processor", entry["component"])
	assert.Equal(t, "r-1", entry["record_id"])
}

func TestLevelFromEnvSuppressesDebug(t *testing.T) {
	setupDataHome(t)
	t.Setenv(LogLevelEnvVar, "warn")
	require.NoError(t, Init())
	t.Cleanup(Close)

	Debug(context.Background(), "hidden")
	Warn(context.Background(), "visible")
	Flush()

	logPath, err := paths.DaemonLogPath()
	require.NoError(t, err)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestLogDurationIncludesMillis(t *testing.T) {
	setupDataHome(t)
	require.NoError(t, Init())
	t.Cleanup(Close)

	LogDuration(context.Background(), slog.LevelInfo, "drain finished", time.Now().Add(-25*time.Millisecond))
	Flush()

	logPath, err := paths.DaemonLogPath()
	require.NoError(t, err)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	ms, ok := entry["duration_ms"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, ms, float64(20))
}
