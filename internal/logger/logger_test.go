package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info().
		Str("component", "gateway").
		Str("command_id", "open-abc").
		Msg("Command sent")
	logger.Debug().Msg("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "gateway", entry["component"])
	assert.Equal(t, "open-abc", entry["command_id"])
	assert.Contains(t, entry, "time")
}

func TestNew_PrettyConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Console: true, Pretty: true, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug().Str("session_id", "window-1").Msg("Session registered")

	out := buf.String()
	assert.Contains(t, out, "Session registered")
	assert.Contains(t, out, "window-1")
	assert.False(t, strings.HasPrefix(out, "{"), "pretty output is not JSON")
}

func TestNew_RedactsCommandArguments(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Console: true, Redaction: true, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()
	require.NotNil(t, logger.redactor)

	logger.Info().
		RawJSON("args", []byte(`{"path":"/src/a.go","token":"s3cr3t"}`)).
		Str("auth", "Bearer abc.def.ghi").
		Msg("Forwarding tool call")

	out := buf.String()
	assert.Contains(t, out, "/src/a.go")
	assert.NotContains(t, out, "s3cr3t")
	assert.NotContains(t, out, "abc.def.ghi")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &entry), "redacted line stays valid JSON")
}

func TestNew_ConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "vsbridge.log")

	logger, err := New(Config{Level: "info", Console: true, File: logFile, Output: &buf})
	require.NoError(t, err)

	_, rotating := logger.file.(*RotatingWriter)
	assert.False(t, rotating, "no size limit means a plain file")

	logger.Warn().Msg("Response log is gone")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Response log is gone")
	assert.Contains(t, buf.String(), "Response log is gone")
}

func TestNew_RotatingFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "vsbridge.log")

	logger, err := New(Config{Level: "info", File: logFile, MaxSize: 1})
	require.NoError(t, err)

	_, ok := logger.file.(*RotatingWriter)
	assert.True(t, ok)

	logger.Info().Msg(strings.Repeat("x", 64))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), strings.Repeat("x", 64))
}

func TestNew_LevelFallback(t *testing.T) {
	for _, level := range []string{"", "loud"} {
		logger, err := New(Config{Level: level})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel(), level)
		assert.NoError(t, logger.Close())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 10, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
	assert.Nil(t, cfg.Output)
}
