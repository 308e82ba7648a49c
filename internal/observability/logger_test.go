// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/punchclock/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -- Test Helper Functions --

func bufferSink() (*bytes.Buffer, zapcore.WriteSyncer) {
	var buf bytes.Buffer
	return &buf, zapcore.AddSync(&buf)
}

// -- Test Cases --

func TestNew(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		buf, sink := bufferSink()
		logger := New(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}, sink)

		logger.Named("watcher").Info("Button bound.")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, "Button bound.")
		assert.Contains(t, out, levelColors["green"]+"INFO"+ansiReset)
		assert.Contains(t, out, "TestService.watcher.")
	})

	t.Run("unknown color names fall back to plain labels", func(t *testing.T) {
		buf, sink := bufferSink()
		logger := New(config.LoggerConfig{Format: "console", Colors: config.ColorConfig{Warn: "mauve"}}, sink)
		logger.Warn("plain")
		require.NoError(t, logger.Sync())
		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), ansiReset)
	})

	t.Run("json output is structured", func(t *testing.T) {
		buf, sink := bufferSink()
		logger := New(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, sink)
		logger.Warn("Entry recorded.", zap.String("source", "auto"))
		require.NoError(t, logger.Sync())

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "Entry recorded.", entry["msg"])
		assert.Equal(t, "auto", entry["source"])
	})

	t.Run("level filtering", func(t *testing.T) {
		buf, sink := bufferSink()
		logger := New(config.LoggerConfig{Level: "warn", Format: "json"}, sink)
		logger.Info("hidden")
		logger.Error("shown")
		require.NoError(t, logger.Sync())
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level defaults to info", func(t *testing.T) {
		buf, sink := bufferSink()
		logger := New(config.LoggerConfig{Level: "chatty", Format: "json"}, sink)
		logger.Debug("hidden")
		logger.Info("shown")
		require.NoError(t, logger.Sync())
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("writes to a rotating log file", func(t *testing.T) {
		_, sink := bufferSink()
		path := filepath.Join(t.TempDir(), "punchclock.log")
		logger := New(config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1}, sink)
		logger.Error("This should go to the file.")
		_ = logger.Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
		// The file sink is always JSON.
		assert.Contains(t, string(content), `"level":"ERROR"`)
	})
}

func TestInitialize(t *testing.T) {
	t.Run("only the first call wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf, sink := bufferSink()
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, sink)
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, sink)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, buf.String(), `"logger":"First"`)
		assert.NotContains(t, buf.String(), "Second")
	})

	t.Run("zap globals are replaced", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		buf, sink := bufferSink()
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "Global"}, sink)
		zap.L().Info("via global")
		Sync()
		assert.Contains(t, buf.String(), "via global")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load(), "fallback must not be installed globally")
}
