package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = New(Options{Level: "info", Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.log")
	logger, err := New(Options{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("diagnosis finished", zap.String("tier", "light"))
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"message":"diagnosis finished"`)
	assert.Contains(t, out, `"tier":"light"`)
	assert.False(t, strings.Contains(out, "hidden at info level"))
}

func TestSetLevel(t *testing.T) {
	logger, err := New(Options{Level: "info"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, logger.Level())

	require.NoError(t, logger.SetLevel("DEBUG"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())

	assert.Error(t, logger.SetLevel("chatty"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
}
