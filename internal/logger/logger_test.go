package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"contest-settlement/internal/config"
)

func TestNew_LevelFallback(t *testing.T) {
	log, err := New(config.LogConfig{Level: "not-a-level", Encoding: "json"})
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlementd.log")

	log, err := New(config.LogConfig{Level: "debug", Encoding: "console", File: path})
	require.NoError(t, err)

	log.Info("transfer executed")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"transfer executed"`))
}
