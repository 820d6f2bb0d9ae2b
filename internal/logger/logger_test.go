package logger

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/canteen/internal/config"
)

func TestBuildLevels(t *testing.T) {
	var cfg config.Config
	cfg.Observability.LogLevel = "debug"
	cfg.Observability.LogEncoding = "json"

	l, err := Build(cfg)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	cfg.Observability.LogLevel = "chatty"
	cfg.Observability.LogEncoding = "console"
	l, err = Build(cfg)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestIgnoreSyncErr(t *testing.T) {
	assert.NoError(t, ignoreSyncErr(nil))
	assert.NoError(t, ignoreSyncErr(fmt.Errorf("sync /dev/stdout: %w", syscall.EINVAL)))
	assert.NoError(t, ignoreSyncErr(syscall.ENOTTY))
	assert.Error(t, ignoreSyncErr(errors.New("disk full")))
}
