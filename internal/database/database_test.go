package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/canteen/internal/config"
)

func sqliteConfig() config.Config {
	var cfg config.Config
	cfg.Store.Driver = "sql"
	cfg.Database.Driver = "sqlite"
	cfg.Database.WriterDSN = "file::memory:?cache=shared"
	cfg.Database.ReaderDSN = cfg.Database.WriterDSN
	cfg.Database.MaxOpenConns = 10
	return cfg
}

func TestNewDisabledWithoutSQLStore(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	var cfg config.Config
	cfg.Store.Driver = "memory"

	conns, err := New(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, conns.Enabled())
	lc.RequireStart().RequireStop()
}

func TestNewSQLite(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	conns, err := New(lc, sqliteConfig(), zap.NewNop())
	require.NoError(t, err)
	require.True(t, conns.Enabled())
	assert.Same(t, conns.Writer, conns.Reader)
	assert.Equal(t, 1, conns.Writer.DB.Stats().MaxOpenConnections)

	lc.RequireStart()
	var n int
	require.NoError(t, conns.Reader.NewRaw("SELECT 1").Scan(context.Background(), &n))
	assert.Equal(t, 1, n)
	lc.RequireStop()
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Database.Driver = "oracle"
	_, err := New(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestQueryLoggerReportsFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lc := fxtest.NewLifecycle(t)
	conns, err := New(lc, sqliteConfig(), zap.New(core))
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	_, err = conns.Writer.ExecContext(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)

	failed := logs.FilterMessage("query failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "db", failed[0].LoggerName)
}
