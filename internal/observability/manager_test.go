package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
)

func TestPrometheusMetricsHandler(t *testing.T) {
	var cfg config.Config
	cfg.Observability.ServiceName = "canteen"
	cfg.Observability.EnableMetrics = true
	cfg.Observability.MetricsExporter = "prometheus"

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	require.True(t, mgr.MetricsEnabled())
	assert.False(t, mgr.TracingEnabled())

	in, err := NewInstruments(mgr)
	require.NoError(t, err)
	in.Admitted(context.Background(), "12:00")

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "canteen_orders_admitted")
	assert.Contains(t, string(body), "go_goroutines")

	lc.RequireStart()
	lc.RequireStop()
}

func TestDisabledProviders(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
}
