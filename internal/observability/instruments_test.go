package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInstrumentsRecordCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mgr := &Manager{meterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))}

	in, err := NewInstruments(mgr)
	require.NoError(t, err)

	ctx := context.Background()
	in.Admitted(ctx, "12:00")
	in.Admitted(ctx, "12:15")
	in.Waitlisted(ctx)
	in.Rejected(ctx, "duplicate_order")
	in.Served(ctx)
	in.PaymentUpdated(ctx, "paid")
	in.Cancelled(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	totals := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok, m.Name)
		for _, dp := range sum.DataPoints {
			totals[m.Name] += dp.Value
		}
	}
	assert.Equal(t, int64(2), totals["canteen.orders.admitted"])
	assert.Equal(t, int64(1), totals["canteen.orders.waitlisted"])
	assert.Equal(t, int64(1), totals["canteen.orders.rejected"])
	assert.Equal(t, int64(1), totals["canteen.orders.served"])
	assert.Equal(t, int64(1), totals["canteen.payments.updated"])
	assert.Equal(t, int64(1), totals["canteen.orders.cancelled"])
}

func TestNilInstrumentsAreNoop(t *testing.T) {
	var in *Instruments
	assert.NotPanics(t, func() {
		in.Admitted(context.Background(), "12:00")
		in.Rejected(context.Background(), "ordering_closed")
	})

	fallback, err := NewInstruments(nil)
	require.NoError(t, err)
	assert.NotNil(t, fallback)
}

func TestObserveLedgerGauges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mgr := &Manager{meterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))}
	in, err := NewInstruments(mgr)
	require.NoError(t, err)

	spots := int64(150)
	require.NoError(t, in.ObserveLedger(func() (int64, int64) { return spots, 3 }))

	collect := func() map[string]int64 {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		out := map[string]int64{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if g, ok := m.Data.(metricdata.Gauge[int64]); ok {
					for _, dp := range g.DataPoints {
						out[m.Name] = dp.Value
					}
				}
			}
		}
		return out
	}

	assert.Equal(t, map[string]int64{"canteen.spots_left": 150, "canteen.waitlist.length": 3}, collect())
	spots = 149
	assert.Equal(t, int64(149), collect()["canteen.spots_left"])

	var nilIn *Instruments
	assert.NoError(t, nilIn.ObserveLedger(func() (int64, int64) { return 0, 0 }))
}
