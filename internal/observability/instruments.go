package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/Additional-Code/canteen/ledger"

// Instruments records admission and pickup counters. A nil *Instruments is a no-op.
type Instruments struct {
	meter      metric.Meter
	admitted   metric.Int64Counter
	waitlisted metric.Int64Counter
	rejected   metric.Int64Counter
	served     metric.Int64Counter
	payments   metric.Int64Counter
	cancelled  metric.Int64Counter
}

// NewInstruments registers the canteen counters on the manager's meter provider.
func NewInstruments(mgr *Manager) (*Instruments, error) {
	var provider metric.MeterProvider = noop.NewMeterProvider()
	if mgr != nil && mgr.meterProvider != nil {
		provider = mgr.meterProvider
	}
	meter := provider.Meter(meterName)

	var (
		in  = Instruments{meter: meter}
		err error
	)
	if in.admitted, err = meter.Int64Counter("canteen.orders.admitted",
		metric.WithDescription("Orders accepted and assigned a pickup slot")); err != nil {
		return nil, err
	}
	if in.waitlisted, err = meter.Int64Counter("canteen.orders.waitlisted",
		metric.WithDescription("Requests placed on the waitlist after the daily cap")); err != nil {
		return nil, err
	}
	if in.rejected, err = meter.Int64Counter("canteen.orders.rejected",
		metric.WithDescription("Requests rejected by admission control")); err != nil {
		return nil, err
	}
	if in.served, err = meter.Int64Counter("canteen.orders.served",
		metric.WithDescription("Orders handed out at the counter")); err != nil {
		return nil, err
	}
	if in.payments, err = meter.Int64Counter("canteen.payments.updated",
		metric.WithDescription("Payment status changes")); err != nil {
		return nil, err
	}
	if in.cancelled, err = meter.Int64Counter("canteen.orders.cancelled",
		metric.WithDescription("Orders removed by cancellation")); err != nil {
		return nil, err
	}
	return &in, nil
}

// Admitted counts an order placed into slot.
func (in *Instruments) Admitted(ctx context.Context, slot string) {
	if in == nil {
		return
	}
	in.admitted.Add(ctx, 1, metric.WithAttributes(attribute.String("slot", slot)))
}

// Waitlisted counts a request parked on the waitlist.
func (in *Instruments) Waitlisted(ctx context.Context) {
	if in == nil {
		return
	}
	in.waitlisted.Add(ctx, 1)
}

// Rejected counts a refused request, labelled with the error code.
func (in *Instruments) Rejected(ctx context.Context, reason string) {
	if in == nil {
		return
	}
	in.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Served counts an order handed over at the counter.
func (in *Instruments) Served(ctx context.Context) {
	if in == nil {
		return
	}
	in.served.Add(ctx, 1)
}

// PaymentUpdated counts a payment status change to status.
func (in *Instruments) PaymentUpdated(ctx context.Context, status string) {
	if in == nil {
		return
	}
	in.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Cancelled counts a cancelled order.
func (in *Instruments) Cancelled(ctx context.Context) {
	if in == nil {
		return
	}
	in.cancelled.Add(ctx, 1)
}

// LedgerSnapshot returns the live capacity figures of the ledger.
type LedgerSnapshot func() (spotsLeft, waitlist int64)

// ObserveLedger registers gauges read from snapshot at every collection.
func (in *Instruments) ObserveLedger(snapshot LedgerSnapshot) error {
	if in == nil || snapshot == nil {
		return nil
	}
	spots, err := in.meter.Int64ObservableGauge("canteen.spots_left",
		metric.WithDescription("Orders still accepted today before the waitlist"))
	if err != nil {
		return err
	}
	waitlist, err := in.meter.Int64ObservableGauge("canteen.waitlist.length",
		metric.WithDescription("Entries on the waitlist"))
	if err != nil {
		return err
	}
	_, err = in.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s, w := snapshot()
		o.ObserveInt64(spots, s)
		o.ObserveInt64(waitlist, w)
		return nil
	}, spots, waitlist)
	return err
}
