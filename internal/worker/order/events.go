package order

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/messaging"
	ordersvc "github.com/Additional-Code/canteen/internal/service/order"
	"github.com/Additional-Code/canteen/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/canteen/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(NewLogNotifier, fx.As(new(Notifier))),
		NewProcessor,
		fx.Annotate(
			func(p *Processor) []worker.HandlerRegistration { return p.Registrations() },
			fx.ResultTags(`group:"worker.handlers,flatten"`),
		),
	),
)

// Notifier tells a waitlisted student that a spot opened up.
type Notifier interface {
	SpotOpened(ctx context.Context, entry entity.WaitlistEntry, cancelledOrderID int64) error
}

// LogNotifier records notifications in the application log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SpotOpened logs the notification.
func (n *LogNotifier) SpotOpened(_ context.Context, entry entity.WaitlistEntry, cancelledOrderID int64) error {
	n.logger.Info("waitlist head notified of open spot",
		zap.String("user_id", entry.UserID),
		zap.String("email", entry.Email),
		zap.Int("position", entry.Position),
		zap.Int64("cancelled_order_id", cancelledOrderID),
	)
	return nil
}

// Processor consumes ledger events from the orders topic.
type Processor struct {
	logger   *zap.Logger
	notifier Notifier
	topic    string
}

// NewProcessor constructs a Processor bound to the configured topic.
func NewProcessor(logger *zap.Logger, cfg config.Config, notifier Notifier) *Processor {
	return &Processor{logger: logger, notifier: notifier, topic: cfg.Messaging.Kafka.Topic}
}

// Registrations lists the handlers the worker engine should route to.
func (p *Processor) Registrations() []worker.HandlerRegistration {
	return []worker.HandlerRegistration{
		{Topic: p.topic, EventType: string(ordersvc.EventOrderCancelled), Handler: p.handleCancelled},
		{Topic: p.topic, Handler: p.handleAudit},
	}
}

func (p *Processor) decode(ctx context.Context, msg messaging.Message) (context.Context, trace.Span, ordersvc.Event, error) {
	ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
		attribute.String("messaging.topic", msg.Topic),
		attribute.String("messaging.event_type", msg.EventType()),
	))

	var event ordersvc.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		p.logger.Error("failed to decode order event", zap.String("event_type", msg.EventType()), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode error")
		return ctx, span, event, fmt.Errorf("decode order event: %w", err)
	}
	return ctx, span, event, nil
}

func (p *Processor) handleAudit(ctx context.Context, msg messaging.Message) error {
	_, span, event, err := p.decode(ctx, msg)
	defer span.End()
	if err != nil {
		return err
	}

	p.logger.Info("order event processed",
		zap.String("type", string(event.Type)),
		zap.Int64("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("slot", event.Slot),
		zap.String("payment_status", string(event.PaymentStatus)),
		zap.Int("position", event.Position),
	)
	return nil
}

func (p *Processor) handleCancelled(ctx context.Context, msg messaging.Message) error {
	ctx, span, event, err := p.decode(ctx, msg)
	defer span.End()
	if err != nil {
		return err
	}

	p.logger.Info("order cancelled event processed",
		zap.Int64("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
	)
	if event.NextInLine == nil {
		return nil
	}
	if err := p.notifier.SpotOpened(ctx, *event.NextInLine, event.OrderID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "notify failed")
		return fmt.Errorf("notify waitlist head: %w", err)
	}
	return nil
}
