package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/ledger"
	"github.com/Additional-Code/canteen/internal/messaging"
	"github.com/Additional-Code/canteen/internal/observability"
	"github.com/Additional-Code/canteen/internal/slot"
	"github.com/Additional-Code/canteen/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/canteen/service/order")

// Service fronts the ledger for transports: it maps domain failures onto
// errorbank errors, records metrics and publishes ledger events.
type Service struct {
	ledger    *ledger.Ledger
	logger    *zap.Logger
	publisher messaging.Client
	metrics   *observability.Instruments
	messaging messagingConfig
	latency   time.Duration
	scanGrace time.Duration

	// serveMu makes the served check and MarkServed one step.
	serveMu sync.Mutex
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Ledger    *ledger.Ledger
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
	Metrics   *observability.Instruments `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := p.Metrics.ObserveLedger(func() (int64, int64) {
		st := p.Ledger.TodayStats()
		return int64(st.SpotsLeft), int64(st.WaitlistCount)
	}); err != nil {
		logger.Warn("ledger gauges not registered", zap.Error(err))
	}

	return &Service{
		ledger:    p.Ledger,
		logger:    logger,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		latency:   p.Config.Canteen.SimulatedLatency,
		scanGrace: p.Config.Canteen.ScanGrace,
	}
}

// Ledger exposes the underlying ledger for read-only reporting.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// Create runs admission for req. The result is either an order or a
// waitlist placement.
func (s *Service) Create(ctx context.Context, req ledger.Request) (ledger.Result, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("order.meal_type", string(req.MealType)),
	))
	defer span.End()

	if err := s.simulateLatency(ctx); err != nil {
		return ledger.Result{}, err
	}

	res, err := s.ledger.CreateOrder(ctx, req)
	if err != nil {
		mapped := s.mapError(err)
		s.metrics.Rejected(ctx, errorbank.CodeOf(mapped))
		recordSpanError(span, err)
		return ledger.Result{}, mapped
	}

	if res.Waitlisted {
		span.SetAttributes(attribute.Int("waitlist.position", res.Position))
		s.metrics.Waitlisted(ctx)
		s.logger.Info("order waitlisted", zap.String("user_id", req.UserID), zap.Int("position", res.Position))
		s.publish(ctx, Event{
			Type:       EventOrderWaitlist,
			UserID:     res.Entry.UserID,
			UserName:   res.Entry.UserName,
			Email:      res.Entry.Email,
			MealType:   res.Entry.MealType,
			Position:   res.Position,
			OccurredAt: res.Entry.Timestamp,
		})
		return res, nil
	}

	span.SetAttributes(attribute.Int64("order.id", res.Order.ID), attribute.String("order.slot", res.Order.Slot))
	s.metrics.Admitted(ctx, res.Order.Slot)
	s.logger.Info("order created",
		zap.Int64("id", res.Order.ID),
		zap.String("user_id", res.Order.UserID),
		zap.String("slot", res.Order.Slot),
	)
	s.publish(ctx, orderEvent(EventOrderCreated, *res.Order, res.Order.CreatedAt))
	return res, nil
}

// Get retrieves an order by id.
func (s *Service) Get(ctx context.Context, id int64) (entity.Order, error) {
	_, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	o, err := s.ledger.Get(id)
	if err != nil {
		return entity.Order{}, s.mapError(err)
	}
	return o, nil
}

// ByUser returns the user's order for today.
func (s *Service) ByUser(ctx context.Context, userID string) (entity.Order, error) {
	_, span := serviceTracer.Start(ctx, "OrderService.ByUser", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	o, ok := s.ledger.LookupByUser(userID)
	if !ok {
		return entity.Order{}, s.mapError(ledger.ErrOrderNotFound)
	}
	return o, nil
}

// Current returns the most recently created order.
func (s *Service) Current(ctx context.Context) (entity.Order, error) {
	o, ok := s.ledger.CurrentOrder()
	if !ok {
		return entity.Order{}, errorbank.NotFound("no current order", errorbank.WithCode("order_not_found"))
	}
	return o, nil
}

// List returns orders matching f.
func (s *Service) List(ctx context.Context, f ledger.Filter) ([]entity.Order, error) {
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, errorbank.BadRequest(fmt.Sprintf("unknown payment status %q", f.PaymentStatus),
			errorbank.WithCode("invalid_status"))
	}
	return s.ledger.Orders(f), nil
}

// UpdatePayment sets the payment status of one order.
func (s *Service) UpdatePayment(ctx context.Context, id int64, status entity.PaymentStatus) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdatePayment", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.payment_status", string(status)),
	))
	defer span.End()

	if err := s.simulateLatency(ctx); err != nil {
		return entity.Order{}, err
	}

	o, err := s.ledger.UpdatePaymentStatus(ctx, id, status)
	if err != nil {
		recordSpanError(span, err)
		return entity.Order{}, s.mapError(err)
	}
	s.metrics.PaymentUpdated(ctx, string(status))
	s.publish(ctx, orderEvent(EventPaymentUpdated, o, s.ledger.Now()))
	return o, nil
}

// BulkUpdatePayment applies status to every id. Unknown ids are skipped and
// reported through the returned error details; updated orders are returned
// either way.
func (s *Service) BulkUpdatePayment(ctx context.Context, ids []int64, status entity.PaymentStatus) ([]entity.Order, error) {
	if len(ids) == 0 {
		return nil, errorbank.BadRequest("at least one order id is required")
	}
	if !status.Valid() {
		return nil, s.mapError(fmt.Errorf("%w: %q", ledger.ErrInvalidStatus, status))
	}

	updated := make([]entity.Order, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		o, err := s.UpdatePayment(ctx, id, status)
		if err != nil {
			if errorbank.CodeOf(err) == "order_not_found" {
				missing = append(missing, id)
				continue
			}
			return updated, err
		}
		updated = append(updated, o)
	}
	if len(missing) > 0 {
		return updated, errorbank.NotFound("some orders were not found",
			errorbank.WithCode("order_not_found"),
			errorbank.WithDetails(map[string]any{"missing": missing, "updated": len(updated)}),
		)
	}
	return updated, nil
}

// Cancel removes an order and reports the head of the waitlist.
func (s *Service) Cancel(ctx context.Context, id int64) (ledger.Cancellation, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	c, err := s.ledger.CancelOrder(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		return ledger.Cancellation{}, s.mapError(err)
	}
	s.metrics.Cancelled(ctx)
	s.logger.Info("order cancelled", zap.Int64("id", id), zap.String("user_id", c.Order.UserID))
	ev := orderEvent(EventOrderCancelled, c.Order, s.ledger.Now())
	ev.NextInLine = c.NextInLine
	s.publish(ctx, ev)
	return c, nil
}

// Slots lists today's pickup buckets.
func (s *Service) Slots(ctx context.Context) []slot.Slot {
	return s.ledger.Slots()
}

// Waitlist returns the waitlist in insertion order.
func (s *Service) Waitlist(ctx context.Context) []entity.WaitlistEntry {
	return s.ledger.Waitlist()
}

// Status describes whether ordering is open and how many spots remain.
type Status struct {
	Open         bool
	Now          time.Time
	Policy       ledger.Policy
	SlotCapacity int
	SpotsLeft    int
}

// Status reports the current admission state.
func (s *Service) Status(ctx context.Context) Status {
	stats := s.ledger.TodayStats()
	return Status{
		Open:         s.ledger.OrderingOpen(),
		Now:          s.ledger.Now(),
		Policy:       s.ledger.Policy(),
		SlotCapacity: s.ledger.Allocator().Config().Capacity,
		SpotsLeft:    stats.SpotsLeft,
	}
}

func (s *Service) simulateLatency(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errorbank.Unavailable("request cancelled", errorbank.WithCause(ctx.Err()))
	case <-t.C:
		return nil
	}
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	key := []byte("user-" + ev.UserID)
	if ev.OrderID != 0 {
		key = []byte(fmt.Sprintf("order-%d", ev.OrderID))
	}
	headers := map[string]string{messaging.HeaderEventType: string(ev.Type)}
	if err := s.publisher.Publish(ctx, key, payload, headers); err != nil {
		s.logger.Error("publish order event",
			zap.String("type", string(ev.Type)),
			zap.String("topic", s.messaging.topic),
			zap.Error(err),
		)
	}
}

// mapError converts ledger sentinels into transport-agnostic errorbank errors.
func (s *Service) mapError(err error) error {
	var appErr *errorbank.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ledger.ErrOrderingClosed):
		policy := s.ledger.Policy()
		return errorbank.Unprocessable("ordering is closed for today",
			errorbank.WithCode("ordering_closed"),
			errorbank.WithCause(err),
			errorbank.WithDetails(map[string]any{"cutoff": config.FormatClock(policy.Cutoff)}),
		)
	case errors.Is(err, ledger.ErrDuplicateOrder):
		return errorbank.Conflict("you already have an order for today",
			errorbank.WithCode("duplicate_order"),
			errorbank.WithCause(err),
		)
	case errors.Is(err, ledger.ErrNoSlotsAvailable):
		return errorbank.Unavailable("all pickup slots are full",
			errorbank.WithCode("no_slots_available"),
			errorbank.WithCause(err),
		)
	case errors.Is(err, ledger.ErrOrderNotFound):
		return errorbank.NotFound("order not found",
			errorbank.WithCode("order_not_found"),
			errorbank.WithCause(err),
		)
	case errors.Is(err, ledger.ErrInvalidRequest):
		return errorbank.BadRequest(err.Error(), errorbank.WithCode("invalid_request"), errorbank.WithCause(err))
	case errors.Is(err, ledger.ErrInvalidStatus):
		return errorbank.BadRequest(err.Error(), errorbank.WithCode("invalid_status"), errorbank.WithCause(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorbank.Unavailable("request cancelled", errorbank.WithCause(err))
	default:
		s.logger.Error("ledger persistence failed", zap.Error(err))
		return errorbank.Internal("failed to persist order state", errorbank.WithCause(err))
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
