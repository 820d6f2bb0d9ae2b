package order

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/entity"
	"github.com/Additional-Code/canteen/internal/ledger"
	"github.com/Additional-Code/canteen/internal/slot"
	"github.com/Additional-Code/canteen/pkg/errorbank"
)

// ScanOutcome is the verdict of verifying a pickup code at the counter.
type ScanOutcome string

const (
	ScanValid         ScanOutcome = "valid"
	ScanAlreadyServed ScanOutcome = "already_served"
	ScanNotToday      ScanOutcome = "not_today"
	ScanTooEarly      ScanOutcome = "too_early"
	ScanTooLate       ScanOutcome = "too_late"
)

// Servable reports whether staff may hand the meal out on this outcome.
// Early and late pickups are warnings only.
func (o ScanOutcome) Servable() bool {
	return o == ScanValid || o == ScanTooEarly || o == ScanTooLate
}

// ScanResult pairs an outcome with the resolved order.
type ScanResult struct {
	Outcome ScanOutcome
	Message string
	Order   entity.Order
}

// scanPayload is the JSON shape some QR generators embed instead of the bare token.
type scanPayload struct {
	OrderID json.Number `json:"orderId"`
	QRCode  string      `json:"qrCode"`
}

// Verify resolves a scanned code to an order and checks that it can be
// collected now. The code may be the QR token, a numeric order id or a JSON
// object carrying either.
func (s *Service) Verify(ctx context.Context, code string) (ScanResult, error) {
	_, span := serviceTracer.Start(ctx, "OrderService.Verify")
	defer span.End()

	o, err := s.resolve(code)
	if err != nil {
		return ScanResult{}, err
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	res := s.check(o)
	span.SetAttributes(attribute.String("scan.outcome", string(res.Outcome)))
	return res, nil
}

// Serve marks the order collected after re-running the scan checks. Orders
// already served or placed on another day are refused.
func (s *Service) Serve(ctx context.Context, id int64) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Serve", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	s.serveMu.Lock()
	defer s.serveMu.Unlock()

	o, err := s.ledger.Get(id)
	if err != nil {
		return entity.Order{}, s.mapError(err)
	}
	res := s.check(o)
	if !res.Outcome.Servable() {
		return entity.Order{}, errorbank.Conflict(res.Message,
			errorbank.WithCode(string(res.Outcome)),
			errorbank.WithDetail("orderId", id),
		)
	}

	served, err := s.ledger.MarkServed(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		return entity.Order{}, s.mapError(err)
	}
	s.metrics.Served(ctx)
	s.logger.Info("order served", zap.Int64("id", id), zap.String("outcome", string(res.Outcome)))
	s.publish(ctx, orderEvent(EventOrderServed, served, *served.ServedAt))
	return served, nil
}

func (s *Service) resolve(code string) (entity.Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return entity.Order{}, errorbank.BadRequest("scan code is required", errorbank.WithCode("invalid_request"))
	}

	if strings.HasPrefix(code, "{") {
		var p scanPayload
		if err := json.Unmarshal([]byte(code), &p); err != nil {
			return entity.Order{}, errorbank.BadRequest("unreadable scan payload",
				errorbank.WithCode("invalid_request"), errorbank.WithCause(err))
		}
		switch {
		case p.QRCode != "":
			code = p.QRCode
		case p.OrderID != "":
			code = p.OrderID.String()
		default:
			return entity.Order{}, errorbank.BadRequest("scan payload carries no order reference",
				errorbank.WithCode("invalid_request"))
		}
	}

	o, err := s.ledger.FindByQRCode(code)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ledger.ErrOrderNotFound) {
		return entity.Order{}, s.mapError(err)
	}
	id, perr := strconv.ParseInt(code, 10, 64)
	if perr != nil {
		return entity.Order{}, s.mapError(err)
	}
	o, err = s.ledger.Get(id)
	if err != nil {
		return entity.Order{}, s.mapError(err)
	}
	return o, nil
}

func (s *Service) check(o entity.Order) ScanResult {
	now := s.ledger.Now()
	res := ScanResult{Outcome: ScanValid, Message: "ready for pickup", Order: o}

	if !slot.SameDay(o.CreatedAt, now) {
		res.Outcome, res.Message = ScanNotToday, "order was placed on another day"
		return res
	}
	if o.Served {
		res.Outcome, res.Message = ScanAlreadyServed, "order was already served"
		return res
	}

	window, ok := s.ledger.Allocator().Lookup(o.Slot, now)
	if !ok {
		return res
	}
	switch {
	case now.Before(window.Start.Add(-s.scanGrace)):
		res.Outcome, res.Message = ScanTooEarly, "pickup window opens at "+window.Start.Format("15:04")
	case now.After(window.End.Add(s.scanGrace)):
		res.Outcome, res.Message = ScanTooLate, "pickup window closed at "+window.End.Format("15:04")
	}
	return res
}
