package order

import (
	"time"

	"github.com/Additional-Code/canteen/internal/entity"
)

// EventType names a ledger change published on the bus.
type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderWaitlist  EventType = "order.waitlisted"
	EventPaymentUpdated EventType = "order.payment_updated"
	EventOrderServed    EventType = "order.served"
	EventOrderCancelled EventType = "order.cancelled"
)

// Event is the payload published for every ledger change.
type Event struct {
	Type          EventType             `json:"type"`
	OrderID       int64                 `json:"orderId,omitempty"`
	UserID        string                `json:"userId"`
	UserName      string                `json:"userName"`
	Email         string                `json:"email,omitempty"`
	MealType      entity.MealType       `json:"mealType,omitempty"`
	Slot          string                `json:"slot,omitempty"`
	PaymentStatus entity.PaymentStatus  `json:"paymentStatus,omitempty"`
	Position      int                   `json:"position,omitempty"`
	NextInLine    *entity.WaitlistEntry `json:"nextInLine,omitempty"`
	OccurredAt    time.Time             `json:"occurredAt"`
}

func orderEvent(t EventType, o entity.Order, at time.Time) Event {
	return Event{
		Type:          t,
		OrderID:       o.ID,
		UserID:        o.UserID,
		UserName:      o.UserName,
		Email:         o.Email,
		MealType:      o.MealType,
		Slot:          o.Slot,
		PaymentStatus: o.PaymentStatus,
		OccurredAt:    at,
	}
}
