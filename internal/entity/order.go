package entity

import "time"

// MealType enumerates the meals students can pre-order.
type MealType string

const (
	MealVeg    MealType = "veg"
	MealNonVeg MealType = "non-veg"
)

// Valid reports whether the meal type is one the canteen serves.
func (m MealType) Valid() bool {
	return m == MealVeg || m == MealNonVeg
}

// PaymentStatus tracks whether an order has been paid for.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Valid reports whether the status is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPending, PaymentPaid:
		return true
	default:
		return false
	}
}

// OrderStatus tracks pickup progress. It only moves from confirmed to served.
type OrderStatus string

const (
	OrderConfirmed OrderStatus = "confirmed"
	OrderServed    OrderStatus = "served"
)

// Order is one meal request for a given day.
type Order struct {
	ID            int64         `json:"id"`
	UserID        string        `json:"userId"`
	UserName      string        `json:"userName"`
	Email         string        `json:"email"`
	CollegeID     string        `json:"collegeId"`
	MealType      MealType      `json:"mealType"`
	Slot          string        `json:"slot"`
	SlotDisplay   string        `json:"slotDisplay"`
	Amount        int           `json:"amount"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	OrderStatus   OrderStatus   `json:"orderStatus"`
	Served        bool          `json:"served"`
	QRCode        string        `json:"qrCode"`
	CreatedAt     time.Time     `json:"createdAt"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
	ServedAt      *time.Time    `json:"servedAt,omitempty"`
}

// WaitlistEntry records a request that arrived after the daily cap was reached.
type WaitlistEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Email     string    `json:"email"`
	MealType  MealType  `json:"mealType"`
	Timestamp time.Time `json:"timestamp"`
	Position  int       `json:"position"`
}
