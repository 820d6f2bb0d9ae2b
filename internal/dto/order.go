package dto

import "time"

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"userId"`
	UserName      string     `json:"userName"`
	Email         string     `json:"email"`
	CollegeID     string     `json:"collegeId"`
	MealType      string     `json:"mealType"`
	Slot          string     `json:"slot"`
	SlotDisplay   string     `json:"slotDisplay"`
	Amount        int        `json:"amount"`
	PaymentStatus string     `json:"paymentStatus"`
	OrderStatus   string     `json:"orderStatus"`
	Served        bool       `json:"served"`
	QRCode        string     `json:"qrCode"`
	CreatedAt     time.Time  `json:"createdAt"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	ServedAt      *time.Time `json:"servedAt,omitempty"`
}

// WaitlistResponse is returned when a request lands on the waitlist.
type WaitlistResponse struct {
	Waitlisted bool   `json:"waitlisted"`
	Position   int    `json:"position"`
	Message    string `json:"message"`
}

// CancelResponse describes a cancelled order and who is first on the waitlist.
type CancelResponse struct {
	Order      OrderResponse `json:"order"`
	NextInLine *string       `json:"nextInLine,omitempty"`
}

// ScanResponse is the verdict of a pickup scan.
type ScanResponse struct {
	Outcome string        `json:"outcome"`
	Message string        `json:"message"`
	Order   OrderResponse `json:"order"`
}

// StatusResponse describes whether ordering is open and the active policy.
type StatusResponse struct {
	Open         bool      `json:"open"`
	Now          time.Time `json:"now"`
	Cutoff       string    `json:"cutoff"`
	MaxOrders    int       `json:"maxOrders"`
	SlotCapacity int       `json:"slotCapacity"`
	Price        int       `json:"price"`
	SpotsLeft    int       `json:"spotsLeft"`
}
