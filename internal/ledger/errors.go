package ledger

import "errors"

var (
	// ErrOrderingClosed is returned once the daily cutoff has passed.
	ErrOrderingClosed = errors.New("ordering is closed for today")
	// ErrDuplicateOrder is returned when the user already ordered today.
	ErrDuplicateOrder = errors.New("user already has an order today")
	// ErrNoSlotsAvailable is returned when every pickup slot is full even
	// though the daily cap was not reached.
	ErrNoSlotsAvailable = errors.New("no pickup slots available today")
	// ErrOrderNotFound is returned by lookups and mutations on unknown orders.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidRequest is returned for requests missing identity or meal fields.
	ErrInvalidRequest = errors.New("invalid order request")
	// ErrInvalidStatus is returned for unknown payment status values.
	ErrInvalidStatus = errors.New("invalid payment status")
)
