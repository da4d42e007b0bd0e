package booking

import "errors"

var (
	// ErrNotFound indicates the booking ID has no record.
	ErrNotFound = errors.New("booking not found")
	// ErrUnauthorized indicates the caller lacks control of the booking.
	ErrUnauthorized = errors.New("booking: caller not authorized")
	// ErrInvalidAddress indicates a zero address where a real one is required.
	ErrInvalidAddress = errors.New("booking: invalid address")
	// ErrInvalidAmount indicates a nil or non-positive price.
	ErrInvalidAmount = errors.New("booking: invalid amount")
	// ErrInvalidStay indicates inconsistent check-in/check-out times.
	ErrInvalidStay = errors.New("booking: invalid stay window")
	// ErrInvalidStatus indicates the booking is not in a state that permits
	// the requested transition.
	ErrInvalidStatus = errors.New("booking: invalid status for operation")
)
