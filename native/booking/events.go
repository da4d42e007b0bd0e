package booking

import (
	"fmt"

	"staychain/core/types"
)

const (
	// EventTypeBooked marks creation of a reservation record.
	EventTypeBooked = "booking.booked"
	// EventTypeTokenMinted marks confirmation and token issuance.
	EventTypeTokenMinted = "booking.token_minted"
	// EventTypeCheckedIn marks the start of the stay.
	EventTypeCheckedIn = "booking.checked_in"
	// EventTypeCheckedOut marks the end of the stay.
	EventTypeCheckedOut = "booking.checked_out"
	// EventTypeCancelled marks cancellation before the stay.
	EventTypeCancelled = "booking.cancelled"
)

func newBookedEvent(b *Booking) *types.Event {
	return &types.Event{
		Type: EventTypeBooked,
		Attributes: map[string]string{
			"bookingId": fmt.Sprintf("%d", b.ID),
			"property":  fmt.Sprintf("%x", b.PropertyID),
			"guest":     b.Guest.Hex(),
			"price":     b.Price.String(),
			"checkIn":   fmt.Sprintf("%d", b.CheckIn),
			"checkOut":  fmt.Sprintf("%d", b.CheckOut),
		},
	}
}

func newTokenMintedEvent(b *Booking) *types.Event {
	return &types.Event{
		Type: EventTypeTokenMinted,
		Attributes: map[string]string{
			"bookingId":  fmt.Sprintf("%d", b.ID),
			"firstOwner": b.FirstOwner.Hex(),
		},
	}
}

func newLifecycleEvent(eventType string, bookingID uint64) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"bookingId": fmt.Sprintf("%d", bookingID),
		},
	}
}
