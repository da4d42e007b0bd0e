package booking

import (
	"math/big"

	"staychain/core/types"
)

// BookingStatus tracks a reservation through its lifecycle. The zero value is
// reserved so an empty slot never decodes as a live booking.
type BookingStatus uint8

const (
	BookingBooked     BookingStatus = 1
	BookingConfirmed  BookingStatus = 2
	BookingCheckedIn  BookingStatus = 3
	BookingCheckedOut BookingStatus = 4
	BookingCancelled  BookingStatus = 5
)

func (s BookingStatus) String() string {
	switch s {
	case BookingBooked:
		return "booked"
	case BookingConfirmed:
		return "confirmed"
	case BookingCheckedIn:
		return "checked_in"
	case BookingCheckedOut:
		return "checked_out"
	case BookingCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Booking is the reservation record backing a tradable stay token. The
// booking ID doubles as the token ID once the token is minted. Timestamps are
// unix seconds.
type Booking struct {
	ID                  uint64
	PropertyID          [32]byte
	Guest               types.Address
	FirstOwner          types.Address
	Price               *big.Int
	MinSalePrice        *big.Int
	CheckIn             uint64
	CheckOut            uint64
	TradeTimeLimitHours uint64
	Tradeable           bool
	Status              BookingStatus
}

// Clone returns a deep copy of the booking.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Price != nil {
		clone.Price = new(big.Int).Set(b.Price)
	}
	if b.MinSalePrice != nil {
		clone.MinSalePrice = new(big.Int).Set(b.MinSalePrice)
	}
	return &clone
}

func (b *Booking) sanitize() {
	if b == nil {
		return
	}
	if b.Price == nil {
		b.Price = big.NewInt(0)
	}
	if b.MinSalePrice == nil {
		b.MinSalePrice = big.NewInt(0)
	}
}
