package marketplace

import (
	"fmt"
	"math/big"

	"staychain/core/types"
)

// ListingStatus represents the lifecycle states of a resale listing.
type ListingStatus uint8

const (
	ListingInactive ListingStatus = iota
	ListingActive
)

// Listing captures a fixed-price resale offer for a single reservation token.
// Revision is a monotonic counter bumped by every lifecycle transition for the
// same token identifier; it carries no business meaning beyond ordering.
type Listing struct {
	TokenID   uint64
	SalePrice *big.Int
	Seller    types.Address
	Revision  uint64
	Status    ListingStatus
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.SalePrice != nil {
		clone.SalePrice = new(big.Int).Set(l.SalePrice)
	} else {
		clone.SalePrice = big.NewInt(0)
	}
	return &clone
}

// Valid reports whether the status value is within the supported range.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingInactive, ListingActive:
		return true
	default:
		return false
	}
}

// SanitizeListing validates the supplied listing and returns a cloned instance
// with a non-nil price field. The function does not mutate the original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("marketplace: nil listing")
	}
	clone := l.Clone()
	if clone.SalePrice.Sign() < 0 {
		return nil, fmt.Errorf("marketplace: sale price must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("marketplace: invalid listing status: %d", clone.Status)
	}
	if clone.Status == ListingActive && clone.Seller.IsZero() {
		return nil, fmt.Errorf("marketplace: active listing requires a seller")
	}
	return clone, nil
}

// BookingTerms is the reservation-ledger view the engine consults before
// admitting a token to trade.
type BookingTerms struct {
	MinSalePrice        *big.Int
	CheckIn             uint64
	CheckOut            uint64
	TradeTimeLimitHours uint64
	Tradeable           bool
	Confirmed           bool
}

// RoyaltyShare is one beneficiary's cut of a sale price.
type RoyaltyShare struct {
	Beneficiary types.Address
	Amount      *big.Int
}
