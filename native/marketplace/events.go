package marketplace

import (
	"math/big"
	"strconv"

	"staychain/core/types"
)

const (
	EventTypeListingCreated      = "marketplace.listing_created"
	EventTypeRelisted            = "marketplace.relisted"
	EventTypeDeletedListing      = "marketplace.deleted_listing"
	EventTypeRoomBought          = "marketplace.room_bought"
	EventTypeCollaboratorUpdated = "marketplace.collaborator_updated"
)

func formatPrice(price *big.Int) string {
	if price == nil {
		return "0"
	}
	return price.String()
}

// NewListingCreatedEvent returns the canonical payload emitted when a
// reservation token is listed for resale.
func NewListingCreatedEvent(seller types.Address, tokenID uint64, salePrice *big.Int) *types.Event {
	return &types.Event{Type: EventTypeListingCreated, Attributes: map[string]string{
		"seller":    seller.Hex(),
		"tokenId":   strconv.FormatUint(tokenID, 10),
		"salePrice": formatPrice(salePrice),
	}}
}

// NewRelistedEvent returns the payload emitted when a listing's price changes.
func NewRelistedEvent(tokenID uint64, oldPrice, newPrice *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRelisted, Attributes: map[string]string{
		"tokenId":  strconv.FormatUint(tokenID, 10),
		"oldPrice": formatPrice(oldPrice),
		"newPrice": formatPrice(newPrice),
	}}
}

// NewDeletedListingEvent returns the payload emitted when a listing is taken
// down without a sale.
func NewDeletedListingEvent(tokenID uint64) *types.Event {
	return &types.Event{Type: EventTypeDeletedListing, Attributes: map[string]string{
		"tokenId": strconv.FormatUint(tokenID, 10),
	}}
}

// NewRoomBoughtEvent returns the payload emitted on a completed purchase.
func NewRoomBoughtEvent(tokenID uint64, seller, buyer types.Address, salePrice *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRoomBought, Attributes: map[string]string{
		"tokenId":   strconv.FormatUint(tokenID, 10),
		"seller":    seller.Hex(),
		"buyer":     buyer.Hex(),
		"salePrice": formatPrice(salePrice),
	}}
}

// NewCollaboratorUpdatedEvent returns the payload emitted when an admin swaps
// one of the engine's external collaborators.
func NewCollaboratorUpdatedEvent(component string, caller types.Address) *types.Event {
	return &types.Event{Type: EventTypeCollaboratorUpdated, Attributes: map[string]string{
		"component": component,
		"caller":    caller.Hex(),
	}}
}
