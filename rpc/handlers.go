package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"staychain/core/types"
	"staychain/native/booking"
	"staychain/native/marketplace"
	"staychain/native/payment"
	"staychain/native/royalty"
	"staychain/native/token"
)

func (s *Server) dispatch(req *rpcRequest) (interface{}, *rpcError) {
	switch req.Method {
	case "marketplace_createListing":
		return s.createListing(req.Params)
	case "marketplace_relist":
		return s.relist(req.Params)
	case "marketplace_deleteListing":
		return s.deleteListing(req.Params)
	case "marketplace_buyRoom":
		return s.buyRoom(req.Params)
	case "marketplace_buyRoomBatch":
		return s.buyRoomBatch(req.Params)
	case "marketplace_getListing":
		return s.getListing(req.Params)
	case "marketplace_isListed":
		return s.isListed(req.Params)
	case "booking_book":
		return s.book(req.Params)
	case "booking_mintToken":
		return s.mintToken(req.Params)
	case "booking_get":
		return s.getBooking(req.Params)
	case "booking_checkIn":
		return s.checkIn(req.Params)
	case "booking_checkOut":
		return s.checkOut(req.Params)
	case "booking_cancel":
		return s.cancel(req.Params)
	case "token_balanceOf":
		return s.tokenBalance(req.Params)
	case "token_setApprovalForAll":
		return s.setApprovalForAll(req.Params)
	case "payment_mint":
		return s.paymentMint(req.Params)
	case "payment_approve":
		return s.paymentApprove(req.Params)
	case "payment_balanceOf":
		return s.paymentBalance(req.Params)
	case "royalty_setTreasury":
		return s.setTreasury(req.Params)
	case "royalty_setRates":
		return s.setRates(req.Params)
	case "royalty_setPropertyWallet":
		return s.setPropertyWallet(req.Params)
	case "system_setPaused":
		return s.setPaused(req.Params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func decodeParams(raw json.RawMessage, out interface{}) *rpcError {
	if len(raw) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	return nil
}

func parseAddress(s string) (types.Address, *rpcError) {
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	return addr, nil
}

func parseAmount(s string) (*big.Int, *rpcError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid amount %q", s)}
	}
	return amount, nil
}

func parsePropertyID(s string) ([32]byte, *rpcError) {
	var id [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != 32 {
		return id, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid property id %q", s)}
	}
	copy(id[:], raw)
	return id, nil
}

// moduleError maps module sentinel errors onto JSON-RPC error codes. Domain
// rejections share the generic server error code with the sentinel text
// preserved; authorization failures get their own code.
func moduleError(err error) *rpcError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, marketplace.ErrUnauthorized),
		errors.Is(err, booking.ErrUnauthorized),
		errors.Is(err, payment.ErrUnauthorized),
		errors.Is(err, token.ErrUnauthorized),
		errors.Is(err, royalty.ErrUnauthorized):
		return &rpcError{Code: codeUnauthorized, Message: err.Error()}
	default:
		return &rpcError{Code: codeServerError, Message: err.Error()}
	}
}

type listingResult struct {
	TokenID   uint64 `json:"tokenId"`
	SalePrice string `json:"salePrice"`
	Seller    string `json:"seller"`
	Revision  uint64 `json:"revision"`
	Active    bool   `json:"active"`
}

func listingToResult(l *marketplace.Listing) listingResult {
	price := "0"
	if l.SalePrice != nil {
		price = l.SalePrice.String()
	}
	return listingResult{
		TokenID:   l.TokenID,
		SalePrice: price,
		Seller:    l.Seller.Hex(),
		Revision:  l.Revision,
		Active:    l.Status == marketplace.ListingActive,
	}
}

func (s *Server) createListing(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller    string `json:"caller"`
		TokenID   uint64 `json:"tokenId"`
		SalePrice string `json:"salePrice"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount(params.SalePrice)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.CreateListing(caller, params.TokenID, price); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"listed": true}, nil
}

func (s *Server) relist(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller   string `json:"caller"`
		TokenID  uint64 `json:"tokenId"`
		NewPrice string `json:"newPrice"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount(params.NewPrice)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Relist(caller, params.TokenID, price); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"relisted": true}, nil
}

func (s *Server) deleteListing(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller  string `json:"caller"`
		TokenID uint64 `json:"tokenId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.DeleteListing(caller, params.TokenID); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"deleted": true}, nil
}

func (s *Server) buyRoom(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller  string `json:"caller"`
		TokenID uint64 `json:"tokenId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.BuyRoom(caller, params.TokenID); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"bought": true}, nil
}

func (s *Server) buyRoomBatch(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller   string   `json:"caller"`
		TokenIDs []uint64 `json:"tokenIds"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(params.TokenIDs) == 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: "tokenIds must not be empty"}
	}
	if err := s.engine.BuyRoomBatch(caller, params.TokenIDs); err != nil {
		return nil, moduleError(err)
	}
	return map[string]interface{}{"bought": true, "count": len(params.TokenIDs)}, nil
}

func (s *Server) getListing(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		TokenID uint64 `json:"tokenId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	listing, err := s.engine.GetListingDetails(params.TokenID)
	if err != nil {
		return nil, moduleError(err)
	}
	return listingToResult(listing), nil
}

func (s *Server) isListed(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		TokenID uint64 `json:"tokenId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	listed, err := s.engine.IsBookingListed(params.TokenID)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"listed": listed}, nil
}

func (s *Server) book(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Guest               string `json:"guest"`
		PropertyID          string `json:"propertyId"`
		Price               string `json:"price"`
		MinSalePrice        string `json:"minSalePrice"`
		CheckIn             uint64 `json:"checkIn"`
		CheckOut            uint64 `json:"checkOut"`
		TradeTimeLimitHours uint64 `json:"tradeTimeLimitHours"`
		Tradeable           bool   `json:"tradeable"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	guest, rpcErr := parseAddress(params.Guest)
	if rpcErr != nil {
		return nil, rpcErr
	}
	propertyID, rpcErr := parsePropertyID(params.PropertyID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount(params.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	minSalePrice := big.NewInt(0)
	if strings.TrimSpace(params.MinSalePrice) != "" {
		if minSalePrice, rpcErr = parseAmount(params.MinSalePrice); rpcErr != nil {
			return nil, rpcErr
		}
	}
	id, err := s.bookings.Book(guest, propertyID, price, minSalePrice, params.CheckIn, params.CheckOut, params.TradeTimeLimitHours, params.Tradeable)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]uint64{"bookingId": id}, nil
}

func (s *Server) mintToken(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller    string `json:"caller"`
		BookingID uint64 `json:"bookingId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.bookings.MintToken(caller, params.BookingID); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"minted": true}, nil
}

func (s *Server) getBooking(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		BookingID uint64 `json:"bookingId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.bookings.Get(params.BookingID)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]interface{}{
		"bookingId":           record.ID,
		"propertyId":          fmt.Sprintf("%x", record.PropertyID),
		"guest":               record.Guest.Hex(),
		"firstOwner":          record.FirstOwner.Hex(),
		"price":               record.Price.String(),
		"minSalePrice":        record.MinSalePrice.String(),
		"checkIn":             record.CheckIn,
		"checkOut":            record.CheckOut,
		"tradeTimeLimitHours": record.TradeTimeLimitHours,
		"tradeable":           record.Tradeable,
		"status":              record.Status.String(),
	}, nil
}

func (s *Server) lifecycle(raw json.RawMessage, op func(types.Address, uint64) error, key string) (interface{}, *rpcError) {
	var params struct {
		Caller    string `json:"caller"`
		BookingID uint64 `json:"bookingId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := op(caller, params.BookingID); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{key: true}, nil
}

func (s *Server) checkIn(raw json.RawMessage) (interface{}, *rpcError) {
	return s.lifecycle(raw, s.bookings.CheckIn, "checkedIn")
}

func (s *Server) checkOut(raw json.RawMessage) (interface{}, *rpcError) {
	return s.lifecycle(raw, s.bookings.CheckOut, "checkedOut")
}

func (s *Server) cancel(raw json.RawMessage) (interface{}, *rpcError) {
	return s.lifecycle(raw, s.bookings.Cancel, "cancelled")
}

func (s *Server) tokenBalance(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Address string `json:"address"`
		TokenID uint64 `json:"tokenId"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]uint64{"balance": s.tokens.BalanceOf(addr, params.TokenID)}, nil
}

func (s *Server) setApprovalForAll(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller   string `json:"caller"`
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	operator, rpcErr := parseAddress(params.Operator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.tokens.SetApprovalForAll(caller, operator, params.Approved); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"approved": params.Approved}, nil
}

func (s *Server) paymentMint(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller string `json:"caller"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress(params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.payments.Mint(caller, to, amount); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"minted": true}, nil
}

func (s *Server) paymentApprove(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller  string `json:"caller"`
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddress(params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.payments.Approve(caller, spender, amount); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"approved": true}, nil
}

func (s *Server) paymentBalance(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Address string `json:"address"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"balance": s.payments.BalanceOf(addr).String()}, nil
}

func (s *Server) setTreasury(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller   string `json:"caller"`
		Treasury string `json:"treasury"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	treasury, rpcErr := parseAddress(params.Treasury)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.royalties.SetTreasury(caller, treasury); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"updated": true}, nil
}

func (s *Server) setRates(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller        string `json:"caller"`
		TreasuryBps   uint64 `json:"treasuryBps"`
		PropertyBps   uint64 `json:"propertyBps"`
		FirstOwnerBps uint64 `json:"firstOwnerBps"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.royalties.SetRates(caller, params.TreasuryBps, params.PropertyBps, params.FirstOwnerBps); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"updated": true}, nil
}

func (s *Server) setPropertyWallet(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller     string `json:"caller"`
		PropertyID string `json:"propertyId"`
		Wallet     string `json:"wallet"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	propertyID, rpcErr := parsePropertyID(params.PropertyID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	wallet, rpcErr := parseAddress(params.Wallet)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.royalties.SetPropertyWallet(caller, propertyID, wallet); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"updated": true}, nil
}

func (s *Server) setPaused(raw json.RawMessage) (interface{}, *rpcError) {
	var params struct {
		Caller string `json:"caller"`
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.pauses.SetPaused(caller, params.Module, params.Paused); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"paused": params.Paused}, nil
}
