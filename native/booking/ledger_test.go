package booking

import (
	"errors"
	"math/big"
	"testing"

	"staychain/core/state"
	"staychain/core/types"
	nativecommon "staychain/native/common"
	"staychain/native/marketplace"
	"staychain/native/payment"
	"staychain/native/royalty"
	"staychain/native/system"
	"staychain/native/token"
	"staychain/storage"
)

const testNow = int64(1_700_000_000)

func addr(fill byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	authorityAddr = addr(0xFE)
	operatorAddr  = addr(0xAA)
	adminAddr     = addr(0xAD)
	treasuryAddr  = addr(0x71)
	hotelAddr     = addr(0x72)
	guestAddr     = addr(0x11)
	buyerAddr     = addr(0x22)
)

var testProperty = [32]byte{0x01, 0x02}

type stack struct {
	st        *state.Manager
	bookings  *Ledger
	tokens    *token.Registry
	payments  *payment.Ledger
	royalties *royalty.Engine
	market    *marketplace.Engine
	pauses    *system.Pauses
}

// newStack wires the full module set over an in-memory store, mirroring the
// daemon's production wiring.
func newStack(t *testing.T) *stack {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	for _, role := range [][32]byte{system.RoleAdmin, royalty.RoleAdmin, marketplace.RoleAdmin, RoleAdmin} {
		if err := st.GrantRole(role, adminAddr.Bytes()); err != nil {
			t.Fatalf("grant role: %v", err)
		}
	}
	pauses := system.NewPauses(st)
	tokens := token.NewRegistry(st, authorityAddr)
	payments := payment.NewLedger(st, authorityAddr)

	bookings := NewLedger(st, authorityAddr)
	bookings.SetTokens(tokens)
	bookings.SetPauses(pauses)
	bookings.SetNowFunc(func() int64 { return testNow })

	royalties := royalty.NewEngine(st)
	royalties.SetBookings(bookings)
	if err := royalties.SetTreasury(adminAddr, treasuryAddr); err != nil {
		t.Fatalf("set treasury: %v", err)
	}
	if err := royalties.SetRates(adminAddr, 200, 200, 200); err != nil {
		t.Fatalf("set rates: %v", err)
	}
	if err := royalties.SetPropertyWallet(adminAddr, testProperty, hotelAddr); err != nil {
		t.Fatalf("set property wallet: %v", err)
	}

	market := marketplace.NewEngine(operatorAddr)
	market.SetState(marketplace.NewStore(st))
	market.SetBookingLedger(bookings)
	market.SetTokenRegistry(tokens)
	market.SetPaymentLedger(payments)
	market.SetRoyaltyEngine(royalties)
	market.SetRoles(st)
	market.SetPauses(pauses)
	market.SetNowFunc(func() int64 { return testNow })
	bookings.SetMarketplace(market)

	return &stack{st: st, bookings: bookings, tokens: tokens, payments: payments, royalties: royalties, market: market, pauses: pauses}
}

func (s *stack) bookAndMint(t *testing.T) uint64 {
	t.Helper()
	checkIn := uint64(testNow) + 30*24*3600
	id, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(200_000_000), big.NewInt(100_000_000), checkIn, checkIn+2*24*3600, 12, true)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := s.bookings.MintToken(authorityAddr, id); err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return id
}

func TestBookAssignsSequentialIDs(t *testing.T) {
	s := newStack(t)
	first := s.bookAndMint(t)
	second := s.bookAndMint(t)
	if first != 1 || second != 2 {
		t.Fatalf("expected sequential ids, got %d %d", first, second)
	}
	if got := s.tokens.BalanceOf(guestAddr, first); got != 1 {
		t.Fatalf("guest token balance = %d", got)
	}
}

func TestBookValidation(t *testing.T) {
	s := newStack(t)
	checkIn := uint64(testNow) + 24*3600

	if _, err := s.bookings.Book(types.Address{}, testProperty, big.NewInt(1), nil, checkIn, checkIn+3600, 1, true); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(0), nil, checkIn, checkIn+3600, 1, true); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(1), nil, checkIn+3600, checkIn, 1, true); !errors.Is(err, ErrInvalidStay) {
		t.Fatalf("expected ErrInvalidStay, got %v", err)
	}
	if _, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(1), nil, uint64(testNow)-10, uint64(testNow)+10, 1, true); !errors.Is(err, ErrInvalidStay) {
		t.Fatalf("expected ErrInvalidStay for past check-in, got %v", err)
	}
}

func TestBookPaused(t *testing.T) {
	s := newStack(t)
	if err := s.pauses.SetPaused(adminAddr, "booking", true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	checkIn := uint64(testNow) + 24*3600
	if _, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(1), nil, checkIn, checkIn+3600, 1, true); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestMintTokenAuthorityOnly(t *testing.T) {
	s := newStack(t)
	checkIn := uint64(testNow) + 24*3600
	id, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(1), nil, checkIn, checkIn+3600, 1, true)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := s.bookings.MintToken(guestAddr, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := s.bookings.MintToken(authorityAddr, id); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.bookings.MintToken(authorityAddr, id); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus on double mint, got %v", err)
	}
	record, err := s.bookings.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != BookingConfirmed || record.FirstOwner != guestAddr {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestTermsReflectStatus(t *testing.T) {
	s := newStack(t)
	id := s.bookAndMint(t)

	terms, err := s.bookings.Terms(id)
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if !terms.Confirmed || !terms.Tradeable {
		t.Fatalf("expected tradable terms, got %+v", terms)
	}
	if terms.MinSalePrice.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("unexpected min price %s", terms.MinSalePrice)
	}

	if _, err := s.bookings.Terms(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestResaleRoundTrip drives a full secondary sale through the production
// store: list at 150, relist at 120, buy, and verify every payout leg.
func TestResaleRoundTrip(t *testing.T) {
	s := newStack(t)
	id := s.bookAndMint(t)

	if err := s.tokens.SetApprovalForAll(guestAddr, operatorAddr, true); err != nil {
		t.Fatalf("approve operator: %v", err)
	}
	if err := s.market.CreateListing(guestAddr, id, big.NewInt(150_000_000)); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if err := s.market.Relist(guestAddr, id, big.NewInt(120_000_000)); err != nil {
		t.Fatalf("relist: %v", err)
	}

	listing, err := s.market.GetListingDetails(id)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.SalePrice.Cmp(big.NewInt(120_000_000)) != 0 || listing.Revision != 2 {
		t.Fatalf("unexpected listing %+v", listing)
	}

	if err := s.payments.Mint(authorityAddr, buyerAddr, big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("mint funds: %v", err)
	}
	if err := s.payments.Approve(buyerAddr, operatorAddr, big.NewInt(120_000_000)); err != nil {
		t.Fatalf("approve funds: %v", err)
	}
	if err := s.market.BuyRoom(buyerAddr, id); err != nil {
		t.Fatalf("buy room: %v", err)
	}

	if got := s.tokens.BalanceOf(buyerAddr, id); got != 1 {
		t.Fatalf("buyer token balance = %d", got)
	}
	if got := s.tokens.BalanceOf(guestAddr, id); got != 0 {
		t.Fatalf("guest still holds token")
	}
	// 2% each to treasury and property; guest takes the first-owner share on
	// top of the residual.
	if got := s.payments.BalanceOf(treasuryAddr); got.Cmp(big.NewInt(2_400_000)) != 0 {
		t.Fatalf("treasury balance %s", got)
	}
	if got := s.payments.BalanceOf(hotelAddr); got.Cmp(big.NewInt(2_400_000)) != 0 {
		t.Fatalf("hotel balance %s", got)
	}
	if got := s.payments.BalanceOf(guestAddr); got.Cmp(big.NewInt(115_200_000)) != 0 {
		t.Fatalf("guest balance %s", got)
	}
	if got := s.payments.BalanceOf(buyerAddr); got.Cmp(big.NewInt(880_000_000)) != 0 {
		t.Fatalf("buyer balance %s", got)
	}

	listed, err := s.market.IsBookingListed(id)
	if err != nil || listed {
		t.Fatalf("token should be delisted after sale: %v %v", listed, err)
	}
	listing, _ = s.market.GetListingDetails(id)
	if listing.Revision != 3 {
		t.Fatalf("expected revision 3, got %d", listing.Revision)
	}
}

func TestCancelForceDelists(t *testing.T) {
	s := newStack(t)
	id := s.bookAndMint(t)
	if err := s.tokens.SetApprovalForAll(guestAddr, operatorAddr, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.market.CreateListing(guestAddr, id, big.NewInt(150_000_000)); err != nil {
		t.Fatalf("create listing: %v", err)
	}

	if err := s.bookings.Cancel(guestAddr, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := s.bookings.Cancel(authorityAddr, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	listed, err := s.market.IsBookingListed(id)
	if err != nil || listed {
		t.Fatalf("listing should be forced down: %v %v", listed, err)
	}
	record, _ := s.bookings.Get(id)
	if record.Status != BookingCancelled {
		t.Fatalf("unexpected status %s", record.Status)
	}
	terms, _ := s.bookings.Terms(id)
	if terms.Tradeable || terms.Confirmed {
		t.Fatalf("cancelled booking must not be tradable")
	}
}

func TestCancelWorksWhilePaused(t *testing.T) {
	s := newStack(t)
	id := s.bookAndMint(t)
	if err := s.tokens.SetApprovalForAll(guestAddr, operatorAddr, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.market.CreateListing(guestAddr, id, big.NewInt(150_000_000)); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if err := s.pauses.SetPaused(adminAddr, "marketplace", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.bookings.Cancel(authorityAddr, id); err != nil {
		t.Fatalf("cancel while paused: %v", err)
	}
	listed, _ := s.market.IsBookingListed(id)
	if listed {
		t.Fatalf("listing should be forced down during pause")
	}
}

func TestCheckInLifecycle(t *testing.T) {
	s := newStack(t)
	id := s.bookAndMint(t)
	if err := s.tokens.SetApprovalForAll(guestAddr, operatorAddr, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.market.CreateListing(guestAddr, id, big.NewInt(150_000_000)); err != nil {
		t.Fatalf("create listing: %v", err)
	}

	if err := s.bookings.CheckIn(buyerAddr, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-holder, got %v", err)
	}
	if err := s.bookings.CheckIn(guestAddr, id); err != nil {
		t.Fatalf("check in: %v", err)
	}
	listed, _ := s.market.IsBookingListed(id)
	if listed {
		t.Fatalf("check-in should delist the token")
	}

	if err := s.bookings.CheckOut(guestAddr, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for guest checkout, got %v", err)
	}
	if err := s.bookings.CheckOut(authorityAddr, id); err != nil {
		t.Fatalf("check out: %v", err)
	}
	record, _ := s.bookings.Get(id)
	if record.Status != BookingCheckedOut {
		t.Fatalf("unexpected status %s", record.Status)
	}
	if err := s.bookings.Cancel(authorityAddr, id); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus after checkout, got %v", err)
	}
}

func TestBookRejectsOversizedTradeWindow(t *testing.T) {
	s := newStack(t)
	checkIn := uint64(testNow) + 30*24*3600
	if _, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(1), nil, checkIn, checkIn+3600, maxTradeWindowHours+1, true); !errors.Is(err, ErrInvalidStay) {
		t.Fatalf("expected ErrInvalidStay for oversized trade window, got %v", err)
	}
	if _, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(1), nil, checkIn, checkIn+3600, maxTradeWindowHours, true); err != nil {
		t.Fatalf("trade window at the bound should book: %v", err)
	}
}

// stalledSplit parks a purchase inside settlement so another writer can land
// between the purchase's snapshot and its rollback.
type stalledSplit struct {
	reached chan struct{}
	release chan struct{}
}

func (s *stalledSplit) SplitProceeds(uint64, *big.Int) ([]marketplace.RoyaltyShare, error) {
	close(s.reached)
	<-s.release
	return nil, errors.New("split unavailable")
}

func TestBookingSurvivesConcurrentPurchaseRollback(t *testing.T) {
	s := newStack(t)
	id := s.bookAndMint(t)
	if err := s.tokens.SetApprovalForAll(guestAddr, operatorAddr, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.market.CreateListing(guestAddr, id, big.NewInt(150_000_000)); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if err := s.payments.Mint(authorityAddr, buyerAddr, big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("mint funds: %v", err)
	}
	if err := s.payments.Approve(buyerAddr, operatorAddr, big.NewInt(150_000_000)); err != nil {
		t.Fatalf("approve funds: %v", err)
	}

	split := &stalledSplit{reached: make(chan struct{}), release: make(chan struct{})}
	if err := s.market.UpdateRoyaltyEngine(adminAddr, split); err != nil {
		t.Fatalf("swap royalty engine: %v", err)
	}

	buyDone := make(chan error, 1)
	go func() { buyDone <- s.market.BuyRoom(buyerAddr, id) }()
	<-split.reached

	// The purchase is mid-flight with payment already pulled. A booking
	// committed now must not be swept away when the purchase rolls back.
	bookDone := make(chan uint64, 1)
	go func() {
		checkIn := uint64(testNow) + 60*24*3600
		newID, err := s.bookings.Book(guestAddr, testProperty, big.NewInt(90_000_000), nil, checkIn, checkIn+24*3600, 12, true)
		if err != nil {
			t.Errorf("book during purchase: %v", err)
		}
		bookDone <- newID
	}()

	close(split.release)
	if err := <-buyDone; err == nil {
		t.Fatal("expected the purchase to fail")
	}
	newID := <-bookDone
	if _, err := s.bookings.Get(newID); err != nil {
		t.Fatalf("booking %d lost to the purchase rollback: %v", newID, err)
	}

	// The failed purchase itself must leave no trace.
	listing, err := s.market.GetListingDetails(id)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Status != marketplace.ListingActive {
		t.Fatalf("listing should have reverted to active, got %v", listing.Status)
	}
	if got := s.payments.BalanceOf(buyerAddr); got.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("buyer funds not restored: %s", got)
	}
}
