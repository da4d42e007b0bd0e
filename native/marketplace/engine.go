package marketplace

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"staychain/core/events"
	"staychain/core/types"
	nativecommon "staychain/native/common"
)

const moduleName = nativecommon.ModuleMarketplace

// RoleAdmin may swap the engine's external collaborators.
var RoleAdmin = roleHash("MARKETPLACE_ADMIN_ROLE")

func roleHash(name string) [32]byte {
	var role [32]byte
	copy(role[:], ethcrypto.Keccak256([]byte(name)))
	return role
}

var (
	errNilState     = errors.New("marketplace engine: state not configured")
	errNilBookings  = errors.New("marketplace engine: booking ledger not configured")
	errNilTokens    = errors.New("marketplace engine: token registry not configured")
	errNilPayments  = errors.New("marketplace engine: payment ledger not configured")
	errNilRoyalties = errors.New("marketplace engine: royalty engine not configured")
)

// ListingState persists listing records and exposes the transaction hooks the
// engine relies on to make its mutations all-or-nothing. Snapshot must give
// the caller exclusive write access until the matching RevertToSnapshot or
// Discard, and the scope must cover the collaborator ledgers as well; in
// production all of them write through the same journaled state manager.
type ListingState interface {
	ListingPut(*Listing) error
	ListingGet(tokenID uint64) (*Listing, bool, error)
	Snapshot() int
	RevertToSnapshot(id int)
	Discard(id int)
}

// BookingLedger is the reservation-ledger boundary the engine consults for
// trade eligibility. Authority identifies the controlling address that may
// force-delist, e.g. on cancellation.
type BookingLedger interface {
	Terms(tokenID uint64) (BookingTerms, error)
	Authority() types.Address
}

// TokenRegistry is the transferable-token boundary. SafeTransferFrom fails if
// balance or approval is insufficient.
type TokenRegistry interface {
	BalanceOf(addr types.Address, tokenID uint64) uint64
	IsApprovedForAll(owner, operator types.Address) bool
	SafeTransferFrom(operator, from, to types.Address, tokenID, quantity uint64) error
}

// PaymentLedger is the fungible payment-asset boundary. TransferFrom fails if
// allowance or balance is insufficient.
type PaymentLedger interface {
	Allowance(owner, spender types.Address) *big.Int
	Transfer(from, to types.Address, amount *big.Int) error
	TransferFrom(spender, from, to types.Address, amount *big.Int) error
}

// RoyaltyEngine computes the beneficiary split for a sale price. The returned
// amounts must sum to at most the sale price; the engine forwards them and
// pays the residual to the seller.
type RoyaltyEngine interface {
	SplitProceeds(tokenID uint64, salePrice *big.Int) ([]RoyaltyShare, error)
}

type marketplaceEvent struct {
	evt *types.Event
}

func (e marketplaceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketplaceEvent) Event() *types.Event { return e.evt }

// Engine owns the listing state machine for reservation-token resale. It
// cross-checks the booking ledger and token registry before admitting a token
// to trade and drives the payment ledger, royalty engine and token registry to
// complete the atomic token-for-payment exchange. Every state-mutating call
// runs inside an exclusive state transaction, so no two mutations interleave
// anywhere in the system and each one either commits fully or leaves no trace.
type Engine struct {
	mu        sync.Mutex
	state     ListingState
	bookings  BookingLedger
	tokens    TokenRegistry
	payments  PaymentLedger
	royalties RoyaltyEngine
	roles     nativecommon.RoleView
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	operator  types.Address
	nowFn     func() int64
}

// NewEngine creates a marketplace engine transacting as the supplied operator
// address. Sellers grant token approval and buyers grant payment allowance to
// this address.
func NewEngine(operator types.Address) *Engine {
	return &Engine{
		operator: operator,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the listing state backend used by the engine.
func (e *Engine) SetState(state ListingState) { e.state = state }

// SetBookingLedger wires the reservation ledger at construction time. Runtime
// swaps go through UpdateBookingLedger.
func (e *Engine) SetBookingLedger(ledger BookingLedger) { e.bookings = ledger }

// SetTokenRegistry wires the token registry at construction time.
func (e *Engine) SetTokenRegistry(registry TokenRegistry) { e.tokens = registry }

// SetPaymentLedger wires the payment ledger at construction time.
func (e *Engine) SetPaymentLedger(ledger PaymentLedger) { e.payments = ledger }

// SetRoyaltyEngine wires the royalty engine at construction time.
func (e *Engine) SetRoyaltyEngine(royalties RoyaltyEngine) { e.royalties = royalties }

// SetRoles configures the role view backing the administrative setters.
func (e *Engine) SetRoles(roles nativecommon.RoleView) { e.roles = roles }

// SetPauses configures the pause view guarding state-mutating operations.
func (e *Engine) SetPauses(pauses nativecommon.PauseView) { e.pauses = pauses }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Operator returns the address the engine transacts as.
func (e *Engine) Operator() types.Address { return e.operator }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketplaceEvent{evt: event})
}

func (e *Engine) flush(pending []*types.Event) {
	for _, evt := range pending {
		e.emit(evt)
	}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.bookings == nil:
		return errNilBookings
	case e.tokens == nil:
		return errNilTokens
	case e.payments == nil:
		return errNilPayments
	case e.royalties == nil:
		return errNilRoyalties
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// windowClosed reports whether the trade window derived from check-in time has
// already closed. The boundary instant itself counts as closed, and a limit
// large enough to overflow the seconds conversion closes the window rather
// than wrapping it back open.
func (e *Engine) windowClosed(terms BookingTerms) bool {
	if terms.TradeTimeLimitHours > math.MaxUint64/3600 {
		return true
	}
	window := terms.TradeTimeLimitHours * 3600
	if terms.CheckIn <= window {
		return true
	}
	now := e.now()
	if now < 0 {
		now = 0
	}
	return uint64(now) >= terms.CheckIn-window
}

// mutate runs fn inside an exclusive state transaction and the engine mutex,
// reverting every write on failure and emitting the returned event once the
// writes have committed. The transaction is opened before the mutex so the
// state manager's serialization is the outermost gate everywhere.
func (e *Engine) mutate(fn func() (*types.Event, error)) error {
	snapshot := e.state.Snapshot()
	e.mu.Lock()
	evt, err := fn()
	e.mu.Unlock()
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.Discard(snapshot)
	e.emit(evt)
	return nil
}

// CreateListing escrows the right to sell a reservation token at a fixed
// price. No payment or token movement occurs here. Preconditions are checked
// in order; the first failure wins.
func (e *Engine) CreateListing(caller types.Address, tokenID uint64, salePrice *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.mutate(func() (*types.Event, error) {
		return e.createListing(caller, tokenID, salePrice)
	})
}

func (e *Engine) createListing(caller types.Address, tokenID uint64, salePrice *big.Int) (*types.Event, error) {
	price := cloneBigInt(salePrice)
	if price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if e.tokens.BalanceOf(caller, tokenID) == 0 {
		return nil, ErrNotOwner
	}
	terms, err := e.bookings.Terms(tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTradable, err)
	}
	if !terms.Confirmed || !terms.Tradeable {
		return nil, ErrNotTradable
	}
	if e.windowClosed(terms) {
		return nil, ErrTradeWindowClosed
	}
	if terms.MinSalePrice != nil && price.Cmp(terms.MinSalePrice) < 0 {
		return nil, ErrBelowMinimumPrice
	}
	listing, ok, err := e.state.ListingGet(tokenID)
	if err != nil {
		return nil, err
	}
	if ok && listing.Status == ListingActive {
		return nil, ErrAlreadyListed
	}
	if !e.tokens.IsApprovedForAll(caller, e.operator) {
		return nil, ErrNotApproved
	}
	var revision uint64
	if ok {
		revision = listing.Revision
	}
	next := &Listing{
		TokenID:   tokenID,
		SalePrice: price,
		Seller:    caller,
		Revision:  revision + 1,
		Status:    ListingActive,
	}
	if err := e.state.ListingPut(next); err != nil {
		return nil, err
	}
	return NewListingCreatedEvent(caller, tokenID, price), nil
}

// Relist updates the sale price of an active listing. Only the seller may
// relist, and the new price must still clear the reservation's minimum.
func (e *Engine) Relist(caller types.Address, tokenID uint64, newPrice *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.mutate(func() (*types.Event, error) {
		return e.relist(caller, tokenID, newPrice)
	})
}

func (e *Engine) relist(caller types.Address, tokenID uint64, newPrice *big.Int) (*types.Event, error) {
	price := cloneBigInt(newPrice)
	if price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	listing, ok, err := e.state.ListingGet(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || listing.Status != ListingActive {
		return nil, ErrNotListed
	}
	if listing.Seller != caller {
		return nil, ErrNotOwner
	}
	terms, err := e.bookings.Terms(tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTradable, err)
	}
	if terms.MinSalePrice != nil && price.Cmp(terms.MinSalePrice) < 0 {
		return nil, ErrBelowMinimumPrice
	}
	oldPrice := listing.SalePrice
	listing.SalePrice = price
	listing.Revision++
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	return NewRelistedEvent(tokenID, oldPrice, price), nil
}

// DeleteListing takes an active listing down without a sale. The seller or
// the booking ledger's controlling authority may delete; the latter covers
// force-delisting on cancellation, which must work even while trading is
// paused.
func (e *Engine) DeleteListing(caller types.Address, tokenID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.mutate(func() (*types.Event, error) {
		return e.deleteListing(caller, tokenID)
	})
}

func (e *Engine) deleteListing(caller types.Address, tokenID uint64) (*types.Event, error) {
	listing, ok, err := e.state.ListingGet(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || listing.Status != ListingActive {
		return nil, ErrNotListed
	}
	if caller != listing.Seller && caller != e.bookings.Authority() {
		return nil, ErrUnauthorized
	}
	listing.SalePrice = big.NewInt(0)
	listing.Status = ListingInactive
	listing.Revision++
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	return NewDeletedListingEvent(tokenID), nil
}

// BuyRoom purchases a listed reservation token. Payment is pulled from the
// buyer, royalty shares are forwarded, the residual goes to the seller and the
// token moves to the buyer — atomically: any failure reverts every effect.
func (e *Engine) BuyRoom(caller types.Address, tokenID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	snapshot := e.state.Snapshot()
	e.mu.Lock()
	pending := make([]*types.Event, 0, 1)
	err := e.purchase(caller, tokenID, &pending)
	e.mu.Unlock()
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.Discard(snapshot)
	e.flush(pending)
	return nil
}

// BuyRoomBatch purchases every listed token in the supplied sequence as one
// all-or-nothing unit of work: if any per-token step fails, no token changes
// ownership and no payment moves.
func (e *Engine) BuyRoomBatch(caller types.Address, tokenIDs []uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	snapshot := e.state.Snapshot()
	e.mu.Lock()
	pending := make([]*types.Event, 0, len(tokenIDs))
	var err error
	for _, tokenID := range tokenIDs {
		if err = e.purchase(caller, tokenID, &pending); err != nil {
			err = fmt.Errorf("token %d: %w", tokenID, err)
			break
		}
	}
	e.mu.Unlock()
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.state.Discard(snapshot)
	e.flush(pending)
	return nil
}

func (e *Engine) purchase(buyer types.Address, tokenID uint64, pending *[]*types.Event) error {
	listing, ok, err := e.state.ListingGet(tokenID)
	if err != nil {
		return err
	}
	if !ok || listing.Status != ListingActive {
		return ErrNotListed
	}
	price := cloneBigInt(listing.SalePrice)
	if e.payments.Allowance(buyer, e.operator).Cmp(price) < 0 {
		return ErrInsufficientAllowance
	}
	if err := e.payments.TransferFrom(e.operator, buyer, e.operator, price); err != nil {
		return err
	}
	shares, err := e.royalties.SplitProceeds(tokenID, price)
	if err != nil {
		return err
	}
	paid := big.NewInt(0)
	for _, share := range shares {
		amount := cloneBigInt(share.Amount)
		if amount.Sign() < 0 {
			return fmt.Errorf("marketplace: negative royalty share")
		}
		if amount.Sign() == 0 {
			continue
		}
		if share.Beneficiary.IsZero() {
			return ErrInvalidAddress
		}
		paid.Add(paid, amount)
		if paid.Cmp(price) > 0 {
			return fmt.Errorf("marketplace: royalty shares exceed sale price")
		}
		if err := e.payments.Transfer(e.operator, share.Beneficiary, amount); err != nil {
			return err
		}
	}
	residual := new(big.Int).Sub(price, paid)
	if residual.Sign() > 0 {
		if err := e.payments.Transfer(e.operator, listing.Seller, residual); err != nil {
			return err
		}
	}
	// The listing leaves the market before the token leaves escrow so a
	// nested purchase attempt observes Inactive, never a half-settled slot.
	listing.Status = ListingInactive
	listing.Revision++
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.tokens.SafeTransferFrom(e.operator, listing.Seller, buyer, tokenID, 1); err != nil {
		return err
	}
	*pending = append(*pending, NewRoomBoughtEvent(tokenID, listing.Seller, buyer, price))
	return nil
}

// GetListingDetails returns the listing slot for a token. A never-listed
// token yields a zero-valued slot, never an error.
func (e *Engine) GetListingDetails(tokenID uint64) (*Listing, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok, err := e.state.ListingGet(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Listing{TokenID: tokenID, SalePrice: big.NewInt(0)}, nil
	}
	return listing, nil
}

// IsBookingListed reports whether the token currently has an active listing.
func (e *Engine) IsBookingListed(tokenID uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.state == nil {
		return false, errNilState
	}
	listing, ok, err := e.state.ListingGet(tokenID)
	if err != nil {
		return false, err
	}
	return ok && listing.Status == ListingActive, nil
}

func (e *Engine) requireAdmin(caller types.Address) error {
	if e.roles == nil || !e.roles.HasRole(RoleAdmin, caller.Bytes()) {
		return ErrUnauthorized
	}
	return nil
}

// UpdateBookingLedger swaps the reservation-ledger collaborator. Admin only.
func (e *Engine) UpdateBookingLedger(caller types.Address, ledger BookingLedger) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if ledger == nil {
		return ErrInvalidAddress
	}
	e.bookings = ledger
	e.emit(NewCollaboratorUpdatedEvent("bookingLedger", caller))
	return nil
}

// UpdateTokenRegistry swaps the token-registry collaborator. Admin only.
func (e *Engine) UpdateTokenRegistry(caller types.Address, registry TokenRegistry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if registry == nil {
		return ErrInvalidAddress
	}
	e.tokens = registry
	e.emit(NewCollaboratorUpdatedEvent("tokenRegistry", caller))
	return nil
}

// UpdatePaymentLedger swaps the payment-ledger collaborator. Admin only.
func (e *Engine) UpdatePaymentLedger(caller types.Address, ledger PaymentLedger) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if ledger == nil {
		return ErrInvalidAddress
	}
	e.payments = ledger
	e.emit(NewCollaboratorUpdatedEvent("paymentLedger", caller))
	return nil
}

// UpdateRoyaltyEngine swaps the royalty-engine collaborator. Admin only.
func (e *Engine) UpdateRoyaltyEngine(caller types.Address, royalties RoyaltyEngine) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if royalties == nil {
		return ErrInvalidAddress
	}
	e.royalties = royalties
	e.emit(NewCollaboratorUpdatedEvent("royaltyEngine", caller))
	return nil
}
