package booking

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"staychain/core/events"
	"staychain/core/state"
	"staychain/core/types"
	nativecommon "staychain/native/common"
	"staychain/native/marketplace"
)

const moduleName = nativecommon.ModuleBooking

// RoleAdmin may operate the booking lifecycle on behalf of properties.
var RoleAdmin = state.RoleHash("BOOKING_ADMIN_ROLE")

const seqKey = "booking/seq"

// maxTradeWindowHours bounds the pre-check-in trade cutoff a booking may
// carry. A year covers any realistic advance-booking horizon and keeps the
// seconds conversion far away from integer overflow.
const maxTradeWindowHours = 24 * 365

// TokenMinter is the slice of the token registry the ledger needs to issue
// stay tokens on confirmation.
type TokenMinter interface {
	Mint(caller, to types.Address, tokenID, quantity uint64) error
	BalanceOf(addr types.Address, tokenID uint64) uint64
}

// Delister is the slice of the marketplace the ledger needs to force an
// active listing down when a booking stops being tradable.
type Delister interface {
	DeleteListing(caller types.Address, tokenID uint64) error
}

type bookingEvent struct {
	evt *types.Event
}

func (e bookingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bookingEvent) Event() *types.Event { return e.evt }

// Ledger owns reservation records and their lifecycle. It mints the stay
// token on confirmation and answers the marketplace's trade-eligibility
// queries. The authority address controls every privileged transition.
type Ledger struct {
	mu        sync.Mutex
	st        *state.Manager
	authority types.Address
	tokens    TokenMinter
	market    Delister
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	nowFn     func() int64
}

// NewLedger creates a booking ledger controlled by the supplied authority
// address. The authority must also be configured as the token registry's
// minter.
func NewLedger(st *state.Manager, authority types.Address) *Ledger {
	return &Ledger{
		st:        st,
		authority: authority,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetTokens wires the token registry slice used for minting.
func (l *Ledger) SetTokens(tokens TokenMinter) { l.tokens = tokens }

// SetMarketplace wires the marketplace slice used for force-delisting.
func (l *Ledger) SetMarketplace(market Delister) { l.market = market }

// SetPauses configures the pause view guarding new bookings.
func (l *Ledger) SetPauses(pauses nativecommon.PauseView) { l.pauses = pauses }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// Authority returns the controlling address for privileged transitions.
func (l *Ledger) Authority() types.Address { return l.authority }

func (l *Ledger) emit(evt *types.Event) {
	if l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(bookingEvent{evt: evt})
}

func bookingKey(id uint64) []byte {
	return []byte(fmt.Sprintf("booking/record/%d", id))
}

func (l *Ledger) nextID() (uint64, error) {
	var seq uint64
	if _, err := l.st.KVGet([]byte(seqKey), &seq); err != nil {
		return 0, err
	}
	seq++
	if err := l.st.KVPut([]byte(seqKey), seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (l *Ledger) load(id uint64) (*Booking, error) {
	var record Booking
	ok, err := l.st.KVGet(bookingKey(id), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	record.sanitize()
	return &record, nil
}

func (l *Ledger) store(b *Booking) error {
	b.sanitize()
	return l.st.KVPut(bookingKey(b.ID), b)
}

func (l *Ledger) requireAuthority(caller types.Address) error {
	if caller != l.authority {
		return ErrUnauthorized
	}
	return nil
}

// Book records a new reservation and returns its ID. The ID becomes the stay
// token ID once the booking is confirmed.
func (l *Ledger) Book(guest types.Address, propertyID [32]byte, price, minSalePrice *big.Int, checkIn, checkOut, tradeTimeLimitHours uint64, tradeable bool) (uint64, error) {
	var record *Booking
	if err := l.st.WriteTx(func() error {
		var err error
		record, err = l.book(guest, propertyID, price, minSalePrice, checkIn, checkOut, tradeTimeLimitHours, tradeable)
		return err
	}); err != nil {
		return 0, err
	}
	l.emit(newBookedEvent(record))
	return record.ID, nil
}

func (l *Ledger) book(guest types.Address, propertyID [32]byte, price, minSalePrice *big.Int, checkIn, checkOut, tradeTimeLimitHours uint64, tradeable bool) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	if guest.IsZero() {
		return nil, ErrInvalidAddress
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if minSalePrice != nil && minSalePrice.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if checkIn == 0 || checkOut <= checkIn {
		return nil, ErrInvalidStay
	}
	if tradeTimeLimitHours > maxTradeWindowHours {
		return nil, ErrInvalidStay
	}
	if now := l.nowFn(); now > 0 && checkIn <= uint64(now) {
		return nil, ErrInvalidStay
	}
	id, err := l.nextID()
	if err != nil {
		return nil, err
	}
	record := &Booking{
		ID:                  id,
		PropertyID:          propertyID,
		Guest:               guest,
		Price:               new(big.Int).Set(price),
		MinSalePrice:        new(big.Int),
		CheckIn:             checkIn,
		CheckOut:            checkOut,
		TradeTimeLimitHours: tradeTimeLimitHours,
		Tradeable:           tradeable,
		Status:              BookingBooked,
	}
	if minSalePrice != nil {
		record.MinSalePrice.Set(minSalePrice)
	}
	if err := l.store(record); err != nil {
		return nil, err
	}
	return record, nil
}

// MintToken confirms a booked reservation and issues its stay token to the
// guest. The guest becomes the booking's first owner for royalty purposes.
// Authority only. The mint and the status flip commit as one transaction.
func (l *Ledger) MintToken(caller types.Address, bookingID uint64) error {
	var record *Booking
	if err := l.st.WriteTx(func() error {
		var err error
		record, err = l.mintToken(caller, bookingID)
		return err
	}); err != nil {
		return err
	}
	l.emit(newTokenMintedEvent(record))
	return nil
}

func (l *Ledger) mintToken(caller types.Address, bookingID uint64) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireAuthority(caller); err != nil {
		return nil, err
	}
	if l.tokens == nil {
		return nil, errors.New("booking: token registry not configured")
	}
	record, err := l.load(bookingID)
	if err != nil {
		return nil, err
	}
	if record.Status != BookingBooked {
		return nil, ErrInvalidStatus
	}
	if err := l.tokens.Mint(l.authority, record.Guest, record.ID, 1); err != nil {
		return nil, err
	}
	record.FirstOwner = record.Guest
	record.Status = BookingConfirmed
	if err := l.store(record); err != nil {
		return nil, err
	}
	return record, nil
}

// CheckIn marks the start of the stay and takes the booking off the market.
// The authority or the current token holder may check in. The status flip
// commits in its own transaction before the delist runs in the marketplace's;
// the engine calls back into Terms under its own lock, so neither the ledger
// mutex nor an open transaction may be held across the delist.
func (l *Ledger) CheckIn(caller types.Address, bookingID uint64) error {
	if err := l.st.WriteTx(func() error {
		return l.checkInLocked(caller, bookingID)
	}); err != nil {
		return err
	}
	if err := l.forceDelist(bookingID); err != nil {
		return err
	}
	l.emit(newLifecycleEvent(EventTypeCheckedIn, bookingID))
	return nil
}

func (l *Ledger) checkInLocked(caller types.Address, bookingID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.load(bookingID)
	if err != nil {
		return err
	}
	if record.Status != BookingConfirmed {
		return ErrInvalidStatus
	}
	if caller != l.authority {
		if l.tokens == nil || l.tokens.BalanceOf(caller, record.ID) == 0 {
			return ErrUnauthorized
		}
	}
	record.Tradeable = false
	record.Status = BookingCheckedIn
	return l.store(record)
}

// CheckOut marks the end of the stay. Authority only.
func (l *Ledger) CheckOut(caller types.Address, bookingID uint64) error {
	if err := l.st.WriteTx(func() error {
		return l.checkOutLocked(caller, bookingID)
	}); err != nil {
		return err
	}
	l.emit(newLifecycleEvent(EventTypeCheckedOut, bookingID))
	return nil
}

func (l *Ledger) checkOutLocked(caller types.Address, bookingID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireAuthority(caller); err != nil {
		return err
	}
	record, err := l.load(bookingID)
	if err != nil {
		return err
	}
	if record.Status != BookingCheckedIn {
		return ErrInvalidStatus
	}
	record.Status = BookingCheckedOut
	return l.store(record)
}

// Cancel voids a booking before the stay and force-delists any active
// listing for its token. Authority only; works while trading is paused.
func (l *Ledger) Cancel(caller types.Address, bookingID uint64) error {
	if err := l.st.WriteTx(func() error {
		return l.cancelLocked(caller, bookingID)
	}); err != nil {
		return err
	}
	if err := l.forceDelist(bookingID); err != nil {
		return err
	}
	l.emit(newLifecycleEvent(EventTypeCancelled, bookingID))
	return nil
}

func (l *Ledger) cancelLocked(caller types.Address, bookingID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireAuthority(caller); err != nil {
		return err
	}
	record, err := l.load(bookingID)
	if err != nil {
		return err
	}
	if record.Status != BookingBooked && record.Status != BookingConfirmed {
		return ErrInvalidStatus
	}
	record.Tradeable = false
	record.Status = BookingCancelled
	return l.store(record)
}

func (l *Ledger) forceDelist(tokenID uint64) error {
	if l.market == nil {
		return nil
	}
	err := l.market.DeleteListing(l.authority, tokenID)
	if err != nil && !errors.Is(err, marketplace.ErrNotListed) {
		return err
	}
	return nil
}

// Get returns a copy of the booking record.
func (l *Ledger) Get(bookingID uint64) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(bookingID)
}

// Property returns the property behind the stay token.
func (l *Ledger) Property(tokenID uint64) ([32]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.load(tokenID)
	if err != nil {
		return [32]byte{}, err
	}
	return record.PropertyID, nil
}

// FirstOwner returns the address the stay token was originally issued to.
func (l *Ledger) FirstOwner(tokenID uint64) (types.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.load(tokenID)
	if err != nil {
		return types.Address{}, err
	}
	return record.FirstOwner, nil
}

// Terms reports the trade eligibility of the booking behind a token.
func (l *Ledger) Terms(tokenID uint64) (marketplace.BookingTerms, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.load(tokenID)
	if err != nil {
		return marketplace.BookingTerms{}, err
	}
	confirmed := record.Status == BookingConfirmed
	return marketplace.BookingTerms{
		MinSalePrice:        new(big.Int).Set(record.MinSalePrice),
		CheckIn:             record.CheckIn,
		CheckOut:            record.CheckOut,
		TradeTimeLimitHours: record.TradeTimeLimitHours,
		Tradeable:           record.Tradeable && confirmed,
		Confirmed:           confirmed,
	}, nil
}
