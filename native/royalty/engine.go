package royalty

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"staychain/core/events"
	"staychain/core/state"
	"staychain/core/types"
	"staychain/native/marketplace"
)

// RoleAdmin may change royalty rates and payout addresses.
var RoleAdmin = state.RoleHash("ROYALTY_ADMIN_ROLE")

const basisPointsDenominator = 10000

const configKey = "royalty/config"

var (
	// ErrUnauthorized indicates the caller lacks the royalty admin role.
	ErrUnauthorized = errors.New("royalty: caller not authorized")
	// ErrInvalidAddress indicates a zero address where a real one is required.
	ErrInvalidAddress = errors.New("royalty: invalid address")
	// ErrInvalidBasisPoints indicates the configured rates exceed 100%.
	ErrInvalidBasisPoints = errors.New("royalty: basis points exceed denominator")
)

const (
	// EventTypeTreasuryUpdated marks a treasury address change.
	EventTypeTreasuryUpdated = "royalty.treasury_updated"
	// EventTypeRatesUpdated marks a basis-point rate change.
	EventTypeRatesUpdated = "royalty.rates_updated"
	// EventTypePropertyWalletUpdated marks a property payout wallet change.
	EventTypePropertyWalletUpdated = "royalty.property_wallet_updated"
)

// BookingSource resolves the booking facts a split depends on: the original
// token recipient and the property behind the stay.
type BookingSource interface {
	FirstOwner(tokenID uint64) (types.Address, error)
	Property(tokenID uint64) ([32]byte, error)
}

type config struct {
	Treasury      types.Address
	TreasuryBps   uint64
	PropertyBps   uint64
	FirstOwnerBps uint64
}

type royaltyEvent struct {
	evt *types.Event
}

func (e royaltyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e royaltyEvent) Event() *types.Event { return e.evt }

// Engine computes the royalty split for a resale. Rates are expressed in
// basis points of the sale price; each share is floored, so rounding dust
// always accrues to the seller.
type Engine struct {
	mu       sync.Mutex
	st       *state.Manager
	bookings BookingSource
	emitter  events.Emitter
}

// NewEngine creates a royalty engine over the supplied state manager.
func NewEngine(st *state.Manager) *Engine {
	return &Engine{st: st, emitter: events.NoopEmitter{}}
}

// SetBookings wires the booking source used to resolve share beneficiaries.
func (e *Engine) SetBookings(bookings BookingSource) { e.bookings = bookings }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(royaltyEvent{evt: evt})
}

func (e *Engine) requireAdmin(caller types.Address) error {
	if e.st == nil || !e.st.HasRole(RoleAdmin, caller.Bytes()) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) loadConfig() (config, error) {
	var cfg config
	if _, err := e.st.KVGet([]byte(configKey), &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (e *Engine) storeConfig(cfg config) error {
	return e.st.KVPut([]byte(configKey), &cfg)
}

func propertyWalletKey(propertyID [32]byte) []byte {
	return []byte(fmt.Sprintf("royalty/property/%x", propertyID))
}

// SetTreasury updates the platform treasury payout address. Admin only.
func (e *Engine) SetTreasury(caller, treasury types.Address) error {
	if err := e.st.WriteTx(func() error {
		return e.setTreasury(caller, treasury)
	}); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: EventTypeTreasuryUpdated,
		Attributes: map[string]string{
			"treasury": treasury.Hex(),
			"caller":   caller.Hex(),
		},
	})
	return nil
}

func (e *Engine) setTreasury(caller, treasury types.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if treasury.IsZero() {
		return ErrInvalidAddress
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.Treasury = treasury
	return e.storeConfig(cfg)
}

// SetRates updates the three royalty rates. Each rate must stay within the
// denominator on its own, so a wrapped sum cannot sneak past the combined
// check, and together they may not exceed the full sale price. Admin only.
func (e *Engine) SetRates(caller types.Address, treasuryBps, propertyBps, firstOwnerBps uint64) error {
	if err := e.st.WriteTx(func() error {
		return e.setRates(caller, treasuryBps, propertyBps, firstOwnerBps)
	}); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: EventTypeRatesUpdated,
		Attributes: map[string]string{
			"treasuryBps":   fmt.Sprintf("%d", treasuryBps),
			"propertyBps":   fmt.Sprintf("%d", propertyBps),
			"firstOwnerBps": fmt.Sprintf("%d", firstOwnerBps),
			"caller":        caller.Hex(),
		},
	})
	return nil
}

func (e *Engine) setRates(caller types.Address, treasuryBps, propertyBps, firstOwnerBps uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	for _, bps := range []uint64{treasuryBps, propertyBps, firstOwnerBps} {
		if bps > basisPointsDenominator {
			return ErrInvalidBasisPoints
		}
	}
	if treasuryBps+propertyBps+firstOwnerBps > basisPointsDenominator {
		return ErrInvalidBasisPoints
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	cfg.TreasuryBps = treasuryBps
	cfg.PropertyBps = propertyBps
	cfg.FirstOwnerBps = firstOwnerBps
	return e.storeConfig(cfg)
}

// SetPropertyWallet registers the payout wallet for a property. Admin only.
func (e *Engine) SetPropertyWallet(caller types.Address, propertyID [32]byte, wallet types.Address) error {
	if err := e.st.WriteTx(func() error {
		return e.setPropertyWallet(caller, propertyID, wallet)
	}); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: EventTypePropertyWalletUpdated,
		Attributes: map[string]string{
			"property": fmt.Sprintf("%x", propertyID),
			"wallet":   wallet.Hex(),
			"caller":   caller.Hex(),
		},
	})
	return nil
}

func (e *Engine) setPropertyWallet(caller types.Address, propertyID [32]byte, wallet types.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if wallet.IsZero() {
		return ErrInvalidAddress
	}
	return e.st.KVPut(propertyWalletKey(propertyID), wallet.Bytes())
}

func (e *Engine) propertyWallet(propertyID [32]byte) (types.Address, bool, error) {
	var raw []byte
	ok, err := e.st.KVGet(propertyWalletKey(propertyID), &raw)
	if err != nil || !ok {
		return types.Address{}, false, err
	}
	if len(raw) != len(types.Address{}) {
		return types.Address{}, false, nil
	}
	var wallet types.Address
	copy(wallet[:], raw)
	return wallet, !wallet.IsZero(), nil
}

func bpsShare(price *big.Int, bps uint64) *big.Int {
	share := new(big.Int).Mul(price, new(big.Int).SetUint64(bps))
	return share.Quo(share, big.NewInt(basisPointsDenominator))
}

// SplitProceeds returns the royalty shares owed from a sale at the given
// price. Shares with an unset beneficiary or a zero amount are omitted, so
// the result always sums to at most the price.
func (e *Engine) SplitProceeds(tokenID uint64, salePrice *big.Int) ([]marketplace.RoyaltyShare, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if salePrice == nil || salePrice.Sign() <= 0 {
		return nil, nil
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	shares := make([]marketplace.RoyaltyShare, 0, 3)
	if cfg.TreasuryBps > 0 && !cfg.Treasury.IsZero() {
		if amount := bpsShare(salePrice, cfg.TreasuryBps); amount.Sign() > 0 {
			shares = append(shares, marketplace.RoyaltyShare{Beneficiary: cfg.Treasury, Amount: amount})
		}
	}
	if cfg.PropertyBps > 0 && e.bookings != nil {
		propertyID, err := e.bookings.Property(tokenID)
		if err != nil {
			return nil, err
		}
		wallet, ok, err := e.propertyWallet(propertyID)
		if err != nil {
			return nil, err
		}
		if ok {
			if amount := bpsShare(salePrice, cfg.PropertyBps); amount.Sign() > 0 {
				shares = append(shares, marketplace.RoyaltyShare{Beneficiary: wallet, Amount: amount})
			}
		}
	}
	if cfg.FirstOwnerBps > 0 && e.bookings != nil {
		firstOwner, err := e.bookings.FirstOwner(tokenID)
		if err != nil {
			return nil, err
		}
		if !firstOwner.IsZero() {
			if amount := bpsShare(salePrice, cfg.FirstOwnerBps); amount.Sign() > 0 {
				shares = append(shares, marketplace.RoyaltyShare{Beneficiary: firstOwner, Amount: amount})
			}
		}
	}
	return shares, nil
}
