package payment

import (
	"errors"
	"fmt"
	"math/big"

	"staychain/core/state"
	"staychain/core/types"
)

var (
	ErrUnauthorized          = errors.New("payment: unauthorized")
	ErrInvalidAddress        = errors.New("payment: invalid address")
	ErrInvalidAmount         = errors.New("payment: amount must be positive")
	ErrInsufficientBalance   = errors.New("payment: insufficient balance")
	ErrInsufficientAllowance = errors.New("payment: insufficient allowance")
)

// Ledger tracks balances and spend allowances for the stable payment asset.
// Transfers out of an account require either the account itself or a spender
// holding a sufficient allowance.
type Ledger struct {
	st        *state.Manager
	authority types.Address
}

// NewLedger constructs a payment ledger. The authority is the only address
// allowed to mint new units.
func NewLedger(st *state.Manager, authority types.Address) *Ledger {
	return &Ledger{st: st, authority: authority}
}

func balanceKey(addr types.Address) []byte {
	return []byte(fmt.Sprintf("payment/balance/%s", addr.Hex()))
}

func allowanceKey(owner, spender types.Address) []byte {
	return []byte(fmt.Sprintf("payment/allowance/%s/%s", owner.Hex(), spender.Hex()))
}

func (l *Ledger) loadAmount(key []byte) *big.Int {
	amount := new(big.Int)
	ok, err := l.st.KVGet(key, amount)
	if err != nil || !ok {
		return big.NewInt(0)
	}
	return amount
}

// BalanceOf returns the current balance of the supplied address.
func (l *Ledger) BalanceOf(addr types.Address) *big.Int {
	return l.loadAmount(balanceKey(addr))
}

// Mint credits new units to the recipient. Authority only.
func (l *Ledger) Mint(caller, to types.Address, amount *big.Int) error {
	return l.st.WriteTx(func() error {
		if caller != l.authority {
			return ErrUnauthorized
		}
		if to.IsZero() {
			return ErrInvalidAddress
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		balance := l.BalanceOf(to)
		return l.st.KVPut(balanceKey(to), new(big.Int).Add(balance, amount))
	})
}

// Approve sets the allowance the spender may pull from the owner's balance.
// A zero amount clears the allowance.
func (l *Ledger) Approve(owner, spender types.Address, amount *big.Int) error {
	return l.st.WriteTx(func() error {
		if owner.IsZero() || spender.IsZero() {
			return ErrInvalidAddress
		}
		if amount == nil || amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		return l.st.KVPut(allowanceKey(owner, spender), new(big.Int).Set(amount))
	})
}

// Allowance returns the remaining amount the spender may pull from the owner.
func (l *Ledger) Allowance(owner, spender types.Address) *big.Int {
	return l.loadAmount(allowanceKey(owner, spender))
}

// Transfer moves units between accounts on behalf of the sender itself. It is
// a settlement primitive: it runs inside the marketplace engine's transaction
// and must not open one of its own.
func (l *Ledger) Transfer(from, to types.Address, amount *big.Int) error {
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance := l.BalanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.st.KVPut(balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance := l.BalanceOf(to)
	return l.st.KVPut(balanceKey(to), new(big.Int).Add(toBalance, amount))
}

// TransferFrom moves units out of the owner's balance on behalf of a spender,
// consuming the spender's allowance. Like Transfer it runs inside the caller's
// transaction.
func (l *Ledger) TransferFrom(spender, from, to types.Address, amount *big.Int) error {
	if spender.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if spender != from {
		allowance := l.Allowance(from, spender)
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := l.st.KVPut(allowanceKey(from, spender), new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return l.Transfer(from, to, amount)
}
