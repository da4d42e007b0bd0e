package token

import (
	"errors"
	"fmt"

	"staychain/core/state"
	"staychain/core/types"
)

var (
	ErrUnauthorized        = errors.New("token: unauthorized")
	ErrInvalidAddress      = errors.New("token: invalid address")
	ErrInvalidQuantity     = errors.New("token: quantity must be positive")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrNotApproved         = errors.New("token: operator not approved")
)

// Registry tracks ownership of transferable reservation tokens. Each token
// identifier represents a single reservation and is minted with exactly one
// unit, but balances are kept per (address, token) pair so transfers follow
// multi-token semantics.
type Registry struct {
	st     *state.Manager
	minter types.Address
}

// NewRegistry constructs a token registry. The minter is the only address
// allowed to create new token units.
func NewRegistry(st *state.Manager, minter types.Address) *Registry {
	return &Registry{st: st, minter: minter}
}

func balanceKey(addr types.Address, tokenID uint64) []byte {
	return []byte(fmt.Sprintf("token/balance/%s/%d", addr.Hex(), tokenID))
}

func approvalKey(owner, operator types.Address) []byte {
	return []byte(fmt.Sprintf("token/approval/%s/%s", owner.Hex(), operator.Hex()))
}

// BalanceOf returns how many units of the token the address holds.
func (r *Registry) BalanceOf(addr types.Address, tokenID uint64) uint64 {
	var balance uint64
	ok, err := r.st.KVGet(balanceKey(addr, tokenID), &balance)
	if err != nil || !ok {
		return 0
	}
	return balance
}

// Mint credits token units to the recipient. Minter only. It runs inside the
// booking ledger's confirmation transaction and must not open one of its own.
func (r *Registry) Mint(caller, to types.Address, tokenID, quantity uint64) error {
	if caller != r.minter {
		return ErrUnauthorized
	}
	if to.IsZero() {
		return ErrInvalidAddress
	}
	if quantity == 0 {
		return ErrInvalidQuantity
	}
	balance := r.BalanceOf(to, tokenID)
	return r.st.KVPut(balanceKey(to, tokenID), balance+quantity)
}

// SetApprovalForAll grants or revokes the operator's blanket permission to
// move any of the owner's tokens.
func (r *Registry) SetApprovalForAll(owner, operator types.Address, approved bool) error {
	return r.st.WriteTx(func() error {
		if owner.IsZero() || operator.IsZero() {
			return ErrInvalidAddress
		}
		return r.st.KVPut(approvalKey(owner, operator), approved)
	})
}

// IsApprovedForAll reports whether the operator holds blanket transfer
// approval from the owner.
func (r *Registry) IsApprovedForAll(owner, operator types.Address) bool {
	var approved bool
	ok, err := r.st.KVGet(approvalKey(owner, operator), &approved)
	if err != nil || !ok {
		return false
	}
	return approved
}

// SafeTransferFrom moves token units from one holder to another. The operator
// must either be the holder or hold blanket approval from them. It is a
// settlement primitive: it runs inside the marketplace engine's transaction
// and must not open one of its own.
func (r *Registry) SafeTransferFrom(operator, from, to types.Address, tokenID, quantity uint64) error {
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if quantity == 0 {
		return ErrInvalidQuantity
	}
	if operator != from && !r.IsApprovedForAll(from, operator) {
		return ErrNotApproved
	}
	fromBalance := r.BalanceOf(from, tokenID)
	if fromBalance < quantity {
		return ErrInsufficientBalance
	}
	if err := r.st.KVPut(balanceKey(from, tokenID), fromBalance-quantity); err != nil {
		return err
	}
	toBalance := r.BalanceOf(to, tokenID)
	return r.st.KVPut(balanceKey(to, tokenID), toBalance+quantity)
}
