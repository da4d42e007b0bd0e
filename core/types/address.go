package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account on the ledger.
type Address [20]byte

// ZeroAddress is the all-zero placeholder address. Setters reject it.
var ZeroAddress Address

// ParseAddress decodes a 40-character hex string, with or without the 0x
// prefix, into an Address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	trimmed = strings.TrimPrefix(trimmed, "0X")
	if len(trimmed) != 2*len(addr) {
		return Address{}, fmt.Errorf("address: expected %d hex characters, got %d", 2*len(addr), len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("address: %w", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

// Hex renders the address as a 0x-prefixed lowercase hex string.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero reports whether the address is the zero placeholder.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}
