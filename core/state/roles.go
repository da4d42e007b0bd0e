package state

import (
	"encoding/hex"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RoleHash derives the canonical 32-byte identifier for a named role.
func RoleHash(name string) [32]byte {
	var role [32]byte
	copy(role[:], ethcrypto.Keccak256([]byte(name)))
	return role
}

func roleKey(role [32]byte, addr []byte) []byte {
	return []byte(fmt.Sprintf("roles/%s/%s", hex.EncodeToString(role[:]), hex.EncodeToString(addr)))
}

// GrantRole records that the supplied address holds the role.
func (m *Manager) GrantRole(role [32]byte, addr []byte) error {
	return m.WriteTx(func() error {
		return m.KVPut(roleKey(role, addr), true)
	})
}

// RevokeRole removes the role from the supplied address.
func (m *Manager) RevokeRole(role [32]byte, addr []byte) error {
	return m.WriteTx(func() error {
		return m.KVDelete(roleKey(role, addr))
	})
}

// HasRole reports whether the supplied address holds the role.
func (m *Manager) HasRole(role [32]byte, addr []byte) bool {
	var granted bool
	ok, err := m.KVGet(roleKey(role, addr), &granted)
	if err != nil || !ok {
		return false
	}
	return granted
}
