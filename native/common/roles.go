package common

// RoleView answers role membership queries for administrative gating.
type RoleView interface {
	HasRole(role [32]byte, addr []byte) bool
}
