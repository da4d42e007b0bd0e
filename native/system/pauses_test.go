package system

import (
	"errors"
	"testing"

	"staychain/core/state"
	"staychain/core/types"
	"staychain/storage"
)

func addr(fill byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestSetPaused(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	admin := addr(0xAD)
	if err := st.GrantRole(RoleAdmin, admin.Bytes()); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	pauses := NewPauses(st)

	if pauses.IsPaused("marketplace") {
		t.Fatalf("modules start unpaused")
	}
	if err := pauses.SetPaused(admin, "marketplace", true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	if !pauses.IsPaused("marketplace") {
		t.Fatalf("pause not recorded")
	}
	if pauses.IsPaused("booking") {
		t.Fatalf("pause must be scoped per module")
	}
	if err := pauses.SetPaused(admin, "marketplace", false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if pauses.IsPaused("marketplace") {
		t.Fatalf("unpause not recorded")
	}
}

func TestSetPausedRequiresAdmin(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	pauses := NewPauses(st)

	if err := pauses.SetPaused(addr(0x01), "marketplace", true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := pauses.SetPaused(addr(0x01), "", true); err == nil {
		t.Fatalf("expected error for empty module name")
	}
}
