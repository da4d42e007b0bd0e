package marketplace

import (
	"fmt"

	"staychain/core/state"
)

// Store persists listings through the journaled state manager and satisfies
// ListingState. Because every native ledger writes through the same manager,
// the engine's snapshots cover payment, token and booking effects alongside
// the listing slot itself.
type Store struct {
	st *state.Manager
}

// NewStore wraps the supplied state manager.
func NewStore(st *state.Manager) *Store {
	return &Store{st: st}
}

func listingKey(tokenID uint64) []byte {
	return []byte(fmt.Sprintf("marketplace/listing/%d", tokenID))
}

// ListingPut writes a sanitized copy of the listing into its slot.
func (s *Store) ListingPut(listing *Listing) error {
	record, err := SanitizeListing(listing)
	if err != nil {
		return err
	}
	return s.st.KVPut(listingKey(record.TokenID), record)
}

// ListingGet loads the listing slot for a token. The second return value
// reports whether the slot exists.
func (s *Store) ListingGet(tokenID uint64) (*Listing, bool, error) {
	var record Listing
	ok, err := s.st.KVGet(listingKey(tokenID), &record)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	sanitized, err := SanitizeListing(&record)
	if err != nil {
		return nil, false, err
	}
	return sanitized, true, nil
}

// Snapshot opens an undo scope on the underlying manager.
func (s *Store) Snapshot() int { return s.st.Snapshot() }

// RevertToSnapshot rolls back every write made since the snapshot was taken.
func (s *Store) RevertToSnapshot(id int) { s.st.RevertToSnapshot(id) }

// Discard releases a snapshot without rolling back.
func (s *Store) Discard(id int) { s.st.Discard(id) }
