package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"staychain/storage"
)

type record struct {
	Name  string
	Count uint64
}

func TestKVRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.KVPut([]byte("record/1"), &record{Name: "alpha", Count: 7}))

	var got record
	ok, err := m.KVGet([]byte("record/1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alpha", got.Name)
	require.Equal(t, uint64(7), got.Count)

	ok, err = m.KVGet([]byte("record/2"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVDelete(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.KVPut([]byte("record/1"), &record{Name: "alpha"}))
	require.NoError(t, m.KVDelete([]byte("record/1")))

	ok, err := m.KVGet([]byte("record/1"), &record{})
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting an absent key is a no-op.
	require.NoError(t, m.KVDelete([]byte("record/9")))
}

func TestSnapshotRevert(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.KVPut([]byte("record/1"), &record{Name: "before", Count: 1}))

	snap := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("record/1"), &record{Name: "after", Count: 2}))
	require.NoError(t, m.KVPut([]byte("record/2"), &record{Name: "new", Count: 3}))
	require.NoError(t, m.KVDelete([]byte("record/1")))

	m.RevertToSnapshot(snap)

	var got record
	ok, err := m.KVGet([]byte("record/1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "before", got.Name)

	ok, err = m.KVGet([]byte("record/2"), &got)
	require.NoError(t, err)
	require.False(t, ok, "write after snapshot must be undone")
}

func TestSnapshotDiscardKeepsWrites(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	snap := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("record/1"), &record{Name: "kept"}))
	m.Discard(snap)

	// Reverting to the same id after discard must not undo the kept write.
	m.RevertToSnapshot(snap)
	var got record
	ok, err := m.KVGet([]byte("record/1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "kept", got.Name)
}

func TestWriteTx(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.WriteTx(func() error {
		return m.KVPut([]byte("record/1"), &record{Name: "committed"})
	}))

	var got record
	ok, err := m.KVGet([]byte("record/1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "committed", got.Name)

	boom := errors.New("boom")
	require.ErrorIs(t, m.WriteTx(func() error {
		if err := m.KVPut([]byte("record/1"), &record{Name: "doomed"}); err != nil {
			return err
		}
		if err := m.KVPut([]byte("record/2"), &record{Name: "doomed too"}); err != nil {
			return err
		}
		return boom
	}), boom)

	ok, err = m.KVGet([]byte("record/1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "committed", got.Name, "failed transaction must undo its writes")

	ok, err = m.KVGet([]byte("record/2"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJournalReleasedAfterCommit(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	// Committed transactions must not retain undo entries.
	for i := 0; i < 100; i++ {
		require.NoError(t, m.WriteTx(func() error {
			if err := m.KVPut([]byte("record/1"), &record{Name: "cycle", Count: uint64(i)}); err != nil {
				return err
			}
			return m.KVDelete([]byte("record/1"))
		}))
	}

	// Writes outside a transaction have nothing to revert to and must not
	// journal either.
	require.NoError(t, m.KVPut([]byte("record/2"), &record{Name: "plain"}))

	snap := m.Snapshot()
	require.Zero(t, snap, "journal must be empty when a new transaction starts")
	m.Discard(snap)
}

func TestCommittedWriteSurvivesUnrelatedRollback(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	snap := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("record/1"), &record{Name: "doomed"}))

	// A second writer must block until the open transaction resolves, so its
	// committed write can never be swept away by the rollback.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.WriteTx(func() error {
			return m.KVPut([]byte("record/2"), &record{Name: "independent"})
		})
	}()

	m.RevertToSnapshot(snap)
	<-done

	var got record
	ok, err := m.KVGet([]byte("record/1"), &got)
	require.NoError(t, err)
	require.False(t, ok, "rolled-back write must be gone")

	ok, err = m.KVGet([]byte("record/2"), &got)
	require.NoError(t, err)
	require.True(t, ok, "independent committed write must survive the rollback")
	require.Equal(t, "independent", got.Name)
}

func TestRoles(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	role := RoleHash("TEST_ROLE")
	addr := []byte{0x01, 0x02}

	require.False(t, m.HasRole(role, addr))
	require.NoError(t, m.GrantRole(role, addr))
	require.True(t, m.HasRole(role, addr))
	require.False(t, m.HasRole(RoleHash("OTHER_ROLE"), addr))
	require.NoError(t, m.RevokeRole(role, addr))
	require.False(t, m.HasRole(role, addr))
}
