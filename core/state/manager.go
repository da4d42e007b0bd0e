package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"staychain/storage"
)

// journalEntry records the previous value of a key so a write can be undone.
type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// Manager provides typed, journaled access to the underlying key-value store.
// Keys are hashed with keccak256 and values are RLP encoded.
//
// Snapshot opens an exclusive transaction: it blocks until no other
// transaction is open and holds that exclusivity until RevertToSnapshot or
// Discard closes it. Writes made while a transaction is open are recorded in
// an undo journal so the whole group can be reverted as a unit; this is what
// makes the marketplace's batch purchase all-or-nothing, and the exclusivity
// is what keeps a revert from destroying writes committed by other modules.
// Transactions do not nest. Reads never block on an open transaction.
type Manager struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	inTx    bool
	db      storage.Database
	journal []journalEntry
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) writeRaw(hashed []byte, value []byte) error {
	prev, err := m.db.Get(hashed)
	existed := true
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			return err
		}
		existed = false
		prev = nil
	}
	if m.inTx {
		m.journal = append(m.journal, journalEntry{key: hashed, prev: prev, existed: existed})
	}
	return m.db.Put(hashed, value)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeRaw(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hashed := kvKey(key)
	prev, err := m.db.Get(hashed)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	if m.inTx {
		m.journal = append(m.journal, journalEntry{key: hashed, prev: prev, existed: true})
	}
	return m.db.Delete(hashed)
}

// Snapshot opens an exclusive transaction and marks the current journal
// position. It blocks while another transaction is open; the exclusivity is
// released by RevertToSnapshot or Discard. Passing the returned identifier to
// RevertToSnapshot undoes every write made since.
func (m *Manager) Snapshot() int {
	m.txMu.Lock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTx = true
	return len(m.journal)
}

// RevertToSnapshot undoes all writes recorded after the supplied snapshot
// identifier, replaying previous values in reverse order, and closes the
// transaction. Calling it without an open transaction is a no-op.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	if !m.inTx {
		m.mu.Unlock()
		return
	}
	if id < 0 || id > len(m.journal) {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.existed {
			_ = m.db.Put(entry.key, entry.prev)
		} else {
			_ = m.db.Delete(entry.key)
		}
	}
	m.journal = nil
	m.inTx = false
	m.mu.Unlock()
	m.txMu.Unlock()
}

// Discard commits the transaction: the writes stay, the undo journal is
// released and the next transaction may start. Calling it without an open
// transaction is a no-op.
func (m *Manager) Discard(id int) {
	m.mu.Lock()
	if !m.inTx {
		m.mu.Unlock()
		return
	}
	m.journal = nil
	m.inTx = false
	m.mu.Unlock()
	m.txMu.Unlock()
}

// WriteTx runs fn as one exclusive mutating operation: no other transaction
// can start while fn runs, and if fn fails every write it made is undone.
// Every state-mutating module entry point funnels through this (or through
// Snapshot directly), which is what serializes mutations across modules.
func (m *Manager) WriteTx(fn func() error) error {
	snap := m.Snapshot()
	if err := fn(); err != nil {
		m.RevertToSnapshot(snap)
		return err
	}
	m.Discard(snap)
	return nil
}
