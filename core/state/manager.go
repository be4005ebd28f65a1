package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vaultchain/storage"
)

// Manager provides journaled key-value access to runtime state. Writes are
// buffered in memory until Commit; Snapshot/RevertToSnapshot roll back every
// write made after the snapshot so a failed operation leaves no effect.
//
// Manager is not safe for concurrent use; the executor serializes callers.
type Manager struct {
	db      storage.Database
	dirty   map[string]pendingValue
	journal []journalEntry
}

type pendingValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    pendingValue
	hadPrev bool
}

// NewManager creates a state manager writing through to db on commit.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]pendingValue)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if pending, ok := m.dirty[string(hashed)]; ok {
		if pending.deleted {
			return nil, nil
		}
		return pending.value, nil
	}
	if m.db == nil {
		return nil, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) write(hashed []byte, value pendingValue) {
	key := string(hashed)
	prev, hadPrev := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, hadPrev: hadPrev})
	m.dirty[key] = value
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(kvKey(key), pendingValue{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.write(kvKey(key), pendingValue{deleted: true})
	return nil
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write recorded after the snapshot id.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	if id < len(m.journal) {
		m.journal = m.journal[:id]
	}
}

// Dirty reports the number of keys with uncommitted writes.
func (m *Manager) Dirty() int {
	return len(m.dirty)
}

// Commit flushes buffered writes to the backing database as one batch and
// clears the journal. On error nothing is written and the buffered writes are
// kept.
func (m *Manager) Commit() error {
	if m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, k := range keys {
		pending := m.dirty[k]
		if pending.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), pending.value)
	}
	if batch.Len() > 0 {
		if err := m.db.Write(batch); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.dirty = make(map[string]pendingValue)
	m.journal = nil
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	m.dirty = make(map[string]pendingValue)
	m.journal = nil
}
