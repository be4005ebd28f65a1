package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The state layer writes through it on commit; in-memory and persistent
// backends are interchangeable.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// NewBatch returns an empty write batch; Write applies it atomically.
	NewBatch() Batch
	Write(batch Batch) error
	Close()
}

// Batch collects puts and deletes that reach the database together or not
// at all.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Len() int
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

type memOp struct {
	key     string
	value   []byte
	deleted bool
}

type memBatch struct {
	ops []memOp
}

func (b *memBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), deleted: true})
}

func (b *memBatch) Len() int { return len(b.ops) }

func (db *MemDB) NewBatch() Batch { return &memBatch{} }

// Write applies every operation of batch under a single lock.
func (db *MemDB) Write(batch Batch) error {
	b, ok := batch.(*memBatch)
	if !ok {
		return fmt.Errorf("storage: foreign batch %T", batch)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range b.ops {
		if op.deleted {
			delete(db.data, op.key)
			continue
		}
		db.data[op.key] = op.value
	}
	return nil
}

// Len reports the number of stored keys.
func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether the key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Delete removes the key. Deleting a missing key is not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

type levelBatch struct {
	batch leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Len() int              { return b.batch.Len() }

func (ldb *LevelDB) NewBatch() Batch { return &levelBatch{} }

// Write commits batch through a single LevelDB journal record.
func (ldb *LevelDB) Write(batch Batch) error {
	b, ok := batch.(*levelBatch)
	if !ok {
		return fmt.Errorf("storage: foreign batch %T", batch)
	}
	return ldb.db.Write(&b.batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
