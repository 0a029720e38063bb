// Package kvstore is the Store adapter: a small begin/commit/abort
// transactional wrapper over github.com/dgraph-io/badger/v4 exposing the
// three logical tables (raw item vectors, tree nodes, the optional
// on-disk header) and the integer-keyed cursor operations the forest
// packages need, grounded on shruggr-inspiration's kvstore/badger/badger.go
// wrapper.
package kvstore

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"annforest/pkg/errs"
)

// Table identifies one of the three logical key spaces simulated within
// badger's single flat keyspace via a one-byte prefix.
type Table byte

const (
	// Raw holds VectorRecord values keyed by item id.
	Raw Table = 'R'
	// Tree holds NodeRecord values keyed by node id (roots 0..T-1 and
	// every split-allocated child).
	Tree Table = 'T'
	// Meta holds the single optional on-disk header record
	// (SPEC_FULL.md §3.1), kept out of the Tree table's keyspace so it
	// never participates in Tree's LastKey-based id allocation.
	Meta Table = 'H'
)

// HeaderKey is the only key ever stored in the Meta table.
const HeaderKey int32 = 0

func encodeKey(table Table, key int32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(table)
	binary.BigEndian.PutUint32(buf[1:], uint32(key))
	return buf
}

func decodeKey(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf[1:5]))
}

// Env owns the underlying badger database handle.
type Env struct {
	db *badger.DB
}

// OpenWrite opens (creating if absent) a writable environment at dir.
// maxReaders and mapSize are threaded through for parity with the
// facade's constructor signature (SPEC_FULL.md §4.2); badger approximates
// mapSize via its value-log and memtable sizing rather than a single flat
// map, since it has no equivalent of LMDB's mmap size ceiling.
func OpenWrite(dir string, maxReaders int, mapSize int64) (*Env, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if mapSize > 0 {
		opts = opts.WithValueLogFileSize(mapSize).WithMemTableSize(mapSize)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w: %v", errs.ErrStoreUnavailable, err)
	}
	return &Env{db: db}, nil
}

// OpenRead opens an existing environment read-only.
func OpenRead(dir string, maxReaders int) (*Env, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil).WithReadOnly(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w: %v", errs.ErrStoreUnavailable, err)
	}
	return &Env{db: db}, nil
}

// Close releases the environment's resources.
func (e *Env) Close() error {
	if e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("kvstore: close: %w: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

// RTxn is a read-only transaction over the logical tables.
type RTxn struct {
	txn *badger.Txn
}

// BeginRead starts a read-only transaction.
func (e *Env) BeginRead() (*RTxn, error) {
	return &RTxn{txn: e.db.NewTransaction(false)}, nil
}

// Get returns the value stored at (table, key), or ok=false if absent.
func (t *RTxn) Get(table Table, key int32) ([]byte, bool, error) {
	item, err := t.txn.Get(encodeKey(table, key))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get: %w: %v", errs.ErrStoreUnavailable, err)
	}
	var val []byte
	err = item.Value(func(v []byte) error {
		val = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get: %w: %v", errs.ErrStoreUnavailable, err)
	}
	return val, true, nil
}

// LastKey returns the largest key currently stored in table, or
// ok=false if the table is empty. Because badger exposes writes made
// earlier in the same transaction to iterators opened later in that
// transaction, calling LastKey twice in a row inside one WTxn (once per
// newly allocated child id) observes the first call's Put.
func (t *RTxn) LastKey(table Table) (int32, bool, error) {
	it := t.txn.NewIterator(badger.IteratorOptions{Reverse: true})
	defer it.Close()

	upper := encodeKey(table, int32(-1)) // 0xFFFFFFFF as uint32, the table's byte-max key
	it.Seek(upper)
	if !it.Valid() {
		return 0, false, nil
	}
	item := it.Item()
	k := item.KeyCopy(nil)
	if len(k) == 0 || Table(k[0]) != table {
		return 0, false, nil
	}
	return decodeKey(k), true, nil
}

// Discard releases a read transaction without committing.
func (t *RTxn) Discard() {
	t.txn.Discard()
}

// WTxn is a writable transaction; it embeds RTxn so reads within the same
// write transaction use the identical read-your-writes semantics.
type WTxn struct {
	RTxn
	discarded bool
}

// BeginWrite starts a read-write transaction.
func (e *Env) BeginWrite() (*WTxn, error) {
	return &WTxn{RTxn: RTxn{txn: e.db.NewTransaction(true)}}, nil
}

// Put writes value at (table, key) within the transaction; visible to
// later reads in the same WTxn, not to other transactions until Commit.
func (t *WTxn) Put(table Table, key int32, value []byte) error {
	if err := t.txn.Set(encodeKey(table, key), value); err != nil {
		return fmt.Errorf("kvstore: put: %w: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

// Commit finalizes the transaction.
func (t *WTxn) Commit() error {
	if t.discarded {
		return nil
	}
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit: %w: %v", errs.ErrStoreUnavailable, err)
	}
	t.discarded = true
	return nil
}

// Abort discards the transaction without applying any of its writes.
func (t *WTxn) Abort() {
	if t.discarded {
		return
	}
	t.txn.Discard()
	t.discarded = true
}
