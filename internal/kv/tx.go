package kv

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/cockroachdb/pebble"
)

// KeyValue is one decoded row of a range scan.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// RangeOptions bounds a range scan.
type RangeOptions struct {
	// Limit caps the number of returned rows. Zero means unbounded.
	Limit int
	// Reverse scans descending from the end of the range.
	Reverse bool
}

type mutation struct {
	value     []byte
	tombstone bool
}

type vsWrite struct {
	key    []byte
	keyOff int // offset of the 10-byte hole inside key, -1 if complete
	value  []byte
	valOff int // offset of the 10-byte hole inside value, -1 if complete
}

// Tx is a single transaction attempt. It is not safe for concurrent use;
// the engine's cooperative model runs one request per transaction.
//
// Reads see the transaction's own buffered Set/Clear writes, but never its
// pending versionstamped writes: their keys and values are unknowable before
// commit, so they are deliberately invisible (callers cache the pre-write
// value explicitly when they need it again).
type Tx struct {
	store   *Store
	snap    *pebble.Snapshot
	readSeq uint64

	writes      map[string]mutation
	clearRanges []keyRange
	adds        map[string]int64
	addOrder    []string
	vsWrites    []vsWrite

	readKeys   [][]byte
	readRanges []keyRange

	beforeCommit []func(tx *Tx) error
	afterCommit  []func(v TxVersion)

	cache  map[interface{}]interface{}
	future *VersionFuture
	done   bool
}

func (s *Store) newTx() *Tx {
	s.commitMu.Lock()
	readSeq := s.commitSeq
	s.commitMu.Unlock()
	return &Tx{
		store:   s,
		snap:    s.db.NewSnapshot(),
		readSeq: readSeq,
		writes:  map[string]mutation{},
		adds:    map[string]int64{},
		cache:   map[interface{}]interface{}{},
		future:  newVersionFuture(),
	}
}

func (tx *Tx) release(err error) {
	if tx.snap != nil {
		_ = tx.snap.Close()
		tx.snap = nil
	}
	if !tx.done {
		tx.done = true
		if err == nil {
			err = ErrTxDone
		}
		tx.future.resolve(TxVersion{}, err)
	}
}

// Cache returns the transaction-scoped scratch map. It is discarded on retry
// so per-attempt state never leaks across attempts.
func (tx *Tx) Cache() map[interface{}]interface{} { return tx.cache }

// Versionstamp returns a future for this transaction's commit version.
func (tx *Tx) Versionstamp() *VersionFuture { return tx.future }

func (tx *Tx) inClearedRange(key []byte) bool {
	for _, r := range tx.clearRanges {
		if bytes.Compare(key, r.begin) >= 0 && bytes.Compare(key, r.end) < 0 {
			return true
		}
	}
	return false
}

func (tx *Tx) snapshotGet(key []byte) ([]byte, error) {
	val, closer, err := tx.snap.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := append([]byte(nil), val...)
	_ = closer.Close()
	return out, nil
}

func (tx *Tx) get(key []byte, conflict bool) ([]byte, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if conflict {
		tx.readKeys = append(tx.readKeys, append([]byte(nil), key...))
	}
	var base []byte
	if m, ok := tx.writes[string(key)]; ok {
		if m.tombstone {
			base = nil
		} else {
			base = append([]byte(nil), m.value...)
		}
	} else if tx.inClearedRange(key) {
		base = nil
	} else {
		var err error
		base, err = tx.snapshotGet(key)
		if err != nil {
			return nil, err
		}
	}
	if delta, ok := tx.adds[string(key)]; ok {
		return encodeCounter(decodeCounter(base) + delta), nil
	}
	return base, nil
}

// Get reads a key, seeing the transaction's own buffered writes. A read
// conflict on the key is recorded. Missing keys return nil.
func (tx *Tx) Get(key []byte) ([]byte, error) { return tx.get(key, true) }

// SnapshotGet reads a key without recording a read conflict.
func (tx *Tx) SnapshotGet(key []byte) ([]byte, error) { return tx.get(key, false) }

// SnapshotExists reports key presence without recording a read conflict.
func (tx *Tx) SnapshotExists(key []byte) (bool, error) {
	v, err := tx.get(key, false)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// AddReadConflictKey declares a read conflict without reading the key.
func (tx *Tx) AddReadConflictKey(key []byte) {
	tx.readKeys = append(tx.readKeys, append([]byte(nil), key...))
}

// Set buffers a write.
func (tx *Tx) Set(key, value []byte) {
	tx.writes[string(key)] = mutation{value: append([]byte(nil), value...)}
}

// Clear buffers a deletion.
func (tx *Tx) Clear(key []byte) {
	tx.writes[string(key)] = mutation{tombstone: true}
}

// ClearRange buffers deletion of every key in [begin, end).
func (tx *Tx) ClearRange(begin, end []byte) {
	for k := range tx.writes {
		kb := []byte(k)
		if bytes.Compare(kb, begin) >= 0 && bytes.Compare(kb, end) < 0 {
			delete(tx.writes, k)
		}
	}
	tx.clearRanges = append(tx.clearRanges, keyRange{
		begin: append([]byte(nil), begin...),
		end:   append([]byte(nil), end...),
	})
}

// Add schedules an atomic 64-bit little-endian increment, applied against
// the latest committed value at commit time. Gets within the transaction see
// the pending delta; range scans do not.
func (tx *Tx) Add(key []byte, delta int64) {
	k := string(key)
	if _, ok := tx.adds[k]; !ok {
		tx.addOrder = append(tx.addOrder, k)
	}
	tx.adds[k] += delta
}

// SetVersionstampedKey buffers a write whose key contains a 10-byte hole at
// off, filled with the commit version. The write is invisible to reads in
// this transaction.
func (tx *Tx) SetVersionstampedKey(key []byte, off int, value []byte) {
	tx.vsWrites = append(tx.vsWrites, vsWrite{
		key:    append([]byte(nil), key...),
		keyOff: off,
		value:  append([]byte(nil), value...),
		valOff: -1,
	})
}

// SetVersionstampedValue buffers a write whose value contains a 10-byte hole
// at off, filled with the commit version.
func (tx *Tx) SetVersionstampedValue(key []byte, value []byte, off int) {
	tx.vsWrites = append(tx.vsWrites, vsWrite{
		key:    append([]byte(nil), key...),
		keyOff: -1,
		value:  append([]byte(nil), value...),
		valOff: off,
	})
}

// BeforeCommit registers a hook that runs before the physical commit and may
// still read and write through the transaction. Hooks run in registration
// order.
func (tx *Tx) BeforeCommit(fn func(tx *Tx) error) {
	tx.beforeCommit = append(tx.beforeCommit, fn)
}

// AfterCommit registers a hook that runs only after the commit is durable,
// with the resolved commit version.
func (tx *Tx) AfterCommit(fn func(v TxVersion)) {
	tx.afterCommit = append(tx.afterCommit, fn)
}

func decodeCounter(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:8]))
}

func encodeCounter(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// DecodeCounter reads an Add-maintained counter value.
func DecodeCounter(b []byte) int64 { return decodeCounter(b) }
