package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

func (s *Store) commit(tx *Tx) error {
	if tx.done {
		return ErrTxDone
	}
	for _, hook := range tx.beforeCommit {
		if err := hook(tx); err != nil {
			return err
		}
	}

	s.commitMu.Lock()

	if err := s.validate(tx); err != nil {
		s.commitMu.Unlock()
		return err
	}

	seq := s.commitSeq + 1
	var version TxVersion
	binary.BigEndian.PutUint64(version[:8], seq)

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()

	set := committedSet{seq: seq}
	for _, r := range tx.clearRanges {
		if err := b.DeleteRange(r.begin, r.end, nil); err != nil {
			s.commitMu.Unlock()
			return err
		}
		set.ranges = append(set.ranges, r)
	}
	for k, m := range tx.writes {
		key := []byte(k)
		var err error
		if m.tombstone {
			err = b.Delete(key, nil)
		} else {
			err = b.Set(key, m.value, nil)
		}
		if err != nil {
			s.commitMu.Unlock()
			return err
		}
		set.keys = append(set.keys, key)
	}
	// Atomic adds read the latest committed value; the commit lock makes the
	// read-modify-write atomic.
	for _, k := range tx.addOrder {
		key := []byte(k)
		base, err := s.db.Get(key)
		if err != nil && !isNotFound(err) {
			s.commitMu.Unlock()
			return err
		}
		if err := b.Set(key, encodeCounter(decodeCounter(base)+tx.adds[k]), nil); err != nil {
			s.commitMu.Unlock()
			return err
		}
		set.keys = append(set.keys, key)
	}
	for _, w := range tx.vsWrites {
		key := w.key
		value := w.value
		if w.keyOff >= 0 {
			if w.keyOff+10 > len(key) {
				s.commitMu.Unlock()
				return fmt.Errorf("kv: versionstamp offset %d out of key bounds", w.keyOff)
			}
			copy(key[w.keyOff:w.keyOff+10], version[:])
		}
		if w.valOff >= 0 {
			if w.valOff+10 > len(value) {
				s.commitMu.Unlock()
				return fmt.Errorf("kv: versionstamp offset %d out of value bounds", w.valOff)
			}
			copy(value[w.valOff:w.valOff+10], version[:])
		}
		if err := b.Set(key, value, nil); err != nil {
			s.commitMu.Unlock()
			return err
		}
		set.keys = append(set.keys, key)
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	if err := b.Set(commitSeqKey, seqBuf[:], nil); err != nil {
		s.commitMu.Unlock()
		return err
	}

	if err := s.db.CommitBatch(context.Background(), b); err != nil {
		s.commitMu.Unlock()
		return err
	}

	s.commitSeq = seq
	s.recent = append(s.recent, set)
	if len(s.recent) > s.conflictWindow {
		s.recent = s.recent[len(s.recent)-s.conflictWindow:]
	}
	s.commitMu.Unlock()

	tx.done = true
	tx.future.resolve(version, nil)
	s.fireWatches(set.keys)
	for _, hook := range tx.afterCommit {
		hook(version)
	}
	return nil
}

// validate checks the transaction's declared reads against write-sets
// committed after its snapshot. Caller holds commitMu.
func (s *Store) validate(tx *Tx) error {
	if tx.readSeq == s.commitSeq {
		return nil
	}
	if len(tx.readKeys) == 0 && len(tx.readRanges) == 0 {
		return nil
	}
	// Commits evicted from the window cannot be checked; fail conservatively.
	if len(s.recent) == 0 || s.recent[0].seq > tx.readSeq+1 {
		return ErrConflict
	}
	for _, c := range s.recent {
		if c.seq <= tx.readSeq {
			continue
		}
		if intersects(tx, c) {
			return ErrConflict
		}
	}
	return nil
}

func intersects(tx *Tx, c committedSet) bool {
	for _, written := range c.keys {
		for _, rk := range tx.readKeys {
			if bytes.Equal(written, rk) {
				return true
			}
		}
		for _, rr := range tx.readRanges {
			if bytes.Compare(written, rr.begin) >= 0 && bytes.Compare(written, rr.end) < 0 {
				return true
			}
		}
	}
	for _, wr := range c.ranges {
		for _, rk := range tx.readKeys {
			if bytes.Compare(rk, wr.begin) >= 0 && bytes.Compare(rk, wr.end) < 0 {
				return true
			}
		}
		for _, rr := range tx.readRanges {
			if bytes.Compare(rr.begin, wr.end) < 0 && bytes.Compare(wr.begin, rr.end) < 0 {
				return true
			}
		}
	}
	return false
}
