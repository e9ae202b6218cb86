package kv

import (
	"bytes"
	"sort"

	"github.com/cockroachdb/pebble"
)

// Range scans [begin, end) merging the snapshot with the transaction's own
// buffered writes and clears. A read conflict on the whole range is recorded.
func (tx *Tx) Range(begin, end []byte, opts RangeOptions) ([]KeyValue, error) {
	return tx.scan(begin, end, opts, true)
}

// SnapshotRange is Range without recording a read conflict.
func (tx *Tx) SnapshotRange(begin, end []byte, opts RangeOptions) ([]KeyValue, error) {
	return tx.scan(begin, end, opts, false)
}

func (tx *Tx) scan(begin, end []byte, opts RangeOptions, conflict bool) ([]KeyValue, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if conflict {
		tx.readRanges = append(tx.readRanges, keyRange{
			begin: append([]byte(nil), begin...),
			end:   append([]byte(nil), end...),
		})
	}

	// Overlay: buffered sets and tombstones within the window, sorted.
	type overlayEntry struct {
		key []byte
		mut mutation
	}
	var overlay []overlayEntry
	for k, m := range tx.writes {
		kb := []byte(k)
		if bytes.Compare(kb, begin) >= 0 && bytes.Compare(kb, end) < 0 {
			overlay = append(overlay, overlayEntry{key: kb, mut: m})
		}
	}
	sort.Slice(overlay, func(i, j int) bool { return bytes.Compare(overlay[i].key, overlay[j].key) < 0 })
	if opts.Reverse {
		for i, j := 0, len(overlay)-1; i < j; i, j = i+1, j-1 {
			overlay[i], overlay[j] = overlay[j], overlay[i]
		}
	}

	iter, err := tx.snap.NewIter(&pebble.IterOptions{LowerBound: begin, UpperBound: end})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	advance := func() bool {
		if opts.Reverse {
			return iter.Prev()
		}
		return iter.Next()
	}
	valid := false
	if opts.Reverse {
		valid = iter.Last()
	} else {
		valid = iter.First()
	}
	// Skip snapshot keys shadowed by buffered clears.
	skipShadowed := func() {
		for valid {
			k := iter.Key()
			if _, buffered := tx.writes[string(k)]; buffered || tx.inClearedRange(k) {
				valid = advance()
				continue
			}
			return
		}
	}
	skipShadowed()

	before := func(a, b []byte) bool {
		if opts.Reverse {
			return bytes.Compare(a, b) > 0
		}
		return bytes.Compare(a, b) < 0
	}

	var out []KeyValue
	oi := 0
	for opts.Limit == 0 || len(out) < opts.Limit {
		haveSnap := valid
		haveOver := oi < len(overlay)
		if !haveSnap && !haveOver {
			break
		}
		useOverlay := haveOver && (!haveSnap || before(overlay[oi].key, iter.Key()))
		if useOverlay {
			e := overlay[oi]
			oi++
			if e.mut.tombstone {
				continue
			}
			out = append(out, KeyValue{
				Key:   append([]byte(nil), e.key...),
				Value: append([]byte(nil), e.mut.value...),
			})
			continue
		}
		out = append(out, KeyValue{
			Key:   append([]byte(nil), iter.Key()...),
			Value: append([]byte(nil), iter.Value()...),
		})
		valid = advance()
		skipShadowed()
	}
	return out, nil
}
