package feeds

import (
	"encoding/binary"
	"fmt"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/pkg/id"
)

func encodeSeq(seq int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(seq))
	return b
}

func decodeSeq(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: seq counter is %d bytes", ErrBadRecord, len(b))
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func setSeq(tx *kv.Tx, feed id.ID, seq int32) {
	tx.Set(seqKey(feed), encodeSeq(seq))
}

// getSeq reads the feed's seq counter with a conflicting read, so two
// concurrent allocations against the same feed cannot both commit.
func getSeq(tx *kv.Tx, feed id.ID) (int32, error) {
	v, err := tx.Get(seqKey(feed))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, ErrFeedNotFound
	}
	return decodeSeq(v)
}

// snapshotSeq reads the counter without a conflict, for stats and existence
// checks.
func snapshotSeq(tx *kv.Tx, feed id.ID) (int32, error) {
	v, err := tx.SnapshotGet(seqKey(feed))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, ErrFeedNotFound
	}
	return decodeSeq(v)
}

// allocateSeq hands out the next gapless seq for the feed. First committer
// wins on races; the loser retries with a fresh transaction.
func allocateSeq(tx *kv.Tx, feed id.ID) (int32, error) {
	cur, err := getSeq(tx, feed)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	setSeq(tx, feed, next)
	return next, nil
}
