package feeds

import (
	"encoding/binary"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
)

type stampIndexCacheKey struct{}

// nextStampIndex hands out the next intra-transaction user version. The
// counter lives in the transaction's scratch cache, so a retry restarts it
// from zero.
func nextStampIndex(tx *kv.Tx) uint16 {
	c := tx.Cache()
	n, _ := c[stampIndexCacheKey{}].(uint16)
	c[stampIndexCacheKey{}] = n + 1
	return n
}

// stampTemplate returns a 12-byte versionstamp value with the 10-byte hole at
// offset 0 and the user version prefilled.
func stampTemplate(userVersion uint16) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint16(b[10:], userVersion)
	return b
}

// StampFuture resolves a pending write's full 12-byte cursor once the owning
// transaction commits.
type StampFuture struct {
	index  uint16
	future *kv.VersionFuture
}

func newStampFuture(tx *kv.Tx, index uint16) *StampFuture {
	return &StampFuture{index: index, future: tx.Versionstamp()}
}

// Get blocks until commit and returns the resolved cursor.
func (f *StampFuture) Get() (tuple.Versionstamp, error) {
	v, err := f.future.Get()
	if err != nil {
		return tuple.Versionstamp{}, err
	}
	return tuple.VersionstampFrom(v, f.index), nil
}

// TryGet returns the cursor if the transaction already committed.
func (f *StampFuture) TryGet() (tuple.Versionstamp, error) {
	v, err := f.future.TryGet()
	if err != nil {
		return tuple.Versionstamp{}, err
	}
	return tuple.VersionstampFrom(v, f.index), nil
}
