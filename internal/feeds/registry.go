package feeds

import (
	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
)

const idAllocAttempts = 32

// allocateID draws random ids until one is unused, marking the winner in the
// registry. The marker read takes an explicit conflict so two transactions
// racing on the same id cannot both commit.
func allocateID(tx *kv.Tx, kind tuple.Int32BE) (id.ID, error) {
	for i := 0; i < idAllocAttempts; i++ {
		candidate := id.New()
		key := regKey(kind, candidate)
		exists, err := tx.SnapshotExists(key)
		if err != nil {
			return id.ID{}, err
		}
		if exists {
			continue
		}
		tx.AddReadConflictKey(key)
		tx.Set(key, []byte{1})
		return candidate, nil
	}
	return id.ID{}, ErrIDExhausted
}

func feedExists(tx *kv.Tx, feed id.ID) (bool, error) {
	return tx.SnapshotExists(regKey(regKindFeed, feed))
}

func subscriberExists(tx *kv.Tx, subscriber id.ID) (bool, error) {
	return tx.SnapshotExists(regKey(regKindSubscriber, subscriber))
}
