package feeds

import (
	"sort"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
)

// Collapsed posts share a repeat key. The stream keeps exactly one physical
// row per live key, always at the newest position, while seq advances per
// logical post. Pending collapsed posts are queued in the transaction cache
// and flushed in a before-commit hook so N same-key posts in one transaction
// produce one row.

type collapseQueueCacheKey struct{}

type pendingCollapse struct {
	feed   id.ID
	repeat string
	seq    int32
	index  uint16
	body   []byte
}

func (r *Repo) queueCollapsed(tx *kv.Tx, feed id.ID, repeat string, seq int32, index uint16, body []byte) error {
	c := tx.Cache()
	queue, ok := c[collapseQueueCacheKey{}].(map[string]*pendingCollapse)
	if !ok {
		queue = map[string]*pendingCollapse{}
		c[collapseQueueCacheKey{}] = queue
		tx.BeforeCommit(r.flushCollapsed)
	}

	ck := string(collapseKey(feed, repeat))
	if p, exists := queue[ck]; exists {
		p.seq = seq
		p.index = index
		p.body = body
		return nil
	}

	// First touch of this key in the transaction: retire the committed
	// physical row it points at, if any.
	prev, err := tx.SnapshotGet(collapseKey(feed, repeat))
	if err != nil {
		return err
	}
	if prev != nil {
		stamp, err := tuple.VersionstampFromBytes(prev)
		if err != nil {
			return err
		}
		tx.Clear(streamKey(feed, stamp))
	}
	queue[ck] = &pendingCollapse{feed: feed, repeat: repeat, seq: seq, index: index, body: body}
	return nil
}

func (r *Repo) flushCollapsed(tx *kv.Tx) error {
	queue, _ := tx.Cache()[collapseQueueCacheKey{}].(map[string]*pendingCollapse)
	if len(queue) == 0 {
		return nil
	}
	keys := make([]string, 0, len(queue))
	for k := range queue {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := queue[k]
		streamK, off := streamKeyIncomplete(p.feed, p.index)
		tx.SetVersionstampedKey(streamK, off, encodeEvent(KindEvent, p.seq, p.body))
		tx.SetVersionstampedValue(collapseKey(p.feed, p.repeat), stampTemplate(p.index), 0)
	}
	return nil
}
