package feeds

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

// Subscription record layout: mode(1) flags(1) joinedAt_ms_be(8) join(12).
// The join stamp is versionstamped at subscribe commit, hole at offset 10.
const (
	subRecordLen     = 22
	subRecordJoinOff = 10

	subFlagJumbo = byte(1 << 0)
)

// CreateSubscriber registers a new subscriber and initializes its state
// token.
func (r *Repo) CreateSubscriber(tx *kv.Tx) (id.ID, error) {
	subscriber, err := allocateID(tx, regKindSubscriber)
	if err != nil {
		return id.ID{}, err
	}
	r.bumpState(tx, subscriber)
	r.logger.With(logpkg.Str("subscriber", subscriber.String())).Debug("feeds.create_subscriber")
	return subscriber, nil
}

// Subscribe creates the subscriber-to-feed edge. The join stamp recorded in
// the edge makes events older than the subscribe invisible to difference
// reads. The edge read conflicts, so two racing subscribes to the same feed
// cannot both commit.
func (r *Repo) Subscribe(tx *kv.Tx, subscriber, feed id.ID, mode SubscriptionMode) error {
	ok, err := subscriberExists(tx, subscriber)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSubscriberNotFound
	}
	if _, err := snapshotSeq(tx, feed); err != nil {
		return err
	}
	existing, err := tx.Get(subscriptionKey(subscriber, feed))
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadySubscribed
	}
	jumbo, err := tx.SnapshotExists(jumboKey(feed))
	if err != nil {
		return err
	}

	rec := make([]byte, subRecordLen)
	rec[0] = byte(mode)
	if jumbo {
		rec[1] |= subFlagJumbo
	}
	binary.BigEndian.PutUint64(rec[2:10], uint64(time.Now().UnixMilli()))
	idx := nextStampIndex(tx)
	binary.BigEndian.PutUint16(rec[subRecordJoinOff+10:], idx)
	tx.SetVersionstampedValue(subscriptionKey(subscriber, feed), rec, subRecordJoinOff)

	if !jumbo {
		tx.Set(feedSubscriberKey(feed, subscriber), []byte{1})
	}
	tx.Add(countKey(feed), 1)
	r.bumpState(tx, subscriber)
	return nil
}

// SubscriberCount reads the feed's subscriber counter with a conflicting
// read. Threshold decisions built on it (the jumbo upgrade) retry when a
// concurrent subscribe commits first, so the count they acted on is never
// stale.
func (r *Repo) SubscriberCount(tx *kv.Tx, feed id.ID) (int64, error) {
	raw, err := tx.Get(countKey(feed))
	if err != nil {
		return 0, err
	}
	return kv.DecodeCounter(raw), nil
}

// Unsubscribe removes the edge. A later re-subscribe starts with a fresh
// join stamp, so events from the unsubscribed period stay invisible.
func (r *Repo) Unsubscribe(tx *kv.Tx, subscriber, feed id.ID) error {
	existing, err := tx.Get(subscriptionKey(subscriber, feed))
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrAlreadyUnsubscribed
	}
	sub, err := decodeSubscription(feed, existing)
	if err != nil {
		return err
	}
	tx.Clear(subscriptionKey(subscriber, feed))
	tx.Clear(subscriptionLatestKey(subscriber, feed))
	if !sub.Jumbo {
		tx.Clear(feedSubscriberKey(feed, subscriber))
	}
	tx.Add(countKey(feed), -1)
	r.bumpState(tx, subscriber)
	return nil
}

// ListSubscriptions returns the subscriber's active edges from the snapshot.
func (r *Repo) ListSubscriptions(tx *kv.Tx, subscriber id.ID) ([]Subscription, error) {
	ok, err := subscriberExists(tx, subscriber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	ss := subscriptionsSubspace(subscriber)
	begin, end := ss.Range()
	rows, err := tx.SnapshotRange(begin, end, kv.RangeOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Subscription, 0, len(rows))
	for _, row := range rows {
		t, err := ss.Unpack(row.Key)
		if err != nil {
			return nil, err
		}
		if len(t) != 1 {
			return nil, fmt.Errorf("%w: unexpected subscription key shape", ErrBadRecord)
		}
		raw, ok := t[0].(tuple.Bytes)
		if !ok {
			return nil, fmt.Errorf("%w: subscription key is not bytes", ErrBadRecord)
		}
		feed, err := id.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		sub, err := decodeSubscription(feed, row.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// GetSubscription reads one edge. Returns nil when not subscribed.
func (r *Repo) GetSubscription(tx *kv.Tx, subscriber, feed id.ID) (*Subscription, error) {
	raw, err := tx.SnapshotGet(subscriptionKey(subscriber, feed))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	sub, err := decodeSubscription(feed, raw)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// KeepAlive marks the subscriber online until the deadline.
func (r *Repo) KeepAlive(tx *kv.Tx, subscriber id.ID, until time.Time) error {
	ok, err := subscriberExists(tx, subscriber)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSubscriberNotFound
	}
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(until.UnixMilli()))
	tx.Set(onlineKey(subscriber), v)
	return nil
}

// IsOnline reports whether the subscriber's presence deadline is in the
// future, from the snapshot.
func (r *Repo) IsOnline(tx *kv.Tx, subscriber id.ID, now time.Time) (bool, error) {
	raw, err := tx.SnapshotGet(onlineKey(subscriber))
	if err != nil {
		return false, err
	}
	if len(raw) != 8 {
		return false, nil
	}
	until := int64(binary.BigEndian.Uint64(raw))
	return now.UnixMilli() < until, nil
}

// AllocateDeliverySeqIfOnline hands out the next gapless delivery seq for an
// online subscriber, inside the caller's transaction. Offline subscribers get
// no seq; their gap detector resyncs through the difference engine instead.
// The counter read conflicts, so concurrent deliveries serialize.
func (r *Repo) AllocateDeliverySeqIfOnline(tx *kv.Tx, subscriber id.ID, now time.Time) (int64, bool, error) {
	online, err := r.IsOnline(tx, subscriber, now)
	if err != nil || !online {
		return 0, false, err
	}
	raw, err := tx.Get(deliverySeqKey(subscriber))
	if err != nil {
		return 0, false, err
	}
	next := kv.DecodeCounter(raw) + 1
	v := make([]byte, 8)
	binary.LittleEndian.PutUint64(v, uint64(next))
	tx.Set(deliverySeqKey(subscriber), v)
	return next, true, nil
}

// GetState reads the subscriber's state token: the stamp of the last
// transaction that changed its subscription set. Zero before any change.
func (r *Repo) GetState(tx *kv.Tx, subscriber id.ID) (tuple.Versionstamp, error) {
	raw, err := tx.SnapshotGet(stateKey(subscriber))
	if err != nil {
		return tuple.Versionstamp{}, err
	}
	if raw == nil {
		return tuple.Versionstamp{}, nil
	}
	return tuple.VersionstampFromBytes(raw)
}

// bumpState stamps the subscriber's state token with this transaction's
// commit version.
func (r *Repo) bumpState(tx *kv.Tx, subscriber id.ID) {
	idx := nextStampIndex(tx)
	tx.SetVersionstampedValue(stateKey(subscriber), stampTemplate(idx), 0)
}

func decodeSubscription(feed id.ID, b []byte) (Subscription, error) {
	if len(b) != subRecordLen {
		return Subscription{}, fmt.Errorf("%w: subscription record is %d bytes", ErrBadRecord, len(b))
	}
	join, err := tuple.VersionstampFromBytes(b[subRecordJoinOff:])
	if err != nil {
		return Subscription{}, err
	}
	return Subscription{
		Feed:     feed,
		Mode:     SubscriptionMode(b[0]),
		Jumbo:    b[1]&subFlagJumbo != 0,
		Join:     join,
		JoinedAt: time.UnixMilli(int64(binary.BigEndian.Uint64(b[2:10]))),
	}, nil
}
