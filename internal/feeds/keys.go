package feeds

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
)

// Key-space layout. All keys are ordered tuples; byte-lexicographic order of
// the packed form is the scan order every range read below relies on.
//
//	("reg", kind_be4, id)                         allocated-id marker
//	("feed", id, STREAM, versionstamp)            event record
//	("feed", id, LATEST)                          12-byte stamp ++ seq_be4
//	("feed", id, SETTINGS, SEQ)                   seq counter, int32 big-endian
//	("feed", id, SETTINGS, COUNT)                 subscriber count, atomic add
//	("feed", id, SETTINGS, JUMBO)                 jumbo marker
//	("feed", id, SUBSCRIBERS, subscriber_id)      small-mode subscriber set
//	("feed", id, SEQ_INDEX, seq_be4)              seq -> 12-byte stamp
//	("feed", id, COLLAPSE, xxhash64(key))         collapse key -> 12-byte stamp
//	("sub", id, SUBSCRIPTIONS, feed_id)           subscription record
//	("sub", id, SUB_LATEST, feed_id)              cached latest, 12-byte stamp
//	("sub", id, ONLINE)                           online-until ms, big-endian
//	("sub", id, STATE)                            state token, 12-byte stamp
//	("sub", id, DELIVERY_SEQ)                     per-subscriber delivery counter
var (
	regSpace  = tuple.NewSubspace(tuple.Bytes("reg"))
	feedSpace = tuple.NewSubspace(tuple.Bytes("feed"))
	subSpace  = tuple.NewSubspace(tuple.Bytes("sub"))
)

// Feed sub-key tags.
const (
	feedKeyStream      = tuple.Int32BE(1)
	feedKeyLatest      = tuple.Int32BE(2)
	feedKeySettings    = tuple.Int32BE(3)
	feedKeySubscribers = tuple.Int32BE(4)
	feedKeySeqIndex    = tuple.Int32BE(5)
	feedKeyCollapse    = tuple.Int32BE(6)
)

// Settings sub-key tags.
const (
	settingSeq   = tuple.Int32BE(1)
	settingCount = tuple.Int32BE(2)
	settingJumbo = tuple.Int32BE(3)
)

// Subscriber sub-key tags.
const (
	subKeySubscriptions = tuple.Int32BE(1)
	subKeySubLatest     = tuple.Int32BE(2)
	subKeyOnline        = tuple.Int32BE(3)
	subKeyState         = tuple.Int32BE(4)
	subKeyDeliverySeq   = tuple.Int32BE(5)
)

// Registry entry kinds.
const (
	regKindFeed       = tuple.Int32BE(1)
	regKindSubscriber = tuple.Int32BE(2)
)

func regKey(kind tuple.Int32BE, entity id.ID) []byte {
	return regSpace.MustPack(kind, tuple.Bytes(entity.Bytes()))
}

func streamSubspace(feed id.ID) tuple.Subspace {
	return feedSpace.Sub(tuple.Bytes(feed.Bytes()), feedKeyStream)
}

func streamKey(feed id.ID, stamp tuple.Versionstamp) []byte {
	return streamSubspace(feed).MustPack(stamp)
}

// streamKeyIncomplete returns the packed stream key with a 10-byte hole and
// its offset, for versionstamped writes.
func streamKeyIncomplete(feed id.ID, userVersion uint16) ([]byte, int) {
	key, off, err := streamSubspace(feed).PackIncomplete(tuple.Incomplete{UserVersion: userVersion})
	if err != nil {
		panic(err)
	}
	return key, off
}

func latestKey(feed id.ID) []byte {
	return feedSpace.MustPack(tuple.Bytes(feed.Bytes()), feedKeyLatest)
}

// LatestKey exposes the feed head pointer's storage key for watch-based
// tailing.
func LatestKey(feed id.ID) []byte { return latestKey(feed) }

func seqKey(feed id.ID) []byte {
	return feedSpace.MustPack(tuple.Bytes(feed.Bytes()), feedKeySettings, settingSeq)
}

func countKey(feed id.ID) []byte {
	return feedSpace.MustPack(tuple.Bytes(feed.Bytes()), feedKeySettings, settingCount)
}

func jumboKey(feed id.ID) []byte {
	return feedSpace.MustPack(tuple.Bytes(feed.Bytes()), feedKeySettings, settingJumbo)
}

func feedSubscribersSubspace(feed id.ID) tuple.Subspace {
	return feedSpace.Sub(tuple.Bytes(feed.Bytes()), feedKeySubscribers)
}

func feedSubscriberKey(feed, subscriber id.ID) []byte {
	return feedSubscribersSubspace(feed).MustPack(tuple.Bytes(subscriber.Bytes()))
}

func seqIndexKey(feed id.ID, seq int32) []byte {
	return feedSpace.MustPack(tuple.Bytes(feed.Bytes()), feedKeySeqIndex, tuple.Int32BE(seq))
}

func collapseKey(feed id.ID, repeatKey string) []byte {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], xxhash.Sum64String(repeatKey))
	return feedSpace.MustPack(tuple.Bytes(feed.Bytes()), feedKeyCollapse, tuple.Bytes(h[:]))
}

func subscriptionsSubspace(subscriber id.ID) tuple.Subspace {
	return subSpace.Sub(tuple.Bytes(subscriber.Bytes()), subKeySubscriptions)
}

func subscriptionKey(subscriber, feed id.ID) []byte {
	return subscriptionsSubspace(subscriber).MustPack(tuple.Bytes(feed.Bytes()))
}

func subscriptionLatestKey(subscriber, feed id.ID) []byte {
	return subSpace.MustPack(tuple.Bytes(subscriber.Bytes()), subKeySubLatest, tuple.Bytes(feed.Bytes()))
}

func onlineKey(subscriber id.ID) []byte {
	return subSpace.MustPack(tuple.Bytes(subscriber.Bytes()), subKeyOnline)
}

func stateKey(subscriber id.ID) []byte {
	return subSpace.MustPack(tuple.Bytes(subscriber.Bytes()), subKeyState)
}

func deliverySeqKey(subscriber id.ID) []byte {
	return subSpace.MustPack(tuple.Bytes(subscriber.Bytes()), subKeyDeliverySeq)
}
