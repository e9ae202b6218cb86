package feeds

import (
	"encoding/binary"
	"fmt"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

// Repo is the feed and subscription repository. It holds no state beyond a
// logger; all durable state lives in the transactional store.
type Repo struct {
	logger logpkg.Logger
}

// NewRepo builds a repository.
func NewRepo(logger logpkg.Logger) *Repo {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("feeds"))
	}
	return &Repo{logger: logger}
}

// PostOptions tunes a single post.
type PostOptions struct {
	// RepeatKey collapses this post with earlier posts sharing the key: the
	// stream keeps a single physical row at the newest position while seq
	// still advances per post.
	RepeatKey string
}

// PostResult describes a pending post. Stamp resolves after commit.
type PostResult struct {
	Seq   int32
	Index uint16
	Stamp *StampFuture
	Jumbo bool
	// Subscribers lists the feed's current subscribers for direct fan-out.
	// Nil when the feed is jumbo; jumbo fan-out goes through the feed topic.
	Subscribers []id.ID
}

// CreateFeed registers a new feed and writes its synthetic start event with
// seq 1, so a fresh feed is never empty and every difference read has a floor.
func (r *Repo) CreateFeed(tx *kv.Tx) (id.ID, error) {
	feed, err := allocateID(tx, regKindFeed)
	if err != nil {
		return id.ID{}, err
	}
	setSeq(tx, feed, 1)
	idx := nextStampIndex(tx)
	key, off := streamKeyIncomplete(feed, idx)
	tx.SetVersionstampedKey(key, off, encodeEvent(KindStart, 1, nil))
	tx.SetVersionstampedValue(seqIndexKey(feed, 1), stampTemplate(idx), 0)
	writeLatest(tx, feed, idx, 1)
	r.logger.With(logpkg.Str("feed", feed.String())).Debug("feeds.create")
	return feed, nil
}

// Post appends one event. The seq allocation takes a conflicting read, so
// concurrent posters to one feed serialize through retries and seq stays
// gapless. Settings are read from the snapshot to keep posts from conflicting
// with anything else.
func (r *Repo) Post(tx *kv.Tx, feed id.ID, body []byte, opts PostOptions) (*PostResult, error) {
	seq, err := allocateSeq(tx, feed)
	if err != nil {
		return nil, err
	}
	idx := nextStampIndex(tx)

	if opts.RepeatKey != "" {
		if err := r.queueCollapsed(tx, feed, opts.RepeatKey, seq, idx, body); err != nil {
			return nil, err
		}
	} else {
		key, off := streamKeyIncomplete(feed, idx)
		tx.SetVersionstampedKey(key, off, encodeEvent(KindEvent, seq, body))
	}
	tx.SetVersionstampedValue(seqIndexKey(feed, seq), stampTemplate(idx), 0)
	writeLatest(tx, feed, idx, seq)

	jumbo, err := tx.SnapshotExists(jumboKey(feed))
	if err != nil {
		return nil, err
	}
	res := &PostResult{Seq: seq, Index: idx, Stamp: newStampFuture(tx, idx), Jumbo: jumbo}
	if !jumbo {
		subs, err := r.feedSubscribers(tx, feed)
		if err != nil {
			return nil, err
		}
		for _, sid := range subs {
			tx.SetVersionstampedValue(subscriptionLatestKey(sid, feed), stampTemplate(idx), 0)
		}
		res.Subscribers = subs
	}
	return res, nil
}

// UpgradeFeed switches a feed to jumbo mode. The switch is one-way and
// idempotent. It migrates every subscription record, clears the cached
// per-subscription latest pointers, and drops the explicit subscriber list.
// The seq counter is read with a conflict so posts racing the upgrade retry
// and observe the new mode.
func (r *Repo) UpgradeFeed(tx *kv.Tx, feed id.ID) error {
	if _, err := getSeq(tx, feed); err != nil {
		return err
	}
	already, err := tx.Get(jumboKey(feed))
	if err != nil {
		return err
	}
	if already != nil {
		return nil
	}
	tx.Set(jumboKey(feed), []byte{1})

	begin, end := feedSubscribersSubspace(feed).Range()
	rows, err := tx.Range(begin, end, kv.RangeOptions{})
	if err != nil {
		return err
	}
	for _, row := range rows {
		sid, err := subscriberFromListKey(feed, row.Key)
		if err != nil {
			return err
		}
		rec, err := tx.Get(subscriptionKey(sid, feed))
		if err != nil {
			return err
		}
		if rec != nil {
			migrated := append([]byte(nil), rec...)
			migrated[1] |= subFlagJumbo
			tx.Set(subscriptionKey(sid, feed), migrated)
		}
		tx.Clear(subscriptionLatestKey(sid, feed))
	}
	tx.ClearRange(begin, end)
	r.logger.With(
		logpkg.Str("feed", feed.String()),
		logpkg.Int("migrated", len(rows)),
	).Info("feeds.upgrade")
	return nil
}

// UpdatesMode selects the scan direction of GetFeedUpdates.
type UpdatesMode int

const (
	// UpdatesForward returns events after the cursor, oldest first.
	UpdatesForward UpdatesMode = iota
	// UpdatesOnlyLatest returns the newest window after the cursor.
	UpdatesOnlyLatest
)

// UpdatesOptions bounds a GetFeedUpdates read.
type UpdatesOptions struct {
	Mode UpdatesMode
	// After excludes events at or before this cursor. Zero means from the
	// beginning.
	After tuple.Versionstamp
	// AfterSeq resolves the cursor through the seq index when After is zero.
	AfterSeq int32
	// Limit caps returned events. Zero means the default (20).
	Limit int
	// Filter drops events the expression rejects. Optional.
	Filter *Filter
}

// UpdatesResult is one page of a feed read.
type UpdatesResult struct {
	Events  []Event
	HasMore bool
	Latest  *Latest
}

const defaultUpdatesLimit = 20

// GetFeedUpdates reads one page of a single feed's stream.
func (r *Repo) GetFeedUpdates(tx *kv.Tx, feed id.ID, opts UpdatesOptions) (*UpdatesResult, error) {
	latest, err := r.GetLatest(tx, feed)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrFeedNotFound
	}

	after := opts.After
	if after.IsZero() && opts.AfterSeq > 0 {
		after, err = r.resolveSeqCursor(tx, feed, opts.AfterSeq)
		if err != nil {
			return nil, err
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultUpdatesLimit
	}

	rows, err := r.scanStream(tx, feed, after, limit+1, opts.Mode == UpdatesOnlyLatest)
	if err != nil {
		return nil, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	if opts.Mode == UpdatesOnlyLatest {
		reverseEvents(rows)
	}
	if opts.Filter != nil {
		rows = opts.Filter.Apply(rows)
	}
	return &UpdatesResult{Events: rows, HasMore: hasMore, Latest: latest}, nil
}

// Stats reads a feed's counters from the snapshot.
func (r *Repo) Stats(tx *kv.Tx, feed id.ID) (*FeedStats, error) {
	seq, err := snapshotSeq(tx, feed)
	if err != nil {
		return nil, err
	}
	jumbo, err := tx.SnapshotExists(jumboKey(feed))
	if err != nil {
		return nil, err
	}
	raw, err := tx.SnapshotGet(countKey(feed))
	if err != nil {
		return nil, err
	}
	latest, err := r.GetLatest(tx, feed)
	if err != nil {
		return nil, err
	}
	return &FeedStats{
		Seq:         seq,
		Subscribers: kv.DecodeCounter(raw),
		Jumbo:       jumbo,
		Latest:      latest,
	}, nil
}

type latestCacheKey struct{ feed id.ID }

// GetLatest reads the feed's head pointer. The first value read in a
// transaction is cached and returned for the rest of the transaction, so a
// caller that posts and then reads latest still sees the pre-write head
// (pending versionstamped writes have no observable value before commit).
func (r *Repo) GetLatest(tx *kv.Tx, feed id.ID) (*Latest, error) {
	c := tx.Cache()
	if cached, ok := c[latestCacheKey{feed}]; ok {
		l, _ := cached.(*Latest)
		return l, nil
	}
	raw, err := tx.SnapshotGet(latestKey(feed))
	if err != nil {
		return nil, err
	}
	var latest *Latest
	if raw != nil {
		latest, err = decodeLatest(raw)
		if err != nil {
			return nil, err
		}
	}
	c[latestCacheKey{feed}] = latest
	return latest, nil
}

func writeLatest(tx *kv.Tx, feed id.ID, index uint16, seq int32) {
	v := make([]byte, 16)
	binary.BigEndian.PutUint16(v[10:12], index)
	binary.BigEndian.PutUint32(v[12:16], uint32(seq))
	tx.SetVersionstampedValue(latestKey(feed), v, 0)
}

func decodeLatest(b []byte) (*Latest, error) {
	if len(b) != 16 {
		return nil, fmt.Errorf("%w: latest pointer is %d bytes", ErrBadRecord, len(b))
	}
	stamp, err := tuple.VersionstampFromBytes(b[:12])
	if err != nil {
		return nil, err
	}
	return &Latest{Stamp: stamp, Seq: int32(binary.BigEndian.Uint32(b[12:16]))}, nil
}

func (r *Repo) resolveSeqCursor(tx *kv.Tx, feed id.ID, seq int32) (tuple.Versionstamp, error) {
	raw, err := tx.SnapshotGet(seqIndexKey(feed, seq))
	if err != nil {
		return tuple.Versionstamp{}, err
	}
	if raw == nil {
		return tuple.Versionstamp{}, ErrCursorNotFound
	}
	return tuple.VersionstampFromBytes(raw)
}

// scanStream reads up to limit decoded events strictly after the cursor.
// Reverse scans return newest first.
func (r *Repo) scanStream(tx *kv.Tx, feed id.ID, after tuple.Versionstamp, limit int, reverse bool) ([]Event, error) {
	ss := streamSubspace(feed)
	begin, end := ss.Range()
	if !after.IsZero() {
		begin = append(ss.MustPack(after), 0x00)
	}
	rows, err := tx.SnapshotRange(begin, end, kv.RangeOptions{Limit: limit, Reverse: reverse})
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev, err := decodeStreamRow(ss, feed, row)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeStreamRow(ss tuple.Subspace, feed id.ID, row kv.KeyValue) (Event, error) {
	t, err := ss.Unpack(row.Key)
	if err != nil {
		return Event{}, err
	}
	if len(t) != 1 {
		return Event{}, fmt.Errorf("%w: unexpected stream key shape", ErrBadRecord)
	}
	stamp, ok := t[0].(tuple.Versionstamp)
	if !ok {
		return Event{}, fmt.Errorf("%w: stream key is not stamp-indexed", ErrBadRecord)
	}
	kind, seq, body, ok := decodeEvent(row.Value)
	if !ok {
		return Event{}, ErrBadRecord
	}
	return Event{Feed: feed, ID: stamp, Seq: seq, Kind: kind, Body: body}, nil
}

type feedSubscribersCacheKey struct{ feed id.ID }

// feedSubscribers returns the explicit subscriber list of a non-jumbo feed,
// cached per transaction.
func (r *Repo) feedSubscribers(tx *kv.Tx, feed id.ID) ([]id.ID, error) {
	c := tx.Cache()
	if cached, ok := c[feedSubscribersCacheKey{feed}]; ok {
		return cached.([]id.ID), nil
	}
	begin, end := feedSubscribersSubspace(feed).Range()
	rows, err := tx.SnapshotRange(begin, end, kv.RangeOptions{})
	if err != nil {
		return nil, err
	}
	subs := make([]id.ID, 0, len(rows))
	for _, row := range rows {
		sid, err := subscriberFromListKey(feed, row.Key)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sid)
	}
	c[feedSubscribersCacheKey{feed}] = subs
	return subs, nil
}

func subscriberFromListKey(feed id.ID, key []byte) (id.ID, error) {
	t, err := feedSubscribersSubspace(feed).Unpack(key)
	if err != nil {
		return id.ID{}, err
	}
	if len(t) != 1 {
		return id.ID{}, fmt.Errorf("%w: unexpected subscriber key shape", ErrBadRecord)
	}
	raw, ok := t[0].(tuple.Bytes)
	if !ok {
		return id.ID{}, fmt.Errorf("%w: subscriber key is not bytes", ErrBadRecord)
	}
	return id.FromBytes(raw)
}

func reverseEvents(evs []Event) {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
}
