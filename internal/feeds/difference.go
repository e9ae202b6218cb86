package feeds

import (
	"sort"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
)

// Default difference windows.
const (
	defaultDifferenceBatch = 20
	defaultDifferenceLimit = 100
)

// DifferenceOptions bounds a catch-up read.
type DifferenceOptions struct {
	// BatchSize caps events read per feed. Zero means the default (20).
	BatchSize int
	// Limit caps events in the merged result. Zero means the default (100).
	Limit int
}

// Difference is the result of a catch-up read across every subscription.
type Difference struct {
	// Events is the merged update list, ascending by global cursor.
	Events []Event
	// Partial lists feeds whose per-feed window overflowed; the caller must
	// follow up on those feeds individually.
	Partial []id.ID
	// Completed is false when events were dropped and a follow-up read from
	// the new state is required to drain the backlog.
	Completed bool
}

// GetDifference reads everything that happened across the subscriber's feeds
// after state. Per feed, the effective cursor is the newer of state and the
// subscription's join stamp. Feeds whose head is at or before the cursor are
// skipped without touching their streams: non-jumbo subscriptions check the
// cached per-subscription latest pointer, jumbo ones the feed's own head.
//
// Strict subscriptions read oldest-first and never skip an event; the rest
// read the newest window and favor recency when a feed overflows its batch.
func (r *Repo) GetDifference(tx *kv.Tx, subscriber id.ID, state tuple.Versionstamp, opts DifferenceOptions) (*Difference, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultDifferenceBatch
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultDifferenceLimit
	}

	subs, err := r.ListSubscriptions(tx, subscriber)
	if err != nil {
		return nil, err
	}

	out := &Difference{Completed: true}
	for _, sub := range subs {
		after := state
		if sub.Join.Compare(after) > 0 {
			after = sub.Join
		}
		pending, err := r.hasNewer(tx, subscriber, sub, after)
		if err != nil {
			return nil, err
		}
		if !pending {
			continue
		}

		strict := sub.Mode == ModeDirectStrict
		rows, err := r.scanStream(tx, sub.Feed, after, batch+1, !strict)
		if err != nil {
			return nil, err
		}
		if len(rows) > batch {
			rows = rows[:batch]
			out.Partial = append(out.Partial, sub.Feed)
			if strict {
				out.Completed = false
			}
		}
		if !strict {
			reverseEvents(rows)
		}
		out.Events = append(out.Events, rows...)
	}

	sort.Slice(out.Events, func(i, j int) bool {
		return out.Events[i].ID.Compare(out.Events[j].ID) < 0
	})
	if len(out.Events) > limit {
		out.Events = out.Events[:limit]
		out.Completed = false
	}
	return out, nil
}

// IsUpdateAvailable reports whether any subscription has events after state,
// using only head pointers.
func (r *Repo) IsUpdateAvailable(tx *kv.Tx, subscriber id.ID, state tuple.Versionstamp) (bool, error) {
	subs, err := r.ListSubscriptions(tx, subscriber)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		after := state
		if sub.Join.Compare(after) > 0 {
			after = sub.Join
		}
		pending, err := r.hasNewer(tx, subscriber, sub, after)
		if err != nil {
			return false, err
		}
		if pending {
			return true, nil
		}
	}
	return false, nil
}

// hasNewer is the fast-skip check: true when the subscription's feed has at
// least one event after the cursor.
func (r *Repo) hasNewer(tx *kv.Tx, subscriber id.ID, sub Subscription, after tuple.Versionstamp) (bool, error) {
	if sub.Jumbo {
		latest, err := r.GetLatest(tx, sub.Feed)
		if err != nil {
			return false, err
		}
		return latest != nil && latest.Stamp.Compare(after) > 0, nil
	}
	raw, err := tx.SnapshotGet(subscriptionLatestKey(subscriber, sub.Feed))
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	cached, err := tuple.VersionstampFromBytes(raw)
	if err != nil {
		return false, err
	}
	return cached.Compare(after) > 0, nil
}
