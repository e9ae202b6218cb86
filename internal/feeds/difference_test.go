package feeds

import (
	"testing"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
)

func getDifference(t *testing.T, s *kv.Store, r *Repo, subscriber id.ID, state tuple.Versionstamp, opts DifferenceOptions) *Difference {
	t.Helper()
	var diff *Difference
	runTx(t, s, func(tx *kv.Tx) error {
		var err error
		diff, err = r.GetDifference(tx, subscriber, state, opts)
		return err
	})
	return diff
}

func TestDifferenceSeesOnlyPostJoinEvents(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)

	mustPost(t, s, r, feed, "before", PostOptions{})
	mustSubscribe(t, s, r, sub, feed, ModeDirect)
	mustPost(t, s, r, feed, "after", PostOptions{})

	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{})
	if len(diff.Events) != 1 || string(diff.Events[0].Body) != "after" {
		t.Fatalf("want only the post-join event, got %+v", diff.Events)
	}
	if !diff.Completed || len(diff.Partial) != 0 {
		t.Fatalf("unexpected truncation: completed=%v partial=%v", diff.Completed, diff.Partial)
	}
}

func TestDifferenceAdvancesWithState(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirect)

	mustPost(t, s, r, feed, "one", PostOptions{})
	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{})
	if len(diff.Events) != 1 {
		t.Fatalf("want 1 event, got %d", len(diff.Events))
	}
	state := diff.Events[0].ID

	// no news after consuming state
	diff = getDifference(t, s, r, sub, state, DifferenceOptions{})
	if len(diff.Events) != 0 {
		t.Fatalf("replayed events: %+v", diff.Events)
	}

	mustPost(t, s, r, feed, "two", PostOptions{})
	diff = getDifference(t, s, r, sub, state, DifferenceOptions{})
	if len(diff.Events) != 1 || string(diff.Events[0].Body) != "two" {
		t.Fatalf("want only the new event, got %+v", diff.Events)
	}
}

func TestDifferenceStrictTruncatesOldestFirst(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirectStrict)

	for i := 0; i < 100; i++ {
		mustPost(t, s, r, feed, "e", PostOptions{})
	}

	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{BatchSize: 10, Limit: 10})
	if len(diff.Events) != 10 {
		t.Fatalf("want 10 events, got %d", len(diff.Events))
	}
	// strict never skips: the oldest pending window, in order
	for i, ev := range diff.Events {
		if want := int32(i + 2); ev.Seq != want {
			t.Fatalf("event %d: want seq %d, got %d", i, want, ev.Seq)
		}
	}
	if diff.Completed {
		t.Fatal("strict truncation must report incomplete")
	}
	if len(diff.Partial) != 1 || diff.Partial[0] != feed {
		t.Fatalf("want feed flagged partial, got %v", diff.Partial)
	}
}

func TestDifferenceNonStrictFavorsRecency(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirect)

	for i := 0; i < 100; i++ {
		mustPost(t, s, r, feed, "e", PostOptions{})
	}

	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{BatchSize: 10, Limit: 10})
	if len(diff.Events) != 10 {
		t.Fatalf("want 10 events, got %d", len(diff.Events))
	}
	// the newest window, still ascending
	for i, ev := range diff.Events {
		if want := int32(i + 92); ev.Seq != want {
			t.Fatalf("event %d: want seq %d, got %d", i, want, ev.Seq)
		}
	}
	if len(diff.Partial) != 1 || diff.Partial[0] != feed {
		t.Fatalf("want feed flagged partial, got %v", diff.Partial)
	}
}

func TestDifferenceMergesAcrossFeeds(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	f1 := mustCreateFeed(t, s, r)
	f2 := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, f1, ModeDirect)
	mustSubscribe(t, s, r, sub, f2, ModeDirect)

	mustPost(t, s, r, f1, "a", PostOptions{})
	mustPost(t, s, r, f2, "b", PostOptions{})
	mustPost(t, s, r, f1, "c", PostOptions{})

	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{})
	if len(diff.Events) != 3 {
		t.Fatalf("want 3 merged events, got %d", len(diff.Events))
	}
	for i := 1; i < len(diff.Events); i++ {
		if diff.Events[i-1].ID.Compare(diff.Events[i].ID) >= 0 {
			t.Fatalf("merge not ascending at %d", i)
		}
	}
	if string(diff.Events[0].Body) != "a" || string(diff.Events[1].Body) != "b" || string(diff.Events[2].Body) != "c" {
		t.Fatalf("wrong merge order: %q %q %q", diff.Events[0].Body, diff.Events[1].Body, diff.Events[2].Body)
	}
}

func TestDifferenceAfterUnsubscribe(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirect)
	mustPost(t, s, r, feed, "x", PostOptions{})
	runTx(t, s, func(tx *kv.Tx) error { return r.Unsubscribe(tx, sub, feed) })

	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{})
	if len(diff.Events) != 0 {
		t.Fatalf("unsubscribed feed still visible: %+v", diff.Events)
	}
}

func TestJumboUpgradeAndDifference(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirect)

	runTx(t, s, func(tx *kv.Tx) error { return r.UpgradeFeed(tx, feed) })
	// idempotent
	runTx(t, s, func(tx *kv.Tx) error { return r.UpgradeFeed(tx, feed) })

	runTx(t, s, func(tx *kv.Tx) error {
		subs, err := r.ListSubscriptions(tx, sub)
		if err != nil {
			return err
		}
		if len(subs) != 1 || !subs[0].Jumbo {
			t.Fatalf("subscription not migrated: %+v", subs)
		}
		stats, err := r.Stats(tx, feed)
		if err != nil {
			return err
		}
		if !stats.Jumbo {
			t.Fatal("feed not jumbo")
		}
		return nil
	})

	// jumbo posts return no explicit fan-out list
	runTx(t, s, func(tx *kv.Tx) error {
		res, err := r.Post(tx, feed, []byte("big"), PostOptions{})
		if err != nil {
			return err
		}
		if !res.Jumbo || res.Subscribers != nil {
			t.Fatalf("jumbo post leaked subscriber list: %+v", res)
		}
		return nil
	})

	// the difference engine still sees the event through the feed head
	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{})
	if len(diff.Events) != 1 || string(diff.Events[0].Body) != "big" {
		t.Fatalf("jumbo difference broken: %+v", diff.Events)
	}
}

func TestSubscribeToJumboFeed(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	runTx(t, s, func(tx *kv.Tx) error { return r.UpgradeFeed(tx, feed) })

	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirect)
	mustPost(t, s, r, feed, "x", PostOptions{})

	diff := getDifference(t, s, r, sub, tuple.Versionstamp{}, DifferenceOptions{})
	if len(diff.Events) != 1 || string(diff.Events[0].Body) != "x" {
		t.Fatalf("jumbo subscription missed event: %+v", diff.Events)
	}
}

func TestIsUpdateAvailable(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirect)

	runTx(t, s, func(tx *kv.Tx) error {
		avail, err := r.IsUpdateAvailable(tx, sub, tuple.Versionstamp{})
		if err != nil {
			return err
		}
		if avail {
			t.Fatal("no posts yet but update reported")
		}
		return nil
	})

	mustPost(t, s, r, feed, "x", PostOptions{})
	runTx(t, s, func(tx *kv.Tx) error {
		avail, err := r.IsUpdateAvailable(tx, sub, tuple.Versionstamp{})
		if err != nil {
			return err
		}
		if !avail {
			t.Fatal("update not reported")
		}
		return nil
	})
}
