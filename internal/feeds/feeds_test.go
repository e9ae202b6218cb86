package feeds

import (
	"context"
	"testing"

	"github.com/openland/openland-server-sub006/internal/kv"
	pebblestore "github.com/openland/openland-server-sub006/internal/storage/pebble"
	"github.com/openland/openland-server-sub006/pkg/id"
)

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(kv.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runTx(t *testing.T, s *kv.Store, fn func(tx *kv.Tx) error) {
	t.Helper()
	if err := s.RunTransaction(context.Background(), fn); err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func mustCreateFeed(t *testing.T, s *kv.Store, r *Repo) id.ID {
	t.Helper()
	var feed id.ID
	runTx(t, s, func(tx *kv.Tx) error {
		var err error
		feed, err = r.CreateFeed(tx)
		return err
	})
	return feed
}

func mustCreateSubscriber(t *testing.T, s *kv.Store, r *Repo) id.ID {
	t.Helper()
	var sub id.ID
	runTx(t, s, func(tx *kv.Tx) error {
		var err error
		sub, err = r.CreateSubscriber(tx)
		return err
	})
	return sub
}

func mustPost(t *testing.T, s *kv.Store, r *Repo, feed id.ID, body string, opts PostOptions) int32 {
	t.Helper()
	var seq int32
	runTx(t, s, func(tx *kv.Tx) error {
		res, err := r.Post(tx, feed, []byte(body), opts)
		if err != nil {
			return err
		}
		seq = res.Seq
		return nil
	})
	return seq
}

func readAll(t *testing.T, s *kv.Store, r *Repo, feed id.ID) []Event {
	t.Helper()
	var out []Event
	runTx(t, s, func(tx *kv.Tx) error {
		res, err := r.GetFeedUpdates(tx, feed, UpdatesOptions{Limit: 10000})
		if err != nil {
			return err
		}
		out = res.Events
		return nil
	})
	return out
}

func TestCreateFeedWritesStartEvent(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)

	evs := readAll(t, s, r, feed)
	if len(evs) != 1 {
		t.Fatalf("want 1 event, got %d", len(evs))
	}
	if evs[0].Kind != KindStart || evs[0].Seq != 1 || len(evs[0].Body) != 0 {
		t.Fatalf("bad start event: %+v", evs[0])
	}
	runTx(t, s, func(tx *kv.Tx) error {
		latest, err := r.GetLatest(tx, feed)
		if err != nil {
			return err
		}
		if latest == nil || latest.Seq != 1 || latest.Stamp.IsZero() {
			t.Fatalf("bad latest: %+v", latest)
		}
		return nil
	})
}

func TestPostAdvancesSeqGapless(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)

	for i := 0; i < 5; i++ {
		seq := mustPost(t, s, r, feed, "e", PostOptions{})
		if want := int32(i + 2); seq != want {
			t.Fatalf("post %d: want seq %d, got %d", i, want, seq)
		}
	}
	evs := readAll(t, s, r, feed)
	if len(evs) != 6 {
		t.Fatalf("want 6 events, got %d", len(evs))
	}
	for i, ev := range evs {
		if ev.Seq != int32(i+1) {
			t.Fatalf("event %d: want seq %d, got %d", i, i+1, ev.Seq)
		}
		if i > 0 && evs[i-1].ID.Compare(ev.ID) >= 0 {
			t.Fatalf("cursors not strictly increasing at %d", i)
		}
	}
}

func TestPostToUnknownFeedFails(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	err := s.RunTransaction(context.Background(), func(tx *kv.Tx) error {
		_, err := r.Post(tx, id.New(), []byte("x"), PostOptions{})
		return err
	})
	if err != ErrFeedNotFound {
		t.Fatalf("want ErrFeedNotFound, got %v", err)
	}
}

func TestGetFeedUpdatesPagination(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	for i := 0; i < 30; i++ {
		mustPost(t, s, r, feed, "e", PostOptions{})
	}

	runTx(t, s, func(tx *kv.Tx) error {
		first, err := r.GetFeedUpdates(tx, feed, UpdatesOptions{Limit: 10})
		if err != nil {
			return err
		}
		if len(first.Events) != 10 || !first.HasMore {
			t.Fatalf("first page: %d events, hasMore=%v", len(first.Events), first.HasMore)
		}
		next, err := r.GetFeedUpdates(tx, feed, UpdatesOptions{
			After: first.Events[len(first.Events)-1].ID,
			Limit: 10,
		})
		if err != nil {
			return err
		}
		if len(next.Events) != 10 || next.Events[0].Seq != first.Events[len(first.Events)-1].Seq+1 {
			t.Fatalf("second page does not resume: %+v", next.Events[0])
		}
		return nil
	})
}

func TestGetFeedUpdatesSeqCursor(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	for i := 0; i < 5; i++ {
		mustPost(t, s, r, feed, "e", PostOptions{})
	}
	runTx(t, s, func(tx *kv.Tx) error {
		res, err := r.GetFeedUpdates(tx, feed, UpdatesOptions{AfterSeq: 3, Limit: 10})
		if err != nil {
			return err
		}
		if len(res.Events) != 3 || res.Events[0].Seq != 4 {
			t.Fatalf("seq cursor read wrong page: %+v", res.Events)
		}
		return nil
	})
}

func TestGetFeedUpdatesOnlyLatest(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	for i := 0; i < 10; i++ {
		mustPost(t, s, r, feed, "e", PostOptions{})
	}
	runTx(t, s, func(tx *kv.Tx) error {
		res, err := r.GetFeedUpdates(tx, feed, UpdatesOptions{Mode: UpdatesOnlyLatest, Limit: 3})
		if err != nil {
			return err
		}
		if len(res.Events) != 3 || !res.HasMore {
			t.Fatalf("only-latest window: %d events, hasMore=%v", len(res.Events), res.HasMore)
		}
		// newest three, ascending
		if res.Events[0].Seq != 9 || res.Events[2].Seq != 11 {
			t.Fatalf("wrong window: seqs %d..%d", res.Events[0].Seq, res.Events[2].Seq)
		}
		return nil
	})
}

func TestStatsCounters(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	runTx(t, s, func(tx *kv.Tx) error { return r.Subscribe(tx, sub, feed, ModeDirect) })
	mustPost(t, s, r, feed, "e", PostOptions{})

	runTx(t, s, func(tx *kv.Tx) error {
		stats, err := r.Stats(tx, feed)
		if err != nil {
			return err
		}
		if stats.Seq != 2 || stats.Subscribers != 1 || stats.Jumbo {
			t.Fatalf("bad stats: %+v", stats)
		}
		return nil
	})
}
