package feeds

import (
	"context"
	"testing"
	"time"

	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
)

func mustSubscribe(t *testing.T, s *kv.Store, r *Repo, subscriber, feed id.ID, mode SubscriptionMode) {
	t.Helper()
	runTx(t, s, func(tx *kv.Tx) error { return r.Subscribe(tx, subscriber, feed, mode) })
}

func TestSubscribeAndList(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeAsync)

	runTx(t, s, func(tx *kv.Tx) error {
		subs, err := r.ListSubscriptions(tx, sub)
		if err != nil {
			return err
		}
		if len(subs) != 1 {
			t.Fatalf("want 1 subscription, got %d", len(subs))
		}
		got := subs[0]
		if got.Feed != feed || got.Mode != ModeAsync || got.Jumbo || got.Join.IsZero() {
			t.Fatalf("bad subscription: %+v", got)
		}
		return nil
	})
}

func TestDoubleSubscribeFails(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	mustSubscribe(t, s, r, sub, feed, ModeDirect)

	err := s.RunTransaction(context.Background(), func(tx *kv.Tx) error {
		return r.Subscribe(tx, sub, feed, ModeDirect)
	})
	if err != ErrAlreadySubscribed {
		t.Fatalf("want ErrAlreadySubscribed, got %v", err)
	}
}

func TestUnsubscribeLifecycle(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)

	err := s.RunTransaction(context.Background(), func(tx *kv.Tx) error {
		return r.Unsubscribe(tx, sub, feed)
	})
	if err != ErrAlreadyUnsubscribed {
		t.Fatalf("want ErrAlreadyUnsubscribed, got %v", err)
	}

	mustSubscribe(t, s, r, sub, feed, ModeDirect)
	runTx(t, s, func(tx *kv.Tx) error { return r.Unsubscribe(tx, sub, feed) })

	runTx(t, s, func(tx *kv.Tx) error {
		subs, err := r.ListSubscriptions(tx, sub)
		if err != nil {
			return err
		}
		if len(subs) != 0 {
			t.Fatalf("subscription survived unsubscribe: %+v", subs)
		}
		stats, err := r.Stats(tx, feed)
		if err != nil {
			return err
		}
		if stats.Subscribers != 0 {
			t.Fatalf("count not decremented: %d", stats.Subscribers)
		}
		return nil
	})
}

func TestSubscribeUnknownEntitiesFail(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)
	ctx := context.Background()

	if err := s.RunTransaction(ctx, func(tx *kv.Tx) error {
		return r.Subscribe(tx, id.New(), feed, ModeDirect)
	}); err != ErrSubscriberNotFound {
		t.Fatalf("want ErrSubscriberNotFound, got %v", err)
	}
	if err := s.RunTransaction(ctx, func(tx *kv.Tx) error {
		return r.Subscribe(tx, sub, id.New(), ModeDirect)
	}); err != ErrFeedNotFound {
		t.Fatalf("want ErrFeedNotFound, got %v", err)
	}
}

func TestPresenceAndDeliverySeq(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	sub := mustCreateSubscriber(t, s, r)
	now := time.Now()

	// offline: no seq allocated
	runTx(t, s, func(tx *kv.Tx) error {
		_, ok, err := r.AllocateDeliverySeqIfOnline(tx, sub, now)
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("allocated delivery seq for offline subscriber")
		}
		return nil
	})

	runTx(t, s, func(tx *kv.Tx) error { return r.KeepAlive(tx, sub, now.Add(30*time.Second)) })

	for want := int64(1); want <= 3; want++ {
		runTx(t, s, func(tx *kv.Tx) error {
			seq, ok, err := r.AllocateDeliverySeqIfOnline(tx, sub, now)
			if err != nil {
				return err
			}
			if !ok || seq != want {
				t.Fatalf("want delivery seq %d, got %d (online=%v)", want, seq, ok)
			}
			return nil
		})
	}

	// expired presence counts as offline
	runTx(t, s, func(tx *kv.Tx) error {
		online, err := r.IsOnline(tx, sub, now.Add(time.Minute))
		if err != nil {
			return err
		}
		if online {
			t.Fatal("expired presence still online")
		}
		return nil
	})
}

func TestStateTokenAdvances(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	sub := mustCreateSubscriber(t, s, r)

	var s1, s2 tuple.Versionstamp
	runTx(t, s, func(tx *kv.Tx) error {
		var err error
		s1, err = r.GetState(tx, sub)
		return err
	})
	if s1.IsZero() {
		t.Fatal("state token not initialized at create")
	}

	mustSubscribe(t, s, r, sub, feed, ModeDirect)
	runTx(t, s, func(tx *kv.Tx) error {
		var err error
		s2, err = r.GetState(tx, sub)
		return err
	})
	if s2.Compare(s1) <= 0 {
		t.Fatalf("state did not advance: %v -> %v", s1, s2)
	}
}

func TestSubscriberCountConflictsWithConcurrentSubscribe(t *testing.T) {
	s := newTestStore(t)
	r := NewRepo(nil)
	feed := mustCreateFeed(t, s, r)
	a := mustCreateSubscriber(t, s, r)
	b := mustCreateSubscriber(t, s, r)

	attempts := 0
	var lastCount int64
	runTx(t, s, func(tx *kv.Tx) error {
		attempts++
		count, err := r.SubscriberCount(tx, feed)
		if err != nil {
			return err
		}
		lastCount = count
		if attempts == 1 {
			// another subscribe commits while this transaction is open
			runTx(t, s, func(tx2 *kv.Tx) error {
				return r.Subscribe(tx2, b, feed, ModeDirect)
			})
		}
		return r.Subscribe(tx, a, feed, ModeDirect)
	})
	if attempts < 2 {
		t.Fatalf("want a conflict retry, ran %d attempt(s)", attempts)
	}
	if lastCount != 1 {
		t.Fatalf("retried attempt saw count %d, want 1", lastCount)
	}
}
