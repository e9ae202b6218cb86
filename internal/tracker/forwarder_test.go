package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openland/openland-server-sub006/internal/pubsub"
)

func TestForwarderResyncsOnHole(t *testing.T) {
	bus := pubsub.NewLocalBus()
	var mu sync.Mutex
	var forwarded []int64
	resynced := make(chan struct{}, 1)

	f := NewForwarder(bus, "feed.1", ForwarderOptions{
		Parse: testParse,
		Forward: func(u Update) {
			mu.Lock()
			forwarded = append(forwarded, u.Seq)
			mu.Unlock()
		},
		Resync: func(ctx context.Context) (Checkpoint, error) {
			select {
			case resynced <- struct{}{}:
			default:
			}
			return Checkpoint{Seq: 3, Token: []byte("durable")}, nil
		},
	})
	if err := f.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = f.Stop() }()

	_ = bus.Publish("feed.1", testPayload(1, "t"))
	// seq 2 lost, 3 arrives out of order
	_ = bus.Publish("feed.1", testPayload(3, "t"))

	select {
	case <-resynced:
	case <-time.After(time.Second):
		t.Fatal("resync not triggered")
	}
	deadline := time.Now().Add(time.Second)
	for {
		if f.Validated().Seq == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("validated stuck at %d", f.Validated().Seq)
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	// the out-of-order update was still relayed without waiting for resync
	if len(forwarded) != 2 || forwarded[0] != 1 || forwarded[1] != 3 {
		t.Fatalf("forwarded: %v", forwarded)
	}
}

func TestForwarderLifecycleErrors(t *testing.T) {
	bus := pubsub.NewLocalBus()
	f := NewForwarder(bus, "feed.1", ForwarderOptions{
		Parse:   testParse,
		Forward: func(Update) {},
		Resync:  func(context.Context) (Checkpoint, error) { return Checkpoint{}, nil },
	})
	if err := f.Stop(); err != ErrNotRunning {
		t.Fatalf("stop before start: %v", err)
	}
	if err := f.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.Start(); err != ErrAlreadyStarted {
		t.Fatalf("double start: %v", err)
	}
	if err := f.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
