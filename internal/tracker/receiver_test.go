package tracker

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/openland/openland-server-sub006/internal/pubsub"
)

func testParse(payload []byte) (Update, error) {
	return Update{
		Seq:     int64(binary.BigEndian.Uint64(payload[:8])),
		Token:   payload[8:],
		Payload: payload,
	}, nil
}

func testPayload(seq int64, token string) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(seq))
	return append(b, token...)
}

func TestReceiverRelaysAndDropsDuplicates(t *testing.T) {
	bus := pubsub.NewLocalBus()
	var mu sync.Mutex
	var seqs []int64
	r := NewReceiver(bus, "sub.1", ReceiverOptions{
		Parse: testParse,
		OnUpdate: func(u Update) {
			mu.Lock()
			seqs = append(seqs, u.Seq)
			mu.Unlock()
		},
	})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = r.Stop() }()

	for _, seq := range []int64{1, 3, 3, 2, 2} {
		if err := bus.Publish("sub.1", testPayload(seq, "t")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	// 1 and first 3 relay immediately, 2 fills the hole; duplicates drop
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 3 || seqs[2] != 2 {
		t.Fatalf("relayed seqs: %v", seqs)
	}
	if got := r.Validated(); got.Seq != 3 {
		t.Fatalf("validated: %+v", got)
	}
}

func TestReceiverCallbackMayReenter(t *testing.T) {
	bus := pubsub.NewLocalBus()
	var mu sync.Mutex
	var validated []int64
	var r *Receiver
	r = NewReceiver(bus, "sub.1", ReceiverOptions{
		Parse: testParse,
		OnUpdate: func(u Update) {
			mu.Lock()
			validated = append(validated, r.Validated().Seq)
			mu.Unlock()
			if u.Seq == 3 {
				if err := r.Stop(); err != nil {
					t.Errorf("stop from callback: %v", err)
				}
			}
		},
	})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, seq := range []int64{1, 2, 3, 4} {
			_ = bus.Publish("sub.1", testPayload(seq, "t"))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback re-entering the receiver deadlocked")
	}

	mu.Lock()
	defer mu.Unlock()
	// seq 4 arrives after the in-callback Stop and must be ignored
	if len(validated) != 3 || validated[2] != 3 {
		t.Fatalf("validated checkpoints seen by callback: %v", validated)
	}
	if got := r.Validated(); got.Seq != 3 {
		t.Fatalf("validated after stop: %+v", got)
	}
}

func TestReceiverLifecycleErrors(t *testing.T) {
	bus := pubsub.NewLocalBus()
	r := NewReceiver(bus, "sub.1", ReceiverOptions{Parse: testParse, OnUpdate: func(Update) {}})
	if err := r.Stop(); err != ErrNotRunning {
		t.Fatalf("stop before start: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(); err != ErrAlreadyStarted {
		t.Fatalf("double start: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := r.Stop(); err != ErrNotRunning {
		t.Fatalf("double stop: %v", err)
	}
}

func TestReceiverSelfClosesOnUnfilledGap(t *testing.T) {
	bus := pubsub.NewLocalBus()
	closed := make(chan struct{})
	r := NewReceiver(bus, "sub.1", ReceiverOptions{
		Parse:      testParse,
		OnUpdate:   func(Update) {},
		OnClosed:   func() { close(closed) },
		GapTimeout: 20 * time.Millisecond,
	})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// a hole that never fills
	if err := bus.Publish("sub.1", testPayload(2, "t")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("receiver did not self-close")
	}
	if err := r.Stop(); err != ErrNotRunning {
		t.Fatalf("closed receiver should report not running, got %v", err)
	}
}

func TestReceiverGapFilledBeforeTimeout(t *testing.T) {
	bus := pubsub.NewLocalBus()
	var closedCount int
	var mu sync.Mutex
	r := NewReceiver(bus, "sub.1", ReceiverOptions{
		Parse:    testParse,
		OnUpdate: func(Update) {},
		OnClosed: func() {
			mu.Lock()
			closedCount++
			mu.Unlock()
		},
		GapTimeout: 50 * time.Millisecond,
	})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = r.Stop() }()

	_ = bus.Publish("sub.1", testPayload(2, "t"))
	_ = bus.Publish("sub.1", testPayload(1, "t"))
	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if closedCount != 0 {
		t.Fatal("receiver closed despite filled gap")
	}
}
