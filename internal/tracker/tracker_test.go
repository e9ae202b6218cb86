package tracker

import (
	"bytes"
	"testing"
)

func TestHoleRecovery(t *testing.T) {
	tr := New(Checkpoint{Seq: 1, Token: []byte("s1")})

	if !tr.Receive(3, []byte("s3")) {
		t.Fatal("seq 3 should be handled")
	}
	if !tr.IsInvalidated() {
		t.Fatal("hole at 2 not detected")
	}
	if !tr.Receive(4, []byte("s4")) {
		t.Fatal("seq 4 should be handled")
	}
	if !tr.IsInvalidated() || tr.Validated().Seq != 1 {
		t.Fatalf("validated moved past hole: %+v", tr.Validated())
	}

	if !tr.Receive(2, []byte("s2")) {
		t.Fatal("seq 2 should be handled")
	}
	if tr.IsInvalidated() {
		t.Fatal("still invalidated after drain")
	}
	if got := tr.Validated(); got.Seq != 4 || !bytes.Equal(got.Token, []byte("s4")) {
		t.Fatalf("drain stopped early: %+v", got)
	}

	if !tr.Receive(6, []byte("s6")) {
		t.Fatal("seq 6 should be handled")
	}
	if !tr.IsInvalidated() {
		t.Fatal("hole at 5 not detected")
	}
	if !tr.Receive(5, []byte("s5")) {
		t.Fatal("seq 5 should be handled")
	}
	if tr.IsInvalidated() || tr.Validated().Seq != 6 {
		t.Fatalf("final drain failed: %+v", tr.Validated())
	}
	if tr.PendingCount() != 0 {
		t.Fatalf("pending left over: %d", tr.PendingCount())
	}
}

func TestStaleAndDuplicateRejection(t *testing.T) {
	tr := New(Checkpoint{Seq: 5, Token: []byte("s5")})

	for _, seq := range []int64{1, 4, 5} {
		if tr.Receive(seq, []byte("x")) {
			t.Fatalf("stale seq %d handled", seq)
		}
	}
	if tr.Validated().Seq != 5 || tr.MaxReceived() != 5 || tr.PendingCount() != 0 {
		t.Fatal("stale receive mutated state")
	}

	if !tr.Receive(8, []byte("s8")) {
		t.Fatal("first receipt of 8 should be handled")
	}
	if tr.Receive(8, []byte("s8")) {
		t.Fatal("duplicate pending seq handled")
	}
	// contiguous arrival is not a duplicate
	if !tr.Receive(6, []byte("s6")) {
		t.Fatal("seq 6 should be handled")
	}
}

func TestRestoreDiscardsStalePending(t *testing.T) {
	tr := New(Checkpoint{Seq: 1, Token: []byte("s1")})
	tr.Receive(3, []byte("s3"))
	tr.Receive(5, []byte("s5"))
	if !tr.IsInvalidated() {
		t.Fatal("holes not detected")
	}

	tr.Restore(4, []byte("durable4"))
	// 3 discarded, 5 drained on top of the restored point
	if got := tr.Validated(); got.Seq != 5 || !bytes.Equal(got.Token, []byte("s5")) {
		t.Fatalf("restore+drain: %+v", got)
	}
	if tr.IsInvalidated() || tr.PendingCount() != 0 {
		t.Fatal("restore left stale state")
	}

	// restore never moves backwards
	tr.Restore(2, []byte("old"))
	if tr.Validated().Seq != 5 {
		t.Fatalf("restore moved backwards: %+v", tr.Validated())
	}
}
