package id

import "testing"

func TestNewIsUnique(t *testing.T) {
	seen := map[ID]struct{}{}
	for i := 0; i < 1000; i++ {
		v := New()
		if v.IsZero() {
			t.Fatalf("generated zero id")
		}
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate id after %d draws", i)
		}
		seen[v] = struct{}{}
	}
}

func TestFromBytesValidatesLength(t *testing.T) {
	if _, err := FromBytes(make([]byte, 15)); err == nil {
		t.Fatalf("expected error for short input")
	}
	if _, err := FromBytes(make([]byte, 17)); err == nil {
		t.Fatalf("expected error for long input")
	}
	raw := make([]byte, Size)
	raw[0] = 0xAB
	v, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if v[0] != 0xAB {
		t.Fatalf("bytes not copied")
	}
}

func TestParseRoundTrip(t *testing.T) {
	v := New()
	got, err := Parse(v.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != v {
		t.Fatalf("round trip mismatch: %s vs %s", got, v)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected encoding error")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Fatalf("expected length error")
	}
}
