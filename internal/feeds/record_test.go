package feeds

import (
	"bytes"
	"testing"
)

func TestEventRecordRoundTrip(t *testing.T) {
	enc := encodeEvent(KindEvent, 42, []byte("payload"))
	kind, seq, body, ok := decodeEvent(enc)
	if !ok || kind != KindEvent || seq != 42 || !bytes.Equal(body, []byte("payload")) {
		t.Fatalf("round trip failed: kind=%v seq=%d body=%q ok=%v", kind, seq, body, ok)
	}

	enc = encodeEvent(KindStart, 1, nil)
	kind, seq, body, ok = decodeEvent(enc)
	if !ok || kind != KindStart || seq != 1 || len(body) != 0 {
		t.Fatalf("start marker round trip failed")
	}
}

func TestEventRecordChecksumRejectsCorruption(t *testing.T) {
	enc := encodeEvent(KindEvent, 7, []byte("hello"))
	enc[len(enc)/2] ^= 0xFF
	if _, _, _, ok := decodeEvent(enc); ok {
		t.Fatal("corrupted record decoded")
	}
	if _, _, _, ok := decodeEvent(nil); ok {
		t.Fatal("empty record decoded")
	}
	if _, _, _, ok := decodeEvent([]byte{0x01, 0x02}); ok {
		t.Fatal("truncated record decoded")
	}
}
