package feeds

import (
	"encoding/binary"
	"hash/crc32"
)

// Event row encoding: varint headerLen | header | body | crc32c(header|body).
// The header is kind(1) followed by seq as a big-endian int32.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeEvent(kind EventKind, seq int32, body []byte) []byte {
	var header [5]byte
	header[0] = byte(kind)
	binary.BigEndian.PutUint32(header[1:], uint32(seq))

	out := make([]byte, 0, 1+len(header)+len(body)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header[:]...)
	out = append(out, body...)

	crc := crc32.Update(0, castagnoli, header[:])
	crc = crc32.Update(crc, castagnoli, body)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

func decodeEvent(b []byte) (kind EventKind, seq int32, body []byte, ok bool) {
	if len(b) < 1+4 {
		return 0, 0, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen != 5 || n+int(hlen)+4 > len(b) {
		return 0, 0, nil, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return 0, 0, nil, false
	}
	kind = EventKind(header[0])
	seq = int32(binary.BigEndian.Uint32(header[1:]))
	return kind, seq, append([]byte(nil), payload...), true
}
