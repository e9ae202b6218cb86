package tuple

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Element type tags. Byte-lexicographic order of an encoded tuple equals the
// logical order of its elements, provided callers compare like-typed fields.
const (
	tagBytes        = 0x01
	tagInt32BE      = 0x14
	tagInt32LE      = 0x15
	tagVersionstamp = 0x33
)

var (
	// ErrIncomplete reports packing a tuple that still contains an
	// incomplete versionstamp through Pack instead of PackIncomplete.
	ErrIncomplete = errors.New("tuple: tuple contains incomplete versionstamp")
	// ErrNoIncomplete reports PackIncomplete on a tuple without exactly one
	// incomplete versionstamp.
	ErrNoIncomplete = errors.New("tuple: tuple has no incomplete versionstamp")
	// ErrMalformed reports undecodable key bytes.
	ErrMalformed = errors.New("tuple: malformed encoding")
)

// Bytes is a raw byte-string element. Encoding escapes 0x00 so that ordering
// and prefix-freeness are preserved.
type Bytes []byte

// Int32BE is a fixed-width signed 32-bit element whose encoding sorts in
// numeric order (big-endian, biased).
type Int32BE int32

// Int32LE is a fixed-width signed 32-bit element stored little-endian. Its
// encoding does NOT sort numerically; use it only for value-position fields.
type Int32LE int32

// Versionstamp is a 12-byte commit-ordered token: a 10-byte transaction
// version assigned at commit time followed by a 2-byte user version that
// orders writes within one transaction.
type Versionstamp [12]byte

// VersionstampFrom builds a complete versionstamp from its two halves.
func VersionstampFrom(txVersion [10]byte, userVersion uint16) Versionstamp {
	var v Versionstamp
	copy(v[:10], txVersion[:])
	binary.BigEndian.PutUint16(v[10:], userVersion)
	return v
}

// VersionstampFromBytes validates and copies a 12-byte stamp.
func VersionstampFromBytes(b []byte) (Versionstamp, error) {
	var v Versionstamp
	if len(b) != 12 {
		return v, fmt.Errorf("%w: versionstamp must be 12 bytes, got %d", ErrMalformed, len(b))
	}
	copy(v[:], b)
	return v, nil
}

// UserVersion returns the intra-transaction write index.
func (v Versionstamp) UserVersion() uint16 { return binary.BigEndian.Uint16(v[10:]) }

// Bytes returns the raw 12 bytes.
func (v Versionstamp) Bytes() []byte { b := make([]byte, 12); copy(b, v[:]); return b }

// Compare orders stamps first by commit order, then by user version.
func (v Versionstamp) Compare(other Versionstamp) int { return bytes.Compare(v[:], other[:]) }

// IsZero reports an unset stamp.
func (v Versionstamp) IsZero() bool { return v == Versionstamp{} }

// Incomplete is a versionstamp placeholder: the 10-byte transaction version
// is unknown until commit, the user version is fixed up front.
type Incomplete struct {
	UserVersion uint16
}

// Tuple is an ordered sequence of typed elements.
type Tuple []interface{}

func encodeBytes(dst []byte, b []byte) []byte {
	dst = append(dst, tagBytes)
	for _, c := range b {
		if c == 0x00 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0x00)
}

// Pack encodes the tuple. Incomplete versionstamps are rejected.
func (t Tuple) Pack() ([]byte, error) {
	out, incomplete, err := t.pack()
	if err != nil {
		return nil, err
	}
	if incomplete >= 0 {
		return nil, ErrIncomplete
	}
	return out, nil
}

// MustPack is Pack for tuples statically known to be complete.
func (t Tuple) MustPack() []byte {
	out, err := t.Pack()
	if err != nil {
		panic(err)
	}
	return out
}

// PackIncomplete encodes a tuple containing exactly one incomplete
// versionstamp and returns the byte offset where the store must splice the
// 10-byte transaction version at commit time.
func (t Tuple) PackIncomplete() ([]byte, int, error) {
	out, incomplete, err := t.pack()
	if err != nil {
		return nil, 0, err
	}
	if incomplete < 0 {
		return nil, 0, ErrNoIncomplete
	}
	return out, incomplete, nil
}

func (t Tuple) pack() (out []byte, incompleteAt int, err error) {
	incompleteAt = -1
	for _, el := range t {
		switch v := el.(type) {
		case Bytes:
			out = encodeBytes(out, v)
		case []byte:
			out = encodeBytes(out, v)
		case string:
			out = encodeBytes(out, []byte(v))
		case Int32BE:
			out = append(out, tagInt32BE)
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], uint32(v)^0x80000000)
			out = append(out, buf[:]...)
		case Int32LE:
			out = append(out, tagInt32LE)
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(v))
			out = append(out, buf[:]...)
		case Versionstamp:
			out = append(out, tagVersionstamp)
			out = append(out, v[:]...)
		case Incomplete:
			if incompleteAt >= 0 {
				return nil, 0, fmt.Errorf("%w: more than one incomplete versionstamp", ErrIncomplete)
			}
			out = append(out, tagVersionstamp)
			incompleteAt = len(out)
			var hole [12]byte
			binary.BigEndian.PutUint16(hole[10:], v.UserVersion)
			out = append(out, hole[:]...)
		default:
			return nil, 0, fmt.Errorf("tuple: unsupported element type %T", el)
		}
	}
	return out, incompleteAt, nil
}

// Unpack decodes key bytes produced by Pack. Little-endian integers decode to
// Int32LE, big-endian to Int32BE, byte strings to Bytes.
func Unpack(b []byte) (Tuple, error) {
	var out Tuple
	for len(b) > 0 {
		switch b[0] {
		case tagBytes:
			b = b[1:]
			var dec []byte
			for {
				i := bytes.IndexByte(b, 0x00)
				if i < 0 {
					return nil, fmt.Errorf("%w: unterminated byte string", ErrMalformed)
				}
				dec = append(dec, b[:i]...)
				if i+1 < len(b) && b[i+1] == 0xFF {
					dec = append(dec, 0x00)
					b = b[i+2:]
					continue
				}
				b = b[i+1:]
				break
			}
			out = append(out, Bytes(dec))
		case tagInt32BE:
			if len(b) < 5 {
				return nil, fmt.Errorf("%w: truncated int32", ErrMalformed)
			}
			out = append(out, Int32BE(int32(binary.BigEndian.Uint32(b[1:5])^0x80000000)))
			b = b[5:]
		case tagInt32LE:
			if len(b) < 5 {
				return nil, fmt.Errorf("%w: truncated int32", ErrMalformed)
			}
			out = append(out, Int32LE(int32(binary.LittleEndian.Uint32(b[1:5]))))
			b = b[5:]
		case tagVersionstamp:
			if len(b) < 13 {
				return nil, fmt.Errorf("%w: truncated versionstamp", ErrMalformed)
			}
			var v Versionstamp
			copy(v[:], b[1:13])
			out = append(out, v)
			b = b[13:]
		default:
			return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, b[0])
		}
	}
	return out, nil
}
