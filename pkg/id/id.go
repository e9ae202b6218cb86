package id

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 16-byte random entity identifier. IDs carry no embedded structure;
// uniqueness is enforced by the registry at allocation time.
type ID [16]byte

// Size is the encoded length of an ID in bytes.
const Size = 16

var (
	// ErrInvalidLength reports a byte slice of the wrong size.
	ErrInvalidLength = errors.New("id: invalid length")
	// ErrInvalidEncoding reports a malformed hex string.
	ErrInvalidEncoding = errors.New("id: invalid encoding")
)

// New returns a fresh random ID.
func New() ID {
	return ID(uuid.New())
}

// FromBytes validates and copies a raw 16-byte identifier.
func FromBytes(b []byte) (ID, error) {
	var out ID
	if len(b) != Size {
		return out, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Parse decodes a 32-character hex string.
func Parse(s string) (ID, error) {
	var out ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return FromBytes(b)
}

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, Size); copy(b, i[:]); return b }

// String returns the hex encoding.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// IsZero reports whether the ID is all zero bytes.
func (i ID) IsZero() bool { return i == ID{} }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }
