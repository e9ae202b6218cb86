package tuple

import "bytes"

// Subspace prefixes tuples with a fixed packed tuple, partitioning the shared
// key space. Element tags never start with 0xFF, so prefix+0xFF is a strict
// upper bound for every key in the subspace.
type Subspace struct {
	prefix []byte
}

// NewSubspace builds a subspace rooted at the packed form of elems.
func NewSubspace(elems ...interface{}) Subspace {
	return Subspace{prefix: Tuple(elems).MustPack()}
}

// Sub returns a nested subspace.
func (s Subspace) Sub(elems ...interface{}) Subspace {
	child := Tuple(elems).MustPack()
	p := make([]byte, 0, len(s.prefix)+len(child))
	p = append(p, s.prefix...)
	p = append(p, child...)
	return Subspace{prefix: p}
}

// Prefix returns a copy of the raw prefix bytes.
func (s Subspace) Prefix() []byte { return append([]byte(nil), s.prefix...) }

// Pack encodes elems under the subspace prefix.
func (s Subspace) Pack(elems ...interface{}) ([]byte, error) {
	tail, err := Tuple(elems).Pack()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(s.prefix)+len(tail))
	out = append(out, s.prefix...)
	return append(out, tail...), nil
}

// MustPack is Pack for statically well-formed element lists.
func (s Subspace) MustPack(elems ...interface{}) []byte {
	out, err := s.Pack(elems...)
	if err != nil {
		panic(err)
	}
	return out
}

// PackIncomplete encodes elems containing one incomplete versionstamp and
// returns the splice offset within the full key.
func (s Subspace) PackIncomplete(elems ...interface{}) ([]byte, int, error) {
	tail, off, err := Tuple(elems).PackIncomplete()
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, 0, len(s.prefix)+len(tail))
	out = append(out, s.prefix...)
	return append(out, tail...), len(s.prefix) + off, nil
}

// Unpack strips the prefix and decodes the remaining elements.
func (s Subspace) Unpack(key []byte) (Tuple, error) {
	if !s.Contains(key) {
		return nil, ErrMalformed
	}
	return Unpack(key[len(s.prefix):])
}

// Contains reports whether key lies inside the subspace.
func (s Subspace) Contains(key []byte) bool {
	return bytes.HasPrefix(key, s.prefix)
}

// Range returns [begin, end) bounds covering every key in the subspace.
func (s Subspace) Range() (begin, end []byte) {
	begin = append([]byte(nil), s.prefix...)
	end = append(append([]byte(nil), s.prefix...), 0xFF)
	return begin, end
}
