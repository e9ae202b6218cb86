// Package id provides 16-byte random entity identifiers.
//
// # Format
//
// An ID is 16 random bytes (a v4 UUID without textual dashes). IDs are
// compared byte-wise and rendered as 32-character lowercase hex.
//
// # Uniqueness
//
// Randomness alone does not guarantee uniqueness; callers that need
// collision-free allocation register IDs through the feeds registry, which
// performs an existence check under a write conflict and retries on
// collision.
//
// Usage
//
//	v := id.New()
//	b := v.Bytes()  // 16-byte representation
//	s := v.String() // hex string
package id
