// Package kv provides the transactional key-value layer the feed engine is
// built on: snapshot-isolated transactions over an ordered byte key space,
// optimistic conflict detection with transparent retry, atomic counters,
// one-shot key watches, commit-lifecycle hooks, and versionstamps.
//
// # Versionstamps
//
// Every committed transaction is assigned a 10-byte transaction version that
// is strictly increasing across commits. Writes may embed it in keys or
// values (SetVersionstampedKey / SetVersionstampedValue); its concrete bytes
// are only known after commit, exposed through Tx.Versionstamp futures.
// Higher layers append a 2-byte user version to order writes within one
// transaction, forming the 12-byte versionstamps used as causal tokens.
//
// # Conflict model
//
// Get and Range record read conflicts; SnapshotGet, SnapshotExists and
// SnapshotRange do not. At commit the read set is validated against
// write-sets committed since the transaction's snapshot; on intersection the
// commit fails with ErrConflict and RunTransaction retries the function with
// a fresh transaction, so conflict handling is invisible to callers.
package kv
