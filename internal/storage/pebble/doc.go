// Package pebblestore provides a thin wrapper around Pebble with fsync
// policy, snapshots, batches, and a metrics hook. The transactional layer
// (internal/kv) builds snapshot-isolated transactions on top of it; nothing
// above internal/kv touches this package directly.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
package pebblestore
