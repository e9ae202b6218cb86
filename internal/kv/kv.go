package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	pebblestore "github.com/openland/openland-server-sub006/internal/storage/pebble"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

// commitSeqKey persists the global commit counter. It lives outside the
// tuple-encoded key space (tuple element tags never start with 's').
var commitSeqKey = []byte("sys/commitseq")

// Options configures the transactional store.
type Options struct {
	// DataDir is the pebble database directory.
	DataDir string
	// Fsync selects the durability mode for committed batches.
	Fsync pebblestore.FsyncMode
	// FsyncInterval is the group-commit window for FsyncModeInterval.
	FsyncInterval time.Duration
	// MaxRetries bounds automatic retries on optimistic conflicts. Zero
	// means the default (16).
	MaxRetries int
	// ConflictWindow bounds how many committed write-sets are retained for
	// conflict validation. Transactions older than the window retry
	// conservatively. Zero means the default (1024).
	ConflictWindow int
	// Metrics is forwarded to the pebble wrapper. Optional.
	Metrics pebblestore.MetricsHook
	// Logger is used for commit diagnostics. Optional.
	Logger logpkg.Logger
}

// Store is a single-node transactional layer over an ordered key-value
// database. Transactions are snapshot-isolated and optimistically validated:
// a transaction fails with ErrConflict when a concurrently committed
// transaction wrote any of its declared read-conflict keys or ranges.
type Store struct {
	db     *pebblestore.DB
	logger logpkg.Logger

	maxRetries     int
	conflictWindow int

	commitMu  sync.Mutex
	commitSeq uint64
	recent    []committedSet // ring ordered by commit seq, oldest first

	watchMu sync.Mutex
	watches map[string][]chan struct{}
}

// committedSet records one committed transaction's writes for validation.
type committedSet struct {
	seq    uint64
	keys   [][]byte
	ranges []keyRange
}

type keyRange struct {
	begin []byte
	end   []byte
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("kv"))
	}
	s := &Store{
		db:             db,
		logger:         logger,
		maxRetries:     opts.MaxRetries,
		conflictWindow: opts.ConflictWindow,
		watches:        map[string][]chan struct{}{},
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 16
	}
	if s.conflictWindow <= 0 {
		s.conflictWindow = 1024
	}
	if b, err := db.Get(commitSeqKey); err == nil && len(b) == 8 {
		s.commitSeq = binary.BigEndian.Uint64(b)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the raw pebble wrapper for diagnostics.
func (s *Store) DB() *pebblestore.DB { return s.db }

// RunTransaction executes fn inside a transaction, committing on success.
// On optimistic conflicts the transaction is retried with a completely fresh
// Tx (buffered writes, hooks, and the scratch cache do not leak between
// attempts). Any other error aborts and propagates.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := s.newTx()
		err := fn(tx)
		if err == nil {
			err = s.commit(tx)
		}
		tx.release(err)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
		s.logger.With(logpkg.Int("attempt", attempt)).Debug("kv.retry")
	}
	return &RetryLimitError{Attempts: s.maxRetries + 1, Last: lastErr}
}

// Watch returns a channel that is closed the next time a committed
// transaction writes key, plus a cancel func releasing the registration. The
// watch is one-shot; cancel is idempotent and a no-op after the watch fires.
func (s *Store) Watch(key []byte) (<-chan struct{}, func()) {
	ch := make(chan struct{})
	s.watchMu.Lock()
	k := string(key)
	s.watches[k] = append(s.watches[k], ch)
	s.watchMu.Unlock()
	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		chans := s.watches[k]
		for i, c := range chans {
			if c == ch {
				s.watches[k] = append(chans[:i], chans[i+1:]...)
				if len(s.watches[k]) == 0 {
					delete(s.watches, k)
				}
				return
			}
		}
	}
	return ch, cancel
}

func (s *Store) fireWatches(keys [][]byte) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, key := range keys {
		k := string(key)
		if chans, ok := s.watches[k]; ok {
			for _, ch := range chans {
				close(ch)
			}
			delete(s.watches, k)
		}
	}
}
