package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/openland/openland-server-sub006/internal/pubsub"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

// ResyncFunc reads an authoritative checkpoint from durable storage,
// typically a feed's latest pointer.
type ResyncFunc func(ctx context.Context) (Checkpoint, error)

const resyncTimeout = 5 * time.Second

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	// Start is the last checkpoint already forwarded downstream.
	Start Checkpoint
	// Parse decodes bus payloads. Required.
	Parse ParseFunc
	// Forward relays accepted updates downstream in arrival order. Required.
	Forward func(u Update)
	// Resync repairs holes from durable storage. Required.
	Resync ResyncFunc
	// Logger is optional.
	Logger logpkg.Logger
}

// Forwarder is the server-side feed tracker: it relays push updates for one
// feed downstream and, instead of self-closing on a hole, immediately repairs
// it by reading the durable latest pointer. One resync runs at a time.
type Forwarder struct {
	bus    pubsub.Bus
	topic  string
	opts   ForwarderOptions
	logger logpkg.Logger

	mu        sync.Mutex
	tracker   *SeqTracker
	sub       pubsub.Cancelable
	running   bool
	resyncing bool
}

// NewForwarder builds a stopped forwarder for one feed topic.
func NewForwarder(bus pubsub.Bus, topic string, opts ForwarderOptions) *Forwarder {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("tracker"))
	}
	return &Forwarder{
		bus:     bus,
		topic:   topic,
		opts:    opts,
		logger:  logger.With(logpkg.Str("topic", topic)),
		tracker: New(opts.Start),
	}
}

// Start subscribes to the feed topic. Starting twice is an error.
func (f *Forwarder) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return ErrAlreadyStarted
	}
	sub, err := f.bus.Subscribe(f.topic, f.onMessage)
	if err != nil {
		return err
	}
	f.sub = sub
	f.running = true
	return nil
}

// Stop cancels the subscription. Stopping a forwarder that is not running is
// an error.
func (f *Forwarder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return ErrNotRunning
	}
	if f.sub != nil {
		f.sub.Cancel()
		f.sub = nil
	}
	f.running = false
	return nil
}

// Validated returns the current contiguous checkpoint.
func (f *Forwarder) Validated() Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracker.Validated()
}

func (f *Forwarder) onMessage(payload []byte) {
	u, err := f.opts.Parse(payload)
	if err != nil {
		f.logger.With(logpkg.Err(err)).Warn("tracker.bad_payload")
		return
	}
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	if !f.tracker.Receive(u.Seq, u.Token) {
		f.mu.Unlock()
		return
	}
	if f.tracker.IsInvalidated() && !f.resyncing {
		f.resyncing = true
		go f.resync()
	}
	f.mu.Unlock()
	// The callback runs outside the lock so it may call back into the
	// forwarder. Per-topic bus ordering keeps invocations in arrival order.
	f.opts.Forward(u)
}

func (f *Forwarder) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	cp, err := f.opts.Resync(ctx)
	cancel()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncing = false
	if err != nil {
		f.logger.With(logpkg.Err(err)).Warn("tracker.resync_failed")
		return
	}
	f.tracker.Restore(cp.Seq, cp.Token)
	f.logger.With(logpkg.Int64("validated", f.tracker.Validated().Seq)).Debug("tracker.resynced")
}
