package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/openland/openland-server-sub006/internal/pubsub"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

var (
	// ErrAlreadyStarted reports a second Start.
	ErrAlreadyStarted = errors.New("tracker: already started")
	// ErrNotRunning reports Stop on a receiver that is not running.
	ErrNotRunning = errors.New("tracker: not running")
)

// Update is one decoded bus delivery.
type Update struct {
	Seq     int64
	Token   []byte
	Payload []byte
}

// ParseFunc decodes a raw bus payload into an Update. Payloads that fail to
// parse are dropped.
type ParseFunc func(payload []byte) (Update, error)

// DefaultGapTimeout is how long a receiver waits for a hole to fill before
// self-closing.
const DefaultGapTimeout = 10 * time.Second

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	// Start is the last checkpoint the owner has already consumed.
	Start Checkpoint
	// Parse decodes bus payloads. Required.
	Parse ParseFunc
	// OnUpdate is invoked, in arrival order, for every delivery the tracker
	// accepts. Required.
	OnUpdate func(u Update)
	// OnClosed is invoked exactly once when the receiver self-closes on an
	// unfilled gap. Not invoked on an explicit Stop. Optional.
	OnClosed func()
	// GapTimeout overrides DefaultGapTimeout. Zero means the default.
	GapTimeout time.Duration
	// Logger is optional.
	Logger logpkg.Logger
}

// Receiver consumes a subscriber's push topic, tracks delivery seqs, and
// self-closes when a hole stays unfilled past the gap timeout, forcing the
// owner to resynchronize through the difference engine instead of waiting
// forever. All state is serialized through one lock; the bus callback and the
// owner's Start/Stop never race.
type Receiver struct {
	bus    pubsub.Bus
	topic  string
	opts   ReceiverOptions
	logger logpkg.Logger

	mu       sync.Mutex
	tracker  *SeqTracker
	sub      pubsub.Cancelable
	gapTimer *time.Timer
	running  bool
	closed   bool
}

// NewReceiver builds a stopped receiver for one subscriber topic.
func NewReceiver(bus pubsub.Bus, topic string, opts ReceiverOptions) *Receiver {
	if opts.GapTimeout <= 0 {
		opts.GapTimeout = DefaultGapTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("tracker"))
	}
	return &Receiver{
		bus:     bus,
		topic:   topic,
		opts:    opts,
		logger:  logger.With(logpkg.Str("topic", topic)),
		tracker: New(opts.Start),
	}
}

// Start subscribes to the topic. Starting twice is an error.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyStarted
	}
	if r.closed {
		return ErrNotRunning
	}
	sub, err := r.bus.Subscribe(r.topic, r.onMessage)
	if err != nil {
		return err
	}
	r.sub = sub
	r.running = true
	return nil
}

// Stop cancels the subscription. No new deliveries are accepted after Stop
// returns; a delivery already past the tracker may still reach OnUpdate.
// Stopping a receiver that is not running is an error.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRunning
	}
	r.shutdownLocked()
	return nil
}

// Validated returns the current contiguous checkpoint.
func (r *Receiver) Validated() Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker.Validated()
}

func (r *Receiver) onMessage(payload []byte) {
	u, err := r.opts.Parse(payload)
	if err != nil {
		r.logger.With(logpkg.Err(err)).Warn("tracker.bad_payload")
		return
	}
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	if !r.tracker.Receive(u.Seq, u.Token) {
		r.mu.Unlock()
		return
	}
	if r.tracker.IsInvalidated() {
		r.armGapTimerLocked()
	} else {
		r.disarmGapTimerLocked()
	}
	r.mu.Unlock()
	// The callback runs outside the lock so it may call back into the
	// receiver. Per-topic bus ordering keeps invocations in arrival order.
	r.opts.OnUpdate(u)
}

func (r *Receiver) armGapTimerLocked() {
	if r.gapTimer != nil {
		return
	}
	r.gapTimer = time.AfterFunc(r.opts.GapTimeout, r.onGapTimeout)
}

func (r *Receiver) disarmGapTimerLocked() {
	if r.gapTimer != nil {
		r.gapTimer.Stop()
		r.gapTimer = nil
	}
}

func (r *Receiver) onGapTimeout() {
	r.mu.Lock()
	if !r.running || !r.tracker.IsInvalidated() {
		r.gapTimer = nil
		r.mu.Unlock()
		return
	}
	r.logger.With(
		logpkg.Int64("validated", r.tracker.Validated().Seq),
		logpkg.Int64("max_received", r.tracker.MaxReceived()),
	).Warn("tracker.gap_timeout")
	r.shutdownLocked()
	onClosed := r.opts.OnClosed
	r.mu.Unlock()
	if onClosed != nil {
		onClosed()
	}
}

func (r *Receiver) shutdownLocked() {
	r.disarmGapTimerLocked()
	if r.sub != nil {
		r.sub.Cancel()
		r.sub = nil
	}
	r.running = false
	r.closed = true
}
