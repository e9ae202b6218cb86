package mediator

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/openland/openland-server-sub006/internal/feeds"
	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/internal/metrics"
	"github.com/openland/openland-server-sub006/internal/pubsub"
	"github.com/openland/openland-server-sub006/pkg/id"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

// Default policy knobs.
const (
	DefaultDirectLimit = 100
	DefaultPresenceTTL = 30 * time.Second
)

// Options wires a Mediator.
type Options struct {
	Store *kv.Store
	Bus   pubsub.Bus
	Repo  *feeds.Repo
	// DirectLimit is the subscriber count past which a feed is automatically
	// upgraded to jumbo mode. Zero means the default (100).
	DirectLimit int
	// PresenceTTL is how long a keep-alive marks a subscriber online. Zero
	// means the default (30s).
	PresenceTTL time.Duration
	// Metrics counts posts and deliveries. Optional.
	Metrics *metrics.EngineMetrics
	// Logger is optional.
	Logger logpkg.Logger
}

// Mediator orchestrates feed operations as transactions and publishes
// notifications on the bus strictly after commit, so a notified reader can
// always see the data. Online checks and delivery seq allocation happen
// inside the write transaction; that is what makes the online delivery path
// gapless.
type Mediator struct {
	store       *kv.Store
	bus         pubsub.Bus
	repo        *feeds.Repo
	directLimit int
	presenceTTL time.Duration
	metrics     *metrics.EngineMetrics
	logger      logpkg.Logger
}

// New builds a Mediator.
func New(opts Options) *Mediator {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("mediator"))
	}
	m := &Mediator{
		store:       opts.Store,
		bus:         opts.Bus,
		repo:        opts.Repo,
		directLimit: opts.DirectLimit,
		presenceTTL: opts.PresenceTTL,
		metrics:     opts.Metrics,
		logger:      logger,
	}
	if m.directLimit <= 0 {
		m.directLimit = DefaultDirectLimit
	}
	if m.presenceTTL <= 0 {
		m.presenceTTL = DefaultPresenceTTL
	}
	return m
}

// CreateFeed registers a new feed.
func (m *Mediator) CreateFeed(ctx context.Context) (id.ID, error) {
	var feed id.ID
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		var err error
		feed, err = m.repo.CreateFeed(tx)
		return err
	})
	return feed, err
}

// CreateSubscriber registers a new subscriber.
func (m *Mediator) CreateSubscriber(ctx context.Context) (id.ID, error) {
	var subscriber id.ID
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		var err error
		subscriber, err = m.repo.CreateSubscriber(tx)
		return err
	})
	return subscriber, err
}

// Subscribe attaches the subscriber to the feed. When the subscription would
// push the feed past the direct fan-out limit, the feed is upgraded to jumbo
// first, in the same transaction, so the new subscription is created already
// carrying the jumbo flag.
func (m *Mediator) Subscribe(ctx context.Context, subscriber, feed id.ID, mode feeds.SubscriptionMode) error {
	upgraded := false
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		upgraded = false
		stats, err := m.repo.Stats(tx, feed)
		if err != nil {
			return err
		}
		if !stats.Jumbo {
			// The threshold decision takes a conflicting counter read;
			// concurrent subscribes retry rather than overshoot the limit.
			count, err := m.repo.SubscriberCount(tx, feed)
			if err != nil {
				return err
			}
			if count+1 > int64(m.directLimit) {
				if err := m.repo.UpgradeFeed(tx, feed); err != nil {
					return err
				}
				upgraded = true
			}
		}
		return m.repo.Subscribe(tx, subscriber, feed, mode)
	})
	if err == nil && upgraded {
		if m.metrics != nil {
			m.metrics.JumboUpgrades.Inc()
		}
		m.logger.With(logpkg.Str("feed", feed.String())).Info("mediator.auto_upgrade")
	}
	return err
}

// Unsubscribe detaches the subscriber from the feed.
func (m *Mediator) Unsubscribe(ctx context.Context, subscriber, feed id.ID) error {
	return m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		return m.repo.Unsubscribe(tx, subscriber, feed)
	})
}

// UpgradeFeed forces a feed into jumbo mode.
func (m *Mediator) UpgradeFeed(ctx context.Context, feed id.ID) error {
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		return m.repo.UpgradeFeed(tx, feed)
	})
	if err == nil && m.metrics != nil {
		m.metrics.JumboUpgrades.Inc()
	}
	return err
}

// PostOptions tunes a mediated post.
type PostOptions struct {
	// RepeatKey collapses same-key posts. Optional.
	RepeatKey string
}

// PostReceipt describes a committed post.
type PostReceipt struct {
	Seq   int32
	Stamp tuple.Versionstamp
}

type delivery struct {
	subscriber  id.ID
	mode        feeds.SubscriptionMode
	deliverySeq int64
	state       tuple.Versionstamp
}

// Post appends an event and fans out notifications. For every online
// subscriber of a non-jumbo feed, a gapless delivery seq is allocated inside
// the transaction and a subscriber-topic message is published after commit;
// a feed-topic message is always published for async and jumbo observers.
func (m *Mediator) Post(ctx context.Context, feed id.ID, body []byte, opts PostOptions) (PostReceipt, error) {
	var result *feeds.PostResult
	now := time.Now()
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		res, err := m.repo.Post(tx, feed, body, feeds.PostOptions{RepeatKey: opts.RepeatKey})
		if err != nil {
			return err
		}
		result = res

		var targets []delivery
		for _, sid := range res.Subscribers {
			seq, online, err := m.repo.AllocateDeliverySeqIfOnline(tx, sid, now)
			if err != nil {
				return err
			}
			if !online {
				continue
			}
			sub, err := m.repo.GetSubscription(tx, sid, feed)
			if err != nil {
				return err
			}
			if sub == nil {
				continue
			}
			state, err := m.repo.GetState(tx, sid)
			if err != nil {
				return err
			}
			targets = append(targets, delivery{
				subscriber:  sid,
				mode:        sub.Mode,
				deliverySeq: seq,
				state:       state,
			})
		}

		tx.AfterCommit(func(v kv.TxVersion) {
			stamp := tuple.VersionstampFrom(v, res.Index)
			m.publish(feed, res.Seq, stamp, body, targets)
		})
		return nil
	})
	if err != nil {
		return PostReceipt{}, err
	}
	stamp, err := result.Stamp.TryGet()
	if err != nil {
		return PostReceipt{}, err
	}
	if m.metrics != nil {
		m.metrics.Posts.Inc()
		if opts.RepeatKey != "" {
			m.metrics.CollapsedPosts.Inc()
		}
	}
	return PostReceipt{Seq: result.Seq, Stamp: stamp}, nil
}

func (m *Mediator) publish(feed id.ID, seq int32, stamp tuple.Versionstamp, body []byte, targets []delivery) {
	base := Notification{
		Type: notificationTypeUpdate,
		Feed: feed.String(),
		Seq:  seq,
		ID:   hex.EncodeToString(stamp.Bytes()),
	}
	for _, t := range targets {
		n := base
		n.DeliverySeq = t.deliverySeq
		n.State = hex.EncodeToString(t.state.Bytes())
		if t.mode != feeds.ModeAsync {
			n.Body = body
		}
		if err := m.bus.Publish(SubscriberTopic(t.subscriber), n.encode()); err != nil {
			m.logger.With(
				logpkg.Err(err),
				logpkg.Str("subscriber", t.subscriber.String()),
			).Warn("mediator.publish_failed")
			continue
		}
		if m.metrics != nil {
			m.metrics.BusPublishes.WithLabelValues("subscriber").Inc()
		}
	}
	if m.metrics != nil && len(targets) > 0 {
		m.metrics.FanoutTargets.Add(float64(len(targets)))
	}
	if err := m.bus.Publish(FeedTopic(feed), base.encode()); err != nil {
		m.logger.With(logpkg.Err(err), logpkg.Str("feed", feed.String())).Warn("mediator.publish_failed")
		return
	}
	if m.metrics != nil {
		m.metrics.BusPublishes.WithLabelValues("feed").Inc()
	}
}

// KeepAlive refreshes the subscriber's presence for the configured TTL.
func (m *Mediator) KeepAlive(ctx context.Context, subscriber id.ID) error {
	until := time.Now().Add(m.presenceTTL)
	return m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		return m.repo.KeepAlive(tx, subscriber, until)
	})
}

// GetState reads the subscriber's current state token.
func (m *Mediator) GetState(ctx context.Context, subscriber id.ID) (tuple.Versionstamp, error) {
	var state tuple.Versionstamp
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		var err error
		state, err = m.repo.GetState(tx, subscriber)
		return err
	})
	return state, err
}

// GetDifference runs a catch-up read. NextState is the cursor to resume from:
// the id of the last returned event, or the input state when nothing new.
func (m *Mediator) GetDifference(ctx context.Context, subscriber id.ID, state tuple.Versionstamp, opts feeds.DifferenceOptions) (*feeds.Difference, tuple.Versionstamp, error) {
	var diff *feeds.Difference
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		var err error
		diff, err = m.repo.GetDifference(tx, subscriber, state, opts)
		return err
	})
	if err != nil {
		return nil, tuple.Versionstamp{}, err
	}
	next := state
	if len(diff.Events) > 0 {
		next = diff.Events[len(diff.Events)-1].ID
	}
	return diff, next, nil
}

// IsUpdateAvailable reports pending updates without reading event bodies.
func (m *Mediator) IsUpdateAvailable(ctx context.Context, subscriber id.ID, state tuple.Versionstamp) (bool, error) {
	var avail bool
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		var err error
		avail, err = m.repo.IsUpdateAvailable(tx, subscriber, state)
		return err
	})
	return avail, err
}

// GetFeedUpdates reads one page of a feed's stream.
func (m *Mediator) GetFeedUpdates(ctx context.Context, feed id.ID, opts feeds.UpdatesOptions) (*feeds.UpdatesResult, error) {
	var res *feeds.UpdatesResult
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		var err error
		res, err = m.repo.GetFeedUpdates(tx, feed, opts)
		return err
	})
	return res, err
}

// FeedStats reads a feed's counters.
func (m *Mediator) FeedStats(ctx context.Context, feed id.ID) (*feeds.FeedStats, error) {
	var stats *feeds.FeedStats
	err := m.store.RunTransaction(ctx, func(tx *kv.Tx) error {
		var err error
		stats, err = m.repo.Stats(tx, feed)
		return err
	})
	return stats, err
}
