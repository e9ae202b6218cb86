package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/openland/openland-server-sub006/internal/config"
	"github.com/openland/openland-server-sub006/internal/feeds"
	"github.com/openland/openland-server-sub006/internal/kv"
	"github.com/openland/openland-server-sub006/internal/mediator"
	"github.com/openland/openland-server-sub006/internal/metrics"
	"github.com/openland/openland-server-sub006/internal/pubsub"
	pebblestore "github.com/openland/openland-server-sub006/internal/storage/pebble"
	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	// FsyncInterval is the group-commit window for FsyncModeInterval.
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Registry receives the engine's collectors. Nil disables registration.
	Registry prometheus.Registerer
	// Logger is optional.
	Logger logpkg.Logger
}

// Runtime wires storage, the bus, and the mediator for a single-node
// instance.
type Runtime struct {
	store    *kv.Store
	bus      pubsub.Bus
	localBus *pubsub.LocalBus
	natsBus  *pubsub.NatsBus
	repo     *feeds.Repo
	med      *mediator.Mediator
	config   cfgpkg.Config
	logger   logpkg.Logger
}

// Open initializes storage and the bus and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("runtime"))
	}

	var storageMetrics pebblestore.MetricsHook
	var engineMetrics *metrics.EngineMetrics
	if opts.Registry != nil {
		storageMetrics = metrics.NewStorageMetrics(opts.Registry)
		engineMetrics = metrics.NewEngineMetrics(opts.Registry)
	}

	store, err := kv.Open(kv.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       storageMetrics,
		Logger:        logger.With(logpkg.Component("kv")),
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{store: store, config: opts.Config, logger: logger}
	if opts.Config.NatsURL != "" {
		nb, err := pubsub.ConnectNats(opts.Config.NatsURL, logger.With(logpkg.Component("pubsub")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		rt.natsBus = nb
		rt.bus = nb
	} else {
		rt.localBus = pubsub.NewLocalBus()
		rt.bus = rt.localBus
	}

	rt.repo = feeds.NewRepo(logger.With(logpkg.Component("feeds")))
	rt.med = mediator.New(mediator.Options{
		Store:       store,
		Bus:         rt.bus,
		Repo:        rt.repo,
		DirectLimit: opts.Config.DirectLimit,
		PresenceTTL: opts.Config.PresenceTTL(),
		Metrics:     engineMetrics,
		Logger:      logger.With(logpkg.Component("mediator")),
	})
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.natsBus != nil {
		r.natsBus.Close()
	}
	if r.localBus != nil {
		r.localBus.Close()
	}
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	it, err := r.store.DB().NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Mediator returns the operation surface.
func (r *Runtime) Mediator() *mediator.Mediator { return r.med }

// Repo returns the feed repository for callers composing their own
// transactions.
func (r *Runtime) Repo() *feeds.Repo { return r.repo }

// Store returns the transactional store.
func (r *Runtime) Store() *kv.Store { return r.store }

// Bus returns the event bus.
func (r *Runtime) Bus() pubsub.Bus { return r.bus }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
