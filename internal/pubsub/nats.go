package pubsub

import (
	"sync"

	"github.com/nats-io/nats.go"

	logpkg "github.com/openland/openland-server-sub006/pkg/log"
)

// NatsBus is the networked engine for multi-process deployments. NATS
// preserves publish order per subject and core delivery is at-most-once per
// connection; consumers above this layer reconcile losses against durable
// storage, which upgrades the effective contract to at-least-once.
type NatsBus struct {
	nc     *nats.Conn
	logger logpkg.Logger
	owned  bool
}

// ConnectNats dials url and returns a bus owning the connection.
func ConnectNats(url string, logger logpkg.Logger) (*NatsBus, error) {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("pubsub"))
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.With(logpkg.Err(err)).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc, logger: logger, owned: true}, nil
}

// NewNatsBus wraps an existing connection without taking ownership.
func NewNatsBus(nc *nats.Conn, logger logpkg.Logger) *NatsBus {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("pubsub"))
	}
	return &NatsBus{nc: nc, logger: logger}
}

// Publish implements Bus.
func (b *NatsBus) Publish(topic string, payload []byte) error {
	return b.nc.Publish(topic, payload)
}

// Subscribe implements Bus.
func (b *NatsBus) Subscribe(topic string, handler Handler) (Cancelable, error) {
	sub, err := b.nc.Subscribe(topic, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, err
	}
	return &natsSub{sub: sub}, nil
}

// Close drains the connection if this bus owns it.
func (b *NatsBus) Close() {
	if b.owned && b.nc != nil {
		_ = b.nc.Drain()
	}
}

type natsSub struct {
	sub  *nats.Subscription
	once sync.Once
}

func (s *natsSub) Cancel() {
	s.once.Do(func() { _ = s.sub.Unsubscribe() })
}
