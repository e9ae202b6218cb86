// Package pubsub defines the event bus contract the mediator publishes on
// and provides two interchangeable engines: an in-process bus with
// synchronous fan-out and a NATS-backed bus for multi-process deployments.
// Both preserve per-topic ordering and deliver at-least-once from the
// mediator's point of view.
package pubsub

import "errors"

// Handler consumes one published payload. Handlers must not block for long;
// the local engine invokes them synchronously on the publisher's goroutine.
type Handler func(payload []byte)

// Cancelable releases a subscription. Cancel is idempotent.
type Cancelable interface {
	Cancel()
}

// Bus is the minimal two-method pub/sub contract.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler Handler) (Cancelable, error)
}

// ErrClosed reports use of a closed bus.
var ErrClosed = errors.New("pubsub: bus closed")
