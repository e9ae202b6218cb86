// Package mediator is the operation surface of the feed engine: it runs
// create/subscribe/unsubscribe/post/difference as transactions against the
// repositories and publishes compact notifications on the bus strictly after
// commit. Online presence checks and per-subscriber delivery seq allocation
// happen inside the write transaction, which is what makes the direct
// delivery path strictly ordered and gapless.
package mediator
