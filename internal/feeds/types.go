package feeds

import (
	"time"

	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/pkg/id"
)

// EventKind discriminates the synthetic start marker from user events.
type EventKind byte

const (
	// KindStart is the synthetic first event written at feed creation with
	// seq 1 and an empty body.
	KindStart EventKind = 0
	// KindEvent is a user-posted event.
	KindEvent EventKind = 1
)

func (k EventKind) String() string {
	if k == KindStart {
		return "start"
	}
	return "event"
}

// Event is one decoded row of a feed stream.
type Event struct {
	// Feed is the owning feed.
	Feed id.ID
	// ID is the event's 12-byte global cursor, totally ordered across feeds.
	ID tuple.Versionstamp
	// Seq is the per-feed sequence number, starting at 1 and gapless.
	Seq int32
	// Kind separates the start marker from user events.
	Kind EventKind
	// Body is the opaque user payload. Empty for start markers.
	Body []byte
}

// Latest is a feed's head pointer: the cursor and seq of the newest event,
// written in the same transaction as the event itself.
type Latest struct {
	Stamp tuple.Versionstamp
	Seq   int32
}

// SubscriptionMode selects the delivery contract for one subscription.
type SubscriptionMode byte

const (
	// ModeDirect delivers event bodies inline over the bus when the
	// subscriber is online.
	ModeDirect SubscriptionMode = 0
	// ModeDirectStrict is ModeDirect plus oldest-first difference reads, for
	// consumers that must not skip events.
	ModeDirectStrict SubscriptionMode = 1
	// ModeAsync delivers lightweight pings; the subscriber reads bodies back
	// through the difference engine.
	ModeAsync SubscriptionMode = 2
)

func (m SubscriptionMode) String() string {
	switch m {
	case ModeDirectStrict:
		return "direct-strict"
	case ModeAsync:
		return "async"
	default:
		return "direct"
	}
}

// Subscription is one subscriber-to-feed edge.
type Subscription struct {
	Feed     id.ID
	Mode     SubscriptionMode
	Jumbo    bool
	Join     tuple.Versionstamp
	JoinedAt time.Time
}

// FeedStats is a read-only snapshot of a feed's counters.
type FeedStats struct {
	Seq         int32
	Subscribers int64
	Jumbo       bool
	Latest      *Latest
}
