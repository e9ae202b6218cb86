package mediator

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/openland/openland-server-sub006/internal/kv/tuple"
	"github.com/openland/openland-server-sub006/internal/tracker"
	"github.com/openland/openland-server-sub006/pkg/id"
)

// SubscriberTopic is the push topic for one subscriber's direct deliveries.
func SubscriberTopic(subscriber id.ID) string { return "sub." + subscriber.String() }

// FeedTopic is the broadcast topic async and jumbo observers poll-sync from.
func FeedTopic(feed id.ID) string { return "feed." + feed.String() }

// Notification is the compact post-commit bus payload. Subscriber-topic
// messages carry the per-subscriber delivery seq and state token; feed-topic
// messages carry the per-feed seq with the event cursor as token. Direct-mode
// deliveries include the body inline; async pings do not.
type Notification struct {
	Type string `json:"type"`
	Feed string `json:"feed"`
	Seq  int32  `json:"seq"`
	ID   string `json:"id"`

	DeliverySeq int64  `json:"deliverySeq,omitempty"`
	State       string `json:"state,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

const notificationTypeUpdate = "update"

func (n Notification) encode() []byte {
	b, err := json.Marshal(n)
	if err != nil {
		panic(err)
	}
	return b
}

// ParseNotification decodes a bus payload.
func ParseNotification(payload []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, err
	}
	if n.Type != notificationTypeUpdate {
		return Notification{}, fmt.Errorf("mediator: unknown notification type %q", n.Type)
	}
	return n, nil
}

// Stamp decodes the event cursor carried by the notification.
func (n Notification) Stamp() (tuple.Versionstamp, error) {
	raw, err := hex.DecodeString(n.ID)
	if err != nil {
		return tuple.Versionstamp{}, err
	}
	return tuple.VersionstampFromBytes(raw)
}

// ParseSubscriberUpdate adapts a subscriber-topic payload for a tracker
// receiver: the tracked seq is the gapless delivery seq, the token is the
// subscriber's state token.
func ParseSubscriberUpdate(payload []byte) (tracker.Update, error) {
	n, err := ParseNotification(payload)
	if err != nil {
		return tracker.Update{}, err
	}
	token, err := hex.DecodeString(n.State)
	if err != nil {
		return tracker.Update{}, err
	}
	return tracker.Update{Seq: n.DeliverySeq, Token: token, Payload: payload}, nil
}

// ParseFeedUpdate adapts a feed-topic payload for a tracker forwarder: the
// tracked seq is the per-feed seq, the token is the event cursor.
func ParseFeedUpdate(payload []byte) (tracker.Update, error) {
	n, err := ParseNotification(payload)
	if err != nil {
		return tracker.Update{}, err
	}
	stamp, err := n.Stamp()
	if err != nil {
		return tracker.Update{}, err
	}
	return tracker.Update{Seq: int64(n.Seq), Token: stamp.Bytes(), Payload: payload}, nil
}
