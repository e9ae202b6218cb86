package feeds

import "errors"

var (
	// ErrFeedNotFound reports an operation against a feed id with no seq
	// counter, which every created feed has.
	ErrFeedNotFound = errors.New("feeds: feed not found")
	// ErrSubscriberNotFound reports an operation against an unregistered
	// subscriber id.
	ErrSubscriberNotFound = errors.New("feeds: subscriber not found")
	// ErrAlreadySubscribed reports a double subscribe to the same feed.
	ErrAlreadySubscribed = errors.New("feeds: already subscribed")
	// ErrAlreadyUnsubscribed reports an unsubscribe without an active
	// subscription.
	ErrAlreadyUnsubscribed = errors.New("feeds: already unsubscribed")
	// ErrCursorNotFound reports a seq cursor with no index entry.
	ErrCursorNotFound = errors.New("feeds: cursor not found")
	// ErrBadRecord reports an event row that fails checksum or framing
	// validation.
	ErrBadRecord = errors.New("feeds: bad event record")
	// ErrIDExhausted reports repeated registry collisions, which with random
	// 16-byte ids indicates a broken randomness source.
	ErrIDExhausted = errors.New("feeds: unable to allocate unique id")
)
