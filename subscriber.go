package ambient

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// subscriber is one registered observer of a key.
type subscriber struct {
	id  string
	key string

	// deliver invokes the typed callback and reports whether it ran.
	deliver func(ctx context.Context, prev, curr any) bool

	// owned reports whether the owner is still reachable. Nil for
	// subscribers without an owner.
	owned func() bool

	canceled atomic.Bool
}

func newSubscriber(key string) *subscriber {
	return &subscriber{
		id:  uuid.NewString(),
		key: key,
	}
}

// alive reports whether the subscriber should still receive notifications.
// Once false it never becomes true again.
func (s *subscriber) alive() bool {
	if s.canceled.Load() {
		return false
	}
	return s.owned == nil || s.owned()
}

// Subscription is the handle returned when observing a key.
type Subscription struct {
	sub *subscriber
}

// ID returns the unique id of the subscription.
func (s *Subscription) ID() string {
	return s.sub.id
}

// Cancel stops all future deliveries. The entry is removed from the key's
// list by a later pruning pass. Calling Cancel more than once is a no-op.
func (s *Subscription) Cancel() {
	s.sub.canceled.Store(true)
}

// Active reports whether the subscription is still being delivered to:
// it has not been canceled and its owner, if any, is still reachable.
func (s *Subscription) Active() bool {
	return s.sub.alive()
}
