package ambient

import (
	"context"
	"slices"

	"github.com/zoobzio/capitan"
)

// subscriberList holds the subscribers of one observation identity in
// registration order. Lists are never removed from the registry, only
// compacted.
type subscriberList struct {
	subs []*subscriber
}

// subscribe appends s to the list for identity.
func (c *Context) subscribe(ctx context.Context, identity string, s *subscriber) {
	c.mu.Lock()
	list, ok := c.observers[identity]
	if !ok {
		list = &subscriberList{}
		c.observers[identity] = list
	}
	list.subs = append(list.subs, s)
	c.mu.Unlock()

	capitan.Emit(ctx, SubscriberAdded,
		KeyName.Field(s.key),
		KeySubscription.Field(s.id),
	)
	c.metrics.OnSubscribe(s.key)
}

// liveLocked returns the live subscribers for identity in registration
// order. When the number of dead entries reaches the prune threshold the
// stored list is replaced by the live ones and the number removed is
// returned. It must be called with c.mu held.
func (c *Context) liveLocked(identity string) ([]*subscriber, int) {
	list, ok := c.observers[identity]
	if !ok {
		return nil, 0
	}

	live := make([]*subscriber, 0, len(list.subs))
	for _, s := range list.subs {
		if s.alive() {
			live = append(live, s)
		}
	}

	dead := len(list.subs) - len(live)
	if dead < c.pruneThreshold {
		return live, 0
	}
	list.subs = slices.Clone(live)
	return live, dead
}

// subscriberCount returns the number of entries, live or dead, stored for
// identity.
func (c *Context) subscriberCount(identity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.observers[identity]
	if !ok {
		return 0
	}
	return len(list.subs)
}

// Subscribers returns the number of subscriber entries currently stored for
// k, including dead ones that have not been pruned yet.
func Subscribers[T any](c *Context, k *Key[T]) int {
	return c.subscriberCount(k.obsID)
}
