package ambient

import (
	"context"

	"github.com/zoobzio/capitan"
)

// depthKey carries the delivery depth through callback contexts.
type depthKey struct{}

// deliveryDepth returns how many notifications ctx is nested inside.
func deliveryDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Set writes v under k in c, notifies k's live observers with the previous
// and new values, and returns the previous value.
//
// The write and the snapshot of observers happen in one critical section, so
// the previous value handed to observers is exactly the value this write
// replaced. Observers then run synchronously on the calling goroutine, in
// registration order, after the lock is released; they may freely call Get
// and Set. Every write notifies, including writes of an equal value.
//
// A panic in one observer is recovered and recorded (see LastFailure) and
// does not prevent delivery to the rest. Set calls made from inside an
// observer nest; past the context's max depth the value is still stored but
// observers are not notified. The depth travels in ctx, so an observer must
// pass the ctx it was given to nested Set calls. A nested Set made with a
// fresh context such as context.Background starts again at depth zero and
// is not bounded.
func Set[T any](ctx context.Context, c *Context, k *Key[T], v T) T {
	depth := deliveryDepth(ctx)
	suppressed := depth >= c.maxDepth

	var (
		live   []*subscriber
		pruned int
	)
	c.mu.Lock()
	prev := write(c, k, v)
	if !suppressed {
		live, pruned = c.liveLocked(k.obsID)
	}
	c.mu.Unlock()

	capitan.Emit(ctx, SlotUpdated,
		KeyName.Field(k.name),
		KeyDepth.Field(depth),
	)
	c.metrics.OnUpdate(k.name)

	if pruned > 0 {
		capitan.Emit(ctx, SubscribersPruned,
			KeyName.Field(k.name),
			KeyPruned.Field(pruned),
			KeyRemaining.Field(len(live)),
		)
		c.metrics.OnPrune(k.name, pruned)
	}

	if suppressed {
		capitan.Emit(ctx, NotifyDepthExceeded,
			KeyName.Field(k.name),
			KeyDepth.Field(depth),
		)
		c.metrics.OnDepthExceeded(k.name)
		return prev
	}

	c.notify(ctx, k.name, live, prev, v, depth)
	return prev
}

// notify delivers (prev, curr) to each subscriber in order.
func (c *Context) notify(ctx context.Context, name string, subs []*subscriber, prev, curr any, depth int) {
	if len(subs) == 0 {
		return
	}

	start := c.clock.Now()
	inner := context.WithValue(ctx, depthKey{}, depth+1)

	delivered := 0
	for _, s := range subs {
		if c.deliver(inner, name, s, prev, curr) {
			delivered++
		}
	}

	c.metrics.OnDelivery(name, delivered, c.clock.Since(start))
}

// deliver runs one callback, converting a panic into a recorded failure.
func (c *Context) deliver(ctx context.Context, name string, s *subscriber, prev, curr any) (ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := &CallbackError{Key: name, Subscription: s.id, Panic: r}
		c.recordFailure(err)
		capitan.Emit(ctx, CallbackPanicked,
			KeyName.Field(name),
			KeySubscription.Field(s.id),
			KeyError.Field(err.Error()),
		)
		c.metrics.OnCallbackPanic(name)
		ok = false
	}()
	return s.deliver(ctx, prev, curr)
}
