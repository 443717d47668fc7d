package ambient

import (
	"context"
	"unsafe"
	"weak"
)

// Observe registers fn to be called whenever k is written in c.
//
// The owner is held weakly: once nothing else in the program references it,
// the subscription stops delivering and is eventually pruned. fn receives the
// owner for the duration of the call, so it must not capture the owner
// itself or the owner will never become unreachable:
//
//	ambient.Observe(ctx, ambient.Default(), Theme, view,
//	    func(ctx context.Context, v *View, prev, curr string) {
//	        v.Repaint(curr)
//	    })
//
// A nil owner yields a subscription that is never delivered.
// An owner of a zero-size type cannot be tracked weakly and is never
// collected, so its subscription behaves like ObserveFunc: it stays active
// until canceled. Small owners without pointer fields (such as *int64) may
// share a runtime allocation block with other values and outlive their last
// reference indefinitely; give such owners a pointer field or cancel the
// subscription explicitly.
//
// Nested writes made from fn are bounded by the Context's max depth only
// when fn passes its ctx on to Set.
//
// Multiple registrations for the same owner and key are independent.
func Observe[T, O any](ctx context.Context, c *Context, k *Key[T], owner *O, fn func(ctx context.Context, owner *O, prev, curr T)) *Subscription {
	s := newSubscriber(k.name)

	var resolve func() *O
	if owner != nil && unsafe.Sizeof(*owner) == 0 {
		pinned := owner
		resolve = func() *O { return pinned }
	} else {
		ref := weak.Make(owner)
		resolve = ref.Value
		s.owned = func() bool {
			return ref.Value() != nil
		}
	}

	s.deliver = func(ctx context.Context, prev, curr any) bool {
		o := resolve()
		if o == nil {
			return false
		}
		p, ok := asValue[T](prev)
		if !ok {
			return false
		}
		n, ok := asValue[T](curr)
		if !ok {
			return false
		}
		fn(ctx, o, p, n)
		return true
	}

	c.subscribe(ctx, k.obsID, s)
	return &Subscription{sub: s}
}

// ObserveFunc registers fn to be called whenever k is written in c. The
// subscription has no owner and stays active until canceled.
func ObserveFunc[T any](ctx context.Context, c *Context, k *Key[T], fn func(ctx context.Context, prev, curr T)) *Subscription {
	s := newSubscriber(k.name)
	s.deliver = func(ctx context.Context, prev, curr any) bool {
		p, ok := asValue[T](prev)
		if !ok {
			return false
		}
		n, ok := asValue[T](curr)
		if !ok {
			return false
		}
		fn(ctx, p, n)
		return true
	}

	c.subscribe(ctx, k.obsID, s)
	return &Subscription{sub: s}
}
