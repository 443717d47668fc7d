package ambient

import (
	"context"
	"runtime"
	"testing"
)

// testOwner stands in for a view or service that observes keys.
type testOwner struct {
	name string
}

// collectUntil runs the garbage collector until cond holds.
func collectUntil(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 20; i++ {
		runtime.GC()
		if cond() {
			return
		}
	}
	t.Fatal("owners were not collected")
}

// observeDropped registers an observer whose owner is unreachable once this
// function returns.
//
//go:noinline
func observeDropped[T any](c *Context, k *Key[T], calls *int) *Subscription {
	owner := &testOwner{name: "dropped"}
	return Observe(context.Background(), c, k, owner, func(_ context.Context, _ *testOwner, _, _ T) {
		*calls++
	})
}
