// Package testing provides test utilities for code built on ambient keys.
package testing

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
	"weak"

	"github.com/zoobzio/ambient"
)

// TestConfig is a standard value type for exercising bindings.
// It implements ambient.Validator.
type TestConfig struct {
	Port    int    `yaml:"port" json:"port"`
	Host    string `yaml:"host" json:"host"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

// Validate implements ambient.Validator.
func (c TestConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// NewContext returns an isolated registry so tests do not share the
// process-wide default.
func NewContext(t *testing.T, opts ...ambient.Option) *ambient.Context {
	t.Helper()
	return ambient.New(opts...)
}

// Change is a single delivered notification.
type Change[T any] struct {
	Prev T
	Curr T
}

// Recorder captures every notification delivered for one key.
type Recorder[T any] struct {
	mu      sync.Mutex
	changes []Change[T]
	sub     *ambient.Subscription
}

// Record subscribes a Recorder to k in c. The subscription is canceled when
// the test finishes.
func Record[T any](t *testing.T, c *ambient.Context, k *ambient.Key[T]) *Recorder[T] {
	t.Helper()
	r := &Recorder[T]{}
	r.sub = ambient.ObserveFunc(context.Background(), c, k, func(_ context.Context, prev, curr T) {
		r.mu.Lock()
		r.changes = append(r.changes, Change[T]{Prev: prev, Curr: curr})
		r.mu.Unlock()
	})
	t.Cleanup(r.sub.Cancel)
	return r
}

// Subscription returns the recorder's subscription handle.
func (r *Recorder[T]) Subscription() *ambient.Subscription {
	return r.sub
}

// Changes returns a copy of the captured notifications in delivery order.
func (r *Recorder[T]) Changes() []Change[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Change[T], len(r.changes))
	copy(out, r.changes)
	return out
}

// Values returns the new value of each captured notification.
func (r *Recorder[T]) Values() []T {
	changes := r.Changes()
	out := make([]T, len(changes))
	for i, ch := range changes {
		out[i] = ch.Curr
	}
	return out
}

// Len returns the number of captured notifications.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

// Last returns the most recent notification, if any.
func (r *Recorder[T]) Last() (Change[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		var zero Change[T]
		return zero, false
	}
	return r.changes[len(r.changes)-1], true
}

// WaitForLen waits until at least n notifications have been captured.
func (r *Recorder[T]) WaitForLen(t *testing.T, n int, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return r.Len() >= n
	})
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// Collect runs the garbage collector until the value behind p has been
// reclaimed or timeout is reached. Callers must drop every strong reference
// to the value first.
func Collect[T any](t *testing.T, p weak.Pointer[T], timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		runtime.GC()
		if p.Value() == nil {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// RequireValue fails the test immediately if k does not hold want in c.
func RequireValue[T comparable](t *testing.T, c *ambient.Context, k *ambient.Key[T], want T) {
	t.Helper()
	if got := ambient.Get(c, k); got != want {
		t.Fatalf("%s: expected %v, got %v", k.Name(), want, got)
	}
}

// WaitForState waits until the binding reaches the expected state or timeout occurs.
func WaitForState[T any](t *testing.T, b *ambient.Binding[T], expected ambient.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return b.State() == expected
	})
}

// RequireState fails the test immediately if the binding is not in the expected state.
func RequireState[T any](t *testing.T, b *ambient.Binding[T], expected ambient.State) {
	t.Helper()
	if got := b.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// NewTestBinding binds k in c to a synchronous channel watcher.
// Returns the binding and a channel for sending raw test data; call
// Process on the binding after each send.
func NewTestBinding[T any](t *testing.T, c *ambient.Context, k *ambient.Key[T]) (*ambient.Binding[T], chan<- []byte) {
	t.Helper()
	ch := make(chan []byte, 10)
	b := ambient.Bind(c, k, ambient.NewSyncChannelWatcher(ch)).SyncMode()
	return b, ch
}
