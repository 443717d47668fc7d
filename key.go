package ambient

import (
	"context"
	"fmt"
	"sync/atomic"
)

// keySeq hands out process-unique key ids.
var keySeq atomic.Uint64

// Key names one global slot. It carries the slot's value type T and the
// default returned while the slot is unset.
//
// Keys are compared by identity: two calls to NewKey with the same name
// produce two distinct slots. Declare keys once, as package-level variables:
//
//	var Theme = ambient.NewKey("theme", "light")
type Key[T any] struct {
	id     uint64
	name   string
	obsID  string
	defFn  func() T
	defVal T
}

// NewKey creates a key whose default is def.
func NewKey[T any](name string, def T) *Key[T] {
	k := newKey[T](name)
	k.defVal = def
	return k
}

// NewKeyFunc creates a key whose default is produced by fn on every read of an
// unset slot. Use it for reference types (maps, slices) where sharing a single
// default instance would leak mutations between readers. fn must be pure.
func NewKeyFunc[T any](name string, fn func() T) *Key[T] {
	k := newKey[T](name)
	k.defFn = fn
	return k
}

func newKey[T any](name string) *Key[T] {
	id := keySeq.Add(1)
	return &Key[T]{
		id:    id,
		name:  name,
		obsID: fmt.Sprintf("obs.%s#%d", name, id),
	}
}

// Name returns the human-readable name given at construction.
func (k *Key[T]) Name() string {
	return k.name
}

// Default returns the key's default value.
func (k *Key[T]) Default() T {
	if k.defFn != nil {
		return k.defFn()
	}
	return k.defVal
}

// String returns the observation identity of the key.
func (k *Key[T]) String() string {
	return k.obsID
}

// Get reads the key from the Default context.
func (k *Key[T]) Get() T {
	return Get(Default(), k)
}

// Set writes the key in the Default context and notifies its observers.
// It returns the previous value.
func (k *Key[T]) Set(ctx context.Context, v T) T {
	return Set(ctx, Default(), k, v)
}

// asValue converts a boxed value back to T. A nil box converts only when T is
// an interface type, in which case the result is T's nil.
func asValue[T any](v any) (T, bool) {
	if v == nil {
		var zero T
		return zero, any(zero) == nil
	}
	t, ok := v.(T)
	return t, ok
}
