package ambient

// Accessor is a read-only view of one key. It holds no value of its own;
// every call to Value reads the context afresh.
//
//	type Header struct {
//	    theme ambient.Accessor[string]
//	}
//
//	h := Header{theme: ambient.NewAccessor(Theme)}
//	h.theme.Value() // current theme
type Accessor[T any] struct {
	ctx *Context
	key *Key[T]
}

// NewAccessor returns an Accessor for k in the Default context.
func NewAccessor[T any](k *Key[T]) Accessor[T] {
	return Accessor[T]{key: k}
}

// NewAccessorIn returns an Accessor for k in c.
func NewAccessorIn[T any](c *Context, k *Key[T]) Accessor[T] {
	return Accessor[T]{ctx: c, key: k}
}

// Value returns the current value of the key.
func (a Accessor[T]) Value() T {
	c := a.ctx
	if c == nil {
		c = Default()
	}
	return Get(c, a.key)
}
