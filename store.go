package ambient

// Get returns the current value of k in c, or k's default when k has never
// been written or holds a value that is not a T.
func Get[T any](c *Context, k *Key[T]) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return read(c, k)
}

// read must be called with c.mu held.
func read[T any](c *Context, k *Key[T]) T {
	raw, ok := c.values[k.id]
	if !ok {
		return k.Default()
	}
	v, ok := asValue[T](raw)
	if !ok {
		return k.Default()
	}
	return v
}

// write stores v under k and returns the value it replaced.
// It must be called with c.mu held.
func write[T any](c *Context, k *Key[T], v T) T {
	prev := read(c, k)
	c.values[k.id] = v
	return prev
}
