package ambient

import "context"

// Watcher observes an external source and emits its raw contents on a
// channel. Bindings decode each emission and write it to a key.
type Watcher interface {
	// Watch begins observing the source and returns a channel that emits
	// raw bytes when changes occur. The channel is closed when the context
	// is canceled or an unrecoverable error occurs.
	//
	// Implementations should emit the current value immediately so a
	// Binding can populate its key on Start.
	Watch(ctx context.Context) (<-chan []byte, error)
}
