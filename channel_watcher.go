package ambient

import (
	"bytes"
	"context"
)

// ChannelWatcher adapts a byte channel to the Watcher interface.
// Useful for tests and for sources that already push bytes, such as a
// message consumer.
type ChannelWatcher struct {
	ch     <-chan []byte
	direct bool
}

// NewChannelWatcher creates a ChannelWatcher that copies each value from ch
// through its own goroutine, so senders may reuse their buffers.
func NewChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// NewSyncChannelWatcher creates a ChannelWatcher that hands ch to the
// Binding directly. Pair it with Binding.SyncMode for deterministic tests.
func NewSyncChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch, direct: true}
}

// Watch returns a channel that emits values from the wrapped channel.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if w.direct {
		return w.ch, nil
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-w.ch:
				if !ok {
					return
				}
				if !emit(ctx, out, bytes.Clone(v)) {
					return
				}
			}
		}
	}()
	return out, nil
}

// emit sends data on out unless ctx ends first. It reports whether the
// value was sent.
func emit(ctx context.Context, out chan<- []byte, data []byte) bool {
	select {
	case out <- data:
		return true
	case <-ctx.Done():
		return false
	}
}
