// Package redis provides an ambient.Watcher for Redis keys using keyspace
// notifications.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/zoobzio/ambient"
)

// DefaultCommands are the keyspace events that trigger a re-read of the key.
var DefaultCommands = []string{"set", "hset", "mset", "setex", "psetex", "setnx"}

// Watcher watches a Redis key for changes using keyspace notifications.
// Requires Redis to have keyspace notifications enabled:
//
//	CONFIG SET notify-keyspace-events KEA
type Watcher struct {
	client   *redis.Client
	key      string
	commands []string
}

var _ ambient.Watcher = (*Watcher)(nil)

// Option configures a Watcher.
type Option func(*Watcher)

// WithCommands replaces the keyspace events that cause the key to be re-read.
func WithCommands(commands ...string) Option {
	return func(w *Watcher) {
		w.commands = commands
	}
}

// New creates a Watcher for the given Redis key.
func New(client *redis.Client, key string, opts ...Option) *Watcher {
	w := &Watcher{
		client:   client,
		key:      key,
		commands: DefaultCommands,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Channel returns the keyspace notification channel for the watched key
// in the client's selected database.
func (w *Watcher) Channel() string {
	return fmt.Sprintf("__keyspace@%d__:%s", w.client.Options().DB, w.key)
}

// Watch subscribes to keyspace notifications and returns a channel that
// emits the key's value whenever a matching command touches it. The current
// value is emitted first when the key exists.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	pubsub := w.client.Subscribe(ctx, w.Channel())

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		if !w.emitCurrent(ctx, out) {
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !slices.Contains(w.commands, msg.Payload) {
					continue
				}
				if !w.emitCurrent(ctx, out) {
					return
				}
			}
		}
	}()

	return out, nil
}

// emitCurrent reads the key and sends its value. A missing key sends
// nothing. It returns false when the watch should stop.
func (w *Watcher) emitCurrent(ctx context.Context, out chan<- []byte) bool {
	val, err := w.client.Get(ctx, w.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return true
	}
	if err != nil {
		return ctx.Err() == nil
	}
	select {
	case out <- val:
		return true
	case <-ctx.Done():
		return false
	}
}
