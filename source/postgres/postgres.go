// Package postgres provides an ambient.Watcher for a row of a PostgreSQL
// table using LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoobzio/ambient"
)

// DefaultTable is the table queried when WithTable is not given.
const DefaultTable = "ambient_values"

// Watcher watches a table row for changes using LISTEN/NOTIFY. The table
// needs a key column and a value column, and a trigger that calls
// pg_notify(channel, NEW.key) on insert or update. Schema returns suitable
// DDL.
type Watcher struct {
	pool    *pgxpool.Pool
	channel string
	key     string
	table   string
}

var _ ambient.Watcher = (*Watcher)(nil)

// Option configures a Watcher.
type Option func(*Watcher)

// WithTable sets the table name to query for values.
func WithTable(table string) Option {
	return func(w *Watcher) {
		w.table = table
	}
}

// New creates a Watcher for the row identified by key. Notifications are
// received on channel.
func New(pool *pgxpool.Pool, channel, key string, opts ...Option) *Watcher {
	w := &Watcher{
		pool:    pool,
		channel: channel,
		key:     key,
		table:   DefaultTable,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Schema returns DDL creating table with a trigger that notifies channel
// with the changed row's key.
func Schema(table, channel string) string {
	t := pgx.Identifier{table}.Sanitize()
	fn := pgx.Identifier{table + "_notify"}.Sanitize()
	trigger := pgx.Identifier{table + "_notify_trigger"}.Sanitize()
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL
);

CREATE OR REPLACE FUNCTION %[2]s() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(%[4]s, NEW.key);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS %[3]s ON %[1]s;
CREATE TRIGGER %[3]s
	AFTER INSERT OR UPDATE ON %[1]s
	FOR EACH ROW EXECUTE FUNCTION %[2]s();
`, t, fn, trigger, quoteLiteral(channel))
}

func quoteLiteral(s string) string {
	out := []byte{'\''}
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}

// Watch listens on the channel and returns a channel that emits the row's
// value whenever a notification names the key. The current value is
// emitted first when the row exists.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{w.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", w.channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer conn.Release()

		if !w.emitCurrent(ctx, out) {
			return
		}

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if notification.Payload != w.key {
				continue
			}
			if !w.emitCurrent(ctx, out) {
				return
			}
		}
	}()

	return out, nil
}

// emitCurrent fetches the row and sends its value. A missing row sends
// nothing. It returns false when the watch should stop.
func (w *Watcher) emitCurrent(ctx context.Context, out chan<- []byte) bool {
	value, err := w.fetchValue(ctx)
	if err != nil || value == nil {
		return ctx.Err() == nil
	}
	select {
	case out <- value:
		return true
	case <-ctx.Done():
		return false
	}
}

// fetchValue retrieves the current value, or nil when the row is absent.
func (w *Watcher) fetchValue(ctx context.Context) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pgx.Identifier{w.table}.Sanitize())
	err := w.pool.QueryRow(ctx, query, w.key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}
