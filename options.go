package ambient

import "github.com/zoobzio/clockz"

// DefaultPruneThreshold is the number of dead subscribers a key may
// accumulate before a notification compacts its list.
const DefaultPruneThreshold = 10

// DefaultMaxDepth bounds how deeply Set calls made from inside observer
// callbacks may nest before notification is suppressed.
const DefaultMaxDepth = 16

// config holds configuration options for a Context.
type config struct {
	clock          clockz.Clock
	metrics        MetricsProvider
	pruneThreshold int
	maxDepth       int
	failureHistory int
}

// Option configures a Context.
type Option func(*config)

// WithClock sets the clock used to time notification delivery.
// Use this with clockz.FakeClock for deterministic tests.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithMetrics sets a metrics provider for observability integration.
func WithMetrics(provider MetricsProvider) Option {
	return func(c *config) {
		c.metrics = provider
	}
}

// WithPruneThreshold sets how many dead subscribers a key may hold before
// the next notification drops them. Values below 1 are ignored.
func WithPruneThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pruneThreshold = n
		}
	}
}

// WithMaxDepth sets the maximum nesting of Set calls issued from observer
// callbacks. A write past the limit is stored but not delivered.
// Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithFailureHistory sets the number of recovered callback failures to
// retain. Use 0 (default) to only retain the most recent one via LastFailure.
func WithFailureHistory(n int) Option {
	return func(c *config) {
		c.failureHistory = n
	}
}
