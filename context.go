package ambient

import (
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
)

// Context is a typed global variable table with change notification.
//
// A single mutex guards both the value store and the observer registry, so
// every read, write and subscription is atomic with respect to all others.
// Observer callbacks always run after the lock is released.
type Context struct {
	clock          clockz.Clock
	metrics        MetricsProvider
	pruneThreshold int
	maxDepth       int

	mu        sync.Mutex
	values    map[uint64]any
	observers map[string]*subscriberList

	lastFailure atomic.Pointer[error]
	failures    *ring[error]
}

// New creates an isolated Context. Most applications use Default; New exists
// for tests and for libraries that want a private table.
func New(opts ...Option) *Context {
	cfg := &config{
		clock:          clockz.RealClock,
		metrics:        NoOpMetricsProvider{},
		pruneThreshold: DefaultPruneThreshold,
		maxDepth:       DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Context{
		clock:          cfg.clock,
		metrics:        cfg.metrics,
		pruneThreshold: cfg.pruneThreshold,
		maxDepth:       cfg.maxDepth,
		values:         make(map[uint64]any),
		observers:      make(map[string]*subscriberList),
		failures:       newRing[error](cfg.failureHistory),
	}
}

var (
	defaultContext *Context
	defaultOnce    sync.Once
)

// Default returns the process-wide Context, creating it on first use.
func Default() *Context {
	defaultOnce.Do(func() {
		defaultContext = New()
	})
	return defaultContext
}

// resetDefault discards the process-wide Context. Tests only.
func resetDefault() {
	defaultOnce = sync.Once{}
	defaultContext = nil
}

// LastFailure returns the most recent recovered callback failure, or nil.
func (c *Context) LastFailure() error {
	ptr := c.lastFailure.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Failures returns recent recovered callback failures, oldest first.
// Returns nil unless WithFailureHistory was set.
func (c *Context) Failures() []error {
	return c.failures.all()
}

func (c *Context) recordFailure(err error) {
	e := err
	c.lastFailure.Store(&e)
	c.failures.push(err)
}
