package ambient

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key registry events.
// See the otelmetrics package for an OpenTelemetry implementation.
type MetricsProvider interface {
	// OnUpdate is called after every write to a key.
	OnUpdate(key string)

	// OnSubscribe is called when an observer is registered for a key.
	OnSubscribe(key string)

	// OnDelivery is called after a write has been delivered to observers.
	// Delivered counts callbacks that ran to completion.
	OnDelivery(key string, delivered int, duration time.Duration)

	// OnCallbackPanic is called when an observer callback panics.
	OnCallbackPanic(key string)

	// OnPrune is called when dead observers are dropped from a key's list.
	OnPrune(key string, removed int)

	// OnDepthExceeded is called when a nested write is not delivered because
	// the delivery depth limit was reached.
	OnDepthExceeded(key string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnUpdate(_ string)                           {}
func (NoOpMetricsProvider) OnSubscribe(_ string)                        {}
func (NoOpMetricsProvider) OnDelivery(_ string, _ int, _ time.Duration) {}
func (NoOpMetricsProvider) OnCallbackPanic(_ string)                    {}
func (NoOpMetricsProvider) OnPrune(_ string, _ int)                     {}
func (NoOpMetricsProvider) OnDepthExceeded(_ string)                    {}
