// Package otelmetrics exports ambient registry metrics through OpenTelemetry.
//
//	provider, err := otelmetrics.New(otel.Meter("myapp"))
//	if err != nil {
//	    return err
//	}
//	ctx := ambient.New(ambient.WithMetrics(provider))
package otelmetrics

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zoobzio/ambient"
)

// Metric names.
const (
	MetricUpdates       = "ambient.updates"
	MetricSubscriptions = "ambient.subscriptions"
	MetricDeliveries    = "ambient.deliveries"
	MetricDeliveryTime  = "ambient.delivery.latency_ms"
	MetricPanics        = "ambient.callback.panics"
	MetricPruned        = "ambient.subscribers.pruned"
	MetricDepthExceeded = "ambient.notify.depth_exceeded"
)

// Provider implements ambient.MetricsProvider with OpenTelemetry instruments.
// Every measurement carries the key name as the "key" attribute.
type Provider struct {
	updates       metric.Int64Counter
	subscriptions metric.Int64Counter
	deliveries    metric.Int64Counter
	deliveryTime  metric.Float64Histogram
	panics        metric.Int64Counter
	pruned        metric.Int64Counter
	depthExceeded metric.Int64Counter
}

var _ ambient.MetricsProvider = (*Provider)(nil)

// New creates a Provider whose instruments are registered on meter.
func New(meter metric.Meter) (*Provider, error) {
	var (
		p   Provider
		err error
	)

	if p.updates, err = meter.Int64Counter(MetricUpdates,
		metric.WithDescription("Number of key writes"),
	); err != nil {
		return nil, err
	}

	if p.subscriptions, err = meter.Int64Counter(MetricSubscriptions,
		metric.WithDescription("Number of observer registrations"),
	); err != nil {
		return nil, err
	}

	if p.deliveries, err = meter.Int64Counter(MetricDeliveries,
		metric.WithDescription("Number of observer callbacks completed"),
	); err != nil {
		return nil, err
	}

	if p.deliveryTime, err = meter.Float64Histogram(MetricDeliveryTime,
		metric.WithDescription("Time spent delivering one write to all observers"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if p.panics, err = meter.Int64Counter(MetricPanics,
		metric.WithDescription("Number of observer callbacks that panicked"),
	); err != nil {
		return nil, err
	}

	if p.pruned, err = meter.Int64Counter(MetricPruned,
		metric.WithDescription("Number of dead observers removed"),
	); err != nil {
		return nil, err
	}

	if p.depthExceeded, err = meter.Int64Counter(MetricDepthExceeded,
		metric.WithDescription("Number of nested writes not delivered"),
	); err != nil {
		return nil, err
	}

	return &p, nil
}

// NewDefault returns a Provider built from the global OTel meter provider,
// or a no-op provider if the instruments cannot be created.
//
// Configure the global provider before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewDefault() ambient.MetricsProvider {
	p, err := New(otel.Meter("github.com/zoobzio/ambient"))
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op provider",
			slog.String("error", err.Error()))
		return ambient.NoOpMetricsProvider{}
	}
	return p
}

func keyAttr(key string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("key", key))
}

// OnUpdate records a write.
func (p *Provider) OnUpdate(key string) {
	p.updates.Add(context.Background(), 1, keyAttr(key))
}

// OnSubscribe records an observer registration.
func (p *Provider) OnSubscribe(key string) {
	p.subscriptions.Add(context.Background(), 1, keyAttr(key))
}

// OnDelivery records completed callbacks and the delivery latency.
func (p *Provider) OnDelivery(key string, delivered int, duration time.Duration) {
	ctx := context.Background()
	attr := keyAttr(key)
	p.deliveries.Add(ctx, int64(delivered), attr)
	p.deliveryTime.Record(ctx, float64(duration)/float64(time.Millisecond), attr)
}

// OnCallbackPanic records a recovered callback panic.
func (p *Provider) OnCallbackPanic(key string) {
	p.panics.Add(context.Background(), 1, keyAttr(key))
}

// OnPrune records dead observers removed from a key.
func (p *Provider) OnPrune(key string, removed int) {
	p.pruned.Add(context.Background(), int64(removed), keyAttr(key))
}

// OnDepthExceeded records a suppressed nested notification.
func (p *Provider) OnDepthExceeded(key string) {
	p.depthExceeded.Add(context.Background(), 1, keyAttr(key))
}
