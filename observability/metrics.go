// Package observability exports broker metrics through OpenTelemetry.
// The broker itself only keeps atomic counters; this package bridges
// them to a meter so deployments that already run an OTel pipeline get
// delivery metrics for free. With no meter provider configured the
// instruments are no-ops.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/pulse/broker"
)

const meterName = "pulse"

// Registration detaches broker instruments when no longer needed.
type Registration struct {
	unregister metric.Registration
}

// Unregister stops observing the broker.
func (r *Registration) Unregister() error {
	return r.unregister.Unregister()
}

// Register observes a broker's counters on the global meter provider:
// published, delivered, and dropped envelope totals, plus the live
// subscription count.
func Register(b *broker.Broker) (*Registration, error) {
	return RegisterWithMeter(otel.Meter(meterName), b)
}

// RegisterWithMeter observes a broker's counters on a specific meter.
func RegisterWithMeter(meter metric.Meter, b *broker.Broker) (*Registration, error) {
	published, err := meter.Int64ObservableCounter("pulse.events.published",
		metric.WithDescription("Envelopes accepted by the broker"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: published counter: %w", err)
	}

	delivered, err := meter.Int64ObservableCounter("pulse.events.delivered",
		metric.WithDescription("Envelope deliveries enqueued to subscription sinks"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: delivered counter: %w", err)
	}

	dropped, err := meter.Int64ObservableCounter("pulse.events.dropped",
		metric.WithDescription("Application envelopes discarded for slow or dead consumers"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: dropped counter: %w", err)
	}

	subscriptions, err := meter.Int64ObservableGauge("pulse.subscriptions",
		metric.WithDescription("Live subscriptions"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: subscriptions gauge: %w", err)
	}

	reg, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			stats := b.Stats()
			o.ObserveInt64(published, stats.TotalPublished)
			o.ObserveInt64(delivered, stats.TotalDelivered)
			o.ObserveInt64(dropped, stats.TotalDropped)
			o.ObserveInt64(subscriptions, int64(stats.Subscriptions))
			return nil
		},
		published, delivered, dropped, subscriptions,
	)
	if err != nil {
		return nil, fmt.Errorf("observability: register callback: %w", err)
	}
	return &Registration{unregister: reg}, nil
}
