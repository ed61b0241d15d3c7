package observability

import (
	"context"
	"log/slog"
	"os"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/pulse/broker"
	"github.com/xraph/pulse/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestRegisterObservesBrokerCounters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	b := broker.New(broker.WithLogger(testLogger()))

	reg, err := RegisterWithMeter(provider.Meter("pulse"), b)
	if err != nil {
		t.Fatalf("RegisterWithMeter: %v", err)
	}
	defer reg.Unregister() //nolint:errcheck

	sub := b.Subscribe("org-1")
	defer b.Unsubscribe(sub)

	evt := event.NewRunEvent(event.TypeRunCompleted, "org-1", "42", 1, nil)
	if err := b.Publish(evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := collect(t, reader)
	if got["pulse.events.published"] != 1 {
		t.Errorf("published = %d, want 1", got["pulse.events.published"])
	}
	if got["pulse.events.delivered"] != 1 {
		t.Errorf("delivered = %d, want 1", got["pulse.events.delivered"])
	}
	if got["pulse.subscriptions"] != 1 {
		t.Errorf("subscriptions = %d, want 1", got["pulse.subscriptions"])
	}
}

func TestUnregisterStopsObservation(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	b := broker.New(broker.WithLogger(testLogger()))

	reg, err := RegisterWithMeter(provider.Meter("pulse"), b)
	if err != nil {
		t.Fatalf("RegisterWithMeter: %v", err)
	}
	if err := reg.Unregister(); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	got := collect(t, reader)
	if _, ok := got["pulse.events.published"]; ok {
		t.Error("published still observed after Unregister")
	}
}
