// Package broker implements the single-process fan-out core of the
// Pulse delivery pipeline. Producers publish tenant-scoped envelopes;
// the broker delivers each one to every live subscription registered
// under the matching tenant, emits periodic heartbeats, and shields
// publishers from slow or dead consumers.
package broker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/pulse/event"
)

// DefaultBufferSize is the default per-subscription envelope queue.
const DefaultBufferSize = 256

// DefaultHeartbeatInterval is how often liveness envelopes are sent.
const DefaultHeartbeatInterval = 30 * time.Second

// Broker fans published envelopes out to tenant-matched subscriptions.
// All methods are safe for concurrent use.
type Broker struct {
	registry *Registry
	logger   *slog.Logger

	// Metrics.
	totalPublished atomic.Int64
	totalDelivered atomic.Int64
	totalDropped   atomic.Int64

	// Config.
	bufferSize        int
	heartbeatInterval time.Duration

	// Heartbeat loop lifecycle.
	startOnce sync.Once
	started   atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithBufferSize sets the per-subscription envelope queue size.
func WithBufferSize(size int) Option {
	return func(b *Broker) { b.bufferSize = size }
}

// WithHeartbeatInterval sets the liveness envelope interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Broker) { b.heartbeatInterval = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// New creates a broker. Call Start to begin emitting heartbeats.
func New(opts ...Option) *Broker {
	b := &Broker{
		registry:          NewRegistry(),
		logger:            slog.Default(),
		bufferSize:        DefaultBufferSize,
		heartbeatInterval: DefaultHeartbeatInterval,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry exposes the subscription registry for transports and stats.
func (b *Broker) Registry() *Registry { return b.registry }

// Subscribe registers a new subscription scoped to tenantID and returns
// its handle. Tenant validity is the caller's responsibility; auth is
// enforced upstream by the transport.
func (b *Broker) Subscribe(tenantID string) *Subscription {
	sub := newSubscription(uuid.NewString(), tenantID, b.bufferSize)
	b.registry.Add(sub)
	b.logger.Debug("subscription registered",
		slog.String("conn_id", sub.ID()),
		slog.String("tenant_id", tenantID),
	)
	return sub
}

// Unsubscribe removes a subscription and closes its sink. Idempotent;
// safe to call concurrently with Publish.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if removed, ok := b.registry.Remove(sub.Tenant(), sub.ID()); ok {
		removed.close()
		b.logger.Debug("subscription removed",
			slog.String("conn_id", sub.ID()),
			slog.String("tenant_id", sub.Tenant()),
		)
	}
}

// Publish fans an envelope out to every subscription matching its
// tenant. Tenant-free heartbeats go to all subscriptions; a heartbeat
// stamped with a tenant stays inside that tenant like any other
// envelope. Publish never blocks on a slow consumer and never returns
// a subscriber's failure to the producer; undeliverable envelopes are
// dropped and counted.
func (b *Broker) Publish(evt *event.Envelope) error {
	if err := evt.Validate(); err != nil {
		return err
	}

	var targets []*Subscription
	if evt.Type == event.TypeHeartbeat && evt.TenantID == "" {
		targets = b.registry.All()
	} else {
		targets = b.registry.Snapshot(evt.TenantID)
	}

	b.totalPublished.Add(1)
	for _, sub := range targets {
		if sub.send(evt) {
			b.totalDelivered.Add(1)
		} else if evt.Type != event.TypeHeartbeat {
			b.totalDropped.Add(1)
		}
	}
	return nil
}

// Start launches the heartbeat loop. It returns immediately; the loop
// runs until Shutdown or ctx cancellation. Subsequent calls are no-ops.
func (b *Broker) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.started.Store(true)
		go b.heartbeatLoop(ctx)
	})
}

func (b *Broker) heartbeatLoop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			//nolint:errcheck // heartbeats always validate
			b.Publish(event.Heartbeat())
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		}
	}
}

// Shutdown stops the heartbeat loop and closes every subscription so
// transport adapters unwind promptly. It waits for the loop to exit or
// the context to expire, whichever comes first.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })

	for _, sub := range b.registry.All() {
		b.Unsubscribe(sub)
	}

	if b.started.Load() {
		select {
		case <-b.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.logger.Info("broker shut down")
	return nil
}

// Stats is a point-in-time snapshot of broker counters.
type Stats struct {
	Subscriptions  int   `json:"subscriptions"`
	TotalPublished int64 `json:"total_published"`
	TotalDelivered int64 `json:"total_delivered"`
	TotalDropped   int64 `json:"total_dropped"`
}

// Stats returns broker metrics.
func (b *Broker) Stats() Stats {
	return Stats{
		Subscriptions:  b.registry.Len(),
		TotalPublished: b.totalPublished.Load(),
		TotalDelivered: b.totalDelivered.Load(),
		TotalDropped:   b.totalDropped.Load(),
	}
}
