// Package client maintains a best-effort live connection to a Pulse
// stream endpoint and degrades gracefully when it cannot.
//
// The client opens the SSE stream, dispatches received envelopes into
// a cache.Invalidator, reconnects with exponential backoff and jitter
// when the stream drops, watches heartbeats for silent stalls, and
// after five consecutive failures falls back to periodic cache
// invalidation until it is closed.
//
// Usage:
//
//	c := client.New("https://ci.example.com/api/events", invalidator,
//	    client.WithToken("pk_..."),
//	)
//	c.Start(ctx)
//	defer c.Close()
package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/xraph/pulse/backoff"
	"github.com/xraph/pulse/cache"
)

// Defaults match the dashboard the pipeline was built for.
const (
	// DefaultMaxRetries is the consecutive-failure ceiling before
	// fallback polling takes over.
	DefaultMaxRetries = 5

	// DefaultHeartbeatTimeout is how long the stream may stay silent
	// before it is considered stalled and force-closed.
	DefaultHeartbeatTimeout = 60 * time.Second

	// DefaultPollInterval is the fallback cache-invalidation period.
	DefaultPollInterval = 30 * time.Second
)

// Client is the stream consumer with built-in resilience. All exported
// methods are safe for concurrent use.
type Client struct {
	url         string
	token       string
	httpClient  *http.Client
	logger      *slog.Logger
	invalidator cache.Invalidator

	strategy         backoff.Strategy
	maxRetries       int
	heartbeatTimeout time.Duration
	pollInterval     time.Duration
	upgradeInterval  time.Duration // 0 disables re-attempting the stream from fallback

	// Connection state. One mutex guards the whole record so
	// transitions are atomic.
	mu            sync.Mutex
	state         State
	retryCount    int
	lastHeartbeat time.Time
	tenant        string
	streamCancel  context.CancelFunc

	// Lifecycle.
	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a client for the given SSE endpoint. Received envelopes
// are dispatched into the invalidator; pass a cache.Recorder in tests.
func New(url string, invalidator cache.Invalidator, opts ...Option) *Client {
	c := &Client{
		url:              url,
		httpClient:       &http.Client{},
		logger:           slog.Default(),
		invalidator:      invalidator,
		strategy:         backoff.DefaultStrategy(),
		maxRetries:       DefaultMaxRetries,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		pollInterval:     DefaultPollInterval,
		state:            StateConnecting,
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the connection loop. It returns immediately; the
// client runs until Close or ctx cancellation. Subsequent calls are
// no-ops.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		go c.run(runCtx)
	})
}

// Close tears the client down: the open stream (if any) is closed and
// all pending timers are released. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		if c.cancel != nil {
			c.cancel()
			<-c.done
		} else {
			close(c.done)
		}
	})
}

// run is the state machine driver. Each iteration is one connection
// attempt; the loop ends on teardown or on entering fallback polling
// with stream upgrades disabled.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		atCeiling := c.retryCount >= c.maxRetries
		c.mu.Unlock()

		if atCeiling {
			c.setState(StateFallbackPolling)
			c.logger.Warn("retry ceiling reached, switching to fallback polling",
				slog.Int("retries", c.maxRetries),
			)
			if !c.fallbackPoll(ctx) {
				return
			}
			// Upgrade attempt requested: start a fresh retry budget.
			c.mu.Lock()
			c.retryCount = 0
			c.mu.Unlock()
			continue
		}

		c.setState(StateConnecting)
		err := c.stream(ctx)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.retryCount++
		attempt := c.retryCount
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("stream attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		if attempt >= c.maxRetries {
			continue // ceiling handling at the top of the loop
		}

		delay := c.strategy.Delay(attempt - 1)
		c.setState(StateRetrying)
		c.logger.Info("stream reconnect scheduled",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// fallbackPoll invalidates the tenant's key queries immediately and
// then on every poll interval. Returns true if an upgrade attempt
// should follow (WithUpgradeInterval), false on teardown.
//
// Without an upgrade interval the client stays in polling mode until
// Close — the behavior the resilience design inherited, kept as the
// default on purpose.
func (c *Client) fallbackPoll(ctx context.Context) bool {
	c.refreshAll()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var upgrade <-chan time.Time
	if c.upgradeInterval > 0 {
		upgradeTimer := time.NewTimer(c.upgradeInterval)
		defer upgradeTimer.Stop()
		upgrade = upgradeTimer.C
	}

	for {
		select {
		case <-ticker.C:
			c.refreshAll()
		case <-upgrade:
			c.logger.Info("attempting stream upgrade from fallback polling")
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// refreshAll is the tenant-scoped "invalidate now" signal issued while
// the stream is unavailable: run list, job list, runner list.
func (c *Client) refreshAll() {
	tenant := c.Tenant()
	c.invalidator.Invalidate(tenant, cache.ResourceRuns)
	c.invalidator.Invalidate(tenant, cache.ResourceJobs)
	c.invalidator.Invalidate(tenant, cache.ResourceRunners)
}

// Tenant returns the organization scope, learned from the stream's
// connected envelope or set via WithTenant.
func (c *Client) Tenant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tenant
}
