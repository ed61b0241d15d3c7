package client

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/xraph/pulse/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent when opening the stream.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient sets the HTTP client used for stream requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBackoff sets the reconnect delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(c *Client) { c.strategy = s }
}

// WithMaxRetries sets the consecutive-failure ceiling before fallback
// polling takes over.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithHeartbeatTimeout sets how long the stream may stay silent before
// being force-closed as stalled. The staleness check runs at half this
// interval.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Client) { c.heartbeatTimeout = d }
}

// WithPollInterval sets the fallback cache-invalidation period.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithUpgradeInterval makes the client periodically leave fallback
// polling to re-attempt streaming. Zero (the default) keeps the
// inherited behavior: once polling, always polling until Close.
func WithUpgradeInterval(d time.Duration) Option {
	return func(c *Client) { c.upgradeInterval = d }
}

// WithTenant pre-sets the organization scope used for invalidation
// signals. Normally the scope is learned from the stream's connected
// envelope; set it explicitly when fallback polling may start before
// a stream ever opens.
func WithTenant(tenant string) Option {
	return func(c *Client) { c.tenant = tenant }
}
