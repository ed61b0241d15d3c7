package pulse

import (
	"context"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/xraph/pulse/auth"
	"github.com/xraph/pulse/broker"
	"github.com/xraph/pulse/event"
	"github.com/xraph/pulse/server"
)

// System bundles a broker with its HTTP transports. Create one with
// New and functional options; it is the single point of publish for
// in-process producers.
type System struct {
	broker *broker.Broker
	server *server.Server
	logger *slog.Logger
}

// Option configures a System.
type Option func(*config)

type config struct {
	logger            *slog.Logger
	resolver          auth.Resolver
	heartbeatInterval time.Duration
	bufferSize        int
	basePath          string
	publishRate       float64
	publishBurst      int
}

// WithLogger sets the structured logger shared by the subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithResolver sets the principal resolver used by the transports.
func WithResolver(r auth.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithHeartbeatInterval sets the broker's liveness envelope interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) { c.heartbeatInterval = d }
}

// WithBufferSize sets the per-subscription envelope queue size.
func WithBufferSize(n int) Option {
	return func(c *config) { c.bufferSize = n }
}

// WithBasePath sets the transport route prefix.
func WithBasePath(path string) Option {
	return func(c *config) { c.basePath = path }
}

// WithPublishRate sets the per-tenant producer ingest budget.
func WithPublishRate(perSecond float64, burst int) Option {
	return func(c *config) {
		c.publishRate = perSecond
		c.publishBurst = burst
	}
}

// New creates a System.
func New(opts ...Option) *System {
	cfg := &config{
		logger:            slog.Default(),
		heartbeatInterval: broker.DefaultHeartbeatInterval,
		bufferSize:        broker.DefaultBufferSize,
		basePath:          server.DefaultBasePath,
		publishRate:       server.DefaultPublishRate,
		publishBurst:      server.DefaultPublishBurst,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := broker.New(
		broker.WithLogger(cfg.logger),
		broker.WithHeartbeatInterval(cfg.heartbeatInterval),
		broker.WithBufferSize(cfg.bufferSize),
	)
	srv := server.New(b,
		server.WithLogger(cfg.logger),
		server.WithResolver(cfg.resolver),
		server.WithBasePath(cfg.basePath),
		server.WithPublishRate(cfg.publishRate, cfg.publishBurst),
	)

	return &System{
		broker: b,
		server: srv,
		logger: cfg.logger,
	}
}

// Broker returns the fan-out core.
func (s *System) Broker() *broker.Broker { return s.broker }

// Server returns the transport layer.
func (s *System) Server() *server.Server { return s.server }

// Routes mounts the stream, publish, and stats endpoints.
func (s *System) Routes(r gin.IRouter) {
	s.server.RegisterRoutes(r)
}

// Start begins heartbeat emission. Returns immediately.
func (s *System) Start(ctx context.Context) {
	s.broker.Start(ctx)
}

// Shutdown closes every subscription and stops the heartbeat loop
// within the context's grace period.
func (s *System) Shutdown(ctx context.Context) error {
	return s.broker.Shutdown(ctx)
}

// Publish is the in-process producer entrypoint: the upstream system
// calls it whenever a workflow run or job changes state. The envelope
// is stamped with the given tenant before fan-out.
func (s *System) Publish(tenantID string, evt *event.Envelope) error {
	evt.TenantID = tenantID
	return s.broker.Publish(evt)
}
