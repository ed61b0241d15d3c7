// Package server exposes the Pulse delivery pipeline over HTTP: a
// long-lived SSE stream per client, a WebSocket stream for clients
// that prefer framed transport, a producer ingest endpoint, and a
// stats endpoint. Authentication is delegated to an injected
// auth.Resolver; the server itself only enforces tenant scoping.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/xraph/pulse/auth"
	"github.com/xraph/pulse/broker"
)

// DefaultBasePath is the default route prefix.
const DefaultBasePath = "/api"

// DefaultPublishRate is the default per-tenant publish budget in
// events per second.
const DefaultPublishRate = 50

// DefaultPublishBurst is the default per-tenant publish burst.
const DefaultPublishBurst = 100

const principalKey = "pulse.principal"

// Server binds transports to a broker.
type Server struct {
	broker   *broker.Broker
	resolver auth.Resolver
	logger   *slog.Logger
	basePath string

	// Per-tenant publish rate limiting.
	publishRate  rate.Limit
	publishBurst int
	limiterMu    sync.Mutex
	limiters     map[string]*rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithResolver sets the principal resolver. If not set, every request
// is rejected as unauthorized.
func WithResolver(r auth.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBasePath sets the route prefix. Default is "/api".
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = path }
}

// WithPublishRate sets the per-tenant producer budget.
func WithPublishRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.publishRate = rate.Limit(perSecond)
		s.publishBurst = burst
	}
}

// New creates a server bound to the given broker.
func New(b *broker.Broker, opts ...Option) *Server {
	s := &Server{
		broker:       b,
		logger:       slog.Default(),
		basePath:     DefaultBasePath,
		publishRate:  rate.Limit(DefaultPublishRate),
		publishBurst: DefaultPublishBurst,
		limiters:     make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Broker returns the underlying broker.
func (s *Server) Broker() *broker.Broker { return s.broker }

// RegisterRoutes mounts the transport endpoints on a gin router.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	g := r.Group(s.basePath)
	g.GET("/events", s.authenticate(auth.ScopeSubscribe), s.handleEvents)
	g.GET("/ws", s.handleWebSocket) // auth happens in-band on the first frame
	g.POST("/publish", s.authenticate(auth.ScopePublish), s.handlePublish)
	g.GET("/stats", s.authenticate(auth.ScopeStatsRead), s.handleStats)
}

// authenticate resolves the bearer token (or ?token= for EventSource,
// which cannot set headers) and requires the given scope.
func (s *Server) authenticate(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.resolver == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no resolver configured"})
			return
		}

		token := bearerToken(c)
		principal, err := s.resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if scope != "" && !principal.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

func principalFrom(c *gin.Context) *auth.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(*auth.Principal)
	return p
}

// handleStats reports broker counters.
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.broker.Stats())
}

// limiter returns the tenant's publish limiter, creating it on first use.
func (s *Server) limiter(tenant string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[tenant]
	if !ok {
		l = rate.NewLimiter(s.publishRate, s.publishBurst)
		s.limiters[tenant] = l
	}
	return l
}
