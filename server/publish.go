package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"log/slog"

	"github.com/xraph/pulse/event"
)

// handlePublish is the producer ingest endpoint. The body is a flat
// envelope; the tenant is always taken from the authenticated
// principal so a producer cannot inject events into another
// organization's streams.
func (s *Server) handlePublish(c *gin.Context) {
	principal := principalFrom(c)

	if !s.limiter(principal.OrgID).Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "publish rate exceeded"})
		return
	}

	var evt event.Envelope
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope"})
		return
	}
	evt.TenantID = principal.OrgID

	// Control envelopes (heartbeat, connected, events_dropped) are
	// generated by the pipeline itself; heartbeats in particular fan
	// out across tenants, so accepting them from producers would let
	// one tenant write into every other tenant's stream.
	if event.KindOf(evt.Type) == event.KindControl {
		c.JSON(http.StatusBadRequest, gin.H{"error": "control event types cannot be published"})
		return
	}

	if err := evt.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !event.Known(evt.Type) {
		s.logger.Warn("publishing unrecognized event type",
			slog.String("type", string(evt.Type)),
			slog.String("tenant_id", principal.OrgID),
		)
	}

	if err := s.broker.Publish(&evt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "published"})
}
