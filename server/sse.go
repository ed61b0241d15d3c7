package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"log/slog"

	"github.com/xraph/pulse/event"
)

// handleEvents serves one long-lived SSE stream per authenticated
// client. It subscribes the connection to the principal's tenant,
// forwards envelopes as `data:` events with an immediate flush, and
// unsubscribes promptly when the client goes away so the broker stops
// writing into a dead sink.
func (s *Server) handleEvents(c *gin.Context) {
	principal := principalFrom(c)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	// Per-event flushing is the whole point; the X-Accel-Buffering
	// header tells intermediary proxies not to buffer the response.
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	sub := s.broker.Subscribe(principal.OrgID)
	defer s.broker.Unsubscribe(sub)

	s.logger.Info("sse stream opened",
		slog.String("conn_id", sub.ID()),
		slog.String("tenant_id", principal.OrgID),
		slog.String("subject", principal.Subject),
	)
	defer s.logger.Info("sse stream closed", slog.String("conn_id", sub.ID()))

	if err := writeSSE(c.Writer, event.Connected(principal.OrgID)); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case evt, open := <-sub.C():
			if !open {
				return // broker shutdown
			}
			if err := writeSSE(c.Writer, evt); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// writeSSE serializes an envelope as a single `data:` event.
func writeSSE(w http.ResponseWriter, evt *event.Envelope) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
