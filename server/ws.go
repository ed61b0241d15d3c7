package server

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"log/slog"

	"github.com/xraph/pulse/auth"
	"github.com/xraph/pulse/broker"
	"github.com/xraph/pulse/wire"
)

// wsConn serializes writes to one WebSocket connection. The event
// forwarder and the ping handler write concurrently.
type wsConn struct {
	conn  net.Conn
	codec wire.Codec
	mu    sync.Mutex
}

func (w *wsConn) writeFrame(frame *wire.Frame) error {
	data, err := w.codec.Encode(frame)
	if err != nil {
		return err
	}
	op := ws.OpText
	if w.codec.Name() == wire.CodecNameMsgpack {
		op = ws.OpBinary
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsutil.WriteServerMessage(w.conn, op, data)
}

// handleWebSocket upgrades the connection and speaks the framed wire
// protocol. The first frame must authenticate; afterwards the server
// forwards broker envelopes as event frames and answers pings. A
// subscriber that stops reading falls back on the broker's bounded
// queue semantics, same as SSE.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	principal, codec, authID, ok := s.wsAuthenticate(c.Request.Context(), conn)
	if !ok {
		return
	}
	wc := &wsConn{conn: conn, codec: codec}

	sub := s.broker.Subscribe(principal.OrgID)
	defer s.broker.Unsubscribe(sub)

	s.logger.Info("websocket stream opened",
		slog.String("conn_id", sub.ID()),
		slog.String("tenant_id", principal.OrgID),
		slog.String("codec", codec.Name()),
	)
	defer s.logger.Info("websocket stream closed", slog.String("conn_id", sub.ID()))

	ack, err := wire.NewAckFrame(authID, wire.AuthResponse{
		Format:    codec.Name(),
		SessionID: sub.ID(),
		TenantID:  principal.OrgID,
	})
	if err != nil {
		return
	}
	if err := wc.writeFrame(ack); err != nil {
		return
	}

	// Forward broker envelopes until the sink closes or a write fails.
	// Closing the raw conn unblocks the read loop below.
	go s.forwardEnvelopes(wc, sub)

	for {
		data, _, readErr := wsutil.ReadClientData(conn)
		if readErr != nil {
			return // connection closed
		}
		frame, decErr := codec.Decode(data)
		if decErr != nil {
			//nolint:errcheck // best-effort error report
			wc.writeFrame(wire.NewErrorFrame("", wire.ErrCodeBadRequest, "invalid frame"))
			continue
		}
		if frame.Type == wire.FramePing {
			pong := &wire.Frame{Type: wire.FramePong, CorrelID: frame.ID, Timestamp: frame.Timestamp}
			if writeErr := wc.writeFrame(pong); writeErr != nil {
				return
			}
		}
	}
}

// wsAuthenticate reads the first frame (always JSON, before codec
// negotiation), resolves the principal, and picks the codec.
func (s *Server) wsAuthenticate(ctx context.Context, conn net.Conn) (*auth.Principal, wire.Codec, string, bool) {
	reject := func(correlID string, code int, msg string) {
		f := wire.NewErrorFrame(correlID, code, msg)
		if data, err := (&wire.JSONCodec{}).Encode(f); err == nil {
			//nolint:errcheck // best-effort error response before disconnect
			wsutil.WriteServerMessage(conn, ws.OpText, data)
		}
	}

	data, _, err := wsutil.ReadClientData(conn)
	if err != nil {
		return nil, nil, "", false
	}
	var frame wire.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != wire.FrameAuth {
		reject(frame.ID, wire.ErrCodeBadRequest, "first frame must be auth")
		return nil, nil, "", false
	}

	var req wire.AuthRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			reject(frame.ID, wire.ErrCodeBadRequest, "invalid auth data")
			return nil, nil, "", false
		}
	}
	token := req.Token
	if token == "" {
		token = frame.Token
	}

	if s.resolver == nil {
		reject(frame.ID, wire.ErrCodeUnauthorized, "no resolver configured")
		return nil, nil, "", false
	}
	principal, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		reject(frame.ID, wire.ErrCodeUnauthorized, "authentication failed")
		return nil, nil, "", false
	}
	if !principal.HasScope(auth.ScopeSubscribe) {
		reject(frame.ID, wire.ErrCodeForbidden, "insufficient permissions")
		return nil, nil, "", false
	}

	return principal, wire.GetCodec(req.Format), frame.ID, true
}

// forwardEnvelopes drains the subscription into the connection.
func (s *Server) forwardEnvelopes(wc *wsConn, sub *broker.Subscription) {
	for evt := range sub.C() {
		frame, err := wire.NewEventFrame(evt)
		if err != nil {
			continue
		}
		if writeErr := wc.writeFrame(frame); writeErr != nil {
			return // connection gone; read loop cleans up
		}
	}
	// Broker closed the sink (shutdown); close the conn so the read
	// loop exits within the grace period.
	wc.conn.Close()
}
