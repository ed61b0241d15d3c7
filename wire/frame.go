// Package wire implements the framed protocol used by the Pulse
// WebSocket transport. The SSE transport writes bare envelopes; the
// WebSocket transport wraps them in frames so the connection can also
// carry auth, errors, and ping/pong without ambiguity.
package wire

import (
	"encoding/json"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameAuth  FrameType = "auth"
	FrameEvent FrameType = "event"
	FrameErr   FrameType = "error"
	FramePing  FrameType = "ping"
	FramePong  FrameType = "pong"
	FrameAck   FrameType = "ack"
)

// Frame is the message envelope for the WebSocket transport. Every
// message exchanged over the connection is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id,omitempty" msgpack:"id,omitempty"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// CorrelID links an ack or error to its originating frame.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Token carries credentials (only on the auth frame).
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	// Data carries the frame payload: an event envelope for event
	// frames, an AuthRequest for auth frames.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in an error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// Well-known error codes, aligned with HTTP semantics.
const (
	ErrCodeBadRequest   = 400
	ErrCodeUnauthorized = 401
	ErrCodeForbidden    = 403
	ErrCodeInternal     = 500
)

// AuthRequest is sent by clients as the first frame to authenticate
// and negotiate the wire format.
type AuthRequest struct {
	Token  string `json:"token"`
	Format string `json:"format,omitempty"` // "json" (default) or "msgpack"
}

// AuthResponse is returned after successful authentication.
type AuthResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`
}

// NewEventFrame wraps an encoded envelope in an event frame.
func NewEventFrame(data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:      FrameEvent,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewAckFrame acknowledges the frame identified by correlID.
func NewAckFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:      FrameAck,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a frame.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}
