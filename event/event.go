// Package event defines the envelope that flows through the Pulse
// delivery pipeline and the closed set of recognized event types.
// The broker treats payload fields beyond the envelope header as
// opaque and passes them through verbatim.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of envelope.
type Type string

const (
	// Control envelopes.
	TypeHeartbeat     Type = "heartbeat"
	TypeConnected     Type = "connected"
	TypeEventsDropped Type = "events_dropped"

	// Workflow run lifecycle.
	TypeRunQueued    Type = "workflow_run_queued"
	TypeRunStarted   Type = "workflow_run_started"
	TypeRunUpdated   Type = "workflow_run_updated"
	TypeRunCompleted Type = "workflow_run_completed"

	// Workflow job lifecycle.
	TypeJobQueued    Type = "workflow_job_queued"
	TypeJobStarted   Type = "workflow_job_started"
	TypeJobUpdated   Type = "workflow_job_updated"
	TypeJobCompleted Type = "workflow_job_completed"

	// TypeLegacyJobUpdated is kept for older producers that predate
	// the workflow_job_* family. It dispatches like a job event.
	TypeLegacyJobUpdated Type = "job_updated"
)

// Kind groups event types by how clients dispatch them.
type Kind int

const (
	KindUnknown Kind = iota
	KindControl
	KindRun
	KindJob
)

// KindOf classifies an event type. Unrecognized types map to KindUnknown;
// clients log and discard those rather than failing the stream.
func KindOf(t Type) Kind {
	switch t {
	case TypeHeartbeat, TypeConnected, TypeEventsDropped:
		return KindControl
	case TypeLegacyJobUpdated:
		return KindJob
	}
	s := string(t)
	switch {
	case strings.HasPrefix(s, "workflow_run_"):
		return KindRun
	case strings.HasPrefix(s, "workflow_job_"):
		return KindJob
	default:
		return KindUnknown
	}
}

// Known reports whether t is part of the recognized type set.
func Known(t Type) bool {
	switch t {
	case TypeHeartbeat, TypeConnected, TypeEventsDropped,
		TypeRunQueued, TypeRunStarted, TypeRunUpdated, TypeRunCompleted,
		TypeJobQueued, TypeJobStarted, TypeJobUpdated, TypeJobCompleted,
		TypeLegacyJobUpdated:
		return true
	}
	return false
}

// Envelope is the message unit delivered to subscribers. On the wire it
// is a single flat JSON object: the header fields below plus any
// producer-supplied extras merged at the top level.
type Envelope struct {
	// Type identifies the event kind.
	Type Type

	// TenantID scopes the event to one organization. Required for
	// everything except heartbeats; the broker never delivers across
	// tenant boundaries.
	TenantID string

	// RunID identifies the workflow run the event concerns, if any.
	RunID string

	// RunAttempt disambiguates retried runs. Zero means unset.
	RunAttempt int

	// Extra holds producer-specific payload fields, passed through
	// verbatim. Keys colliding with header fields are dropped on decode.
	Extra map[string]json.RawMessage
}

// Header field names reserved on the wire.
const (
	fieldType       = "type"
	fieldTenantID   = "tenant_id"
	fieldRunID      = "run_id"
	fieldRunAttempt = "run_attempt"
)

// Validate checks the envelope invariants: a known set is not required
// (extras-only producers may extend the type space), but every
// non-heartbeat envelope must carry a tenant.
func (e *Envelope) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event: missing type")
	}
	if e.Type != TypeHeartbeat && e.TenantID == "" {
		return fmt.Errorf("event: %s envelope missing tenant_id", e.Type)
	}
	return nil
}

// MarshalJSON flattens the envelope into a single JSON object.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(e.Extra)+4)
	for k, v := range e.Extra {
		obj[k] = v
	}

	raw := func(v any) (json.RawMessage, error) {
		b, err := json.Marshal(v)
		return json.RawMessage(b), err
	}

	var err error
	if obj[fieldType], err = raw(e.Type); err != nil {
		return nil, err
	}
	if e.TenantID != "" {
		if obj[fieldTenantID], err = raw(e.TenantID); err != nil {
			return nil, err
		}
	}
	if e.RunID != "" {
		if obj[fieldRunID], err = raw(e.RunID); err != nil {
			return nil, err
		}
	}
	if e.RunAttempt != 0 {
		if obj[fieldRunAttempt], err = raw(e.RunAttempt); err != nil {
			return nil, err
		}
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits a flat JSON object back into header fields and
// opaque extras.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("event: decode envelope: %w", err)
	}

	if raw, ok := obj[fieldType]; ok {
		if err := json.Unmarshal(raw, &e.Type); err != nil {
			return fmt.Errorf("event: decode type: %w", err)
		}
		delete(obj, fieldType)
	}
	if raw, ok := obj[fieldTenantID]; ok {
		if err := json.Unmarshal(raw, &e.TenantID); err != nil {
			return fmt.Errorf("event: decode tenant_id: %w", err)
		}
		delete(obj, fieldTenantID)
	}
	if raw, ok := obj[fieldRunID]; ok {
		if err := json.Unmarshal(raw, &e.RunID); err != nil {
			return fmt.Errorf("event: decode run_id: %w", err)
		}
		delete(obj, fieldRunID)
	}
	if raw, ok := obj[fieldRunAttempt]; ok {
		if err := json.Unmarshal(raw, &e.RunAttempt); err != nil {
			return fmt.Errorf("event: decode run_attempt: %w", err)
		}
		delete(obj, fieldRunAttempt)
	}

	if len(obj) > 0 {
		e.Extra = obj
	} else {
		e.Extra = nil
	}
	return nil
}

// Heartbeat returns a liveness envelope. Heartbeats are tenant-free and
// fan out to every subscription.
func Heartbeat() *Envelope {
	return &Envelope{
		Type:  TypeHeartbeat,
		Extra: timestampExtra(),
	}
}

// Connected returns the greeting envelope written as the first message
// on a freshly opened stream.
func Connected(tenantID string) *Envelope {
	return &Envelope{Type: TypeConnected, TenantID: tenantID}
}

// Dropped returns an overflow marker telling the client that count
// application events were discarded from its queue.
func Dropped(tenantID string, count int64) *Envelope {
	n, _ := json.Marshal(count)
	return &Envelope{
		Type:     TypeEventsDropped,
		TenantID: tenantID,
		Extra:    map[string]json.RawMessage{"dropped": n},
	}
}

// NewRunEvent builds a workflow run lifecycle envelope.
func NewRunEvent(t Type, tenantID, runID string, attempt int, extra map[string]json.RawMessage) *Envelope {
	return &Envelope{
		Type:       t,
		TenantID:   tenantID,
		RunID:      runID,
		RunAttempt: attempt,
		Extra:      extra,
	}
}

// NewJobEvent builds a workflow job lifecycle envelope. Jobs carry the
// owning run's id so clients can refresh the run detail view.
func NewJobEvent(t Type, tenantID, runID string, attempt int, extra map[string]json.RawMessage) *Envelope {
	return &Envelope{
		Type:       t,
		TenantID:   tenantID,
		RunID:      runID,
		RunAttempt: attempt,
		Extra:      extra,
	}
}

func timestampExtra() map[string]json.RawMessage {
	ts, _ := json.Marshal(time.Now().UTC().Unix())
	return map[string]json.RawMessage{"timestamp": ts}
}
