// Package pulse delivers real-time CI state-change events to many
// dashboard clients over long-lived streams.
//
// Upstream producers publish tenant-scoped envelopes (workflow runs
// and jobs changing state); a single-process broker fans each one out
// to every subscription registered under the matching organization.
// Transports bind subscriptions to SSE or WebSocket connections, and
// the companion client package keeps browsers' server-side siblings
// connected with backoff, heartbeat staleness detection, and graceful
// degradation to polling.
//
// # Quick Start
//
//	sys := pulse.New(
//	    pulse.WithResolver(resolver),
//	)
//	sys.Start(ctx)
//	defer sys.Shutdown(ctx)
//
//	router := gin.New()
//	sys.Routes(router)
//
//	// Producer side:
//	sys.Publish("org-1", event.NewRunEvent(
//	    event.TypeRunCompleted, "org-1", "42", 1, nil,
//	))
//
// # Architecture
//
// Pulse is a library, not a service. Each concern lives in its own
// package: event (envelope and type registry), broker (fan-out core
// and subscription registry), server (SSE and WebSocket transports),
// client (resilience layer), cache (invalidation capability), backoff
// (retry delay strategies), auth (principal resolution), wire (framed
// WebSocket protocol), observability (OpenTelemetry metrics).
//
// Delivery is at-most-once and best-effort by design: a client that
// misses events recovers through its fallback polling path, so the
// broker never blocks a publisher on a slow consumer.
package pulse
