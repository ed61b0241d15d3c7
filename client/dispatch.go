package client

import (
	"encoding/json"
	"strconv"
	"time"

	"log/slog"

	"github.com/xraph/pulse/cache"
	"github.com/xraph/pulse/event"
)

// dispatch parses one received envelope and signals the invalidator.
// Every envelope, heartbeat included, counts as liveness.
func (c *Client) dispatch(data []byte) {
	var evt event.Envelope
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Warn("discarding malformed envelope", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	if evt.Type == event.TypeConnected && evt.TenantID != "" {
		c.tenant = evt.TenantID
	}
	tenant := c.tenant
	c.mu.Unlock()

	switch evt.Type {
	case event.TypeHeartbeat, event.TypeConnected:
		return
	case event.TypeEventsDropped:
		// Events were lost upstream; a broad refresh recovers the
		// missed state changes.
		c.logger.Warn("server reported dropped events, refreshing caches")
		c.refreshAll()
		return
	}

	switch event.KindOf(evt.Type) {
	case event.KindRun:
		c.invalidateRun(tenant, &evt)
	case event.KindJob:
		c.invalidateJob(tenant, &evt)
	default:
		c.logger.Debug("ignoring unrecognized event type", slog.String("type", string(evt.Type)))
	}
}

// invalidateRun refreshes the run list and dashboard stats, plus the
// specific run's detail caches when the envelope names a run.
func (c *Client) invalidateRun(tenant string, evt *event.Envelope) {
	c.invalidator.Invalidate(tenant, cache.ResourceRuns)
	c.invalidator.Invalidate(tenant, cache.ResourceDashboardStats)

	if evt.RunID != "" {
		c.invalidator.Invalidate(tenant, cache.ResourceRunDetail, evt.RunID)
		if evt.RunAttempt != 0 {
			c.invalidator.Invalidate(tenant, cache.ResourceRunDetail, evt.RunID, strconv.Itoa(evt.RunAttempt))
		}
	}
}

// invalidateJob refreshes the owning run's detail caches, the general
// jobs cache, and dashboard stats. Legacy job_updated envelopes take
// the same path.
func (c *Client) invalidateJob(tenant string, evt *event.Envelope) {
	if evt.RunID != "" {
		c.invalidator.Invalidate(tenant, cache.ResourceRunDetail, evt.RunID)
		if evt.RunAttempt != 0 {
			c.invalidator.Invalidate(tenant, cache.ResourceRunDetail, evt.RunID, strconv.Itoa(evt.RunAttempt))
		}
	}
	c.invalidator.Invalidate(tenant, cache.ResourceJobs)
	c.invalidator.Invalidate(tenant, cache.ResourceDashboardStats)
}
