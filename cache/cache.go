// Package cache defines the invalidation capability the client
// resilience layer dispatches into, plus an in-process TTL query cache
// that implements it. The stream client never talks to a concrete
// cache directly; it only signals which (tenant, resource, id) entries
// are stale.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Resource names a cached query family, mirroring the dashboard's
// query keys.
type Resource string

const (
	ResourceRuns           Resource = "workflow-runs"
	ResourceRunDetail      Resource = "workflow-run"
	ResourceJobs           Resource = "jobs"
	ResourceRunners        Resource = "runners"
	ResourceDashboardStats Resource = "dashboard-stats"
)

// Invalidator receives staleness signals scoped to a tenant, a
// resource kind, and optional id parts (e.g. run id, run attempt). An
// invalidation with no parts covers every entry of that resource for
// the tenant.
type Invalidator interface {
	Invalidate(tenant string, resource Resource, parts ...string)
}

// Key builds the canonical cache key for a (tenant, resource, parts)
// triple. Parts order is significant: a key is a prefix of every more
// specific variant.
func Key(tenant string, resource Resource, parts ...string) string {
	elems := append([]string{string(resource), tenant}, parts...)
	return strings.Join(elems, "/")
}

// ── Recorder (test double) ──────────────────────────

// Recorder is an Invalidator that remembers every signal it receives.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *Recorder) Invalidate(tenant string, resource Resource, parts ...string) {
	r.mu.Lock()
	r.calls = append(r.calls, Key(tenant, resource, parts...))
	r.mu.Unlock()
}

// Calls returns a copy of the recorded invalidation keys in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// ── TTL query cache ─────────────────────────────────

// DefaultTTL is how long cached query results stay fresh without an
// explicit invalidation.
const DefaultTTL = 5 * time.Minute

// QueryCache is a tenant-partitioned TTL cache of query results keyed
// by Key(). Invalidate removes the exact entry and every more specific
// variant under it, so invalidating a run detail also clears its
// per-attempt entries.
type QueryCache struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewQueryCache creates a query cache with the given TTL
// (DefaultTTL if zero) and starts its expiry loop.
func NewQueryCache(ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := ttlcache.New[string, []byte](
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &QueryCache{cache: c}
}

// Get returns the cached value for the key, if fresh.
func (q *QueryCache) Get(tenant string, resource Resource, parts ...string) ([]byte, bool) {
	item := q.cache.Get(Key(tenant, resource, parts...))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set stores a query result.
func (q *QueryCache) Set(tenant string, resource Resource, value []byte, parts ...string) {
	q.cache.Set(Key(tenant, resource, parts...), value, ttlcache.DefaultTTL)
}

// Invalidate implements Invalidator: it removes the keyed entry and
// every entry nested under it.
func (q *QueryCache) Invalidate(tenant string, resource Resource, parts ...string) {
	prefix := Key(tenant, resource, parts...)

	var stale []string
	q.cache.Range(func(item *ttlcache.Item[string, []byte]) bool {
		k := item.Key()
		if k == prefix || strings.HasPrefix(k, prefix+"/") {
			stale = append(stale, k)
		}
		return true
	})
	for _, k := range stale {
		q.cache.Delete(k)
	}
}

// Len returns the number of live entries.
func (q *QueryCache) Len() int { return q.cache.Len() }

// Stop halts the expiry loop.
func (q *QueryCache) Stop() { q.cache.Stop() }

var _ Invalidator = (*QueryCache)(nil)
var _ Invalidator = (*Recorder)(nil)
