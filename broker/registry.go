package broker

import "sync"

// Registry tracks live subscriptions partitioned by tenant.
// It is safe for concurrent use. Mutation holds the lock only for the
// duration of the map update; fan-out iterates over snapshots so no
// lock is ever held across sink I/O.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]map[string]*Subscription // tenant → connID → subscription
	count   int
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		tenants: make(map[string]map[string]*Subscription),
	}
}

// Add registers a subscription under its tenant.
func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.tenants[sub.Tenant()]
	if !ok {
		subs = make(map[string]*Subscription)
		r.tenants[sub.Tenant()] = subs
	}
	if _, exists := subs[sub.ID()]; !exists {
		r.count++
	}
	subs[sub.ID()] = sub
}

// Remove unregisters a subscription. Idempotent: removing an unknown
// id is a no-op. Returns the subscription if it was present.
func (r *Registry) Remove(tenant, connID string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.tenants[tenant]
	if !ok {
		return nil, false
	}
	sub, exists := subs[connID]
	if !exists {
		return nil, false
	}
	delete(subs, connID)
	r.count--
	if len(subs) == 0 {
		delete(r.tenants, tenant)
	}
	return sub, true
}

// Snapshot returns a copy of the tenant's subscriptions for lock-free
// iteration during fan-out.
func (r *Registry) Snapshot(tenant string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.tenants[tenant]
	out := make([]*Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

// All returns a copy of every live subscription across tenants.
// Used for heartbeat fan-out and shutdown.
func (r *Registry) All() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscription, 0, r.count)
	for _, subs := range r.tenants {
		for _, s := range subs {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the total number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// TenantLen returns the number of live subscriptions for one tenant.
func (r *Registry) TenantLen(tenant string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants[tenant])
}
