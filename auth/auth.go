// Package auth defines the authenticated-principal capability consumed
// by the Pulse transports. Session validation itself lives upstream;
// transports only need a Resolver that turns an opaque token into a
// tenant-scoped principal.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates credential resolution failure.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Principal is an authenticated caller with an organization scope.
type Principal struct {
	// Subject is the authenticated user or service id.
	Subject string `json:"subject"`

	// OrgID is the tenant every subscription and published event is
	// scoped to.
	OrgID string `json:"org_id"`

	// Scopes defines permitted operations, e.g. "subscribe",
	// "publish", "stats:read". "*" grants everything.
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope returns true if the principal holds the given scope.
// A wildcard "*" scope grants all permissions.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}

// Resolver validates a token and returns the principal it belongs to.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

// Scope constants recognized by the transports.
const (
	ScopeSubscribe = "subscribe"
	ScopePublish   = "publish"
	ScopeStatsRead = "stats:read"
	ScopeAll       = "*"
)

// ── Static token resolver ───────────────────────────

// TokenEntry maps a token to a principal.
type TokenEntry struct {
	Token     string
	Principal Principal
}

// StaticTokenResolver resolves tokens against a fixed table. Suitable
// for service-to-service producers and tests.
type StaticTokenResolver struct {
	tokens map[string]*Principal
}

// NewStaticTokenResolver creates a static token resolver.
func NewStaticTokenResolver(entries ...TokenEntry) *StaticTokenResolver {
	tokens := make(map[string]*Principal, len(entries))
	for _, e := range entries {
		p := e.Principal
		tokens[e.Token] = &p
	}
	return &StaticTokenResolver{tokens: tokens}
}

func (r *StaticTokenResolver) Resolve(_ context.Context, token string) (*Principal, error) {
	p, ok := r.tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return p, nil
}

// ── Allow-all resolver ──────────────────────────────

// AllowAllResolver accepts every token with a wildcard principal.
// Use for development only.
type AllowAllResolver struct {
	// OrgID is the tenant assigned to every caller.
	OrgID string
}

func (r *AllowAllResolver) Resolve(_ context.Context, _ string) (*Principal, error) {
	return &Principal{
		Subject: "anonymous",
		OrgID:   r.OrgID,
		Scopes:  []string{ScopeAll},
	}, nil
}

// ── Chain resolver ──────────────────────────────────

// ChainResolver tries multiple resolvers in order. The first
// successful resolution wins.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver chains multiple resolvers.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

func (c *ChainResolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	for _, r := range c.resolvers {
		p, err := r.Resolve(ctx, token)
		if err == nil {
			return p, nil
		}
	}
	return nil, ErrUnauthorized
}
