package plansfeatures

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const DefaultCacheTTL = time.Minute

type ResolverOptions struct {
	// AllowAll devuelve true sin consultar upstream (dev / self-hosted).
	AllowAll bool
	CacheTTL time.Duration
}

// Resolver decide si el plan del usuario habilita un canal de notificación
// ("notifications:<channel>"). Cachea por usuario para no pegarle a
// plans-features en cada dispatch.
type Resolver struct {
	client   *Client
	allowAll bool
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedCaps
}

type cachedCaps struct {
	ent     Entitlements
	expires time.Time
}

func NewResolver(client *Client, opts ResolverOptions) *Resolver {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		client:   client,
		allowAll: opts.AllowAll,
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]cachedCaps),
	}
}

// Has responde si userID tiene la capability. Sin upstream configurado falla
// explícito en vez de permitir sin control.
func (r *Resolver) Has(ctx context.Context, userID string, capability string) (bool, error) {
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return false, errors.New("capability required")
	}
	if r == nil {
		return false, ErrPlansNotConfigured
	}
	if r.allowAll {
		return true, nil
	}

	ent, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return ent.Allows(capability), nil
}

// Resolve devuelve las entitlements de notificación de userID (cacheadas).
func (r *Resolver) Resolve(ctx context.Context, userID string) (Entitlements, error) {
	if r.allowAll {
		return Entitlements{Plan: "dev", Capabilities: map[string]bool{"*": true}}, nil
	}
	if r.client == nil || !r.client.IsConfigured() {
		return Entitlements{}, ErrPlansNotConfigured
	}

	now := r.now()
	r.mu.Lock()
	if c, ok := r.cache[userID]; ok && now.Before(c.expires) {
		r.mu.Unlock()
		return c.ent, nil
	}
	r.mu.Unlock()

	ent, err := r.client.NotificationEntitlements(ctx, userID)
	if err != nil {
		return Entitlements{}, err
	}

	r.mu.Lock()
	r.cache[userID] = cachedCaps{ent: ent, expires: now.Add(r.ttl)}
	r.mu.Unlock()
	return ent, nil
}
