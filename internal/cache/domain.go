package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the key/value backend behind the domain cache. RedisStore is the
// production implementation.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// DefaultDomainTTL bounds how long a binding is trusted without a database read.
const DefaultDomainTTL = 5 * time.Minute

const domainKeyPrefix = "tenancy:domain:"

// DomainCache memoises domain to tenant id bindings in a Store. It satisfies
// tenancy.DomainCache.
type DomainCache struct {
	store Store
	ttl   time.Duration
}

// NewDomainCache wraps store. A non-positive ttl uses DefaultDomainTTL.
func NewDomainCache(store Store, ttl time.Duration) (*DomainCache, error) {
	if store == nil {
		return nil, errors.New("domain cache: store is required")
	}
	if ttl <= 0 {
		ttl = DefaultDomainTTL
	}
	return &DomainCache{store: store, ttl: ttl}, nil
}

// Lookup returns the cached tenant id for domain.
func (c *DomainCache) Lookup(ctx context.Context, domain string) (string, bool, error) {
	value, ok, err := c.store.Get(ctx, domainKey(domain))
	if err != nil || !ok || len(value) == 0 {
		return "", false, err
	}
	return string(value), true, nil
}

// Store records the binding of domain to tenantID.
func (c *DomainCache) Store(ctx context.Context, domain, tenantID string) error {
	return c.store.Set(ctx, domainKey(domain), []byte(tenantID), c.ttl)
}

// Invalidate drops the cached binding for domain.
func (c *DomainCache) Invalidate(ctx context.Context, domain string) error {
	return c.store.Delete(ctx, domainKey(domain))
}

func domainKey(domain string) string {
	return domainKeyPrefix + strings.ToLower(strings.TrimSpace(domain))
}
