package app

import (
	"strings"
	"time"

	"github.com/charlesng35/bizcore/internal/cache"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// DomainTTL returns the domain binding cache lifetime.
func (c CacheConfig) DomainTTL() time.Duration {
	if c.Redis.DomainTTL <= 0 {
		return cache.DefaultDomainTTL
	}
	return c.Redis.DomainTTL
}
