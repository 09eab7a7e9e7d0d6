package app

import (
	"strings"

	"github.com/charlesng35/bizcore/internal/tenancy"
)

// ResolverOptions converts TenancyConfig into resolver options.
func (c TenancyConfig) ResolverOptions() []tenancy.ResolverOption {
	return []tenancy.ResolverOption{
		tenancy.WithBaseDomains(c.BaseDomains...),
		tenancy.WithDefaultMembership(c.AllowDefaultMembership),
	}
}

// HeaderName returns the explicit tenant header, defaulting to X-Tenant-ID.
func (c TenancyConfig) HeaderName() string {
	if header := strings.TrimSpace(c.Header); header != "" {
		return header
	}
	return "X-Tenant-ID"
}
