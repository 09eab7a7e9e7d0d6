package tenancy

import (
	"context"

	"github.com/charlesng35/bizcore/internal/models"
)

// Source names the signal that resolved a tenant.
type Source string

const (
	SourceHeader            Source = "header"
	SourceDomain            Source = "domain"
	SourceMembership        Source = "membership"
	SourceDefaultMembership Source = "default_membership"
)

// Resolution is the request-scoped outcome of tenant resolution.
type Resolution struct {
	Tenant models.Tenant
	// Membership is nil for operators acting without a membership and for
	// anonymous requests resolved by domain.
	Membership *models.Membership
	Source     Source
	UserID     string
}

// TenantID returns the resolved tenant identifier.
func (r *Resolution) TenantID() string {
	if r == nil {
		return ""
	}
	return r.Tenant.ID
}

// Role returns the caller's role in the resolved tenant, if any.
func (r *Resolution) Role() (models.Role, bool) {
	if r == nil || r.Membership == nil {
		return "", false
	}
	return r.Membership.Role, true
}

type resolutionKey struct{}

// WithResolution attaches res to ctx.
func WithResolution(ctx context.Context, res *Resolution) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, resolutionKey{}, res)
}

// FromContext returns the resolution attached to ctx.
func FromContext(ctx context.Context) (*Resolution, bool) {
	if ctx == nil {
		return nil, false
	}
	res, ok := ctx.Value(resolutionKey{}).(*Resolution)
	if !ok || res == nil || res.Tenant.ID == "" {
		return nil, false
	}
	return res, true
}

// TenantIDFrom returns the resolved tenant id or ErrNoTenant.
func TenantIDFrom(ctx context.Context) (string, error) {
	res, ok := FromContext(ctx)
	if !ok {
		return "", ErrNoTenant
	}
	return res.Tenant.ID, nil
}
