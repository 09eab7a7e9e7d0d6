package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/pkg/logger"
	"github.com/charlesng35/bizcore/pkg/metrics"
)

// Signals are the request attributes the resolver considers, in precedence order.
type Signals struct {
	// TenantRef is an explicit tenant id or slug, e.g. from the X-Tenant-ID header.
	TenantRef string
	Host      string
	// UserID is empty for anonymous requests.
	UserID string
}

// DomainCache memoises domain to tenant id lookups.
type DomainCache interface {
	Lookup(ctx context.Context, domain string) (string, bool, error)
	Store(ctx context.Context, domain, tenantID string) error
	Invalidate(ctx context.Context, domain string) error
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithDomainCache enables caching of domain bindings.
func WithDomainCache(cache DomainCache) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithBaseDomains lists the platform's own parent domains. An unbound
// subdomain of one of them fails with ErrTenantNotFound instead of falling
// through to membership based resolution.
func WithBaseDomains(domains ...string) ResolverOption {
	return func(r *Resolver) {
		for _, d := range domains {
			if d = NormaliseHost(d); d != "" {
				r.baseDomains = append(r.baseDomains, d)
			}
		}
	}
}

// WithDefaultMembership lets a user with several memberships fall back to the
// one flagged as default. Disabled unless configured.
func WithDefaultMembership(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.allowDefault = enabled
	}
}

// Resolver determines the active tenant of a request. It is stateless; the
// result travels in the request context.
type Resolver struct {
	db           *gorm.DB
	cache        DomainCache
	baseDomains  []string
	allowDefault bool
	log          *zap.Logger
}

// NewResolver constructs a Resolver backed by db.
func NewResolver(db *gorm.DB, opts ...ResolverOption) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("tenant resolver: db is required")
	}
	r := &Resolver{db: db, log: logger.WithModule("tenancy")}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve applies, in order: the explicit tenant signal, the domain binding and
// the caller's sole active membership. The first signal present decides; a
// failure is never turned into an unscoped result.
func (r *Resolver) Resolve(ctx context.Context, sig Signals) (*Resolution, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	res, source, err := r.resolve(ctx, sig)
	metrics.TenantResolutions.WithLabelValues(string(source), outcomeLabel(err)).Inc()
	if err != nil {
		r.log.Debug("tenant resolution failed",
			zap.String("source", string(source)),
			zap.String("user_id", sig.UserID),
			zap.String("host", sig.Host),
			zap.Error(err),
		)
		return nil, err
	}

	res.Source = source
	res.UserID = sig.UserID
	r.log.Debug("tenant resolved",
		zap.String("tenant_id", res.Tenant.ID),
		zap.String("source", string(source)),
		zap.String("user_id", sig.UserID),
	)
	return res, nil
}

// InvalidateDomain drops a cached domain binding.
func (r *Resolver) InvalidateDomain(ctx context.Context, domain string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, NormaliseHost(domain)); err != nil {
		r.log.Warn("domain cache invalidate failed", zap.String("domain", domain), zap.Error(err))
	}
}

func (r *Resolver) resolve(ctx context.Context, sig Signals) (*Resolution, Source, error) {
	user, err := r.loadUser(ctx, sig.UserID)
	if err != nil {
		return nil, "", err
	}

	if ref := strings.TrimSpace(sig.TenantRef); ref != "" {
		res, err := r.fromExplicit(ctx, ref, user)
		return res, SourceHeader, err
	}

	if host := NormaliseHost(sig.Host); host != "" {
		res, matched, err := r.fromDomain(ctx, host, user)
		if matched {
			return res, SourceDomain, err
		}
	}

	if user == nil {
		return nil, "", ErrTenantNotFound
	}
	return r.fromMemberships(ctx, user)
}

func (r *Resolver) fromExplicit(ctx context.Context, ref string, user *models.User) (*Resolution, error) {
	if user == nil {
		return nil, ErrTenantAccessDenied
	}

	query := r.db.WithContext(ctx).Where("slug = ?", strings.ToLower(ref))
	if _, err := uuid.Parse(ref); err == nil {
		query = r.db.WithContext(ctx).Where("id = ?", ref)
	}

	var tenant models.Tenant
	err := query.First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant resolver: load tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, ErrTenantNotFound
	}
	return r.authorise(ctx, tenant, user)
}

// fromDomain reports matched=true when the host decides the outcome, either
// through a binding or because it is an unbound platform subdomain.
func (r *Resolver) fromDomain(ctx context.Context, host string, user *models.User) (*Resolution, bool, error) {
	tenantID, err := r.lookupDomain(ctx, host)
	if err != nil {
		return nil, true, err
	}
	if tenantID == "" {
		if r.isPlatformSubdomain(host) {
			return nil, true, ErrTenantNotFound
		}
		return nil, false, nil
	}

	var tenant models.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.InvalidateDomain(ctx, host)
			return nil, true, ErrTenantNotFound
		}
		return nil, true, fmt.Errorf("tenant resolver: load tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, true, ErrTenantNotFound
	}

	if user == nil {
		return &Resolution{Tenant: tenant}, true, nil
	}
	res, err := r.authorise(ctx, tenant, user)
	return res, true, err
}

func (r *Resolver) fromMemberships(ctx context.Context, user *models.User) (*Resolution, Source, error) {
	var memberships []models.Membership
	err := r.db.WithContext(ctx).
		Joins("JOIN tenants ON tenants.id = memberships.tenant_id AND tenants.is_active = ?", true).
		Where("memberships.user_id = ? AND memberships.is_active = ?", user.ID, true).
		Preload("Tenant").
		Order("memberships.created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, SourceMembership, fmt.Errorf("tenant resolver: list memberships: %w", err)
	}

	switch len(memberships) {
	case 0:
		return nil, SourceMembership, ErrTenantNotFound
	case 1:
		return membershipResolution(memberships[0]), SourceMembership, nil
	}

	if r.allowDefault {
		var chosen *models.Membership
		for i := range memberships {
			if !memberships[i].IsDefault {
				continue
			}
			if chosen != nil {
				return nil, SourceDefaultMembership, ErrTenantAmbiguous
			}
			chosen = &memberships[i]
		}
		if chosen != nil {
			return membershipResolution(*chosen), SourceDefaultMembership, nil
		}
	}
	return nil, SourceMembership, ErrTenantAmbiguous
}

// authorise admits an active member of tenant or an active operator.
func (r *Resolver) authorise(ctx context.Context, tenant models.Tenant, user *models.User) (*Resolution, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND is_active = ?", user.ID, tenant.ID, true).
		First(&membership).Error
	switch {
	case err == nil:
		return &Resolution{Tenant: tenant, Membership: &membership}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("tenant resolver: load membership: %w", err)
	case user.IsOperator:
		return &Resolution{Tenant: tenant}, nil
	default:
		return nil, ErrTenantAccessDenied
	}
}

func (r *Resolver) loadUser(ctx context.Context, userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("tenant resolver: load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrTenantAccessDenied
	}
	return &user, nil
}

func (r *Resolver) lookupDomain(ctx context.Context, host string) (string, error) {
	if r.cache != nil {
		id, found, err := r.cache.Lookup(ctx, host)
		if err != nil {
			r.log.Warn("domain cache lookup failed", zap.String("domain", host), zap.Error(err))
		} else if found {
			return id, nil
		}
	}

	var binding models.TenantDomain
	err := r.db.WithContext(ctx).Where("domain = ?", host).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tenant resolver: lookup domain: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Store(ctx, host, binding.TenantID); err != nil {
			r.log.Warn("domain cache store failed", zap.String("domain", host), zap.Error(err))
		}
	}
	return binding.TenantID, nil
}

func (r *Resolver) isPlatformSubdomain(host string) bool {
	for _, base := range r.baseDomains {
		if strings.HasSuffix(host, "."+base) {
			return true
		}
	}
	return false
}

func membershipResolution(m models.Membership) *Resolution {
	res := &Resolution{Membership: &m}
	if m.Tenant != nil {
		res.Tenant = *m.Tenant
	}
	return res
}

// NormaliseHost lower-cases host and strips any port and trailing dot.
func NormaliseHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(host, ".")
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrTenantNotFound):
		return "not_found"
	case errors.Is(err, ErrTenantAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrTenantAmbiguous):
		return "ambiguous"
	default:
		return "error"
	}
}
