package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/tenancy"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/validator"
)

var (
	ErrSlugTaken      = apperrors.New("tenant.slug_taken", "Slug is already in use", http.StatusConflict)
	ErrSlugLocked     = apperrors.New("tenant.slug_locked", "Slug cannot change once a domain is bound", http.StatusConflict)
	ErrDomainTaken    = apperrors.New("tenant.domain_taken", "Domain is already bound to an organization", http.StatusConflict)
	ErrDomainNotFound = apperrors.New("tenant.domain_not_found", "Domain not found", http.StatusNotFound)
	ErrInvalidSlug    = apperrors.New("tenant.invalid_slug", "Slug may contain lower-case letters, digits and single hyphens", http.StatusBadRequest)
	ErrInvalidDomain  = apperrors.New("tenant.invalid_domain", "Domain must be a fully-qualified host name", http.StatusBadRequest)
	ErrTenantInactive = apperrors.New("tenant.inactive", "Organization is deactivated", http.StatusConflict)
)

// TenantReconciler recomputes derived permission state for every member of a
// tenant whose active flag changed.
type TenantReconciler interface {
	ReconcileTenant(ctx context.Context, tx *gorm.DB, tenantID string) error
}

// DomainInvalidator drops cached domain bindings.
type DomainInvalidator interface {
	InvalidateDomain(ctx context.Context, domain string)
}

// ProvisionTenantInput describes a new tenant.
type ProvisionTenantInput struct {
	Name       string
	Slug       string
	Domains    []string
	OwnerEmail string
	Message    string
}

// ProvisionedTenant is the result of Provision. Invitation is nil when no
// owner email was supplied.
type ProvisionedTenant struct {
	Tenant     *models.Tenant
	Invitation *IssuedInvitation
}

// UpdateTenantInput lists mutable tenant attributes.
type UpdateTenantInput struct {
	Name     *string
	Slug     *string
	Settings map[string]any
}

// TenantService manages tenants and their domain bindings.
type TenantService struct {
	db          *gorm.DB
	invitations *InvitationService
	reconciler  TenantReconciler
	domains     DomainInvalidator
	audit       *AuditService
	now         func() time.Time
}

// NewTenantService constructs a TenantService. domains may be nil when no
// domain cache is in use.
func NewTenantService(db *gorm.DB, invitations *InvitationService, reconciler TenantReconciler, domains DomainInvalidator, audit *AuditService) (*TenantService, error) {
	if db == nil {
		return nil, errors.New("tenant service: db is required")
	}
	if invitations == nil {
		return nil, errors.New("tenant service: invitation service is required")
	}
	if reconciler == nil {
		return nil, errors.New("tenant service: reconciler is required")
	}
	return &TenantService{
		db:          db,
		invitations: invitations,
		reconciler:  reconciler,
		domains:     domains,
		audit:       audit,
		now:         time.Now,
	}, nil
}

// Provision creates a tenant with optional domains and, when OwnerEmail is
// set, the invitation for its first owner. Operators only.
func (s *TenantService) Provision(ctx context.Context, actorID string, input ProvisionTenantInput) (*ProvisionedTenant, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if !validator.IsSlug(slug) {
		return nil, ErrInvalidSlug
	}
	domains, err := normaliseDomains(input.Domains)
	if err != nil {
		return nil, err
	}

	var (
		result   ProvisionedTenant
		operator *models.User
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		operator, err = requireOperator(tx, actorID)
		if err != nil {
			return err
		}

		tenant := &models.Tenant{Name: name, Slug: slug, IsActive: true}
		if err := tx.Create(tenant).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrSlugTaken
			}
			return fmt.Errorf("tenant service: create tenant: %w", err)
		}
		for i, domain := range domains {
			binding := models.TenantDomain{TenantID: tenant.ID, Domain: domain, IsPrimary: i == 0}
			if err := tx.Create(&binding).Error; err != nil {
				if isUniqueConstraintError(err) {
					return ErrDomainTaken
				}
				return fmt.Errorf("tenant service: bind domain: %w", err)
			}
			tenant.Domains = append(tenant.Domains, binding)
		}
		result.Tenant = tenant

		if strings.TrimSpace(input.OwnerEmail) == "" {
			return nil
		}
		result.Invitation, err = s.invitations.issueTx(tx, tenant.ID, operator.ID, input.OwnerEmail, models.RoleOwner, input.Message)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Invitation != nil {
		result.Invitation.Delivered = s.invitations.deliver(ctx, result.Invitation.Invitation, result.Invitation.Token, result.Tenant.Name, operator.DisplayName())
	}
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: result.Tenant.ID,
		Action:   "tenant.provision",
		Resource: result.Tenant.ID,
		Result:   "success",
		Metadata: map[string]any{"slug": slug, "domains": domains, "owner_invited": result.Invitation != nil},
	})
	return &result, nil
}

// Get loads a tenant with its domains.
func (s *TenantService) Get(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.WithContext(ensureContext(ctx)).Preload("Domains").First(&tenant, "id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant service: get tenant: %w", err)
	}
	return &tenant, nil
}

// Update changes the tenant's name, settings or slug. The slug is frozen once
// any domain is bound.
func (s *TenantService) Update(ctx context.Context, actorID, tenantID string, input UpdateTenantInput) (*models.Tenant, error) {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := loadActiveTenant(tx, tenantID)
		if err != nil {
			return err
		}
		if _, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleOwner); err != nil {
			return err
		}

		updates := map[string]any{}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return apperrors.NewBadRequest("name cannot be empty")
			}
			updates["name"] = name
		}
		if input.Slug != nil {
			slug := strings.ToLower(strings.TrimSpace(*input.Slug))
			if !validator.IsSlug(slug) {
				return ErrInvalidSlug
			}
			if slug != tenant.Slug {
				var bound int64
				if err := tx.Model(&models.TenantDomain{}).Where("tenant_id = ?", tenantID).Count(&bound).Error; err != nil {
					return fmt.Errorf("tenant service: count domains: %w", err)
				}
				if bound > 0 {
					return ErrSlugLocked
				}
				updates["slug"] = slug
			}
		}
		if input.Settings != nil {
			encoded, err := json.Marshal(input.Settings)
			if err != nil {
				return apperrors.NewBadRequest("settings must be a JSON object")
			}
			updates["settings"] = datatypes.JSON(encoded)
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(tenant).Updates(updates).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrSlugTaken
			}
			return fmt.Errorf("tenant service: update tenant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   "tenant.update",
		Resource: tenantID,
		Result:   "success",
	})
	return s.Get(ctx, tenantID)
}

// BindDomain attaches a globally unique domain to the tenant.
func (s *TenantService) BindDomain(ctx context.Context, actorID, tenantID, domain string, primary bool) (*models.TenantDomain, error) {
	ctx = ensureContext(ctx)

	host := tenancy.NormaliseHost(domain)
	if !validator.IsHostname(host) {
		return nil, ErrInvalidDomain
	}

	var binding models.TenantDomain
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadActiveTenant(tx, tenantID); err != nil {
			return err
		}
		if _, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleOwner); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.TenantDomain{}).Where("tenant_id = ?", tenantID).Count(&existing).Error; err != nil {
			return fmt.Errorf("tenant service: count domains: %w", err)
		}
		primary = primary || existing == 0
		if primary {
			if err := tx.Model(&models.TenantDomain{}).Where("tenant_id = ?", tenantID).Update("is_primary", false).Error; err != nil {
				return fmt.Errorf("tenant service: clear primary: %w", err)
			}
		}

		binding = models.TenantDomain{TenantID: tenantID, Domain: host, IsPrimary: primary}
		if err := tx.Create(&binding).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrDomainTaken
			}
			return fmt.Errorf("tenant service: bind domain: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, host)
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   "tenant.domain.bind",
		Resource: binding.ID,
		Result:   "success",
		Metadata: map[string]any{"domain": host},
	})
	return &binding, nil
}

// UnbindDomain removes a domain binding from the tenant.
func (s *TenantService) UnbindDomain(ctx context.Context, actorID, tenantID, domainID string) error {
	ctx = ensureContext(ctx)

	var binding models.TenantDomain
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleOwner); err != nil {
			return err
		}
		if err := tx.Where("id = ? AND tenant_id = ?", domainID, tenantID).First(&binding).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDomainNotFound
			}
			return fmt.Errorf("tenant service: load domain: %w", err)
		}
		if err := tx.Delete(&binding).Error; err != nil {
			return fmt.Errorf("tenant service: unbind domain: %w", err)
		}
		if binding.IsPrimary {
			var next models.TenantDomain
			err := tx.Where("tenant_id = ?", tenantID).Order("created_at ASC").First(&next).Error
			if err == nil {
				return tx.Model(&next).Update("is_primary", true).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("tenant service: promote domain: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, binding.Domain)
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   "tenant.domain.unbind",
		Resource: binding.ID,
		Result:   "success",
		Metadata: map[string]any{"domain": binding.Domain},
	})
	return nil
}

// Deactivate switches the tenant off. Its members keep their rows, but the
// reconciler withdraws every group and elevated flag the tenant conferred.
func (s *TenantService) Deactivate(ctx context.Context, actorID, tenantID string) error {
	return s.setActive(ctx, actorID, tenantID, false)
}

// Activate reverses Deactivate. Operators only.
func (s *TenantService) Activate(ctx context.Context, actorID, tenantID string) error {
	return s.setActive(ctx, actorID, tenantID, true)
}

func (s *TenantService) setActive(ctx context.Context, actorID, tenantID string, active bool) error {
	ctx = ensureContext(ctx)

	var domains []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant models.Tenant
		if err := tx.First(&tenant, "id = ?", tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrTenantNotFound
			}
			return fmt.Errorf("tenant service: load tenant: %w", err)
		}
		if active {
			if _, err := requireOperator(tx, actorID); err != nil {
				return err
			}
		} else {
			if !tenant.IsActive {
				return ErrTenantInactive
			}
			if _, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleOwner); err != nil {
				return err
			}
		}
		if tenant.IsActive == active {
			return nil
		}

		updates := map[string]any{"is_active": active, "deactivated_at": nil}
		if !active {
			updates["deactivated_at"] = s.now()
		}
		if err := tx.Model(&tenant).Updates(updates).Error; err != nil {
			return fmt.Errorf("tenant service: update status: %w", err)
		}
		if err := tx.Model(&models.TenantDomain{}).Where("tenant_id = ?", tenantID).Pluck("domain", &domains).Error; err != nil {
			return fmt.Errorf("tenant service: list domains: %w", err)
		}
		return s.reconciler.ReconcileTenant(ctx, tx, tenantID)
	})
	if err != nil {
		return err
	}

	for _, domain := range domains {
		s.invalidate(ctx, domain)
	}
	action := "tenant.deactivate"
	if active {
		action = "tenant.activate"
	}
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   action,
		Resource: tenantID,
		Result:   "success",
	})
	return nil
}

func (s *TenantService) invalidate(ctx context.Context, domain string) {
	if s.domains != nil {
		s.domains.InvalidateDomain(ctx, domain)
	}
}

func requireOperator(tx *gorm.DB, actorID string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", strings.TrimSpace(actorID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if !user.IsActive || !user.IsOperator {
		return nil, ErrOperatorRequired
	}
	return &user, nil
}

func normaliseDomains(values []string) ([]string, error) {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		host := tenancy.NormaliseHost(value)
		if host == "" {
			continue
		}
		if !validator.IsHostname(host) {
			return nil, ErrInvalidDomain.WithMessage(fmt.Sprintf("%q is not a fully-qualified host name", value))
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out, nil
}
