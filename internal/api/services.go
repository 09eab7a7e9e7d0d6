package api

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/app"
	"github.com/charlesng35/bizcore/internal/auth"
	"github.com/charlesng35/bizcore/internal/monitoring"
	"github.com/charlesng35/bizcore/internal/monitoring/checks"
	"github.com/charlesng35/bizcore/internal/permissions"
	"github.com/charlesng35/bizcore/internal/rbac"
	"github.com/charlesng35/bizcore/internal/security"
	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/internal/tenancy"
	"github.com/charlesng35/bizcore/pkg/mail"
)

// Dependencies are the optional collaborators of the service graph.
type Dependencies struct {
	// Mailer delivers invitations. Nil leaves the inviter as the only channel.
	Mailer mail.Mailer
	// DomainCache memoises domain bindings for the resolver.
	DomainCache tenancy.DomainCache
	// InvitationOptions are appended after the configured ones.
	InvitationOptions []services.InvitationOption
}

// Services is the wired service graph shared by the HTTP router and the
// maintenance scheduler.
type Services struct {
	DB          *gorm.DB
	Config      *app.Config
	Tokens      *auth.TokenService
	Resolver    *tenancy.Resolver
	Checker     *permissions.Checker
	Reconciler  *rbac.Reconciler
	Audit       *services.AuditService
	Users       *services.UserService
	Memberships *services.MembershipService
	Invitations *services.InvitationService
	Tenants     *services.TenantService
	Suppliers   *services.SupplierService
	Health      *monitoring.HealthManager
	Security    *security.AuditService
}

// NewServices builds every service from cfg. Isolation violations detected by
// the database guard are recorded in the audit log.
func NewServices(db *gorm.DB, cfg *app.Config, deps Dependencies) (*Services, error) {
	if db == nil {
		return nil, errors.New("database handle must be provided")
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}

	s := &Services{
		DB:     db,
		Config: cfg,
		Health:   monitoring.NewHealthManager(checks.Database(db, 0), checks.Isolation(db)),
		Security: security.NewAuditService(db, cfg),
	}
	var err error

	if s.Tokens, err = auth.NewTokenService(cfg.Auth.TokenServiceConfig()); err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	resolverOpts := cfg.Tenancy.ResolverOptions()
	if deps.DomainCache != nil {
		resolverOpts = append(resolverOpts, tenancy.WithDomainCache(deps.DomainCache))
	}
	if s.Resolver, err = tenancy.NewResolver(db, resolverOpts...); err != nil {
		return nil, err
	}
	if s.Checker, err = permissions.NewChecker(db); err != nil {
		return nil, err
	}
	if s.Reconciler, err = rbac.NewReconciler(db); err != nil {
		return nil, err
	}
	if s.Audit, err = services.NewAuditService(db); err != nil {
		return nil, err
	}
	if guard, ok := tenancy.GuardOf(db); ok {
		guard.SetViolationHandler(s.Audit.ViolationRecorder())
	}

	if s.Users, err = services.NewUserService(db, s.Audit); err != nil {
		return nil, err
	}
	if s.Memberships, err = services.NewMembershipService(db, s.Audit, s.Reconciler); err != nil {
		return nil, err
	}

	key, err := cfg.Invitations.Key()
	if err != nil {
		return nil, err
	}
	invitationOpts := append(cfg.Invitations.ServiceOptions(), services.WithInvitationAudit(s.Audit))
	if deps.Mailer != nil {
		invitationOpts = append(invitationOpts, services.WithInvitationMailer(deps.Mailer))
	}
	invitationOpts = append(invitationOpts, deps.InvitationOptions...)
	if s.Invitations, err = services.NewInvitationService(db, s.Memberships, key, invitationOpts...); err != nil {
		return nil, err
	}

	if s.Tenants, err = services.NewTenantService(db, s.Invitations, s.Reconciler, s.Resolver, s.Audit); err != nil {
		return nil, err
	}
	if s.Suppliers, err = services.NewSupplierService(db, s.Checker, s.Audit); err != nil {
		return nil, err
	}
	return s, nil
}
