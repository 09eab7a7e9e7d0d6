package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/rbac"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/logger"
)

var (
	// ErrMembershipNotFound indicates no membership matches in the tenant.
	ErrMembershipNotFound = apperrors.New("membership.not_found", "Membership not found", http.StatusNotFound)
	// ErrMembershipExists is returned when the user is already an active member.
	ErrMembershipExists = apperrors.New("membership.exists", "User is already a member of this organization", http.StatusConflict)
	// ErrLastOwner protects the final active owner of a tenant.
	ErrLastOwner = apperrors.New("membership.last_owner", "An organization must keep at least one active owner", http.StatusConflict)
	// ErrRoleNotAllowed is returned when the actor may not grant or alter the role.
	ErrRoleNotAllowed = apperrors.New("membership.role_not_allowed", "You cannot assign this role", http.StatusForbidden)
)

// AddMemberInput describes a direct membership grant by an administrator.
type AddMemberInput struct {
	TenantID string
	UserID   string
	Role     models.Role
}

// MembershipService owns every mutation of membership rows. Each mutation runs
// in a transaction and notifies the observers before it commits.
type MembershipService struct {
	db        *gorm.DB
	audit     *AuditService
	observers []rbac.MembershipObserver
	log       *zap.Logger
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(db *gorm.DB, audit *AuditService, observers ...rbac.MembershipObserver) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}
	return &MembershipService{
		db:        db,
		audit:     audit,
		observers: observers,
		log:       logger.WithModule("memberships"),
	}, nil
}

// Add grants userID a membership in the tenant. A previously deactivated row
// for the pair is reactivated with the new role.
func (s *MembershipService) Add(ctx context.Context, actorID string, input AddMemberInput) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	role, err := models.ParseRole(string(input.Role))
	if err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	var membership *models.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadActiveTenant(tx, input.TenantID); err != nil {
			return err
		}
		actor, err := authorizeTenantActor(tx, actorID, input.TenantID, models.RoleAdmin)
		if err != nil {
			return err
		}
		if err := checkGrantable(actor, role); err != nil {
			return err
		}

		var user models.User
		if err := tx.First(&user, "id = ?", strings.TrimSpace(input.UserID)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("membership service: load user: %w", err)
		}
		if !user.IsActive {
			return apperrors.NewBadRequest("user is inactive")
		}

		membership, err = s.grant(ctx, tx, input.TenantID, user.ID, role)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: input.TenantID,
		Action:   "membership.add",
		Resource: membership.ID,
		Result:   "success",
		Metadata: map[string]any{"user_id": membership.UserID, "role": membership.Role},
	})
	return membership, nil
}

// grant creates or reactivates the (user, tenant) membership within tx.
// Authorization is the caller's responsibility.
func (s *MembershipService) grant(ctx context.Context, tx *gorm.DB, tenantID, userID string, role models.Role) (*models.Membership, error) {
	var existing models.Membership
	err := tx.Where("user_id = ? AND tenant_id = ?", userID, tenantID).First(&existing).Error
	switch {
	case err == nil:
		if existing.IsActive {
			return nil, ErrMembershipExists
		}
		previous := existing
		if err := tx.Model(&existing).Updates(map[string]any{"role": role, "is_active": true}).Error; err != nil {
			return nil, fmt.Errorf("membership service: reactivate: %w", err)
		}
		existing.Role = role
		existing.IsActive = true
		if err := s.notify(ctx, tx, rbac.MembershipChange{Kind: rbac.MembershipUpdated, Membership: existing, Previous: &previous}); err != nil {
			return nil, err
		}
		return &existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("membership service: load membership: %w", err)
	}

	var count int64
	if err := tx.Model(&models.Membership{}).Where("user_id = ? AND is_active = ?", userID, true).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("membership service: count memberships: %w", err)
	}

	membership := &models.Membership{
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		IsActive:  true,
		IsDefault: count == 0,
	}
	if err := tx.Create(membership).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrMembershipExists
		}
		return nil, fmt.Errorf("membership service: create membership: %w", err)
	}
	if err := s.notify(ctx, tx, rbac.MembershipChange{Kind: rbac.MembershipCreated, Membership: *membership}); err != nil {
		return nil, err
	}
	return membership, nil
}

// ChangeRole moves a member to a new role.
func (s *MembershipService) ChangeRole(ctx context.Context, actorID, tenantID, membershipID string, role models.Role) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	role, err := models.ParseRole(string(role))
	if err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	var membership models.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleAdmin)
		if err != nil {
			return err
		}
		if err := loadTenantMembership(tx, tenantID, membershipID, &membership); err != nil {
			return err
		}
		if membership.Role == role {
			return nil
		}
		if err := checkGrantable(actor, role); err != nil {
			return err
		}
		if err := checkGrantable(actor, membership.Role); err != nil {
			return err
		}
		if membership.Role == models.RoleOwner && membership.IsActive {
			if err := ensureAnotherOwner(tx, tenantID, membership.ID); err != nil {
				return err
			}
		}

		previous := membership
		if err := tx.Model(&membership).Update("role", role).Error; err != nil {
			return fmt.Errorf("membership service: update role: %w", err)
		}
		membership.Role = role
		return s.notify(ctx, tx, rbac.MembershipChange{Kind: rbac.MembershipUpdated, Membership: membership, Previous: &previous})
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   "membership.change_role",
		Resource: membership.ID,
		Result:   "success",
		Metadata: map[string]any{"user_id": membership.UserID, "role": role},
	})
	return &membership, nil
}

// SetActive activates or deactivates a membership without deleting it.
func (s *MembershipService) SetActive(ctx context.Context, actorID, tenantID, membershipID string, active bool) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	var membership models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleAdmin)
		if err != nil {
			return err
		}
		if err := loadTenantMembership(tx, tenantID, membershipID, &membership); err != nil {
			return err
		}
		if membership.IsActive == active {
			return nil
		}
		if err := checkGrantable(actor, membership.Role); err != nil {
			return err
		}
		if !active && membership.Role == models.RoleOwner {
			if err := ensureAnotherOwner(tx, tenantID, membership.ID); err != nil {
				return err
			}
		}

		previous := membership
		if err := tx.Model(&membership).Update("is_active", active).Error; err != nil {
			return fmt.Errorf("membership service: update status: %w", err)
		}
		membership.IsActive = active
		return s.notify(ctx, tx, rbac.MembershipChange{Kind: rbac.MembershipUpdated, Membership: membership, Previous: &previous})
	})
	if err != nil {
		return nil, err
	}

	action := "membership.deactivate"
	if active {
		action = "membership.activate"
	}
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   action,
		Resource: membership.ID,
		Result:   "success",
	})
	return &membership, nil
}

// Remove deletes a membership. Members may always remove themselves, unless
// they are the last owner.
func (s *MembershipService) Remove(ctx context.Context, actorID, tenantID, membershipID string) error {
	ctx = ensureContext(ctx)

	var membership models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadTenantMembership(tx, tenantID, membershipID, &membership); err != nil {
			return err
		}
		if membership.UserID != strings.TrimSpace(actorID) {
			actor, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleAdmin)
			if err != nil {
				return err
			}
			if err := checkGrantable(actor, membership.Role); err != nil {
				return err
			}
		}
		if membership.Role == models.RoleOwner && membership.IsActive {
			if err := ensureAnotherOwner(tx, tenantID, membership.ID); err != nil {
				return err
			}
		}

		// Observers run while the row still exists; the change names it so
		// the recomputation leaves it out.
		if err := s.notify(ctx, tx, rbac.MembershipChange{Kind: rbac.MembershipDeleted, Membership: membership}); err != nil {
			return err
		}
		if err := tx.Delete(&membership).Error; err != nil {
			return fmt.Errorf("membership service: delete membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   "membership.remove",
		Resource: membership.ID,
		Result:   "success",
		Metadata: map[string]any{"user_id": membership.UserID, "role": membership.Role},
	})
	return nil
}

// Leave removes one of userID's own memberships. The last owner of a tenant
// cannot leave it.
func (s *MembershipService) Leave(ctx context.Context, userID, membershipID string) error {
	ctx = ensureContext(ctx)

	var membership models.Membership
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", membershipID, strings.TrimSpace(userID)).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("membership service: load membership: %w", err)
	}
	return s.Remove(ctx, userID, membership.TenantID, membership.ID)
}

// SetDefault flags one of userID's memberships as the default used by tenant
// resolution when several are active.
func (s *MembershipService) SetDefault(ctx context.Context, userID, membershipID string) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	var membership models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", membershipID, userID).First(&membership).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return fmt.Errorf("membership service: load membership: %w", err)
		}
		if !membership.IsActive {
			return apperrors.NewBadRequest("membership is inactive")
		}
		if err := tx.Model(&models.Membership{}).
			Where("user_id = ? AND id <> ?", userID, membership.ID).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("membership service: clear default: %w", err)
		}
		membership.IsDefault = true
		return tx.Model(&membership).Update("is_default", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// ListByTenant returns the tenant's memberships with their users.
func (s *MembershipService) ListByTenant(ctx context.Context, tenantID string) ([]models.Membership, error) {
	var memberships []models.Membership
	if err := s.db.WithContext(ensureContext(ctx)).
		Preload("User").
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("membership service: list tenant members: %w", err)
	}
	return memberships, nil
}

// ListForUser returns the user's memberships with their tenants.
func (s *MembershipService) ListForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	var memberships []models.Membership
	if err := s.db.WithContext(ensureContext(ctx)).
		Preload("Tenant").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("membership service: list user memberships: %w", err)
	}
	return memberships, nil
}

func (s *MembershipService) notify(ctx context.Context, tx *gorm.DB, change rbac.MembershipChange) error {
	for _, observer := range s.observers {
		if err := observer.MembershipChanged(ctx, tx, change); err != nil {
			s.log.Error("membership observer failed",
				zap.String("membership_id", change.Membership.ID),
				zap.String("change", string(change.Kind)),
				zap.Error(err),
			)
			return fmt.Errorf("membership service: notify: %w", err)
		}
	}
	return nil
}

func loadTenantMembership(tx *gorm.DB, tenantID, membershipID string, dest *models.Membership) error {
	err := tx.Where("id = ? AND tenant_id = ?", strings.TrimSpace(membershipID), tenantID).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMembershipNotFound
	}
	if err != nil {
		return fmt.Errorf("membership service: load membership: %w", err)
	}
	return nil
}

// checkGrantable requires the actor to rank at least as high as role, and to
// be an owner to touch the owner role at all.
func checkGrantable(actor *tenantActor, role models.Role) error {
	current := actor.Role()
	if role == models.RoleOwner && current != models.RoleOwner {
		return ErrRoleNotAllowed
	}
	if role.Rank() > current.Rank() {
		return ErrRoleNotAllowed
	}
	return nil
}

func ensureAnotherOwner(tx *gorm.DB, tenantID, excludeID string) error {
	var owners int64
	if err := tx.Model(&models.Membership{}).
		Where("tenant_id = ? AND role = ? AND is_active = ? AND id <> ?", tenantID, models.RoleOwner, true, excludeID).
		Count(&owners).Error; err != nil {
		return fmt.Errorf("membership service: count owners: %w", err)
	}
	if owners == 0 {
		return ErrLastOwner
	}
	return nil
}
