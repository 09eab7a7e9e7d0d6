package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func normaliseEmail(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", apperrors.NewBadRequest("email is required")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", apperrors.NewBadRequest("email is invalid")
	}
	return value, nil
}

// tenantActor is the acting user as seen from one tenant.
type tenantActor struct {
	User       models.User
	Membership *models.Membership
}

// Role returns the actor's effective role; operators act as owners.
func (a *tenantActor) Role() models.Role {
	if a.Membership != nil {
		return a.Membership.Role
	}
	if a.User.IsOperator {
		return models.RoleOwner
	}
	return ""
}

// authorizeTenantActor loads actorID and requires at least min in tenantID.
// Operators always pass.
func authorizeTenantActor(tx *gorm.DB, actorID, tenantID string, min models.Role) (*tenantActor, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	var user models.User
	if err := tx.First(&user, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if !user.IsActive {
		return nil, apperrors.ErrUnauthorized
	}

	actor := &tenantActor{User: user}
	var membership models.Membership
	err := tx.Where("user_id = ? AND tenant_id = ? AND is_active = ?", actorID, tenantID, true).First(&membership).Error
	switch {
	case err == nil:
		actor.Membership = &membership
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load actor membership: %w", err)
	}

	if user.IsOperator {
		return actor, nil
	}
	if actor.Membership == nil {
		return nil, apperrors.ErrTenantAccessDenied
	}
	if !actor.Role().AtLeast(min) {
		return nil, ErrInsufficientRole
	}
	return actor, nil
}

func loadActiveTenant(tx *gorm.DB, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := tx.First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTenantNotFound
		}
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, apperrors.ErrTenantNotFound
	}
	return &tenant, nil
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
