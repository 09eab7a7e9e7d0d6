package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
)

// ErrInactiveUser is returned when permissions are evaluated for a disabled account.
var ErrInactiveUser = errors.New("permission checker: user is inactive")

// Checker answers permission questions for a user within one tenant. Grants
// come exclusively from the user's permission groups in that tenant.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a permission checker backed by the provided database.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	return &Checker{db: db}, nil
}

// Check determines whether the user holds permissionID in tenantID,
// including every permission it depends on. Operators hold every permission.
func (c *Checker) Check(ctx context.Context, userID, tenantID, permissionID string) (bool, error) {
	ctx = ensureContext(ctx)

	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errors.New("permission checker: permission id is required")
	}
	if _, ok := Get(permissionID); !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownPermission, permissionID)
	}

	granted, err := c.effective(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrInactiveUser) {
			return false, nil
		}
		return false, err
	}

	dependencies, err := ResolveDependencies(permissionID)
	if err != nil {
		return false, err
	}
	for _, dep := range dependencies {
		if _, ok := granted[dep]; !ok {
			return false, nil
		}
	}

	_, ok := granted[permissionID]
	return ok, nil
}

// Granted returns the sorted permission identifiers the user holds in tenantID.
func (c *Checker) Granted(ctx context.Context, userID, tenantID string) ([]string, error) {
	granted, err := c.effective(ensureContext(ctx), userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrInactiveUser) {
			return []string{}, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(granted))
	for id := range granted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Checker) effective(ctx context.Context, userID, tenantID string) (map[string]struct{}, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" {
		return nil, errors.New("permission checker: user id is required")
	}
	if tenantID == "" {
		return nil, errors.New("permission checker: tenant id is required")
	}

	var user models.User
	if err := c.db.WithContext(ctx).Select("id", "is_active", "is_operator").First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("permission checker: load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	if user.IsOperator {
		return expandImplied(IDs())
	}

	var ids []string
	err := c.db.WithContext(ctx).
		Table("group_permissions").
		Joins("JOIN user_permission_groups ON user_permission_groups.permission_group_id = group_permissions.permission_group_id").
		Where("user_permission_groups.user_id = ? AND user_permission_groups.tenant_id = ?", userID, tenantID).
		Distinct().
		Pluck("group_permissions.permission_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("permission checker: load grants: %w", err)
	}
	return expandImplied(ids)
}

func expandImplied(ids []string) (map[string]struct{}, error) {
	perms := make(map[string]struct{})

	var visit func(string) error
	visit = func(id string) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil
		}
		if _, exists := perms[id]; exists {
			return nil
		}

		def, ok := Get(id)
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownPermission, id)
		}

		perms[id] = struct{}{}
		for _, implied := range def.Implies {
			if err := visit(implied); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return perms, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
