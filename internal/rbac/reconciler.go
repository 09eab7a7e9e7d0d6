package rbac

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/pkg/logger"
	"github.com/charlesng35/bizcore/pkg/metrics"
)

// Reconciler keeps each user's elevated-access flag and permission group
// assignments equal to a projection of their active memberships.
type Reconciler struct {
	db        *gorm.DB
	log       *zap.Logger
	batchSize int
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithBatchSize sets how many users AuditAll loads per batch.
func WithBatchSize(size int) Option {
	return func(r *Reconciler) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// NewReconciler constructs a Reconciler.
func NewReconciler(db *gorm.DB, opts ...Option) (*Reconciler, error) {
	if db == nil {
		return nil, errors.New("reconciler: db is required")
	}
	r := &Reconciler{db: db, log: logger.WithModule("rbac"), batchSize: 200}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MembershipChanged implements MembershipObserver. A deleted membership is
// excluded explicitly so the recomputation never counts the row being removed.
func (r *Reconciler) MembershipChanged(ctx context.Context, tx *gorm.DB, change MembershipChange) error {
	exclude := ""
	if change.Kind == MembershipDeleted {
		exclude = change.Membership.ID
	}
	_, err := r.ReconcileTx(ctx, tx, change.Membership.UserID, exclude)
	metrics.RoleReconciliations.WithLabelValues("membership_"+string(change.Kind), resultLabel(err)).Inc()
	if err != nil {
		return err
	}
	r.log.Debug("membership reconciled",
		zap.String("user_id", change.Membership.UserID),
		zap.String("tenant_id", change.Membership.TenantID),
		zap.String("change", string(change.Kind)),
	)
	return nil
}

// Reconcile recomputes derived state for userID in its own transaction.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (State, error) {
	var state State
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = r.reconcile(ctx, tx, userID, "")
		return err
	})
	metrics.RoleReconciliations.WithLabelValues("manual", resultLabel(err)).Inc()
	return state, err
}

// ReconcileTx recomputes derived state for userID within tx, ignoring the
// membership excludeMembershipID.
func (r *Reconciler) ReconcileTx(ctx context.Context, tx *gorm.DB, userID, excludeMembershipID string) (State, error) {
	return r.reconcile(ctx, tx, userID, excludeMembershipID)
}

// ReconcileTenant recomputes every user holding a membership in tenantID.
// Used when the tenant itself is activated or deactivated.
func (r *Reconciler) ReconcileTenant(ctx context.Context, tx *gorm.DB, tenantID string) error {
	var userIDs []string
	if err := tx.WithContext(ctx).Model(&models.Membership{}).
		Where("tenant_id = ?", tenantID).
		Distinct().
		Pluck("user_id", &userIDs).Error; err != nil {
		return fmt.Errorf("reconciler: list tenant members: %w", err)
	}

	for _, userID := range userIDs {
		if _, err := r.ReconcileTx(ctx, tx, userID, ""); err != nil {
			return err
		}
	}
	metrics.RoleReconciliations.WithLabelValues("tenant", "ok").Add(float64(len(userIDs)))
	return nil
}

// Verify compares stored derived state for userID against its memberships
// without writing anything.
func (r *Reconciler) Verify(ctx context.Context, userID string) (Drift, error) {
	tx := r.db.WithContext(ctx)

	var user models.User
	if err := tx.Select("id", "has_elevated_access").First(&user, "id = ?", userID).Error; err != nil {
		return Drift{}, fmt.Errorf("reconciler: load user: %w", err)
	}
	memberships, err := loadMemberships(tx, userID)
	if err != nil {
		return Drift{}, err
	}
	actual, err := assignedGroups(tx, userID)
	if err != nil {
		return Drift{}, err
	}
	return diff(userID, Desired(memberships, ""), user.HasElevatedAccess, actual), nil
}

// AuditReport summarises an AuditAll run.
type AuditReport struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
}

// AuditAll verifies every user. Drift is an integrity failure: it is logged
// and repaired by recomputing from memberships.
func (r *Reconciler) AuditAll(ctx context.Context) (AuditReport, error) {
	var (
		report AuditReport
		errs   error
		users  []models.User
	)

	result := r.db.WithContext(ctx).Model(&models.User{}).Select("id").
		FindInBatches(&users, r.batchSize, func(_ *gorm.DB, _ int) error {
			ids := make([]string, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			for _, id := range ids {
				report.Checked++
				drift, err := r.Verify(ctx, id)
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				if drift.Empty() {
					continue
				}

				r.log.Error("permission state drift detected",
					zap.String("user_id", id),
					zap.Bool("elevated_expected", drift.ElevatedExpected),
					zap.Bool("elevated_actual", drift.ElevatedActual),
					zap.Int("missing_groups", len(drift.Missing)),
					zap.Int("stale_groups", len(drift.Stale)),
				)
				if _, err := r.Reconcile(ctx, id); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("reconciler: repair %s: %w", id, err))
					continue
				}
				metrics.RoleReconciliations.WithLabelValues("audit", "drift").Inc()
				report.Repaired++
			}
			return nil
		})
	if result.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("reconciler: scan users: %w", result.Error))
	}
	return report, errs
}

// SyncGroupPermissions rewrites every group's permission set from the fixed
// role grants. Run at start-up so code changes to grants reach stored groups.
func (r *Reconciler) SyncGroupPermissions(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var groups []models.PermissionGroup
		if err := tx.Find(&groups).Error; err != nil {
			return fmt.Errorf("reconciler: list groups: %w", err)
		}
		for i := range groups {
			if err := replaceGrants(tx, &groups[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Reconciler) reconcile(ctx context.Context, tx *gorm.DB, userID, exclude string) (State, error) {
	if userID == "" {
		return State{}, errors.New("reconciler: user id is required")
	}
	tx = tx.WithContext(ctx)

	memberships, err := loadMemberships(tx, userID)
	if err != nil {
		return State{}, err
	}
	state := Desired(memberships, exclude)

	groupIDs := make([]string, 0, len(state.Groups))
	keys := make(map[string]GroupKey, len(state.Groups))
	for _, key := range state.Groups {
		group, err := ensureGroup(tx, key)
		if err != nil {
			return State{}, err
		}
		groupIDs = append(groupIDs, group.ID)
		keys[group.ID] = key
	}

	// Clear stale assignments before applying the desired ones.
	clear := tx.Where("user_id = ?", userID)
	if len(groupIDs) > 0 {
		clear = clear.Where("permission_group_id NOT IN ?", groupIDs)
	}
	if err := clear.Delete(&models.UserPermissionGroup{}).Error; err != nil {
		return State{}, fmt.Errorf("reconciler: clear groups: %w", err)
	}

	for _, id := range groupIDs {
		assignment := models.UserPermissionGroup{UserID: userID, PermissionGroupID: id, TenantID: keys[id].TenantID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&assignment).Error; err != nil {
			return State{}, fmt.Errorf("reconciler: assign group: %w", err)
		}
	}

	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("has_elevated_access", state.Elevated).Error; err != nil {
		return State{}, fmt.Errorf("reconciler: update elevated flag: %w", err)
	}
	return state, nil
}

func loadMemberships(tx *gorm.DB, userID string) ([]models.Membership, error) {
	var memberships []models.Membership
	if err := tx.Preload("Tenant").
		Where("user_id = ? AND is_active = ?", userID, true).
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("reconciler: load memberships: %w", err)
	}
	return memberships, nil
}

func assignedGroups(tx *gorm.DB, userID string) ([]GroupKey, error) {
	var rows []struct {
		TenantID string
		Role     models.Role
	}
	err := tx.Table("user_permission_groups").
		Select("permission_groups.tenant_id AS tenant_id, permission_groups.role AS role").
		Joins("JOIN permission_groups ON permission_groups.id = user_permission_groups.permission_group_id").
		Where("user_permission_groups.user_id = ?", userID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reconciler: load assigned groups: %w", err)
	}

	keys := make([]GroupKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, GroupKey{TenantID: row.TenantID, Role: row.Role})
	}
	return keys, nil
}

func ensureGroup(tx *gorm.DB, key GroupKey) (*models.PermissionGroup, error) {
	var group models.PermissionGroup
	err := tx.Where("tenant_id = ? AND role = ?", key.TenantID, key.Role).First(&group).Error
	if err == nil {
		return &group, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reconciler: load group: %w", err)
	}

	candidate := models.PermissionGroup{TenantID: key.TenantID, Role: key.Role, Name: GroupName(key.TenantID, key.Role)}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("reconciler: create group: %w", err)
	}

	var created models.PermissionGroup
	if err := tx.Where("tenant_id = ? AND role = ?", key.TenantID, key.Role).First(&created).Error; err != nil {
		return nil, fmt.Errorf("reconciler: reload group: %w", err)
	}
	if err := replaceGrants(tx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func replaceGrants(tx *gorm.DB, group *models.PermissionGroup) error {
	ids := GrantsFor(group.Role)
	perms := make([]models.Permission, 0, len(ids))
	for _, id := range ids {
		perms = append(perms, models.Permission{BaseModel: models.BaseModel{ID: id}})
	}
	if err := tx.Model(group).Omit("Permissions.*").Association("Permissions").Replace(perms); err != nil {
		return fmt.Errorf("reconciler: grant %s: %w", group.Name, err)
	}
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ MembershipObserver = (*Reconciler)(nil)
