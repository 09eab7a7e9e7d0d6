package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/bizcore/internal/models"
)

// Sync persists registered permissions and removes rows, and their group
// grants, for permissions no longer registered.
func Sync(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	ctx = ensureContext(ctx)

	perms := GetAll()
	ids := IDs()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			perm := perms[id]
			dependsJSON, err := json.Marshal(perm.DependsOn)
			if err != nil {
				return fmt.Errorf("permission: marshal depends_on for %s: %w", perm.ID, err)
			}
			impliesJSON, err := json.Marshal(perm.Implies)
			if err != nil {
				return fmt.Errorf("permission: marshal implies for %s: %w", perm.ID, err)
			}

			record := models.Permission{
				BaseModel:   models.BaseModel{ID: perm.ID},
				Module:      perm.Module,
				Description: perm.Description,
				DependsOn:   string(dependsJSON),
				Implies:     string(impliesJSON),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"module", "description", "depends_on", "implies", "updated_at"}),
			}).Create(&record).Error; err != nil {
				return fmt.Errorf("permission: sync %s: %w", perm.ID, err)
			}
		}

		if len(ids) == 0 {
			return nil
		}
		if err := tx.Exec("DELETE FROM group_permissions WHERE permission_id NOT IN ?", ids).Error; err != nil {
			return fmt.Errorf("permission: prune grants: %w", err)
		}
		if err := tx.Where("id NOT IN ?", ids).Delete(&models.Permission{}).Error; err != nil {
			return fmt.Errorf("permission: prune permissions: %w", err)
		}
		return nil
	})
}
