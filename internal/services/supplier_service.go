package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/permissions"
	"github.com/charlesng35/bizcore/internal/tenancy"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
)

// PermissionChecker answers per-tenant permission questions.
type PermissionChecker interface {
	Check(ctx context.Context, userID, tenantID, permissionID string) (bool, error)
}

// SupplierInput carries supplier attributes. It has no tenant field; the
// isolation guard assigns the tenant.
type SupplierInput struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// SupplierService is a tenant-scoped business consumer. Every query goes
// through tenancy.Scope, and access follows the caller's permission group in
// the resolved tenant.
type SupplierService struct {
	db      *gorm.DB
	checker PermissionChecker
	audit   *AuditService
}

// NewSupplierService constructs a SupplierService.
func NewSupplierService(db *gorm.DB, checker PermissionChecker, audit *AuditService) (*SupplierService, error) {
	if db == nil {
		return nil, errors.New("supplier service: db is required")
	}
	if checker == nil {
		return nil, errors.New("supplier service: permission checker is required")
	}
	return &SupplierService{db: db, checker: checker, audit: audit}, nil
}

// List returns the suppliers visible to actorID in the resolved tenant.
func (s *SupplierService) List(ctx context.Context, actorID string) ([]models.Supplier, error) {
	scoped, all, err := s.readScope(ctx, actorID)
	if err != nil {
		return nil, err
	}

	query := scoped.Order("name ASC")
	if !all {
		query = query.Where("created_by_id = ?", actorID)
	}
	var suppliers []models.Supplier
	if err := query.Find(&suppliers).Error; err != nil {
		return nil, fmt.Errorf("supplier service: list suppliers: %w", err)
	}
	return suppliers, nil
}

// Get loads one supplier visible to actorID.
func (s *SupplierService) Get(ctx context.Context, actorID, id string) (*models.Supplier, error) {
	scoped, all, err := s.readScope(ctx, actorID)
	if err != nil {
		return nil, err
	}

	supplier, err := findSupplier(scoped, id)
	if err != nil {
		return nil, err
	}
	if !all && supplier.CreatedByID != actorID {
		return nil, apperrors.ErrNotFound
	}
	return supplier, nil
}

// Create stores a supplier owned by the resolved tenant.
func (s *SupplierService) Create(ctx context.Context, actorID string, input SupplierInput) (*models.Supplier, error) {
	scoped, err := s.require(ctx, actorID, permissions.EntityCreate)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	supplier := &models.Supplier{
		Name:        name,
		Email:       strings.TrimSpace(input.Email),
		Phone:       strings.TrimSpace(input.Phone),
		Notes:       strings.TrimSpace(input.Notes),
		CreatedByID: actorID,
	}
	if err := scoped.Create(supplier).Error; err != nil {
		return nil, fmt.Errorf("supplier service: create supplier: %w", err)
	}

	s.record(ctx, actorID, "supplier.create", supplier)
	return supplier, nil
}

// Update edits a supplier. Holders of edit_own may only edit their own rows.
func (s *SupplierService) Update(ctx context.Context, actorID, id string, input SupplierInput) (*models.Supplier, error) {
	ctx = ensureContext(ctx)

	scoped, err := tenancy.Scope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	tenantID, _ := tenancy.TenantIDFrom(ctx)

	editAll, err := s.checker.Check(ctx, actorID, tenantID, permissions.EntityEdit)
	if err != nil {
		return nil, err
	}
	editOwn := editAll
	if !editAll {
		if editOwn, err = s.checker.Check(ctx, actorID, tenantID, permissions.EntityEditOwn); err != nil {
			return nil, err
		}
	}
	if !editOwn {
		return nil, apperrors.ErrForbidden
	}

	supplier, err := findSupplier(scoped, id)
	if err != nil {
		return nil, err
	}
	if !editAll && supplier.CreatedByID != actorID {
		return nil, apperrors.ErrForbidden
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	updates := map[string]any{
		"name":  name,
		"email": strings.TrimSpace(input.Email),
		"phone": strings.TrimSpace(input.Phone),
		"notes": strings.TrimSpace(input.Notes),
	}
	if err := scoped.Model(supplier).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("supplier service: update supplier: %w", err)
	}

	s.record(ctx, actorID, "supplier.update", supplier)
	return findSupplier(scoped, id)
}

// Delete removes a supplier.
func (s *SupplierService) Delete(ctx context.Context, actorID, id string) error {
	scoped, err := s.require(ctx, actorID, permissions.EntityDelete)
	if err != nil {
		return err
	}

	supplier, err := findSupplier(scoped, id)
	if err != nil {
		return err
	}
	if err := scoped.Delete(supplier).Error; err != nil {
		return fmt.Errorf("supplier service: delete supplier: %w", err)
	}

	s.record(ctx, actorID, "supplier.delete", supplier)
	return nil
}

// readScope reports whether actorID sees every supplier or only their own.
func (s *SupplierService) readScope(ctx context.Context, actorID string) (*gorm.DB, bool, error) {
	ctx = ensureContext(ctx)

	scoped, err := tenancy.Scope(ctx, s.db)
	if err != nil {
		return nil, false, err
	}
	tenantID, _ := tenancy.TenantIDFrom(ctx)

	all, err := s.checker.Check(ctx, actorID, tenantID, permissions.EntityView)
	if err != nil {
		return nil, false, err
	}
	if all {
		return scoped, true, nil
	}
	own, err := s.checker.Check(ctx, actorID, tenantID, permissions.EntityViewOwn)
	if err != nil {
		return nil, false, err
	}
	if !own {
		return nil, false, apperrors.ErrForbidden
	}
	return scoped, false, nil
}

func (s *SupplierService) require(ctx context.Context, actorID, permission string) (*gorm.DB, error) {
	ctx = ensureContext(ctx)

	scoped, err := tenancy.Scope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	tenantID, _ := tenancy.TenantIDFrom(ctx)

	ok, err := s.checker.Check(ctx, actorID, tenantID, permission)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}
	return scoped, nil
}

func (s *SupplierService) record(ctx context.Context, actorID, action string, supplier *models.Supplier) {
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: supplier.TenantID,
		Action:   action,
		Resource: supplier.ID,
		Result:   "success",
	})
}

func findSupplier(scoped *gorm.DB, id string) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := scoped.First(&supplier, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("supplier service: load supplier: %w", err)
	}
	return &supplier, nil
}
