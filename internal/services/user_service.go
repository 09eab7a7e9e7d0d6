package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/pkg/crypto"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/metrics"
)

// OperatorInput describes the bootstrap operator account.
type OperatorInput struct {
	Username string
	Email    string
	Password string
}

// UpdateProfileInput enumerates attributes a user may change on their own account.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
}

// UserFilters captures listing filters.
type UserFilters struct {
	IsActive *bool
	Query    string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService manages platform accounts. Accounts are created only through
// invitation acceptance or operator bootstrap.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
	now          func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:           db,
		auditService: auditService,
		now:          time.Now,
	}, nil
}

// Authenticate verifies credentials by username or email.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	if !crypto.VerifyPassword(user.Password, password) || !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		recordAudit(s.auditService, ctx, AuditEntry{
			UserID:   stringPtr(user.ID),
			Username: user.Username,
			Action:   "auth.login",
			Result:   "failure",
		})
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   stringPtr(user.ID),
		Username: user.Username,
		Action:   "auth.login",
		Result:   "success",
	})
	return &user, nil
}

// GetByID loads a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List retrieves users matching the supplied filters with pagination.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// UpdateProfile persists mutable attributes of the caller's own account.
func (s *UserService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.Password, current) {
		return apperrors.ErrInvalidCredentials
	}
	if len(next) < 8 {
		return apperrors.NewBadRequest("password must be at least 8 characters")
	}

	hashed, err := crypto.HashPassword(next)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("user service: update password: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   stringPtr(user.ID),
		Username: user.Username,
		Action:   "user.change_password",
		Resource: user.ID,
		Result:   "success",
	})
	return nil
}

// EnsureOperator creates the bootstrap operator unless an operator already
// exists. It reports whether an account was created.
func (s *UserService) EnsureOperator(ctx context.Context, input OperatorInput) (bool, error) {
	ctx = ensureContext(ctx)

	var operators int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("is_operator = ?", true).Count(&operators).Error; err != nil {
		return false, fmt.Errorf("user service: count operators: %w", err)
	}
	if operators > 0 {
		return false, nil
	}

	username := strings.TrimSpace(input.Username)
	email, err := normaliseEmail(input.Email)
	if err != nil {
		return false, err
	}
	if username == "" || input.Password == "" {
		return false, apperrors.NewBadRequest("operator username and password are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return false, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:   username,
		Email:      email,
		Password:   hashed,
		IsActive:   true,
		IsOperator: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return false, apperrors.NewBadRequest("username or email already exists")
		}
		return false, fmt.Errorf("user service: create operator: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   stringPtr(user.ID),
		Username: user.Username,
		Action:   "user.bootstrap_operator",
		Resource: user.ID,
		Result:   "success",
	})
	return true, nil
}
