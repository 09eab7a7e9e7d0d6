package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/pkg/crypto"
	apperrors "github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/logger"
	"github.com/charlesng35/bizcore/pkg/mail"
	"github.com/charlesng35/bizcore/pkg/metrics"
)

const (
	defaultInvitationExpiry     = 7 * 24 * time.Hour
	defaultInvitationTokenBytes = 32
	minInvitationTokenBytes     = 32
)

var (
	ErrInvitationNotFound        = apperrors.New("invitation.not_found", "Invitation not found", http.StatusNotFound)
	ErrInvitationExpired         = apperrors.New("invitation.expired", "This invitation has expired. Ask your administrator to resend it.", http.StatusGone)
	ErrInvitationAlreadyConsumed = apperrors.New("invitation.already_consumed", "This invitation has already been used", http.StatusConflict)
	ErrInvitationRevoked         = apperrors.New("invitation.revoked", "This invitation was revoked. Ask your administrator for a new one.", http.StatusGone)
	ErrEmailAlreadyMember        = apperrors.New("invitation.email_already_member", "This email already belongs to a member of the organization", http.StatusConflict)
	ErrEmailMismatch             = apperrors.New("invitation.email_mismatch", "The account email does not match the invitation", http.StatusBadRequest)
	ErrInvitationPending         = apperrors.New("invitation.pending_exists", "A pending invitation already exists for this email", http.StatusConflict)
	ErrAccountExists             = apperrors.New("invitation.account_exists", "An account with this email exists. Sign in to accept the invitation.", http.StatusConflict)
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationMailer configures the delivery channel.
func WithInvitationMailer(mailer mail.Mailer) InvitationOption {
	return func(s *InvitationService) {
		s.mailer = mailer
	}
}

// WithInvitationAudit records invitation events.
func WithInvitationAudit(audit *AuditService) InvitationOption {
	return func(s *InvitationService) {
		s.audit = audit
	}
}

// WithInvitationBaseURL configures the base URL used to create acceptance links.
func WithInvitationBaseURL(base string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithInvitationExpiry overrides the invitation lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationTokenBytes adjusts the random token length. Values below 32
// bytes are ignored.
func WithInvitationTokenBytes(size int) InvitationOption {
	return func(s *InvitationService) {
		if size >= minInvitationTokenBytes {
			s.tokenBytes = size
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// IssueInvitationInput describes a new invitation.
type IssueInvitationInput struct {
	TenantID  string
	InviterID string
	Email     string
	Role      models.Role
	Message   string
}

// IssuedInvitation is returned to the inviter. Token is the only copy of the
// raw token outside the delivery channel.
type IssuedInvitation struct {
	Invitation *models.Invitation
	Token      string
	Link       string
	Delivered  bool
}

// InvitationPreview is the public view of a valid invitation.
type InvitationPreview struct {
	TenantName  string      `json:"tenant_name"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
	Message     string      `json:"message,omitempty"`
	InviterName string      `json:"inviter_name,omitempty"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// AcceptInvitationInput carries the token and the credentials for the new
// account. ActingUserID is set when an authenticated user accepts with their
// existing account instead.
type AcceptInvitationInput struct {
	Token        string
	Email        string
	Username     string
	Password     string
	FirstName    string
	LastName     string
	ActingUserID string
}

// AcceptedInvitation is the outcome of a successful acceptance.
type AcceptedInvitation struct {
	User       *models.User
	Membership *models.Membership
	Invitation *models.Invitation
	NewAccount bool
}

// InvitationService implements the invitation ledger and the
// invitation-gated onboarding flow.
type InvitationService struct {
	db          *gorm.DB
	memberships *MembershipService
	mailer      mail.Mailer
	audit       *AuditService
	key         []byte
	baseURL     string
	expiry      time.Duration
	tokenBytes  int
	now         func() time.Time
	log         *zap.Logger
}

// NewInvitationService constructs an InvitationService. key encrypts stored
// tokens so resend can deliver the same token again.
func NewInvitationService(db *gorm.DB, memberships *MembershipService, key []byte, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	if memberships == nil {
		return nil, errors.New("invitation service: membership service is required")
	}
	if len(key) != 32 {
		return nil, errors.New("invitation service: encryption key must be 32 bytes")
	}

	service := &InvitationService{
		db:          db,
		memberships: memberships,
		key:         append([]byte(nil), key...),
		expiry:      defaultInvitationExpiry,
		tokenBytes:  defaultInvitationTokenBytes,
		now:         time.Now,
		log:         logger.WithModule("invitations"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Issue creates a pending invitation and hands it to the delivery channel.
// Delivery failure does not undo the invitation.
func (s *InvitationService) Issue(ctx context.Context, input IssueInvitationInput) (*IssuedInvitation, error) {
	ctx = ensureContext(ctx)

	var (
		issued  *IssuedInvitation
		tenant  *models.Tenant
		inviter *models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tenant, err = loadActiveTenant(tx, input.TenantID)
		if err != nil {
			return err
		}
		actor, err := authorizeTenantActor(tx, input.InviterID, tenant.ID, models.RoleAdmin)
		if err != nil {
			return err
		}
		inviter = &actor.User

		role, err := models.ParseRole(string(input.Role))
		if err != nil {
			return apperrors.NewBadRequest(err.Error())
		}
		if err := checkGrantable(actor, role); err != nil {
			return err
		}

		issued, err = s.issueTx(tx, tenant.ID, inviter.ID, input.Email, role, input.Message)
		return err
	})
	if err != nil {
		return nil, err
	}

	issued.Delivered = s.deliver(ctx, issued.Invitation, issued.Token, tenant.Name, inviter.DisplayName())
	metrics.InvitationTransitions.WithLabelValues(string(models.InvitationPending)).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(inviter.ID),
		TenantID: tenant.ID,
		Action:   "invitation.issue",
		Resource: issued.Invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"email": issued.Invitation.Email, "role": issued.Invitation.Role, "delivered": issued.Delivered},
	})
	return issued, nil
}

// issueTx writes the invitation row. The caller has authorized the inviter.
func (s *InvitationService) issueTx(tx *gorm.DB, tenantID, inviterID, email string, role models.Role, message string) (*IssuedInvitation, error) {
	email, err := normaliseEmail(email)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var members int64
	if err := tx.Model(&models.Membership{}).
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.tenant_id = ? AND memberships.is_active = ? AND users.email = ?", tenantID, true, email).
		Count(&members).Error; err != nil {
		return nil, fmt.Errorf("invitation service: check membership: %w", err)
	}
	if members > 0 {
		return nil, ErrEmailAlreadyMember
	}

	// A pending row past its expiry no longer blocks the pair.
	if err := s.expireWhere(tx.Where("tenant_id = ? AND email = ?", tenantID, email), now); err != nil {
		return nil, err
	}

	var pending int64
	if err := tx.Model(&models.Invitation{}).
		Where("tenant_id = ? AND email = ? AND status = ?", tenantID, email, models.InvitationPending).
		Count(&pending).Error; err != nil {
		return nil, fmt.Errorf("invitation service: check pending: %w", err)
	}
	if pending > 0 {
		return nil, ErrInvitationPending
	}

	token, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}
	sealed, err := crypto.Encrypt([]byte(token), s.key)
	if err != nil {
		return nil, fmt.Errorf("invitation service: encrypt token: %w", err)
	}

	invitation := &models.Invitation{
		TenantID:        tenantID,
		Email:           email,
		PendingKey:      models.PendingKeyFor(models.InvitationPending),
		Role:            role,
		Status:          models.InvitationPending,
		TokenHash:       crypto.HashToken(token),
		TokenCiphertext: sealed,
		InviterID:       inviterID,
		Message:         strings.TrimSpace(message),
		ExpiresAt:       now.Add(s.expiry),
	}
	if err := tx.Create(invitation).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrInvitationPending
		}
		return nil, fmt.Errorf("invitation service: create invitation: %w", err)
	}

	return &IssuedInvitation{Invitation: invitation, Token: token, Link: s.link(token)}, nil
}

// Validate reports whether token is currently acceptable and previews it.
func (s *InvitationService) Validate(ctx context.Context, token string) (*InvitationPreview, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.findByToken(s.db.WithContext(ctx), token)
	if err != nil {
		return nil, err
	}
	if err := s.usable(invitation); err != nil {
		if errors.Is(err, ErrInvitationExpired) {
			s.expire(ctx, invitation.ID)
		}
		return nil, err
	}

	var tenant models.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", invitation.TenantID).Error; err != nil {
		return nil, fmt.Errorf("invitation service: load tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, ErrInvitationNotFound
	}

	preview := &InvitationPreview{
		TenantName: tenant.Name,
		Email:      invitation.Email,
		Role:       invitation.Role,
		Message:    invitation.Message,
		ExpiresAt:  invitation.ExpiresAt,
	}
	var inviter models.User
	if err := s.db.WithContext(ctx).First(&inviter, "id = ?", invitation.InviterID).Error; err == nil {
		preview.InviterName = inviter.DisplayName()
	}
	return preview, nil
}

// Accept consumes the invitation, creating the account and membership in one
// transaction. Concurrent attempts on one token yield exactly one success.
func (s *InvitationService) Accept(ctx context.Context, input AcceptInvitationInput) (*AcceptedInvitation, error) {
	ctx = ensureContext(ctx)

	var (
		result     AcceptedInvitation
		invitation *models.Invitation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invitation, err = s.findByToken(tx, input.Token)
		if err != nil {
			return err
		}
		if err := s.usable(invitation); err != nil {
			return err
		}
		if _, err := loadActiveTenant(tx, invitation.TenantID); err != nil {
			if errors.Is(err, apperrors.ErrTenantNotFound) {
				return ErrInvitationNotFound
			}
			return err
		}
		if email := strings.TrimSpace(input.Email); email != "" && !strings.EqualFold(email, invitation.Email) {
			return ErrEmailMismatch
		}

		now := s.now()
		claim := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ? AND expires_at > ?", invitation.ID, models.InvitationPending, now).
			Updates(map[string]any{
				"status":      models.InvitationAccepted,
				"pending_key": nil,
				"accepted_at": now,
			})
		if claim.Error != nil {
			return fmt.Errorf("invitation service: claim invitation: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			return ErrInvitationAlreadyConsumed
		}

		user, created, err := s.acceptingUser(tx, invitation, input)
		if err != nil {
			return err
		}
		if user.Email != invitation.Email {
			return ErrEmailMismatch
		}

		membership, err := s.memberships.grant(ctx, tx, invitation.TenantID, user.ID, invitation.Role)
		if err != nil {
			if errors.Is(err, ErrMembershipExists) {
				return ErrEmailAlreadyMember
			}
			return err
		}

		if err := tx.Model(&models.Invitation{}).Where("id = ?", invitation.ID).
			Update("accepted_by_id", user.ID).Error; err != nil {
			return fmt.Errorf("invitation service: record acceptance: %w", err)
		}

		invitation.Status = models.InvitationAccepted
		invitation.PendingKey = nil
		invitation.AcceptedAt = &now
		invitation.AcceptedByID = &user.ID
		result = AcceptedInvitation{User: user, Membership: membership, Invitation: invitation, NewAccount: created}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvitationExpired) && invitation != nil {
			s.expire(ctx, invitation.ID)
		}
		s.log.Info("invitation acceptance rejected", zap.Error(err))
		return nil, err
	}

	metrics.InvitationTransitions.WithLabelValues(string(models.InvitationAccepted)).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(result.User.ID),
		Username: result.User.Username,
		TenantID: invitation.TenantID,
		Action:   "invitation.accept",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"role": invitation.Role, "new_account": result.NewAccount},
	})
	return &result, nil
}

func (s *InvitationService) acceptingUser(tx *gorm.DB, invitation *models.Invitation, input AcceptInvitationInput) (*models.User, bool, error) {
	if actingID := strings.TrimSpace(input.ActingUserID); actingID != "" {
		var user models.User
		if err := tx.First(&user, "id = ?", actingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, apperrors.ErrUnauthorized
			}
			return nil, false, fmt.Errorf("invitation service: load user: %w", err)
		}
		if !user.IsActive {
			return nil, false, apperrors.ErrUnauthorized
		}
		return &user, false, nil
	}

	var existing int64
	if err := tx.Model(&models.User{}).Where("email = ?", invitation.Email).Count(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("invitation service: check account: %w", err)
	}
	if existing > 0 {
		return nil, false, ErrAccountExists
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, false, apperrors.NewBadRequest("username is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, false, apperrors.NewBadRequest("password is required")
	}
	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, false, fmt.Errorf("invitation service: hash password: %w", err)
	}

	user := &models.User{
		Username:  username,
		Email:     invitation.Email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsActive:  true,
	}
	if err := tx.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, false, ErrUsernameTaken
		}
		return nil, false, fmt.Errorf("invitation service: create user: %w", err)
	}
	return user, true, nil
}

// Resend returns a pending or expired invitation to pending with a fresh
// expiry window and delivers the same token again.
func (s *InvitationService) Resend(ctx context.Context, actorID, tenantID, invitationID string) (*IssuedInvitation, error) {
	ctx = ensureContext(ctx)

	var (
		issued  *IssuedInvitation
		tenant  *models.Tenant
		inviter *models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tenant, err = loadActiveTenant(tx, tenantID)
		if err != nil {
			return err
		}
		actor, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleAdmin)
		if err != nil {
			return err
		}
		inviter = &actor.User

		invitation, err := s.findInTenant(tx, tenantID, invitationID)
		if err != nil {
			return err
		}
		switch invitation.Status {
		case models.InvitationPending, models.InvitationExpired:
		default:
			return statusError(invitation.Status)
		}
		if err := checkGrantable(actor, invitation.Role); err != nil {
			return err
		}

		plain, err := crypto.Decrypt(invitation.TokenCiphertext, s.key)
		if err != nil {
			return fmt.Errorf("invitation service: decrypt token: %w", err)
		}

		expiresAt := s.now().Add(s.expiry)
		if err := tx.Model(invitation).Updates(map[string]any{
			"status":      models.InvitationPending,
			"pending_key": models.PendingKeyFor(models.InvitationPending),
			"expires_at":  expiresAt,
		}).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrInvitationPending
			}
			return fmt.Errorf("invitation service: extend invitation: %w", err)
		}
		invitation.Status = models.InvitationPending
		invitation.PendingKey = models.PendingKeyFor(models.InvitationPending)
		invitation.ExpiresAt = expiresAt

		token := string(plain)
		issued = &IssuedInvitation{Invitation: invitation, Token: token, Link: s.link(token)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	issued.Delivered = s.deliver(ctx, issued.Invitation, issued.Token, tenant.Name, inviter.DisplayName())
	metrics.InvitationTransitions.WithLabelValues("resent").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   "invitation.resend",
		Resource: issued.Invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"delivered": issued.Delivered},
	})
	return issued, nil
}

// Revoke cancels a pending invitation permanently.
func (s *InvitationService) Revoke(ctx context.Context, actorID, tenantID, invitationID string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	var invitation *models.Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := authorizeTenantActor(tx, actorID, tenantID, models.RoleAdmin)
		if err != nil {
			return err
		}
		invitation, err = s.findInTenant(tx, tenantID, invitationID)
		if err != nil {
			return err
		}
		if err := s.usable(invitation); err != nil {
			return err
		}

		now := s.now()
		result := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
			Updates(map[string]any{
				"status":        models.InvitationRevoked,
				"pending_key":   nil,
				"revoked_at":    now,
				"revoked_by_id": actor.User.ID,
			})
		if result.Error != nil {
			return fmt.Errorf("invitation service: revoke invitation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvitationAlreadyConsumed
		}
		invitation.Status = models.InvitationRevoked
		invitation.PendingKey = nil
		invitation.RevokedAt = &now
		invitation.RevokedByID = &actor.User.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.InvitationTransitions.WithLabelValues(string(models.InvitationRevoked)).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(actorID),
		TenantID: tenantID,
		Action:   "invitation.revoke",
		Resource: invitation.ID,
		Result:   "success",
	})
	return invitation, nil
}

// List returns the tenant's invitations, newest first. Expiry is evaluated
// lazily so a stale pending row is reported as expired. An empty status lists
// every invitation.
func (s *InvitationService) List(ctx context.Context, tenantID string, status models.InvitationStatus) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	var rows []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list invitations: %w", err)
	}

	now := s.now()
	out := rows[:0]
	for _, row := range rows {
		row.Status = row.EffectiveStatus(now)
		if status != "" && row.Status != status {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// ExpireStale marks every pending invitation past its expiry as expired.
func (s *InvitationService) ExpireStale(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, s.now()).
		Updates(map[string]any{"status": models.InvitationExpired, "pending_key": nil})
	if result.Error != nil {
		return 0, fmt.Errorf("invitation service: expire invitations: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.InvitationTransitions.WithLabelValues(string(models.InvitationExpired)).Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *InvitationService) findByToken(tx *gorm.DB, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvitationNotFound
	}
	var invitation models.Invitation
	if err := tx.Where("token_hash = ?", crypto.HashToken(token)).First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation service: find invitation: %w", err)
	}
	return &invitation, nil
}

func (s *InvitationService) findInTenant(tx *gorm.DB, tenantID, invitationID string) (*models.Invitation, error) {
	var invitation models.Invitation
	if err := tx.Where("id = ? AND tenant_id = ?", strings.TrimSpace(invitationID), tenantID).First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation service: find invitation: %w", err)
	}
	return &invitation, nil
}

// usable reports why invitation cannot be accepted now, if anything.
func (s *InvitationService) usable(invitation *models.Invitation) error {
	if status := invitation.EffectiveStatus(s.now()); status != models.InvitationPending {
		return statusError(status)
	}
	return nil
}

func (s *InvitationService) expire(ctx context.Context, invitationID string) {
	if err := s.expireWhere(s.db.WithContext(ctx).Where("id = ?", invitationID), s.now()); err != nil {
		s.log.Warn("mark invitation expired", zap.String("invitation_id", invitationID), zap.Error(err))
	}
}

func (s *InvitationService) expireWhere(query *gorm.DB, now time.Time) error {
	result := query.Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, now).
		Updates(map[string]any{"status": models.InvitationExpired, "pending_key": nil})
	if result.Error != nil {
		return fmt.Errorf("invitation service: expire invitation: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.InvitationTransitions.WithLabelValues(string(models.InvitationExpired)).Add(float64(result.RowsAffected))
	}
	return nil
}

func (s *InvitationService) deliver(ctx context.Context, invitation *models.Invitation, token, tenantName, inviterName string) bool {
	if s.mailer == nil {
		return false
	}

	msg := mail.InvitationMessage(mail.InvitationNotice{
		Recipient:   invitation.Email,
		TenantName:  tenantName,
		Role:        invitation.Role.String(),
		InviterName: inviterName,
		Link:        s.link(token),
		Message:     invitation.Message,
		ExpiresAt:   invitation.ExpiresAt,
	})
	if err := s.mailer.Send(ctx, msg); err != nil {
		if !errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Warn("invitation delivery failed",
				zap.String("invitation_id", invitation.ID),
				zap.String("tenant_id", invitation.TenantID),
				zap.Error(err),
			)
		}
		return false
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.Invitation{}).Where("id = ?", invitation.ID).
		Updates(map[string]any{"last_sent_at": now, "send_count": gorm.Expr("send_count + 1")}).Error; err != nil {
		s.log.Warn("record invitation delivery", zap.String("invitation_id", invitation.ID), zap.Error(err))
	} else {
		invitation.LastSentAt = &now
		invitation.SendCount++
	}
	return true
}

func (s *InvitationService) link(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, url.QueryEscape(token))
}

func statusError(status models.InvitationStatus) error {
	switch status {
	case models.InvitationAccepted:
		return ErrInvitationAlreadyConsumed
	case models.InvitationRevoked:
		return ErrInvitationRevoked
	case models.InvitationExpired:
		return ErrInvitationExpired
	default:
		return ErrInvitationNotFound
	}
}
