// Package security evaluates the deployment's security posture: secrets,
// token lifetimes, operator access and tenant ownership.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/app"
	"github.com/charlesng35/bizcore/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minJWTSecretBytes         = 32
	recommendedJWTSecretBytes = 48
	maxRecommendedAccessTTL   = 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService evaluates core security controls and configuration.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. Missing inputs degrade the
// affected checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkOperator(ctx),
		s.checkJWTSecret(),
		s.checkInvitationKey(),
		s.checkAccessTokenTTL(),
		s.checkOwnerlessTenants(ctx),
		s.checkStaleInvitations(ctx),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func databaseUnavailable(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Database unavailable, check skipped.",
		Remediation: "Ensure database connectivity before running the audit.",
	}
}

func configUnavailable(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded, check skipped.",
		Remediation: "Load configuration before running the security audit.",
	}
}

func (s *AuditService) checkOperator(ctx context.Context) Check {
	const id = "operator_present"
	if s.db == nil {
		return databaseUnavailable(id)
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_operator = ? AND is_active = ?", true, true).
		Count(&count).Error; err != nil {
		return Check{ID: id, Status: StatusWarn, Message: fmt.Sprintf("Could not count operators: %v", err)}
	}
	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "No active platform operator found.",
			Remediation: "Set bootstrap.operator to create one at start-up.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Platform operator present.", Details: map[string]any{"count": count}}
}

func (s *AuditService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if s.cfg == nil {
		return configUnavailable(id)
	}

	length := len(strings.TrimSpace(s.cfg.Auth.JWT.Secret))
	switch {
	case length == 0:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Set BIZCORE_AUTH_JWT_SECRET to a random value of at least 32 bytes.",
		}
	case length < minJWTSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < recommendedJWTSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider 48 or more.", length),
			Remediation: "Lengthen BIZCORE_AUTH_JWT_SECRET.",
			Details:     map[string]any{"length": length},
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
		Details: map[string]any{"length": length},
	}
}

func (s *AuditService) checkInvitationKey() Check {
	const id = "invitation_encryption_key"
	if s.cfg == nil {
		return configUnavailable(id)
	}
	if _, err := s.cfg.Invitations.Key(); err != nil {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     err.Error(),
			Remediation: "Set BIZCORE_INVITATIONS_ENCRYPTION_KEY to 32 random bytes (hex or base64).",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Invitation encryption key configured."}
}

func (s *AuditService) checkAccessTokenTTL() Check {
	const id = "access_token_ttl"
	if s.cfg == nil {
		return configUnavailable(id)
	}

	ttl := s.cfg.Auth.JWT.TTL
	if ttl <= 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Access token TTL is not configured; the default applies.",
			Remediation: "Set BIZCORE_AUTH_JWT_ACCESS_TOKEN_TTL explicitly.",
		}
	}
	if ttl > maxRecommendedAccessTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds %s. Revoked memberships stay usable until expiry.", ttl, maxRecommendedAccessTTL),
			Remediation: "Reduce the access token TTL.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Access token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

// checkOwnerlessTenants flags active tenants nobody can administer.
func (s *AuditService) checkOwnerlessTenants(ctx context.Context) Check {
	const id = "tenant_owner_present"
	if s.db == nil {
		return databaseUnavailable(id)
	}

	owners := s.db.Model(&models.Membership{}).
		Select("tenant_id").
		Where("role = ? AND is_active = ?", models.RoleOwner, true)

	var slugs []string
	if err := s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("is_active = ?", true).
		Where("id NOT IN (?)", owners).
		Order("slug").
		Pluck("slug", &slugs).Error; err != nil {
		return Check{ID: id, Status: StatusWarn, Message: fmt.Sprintf("Could not inspect tenant owners: %v", err)}
	}
	if len(slugs) > 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d active tenant(s) have no active owner.", len(slugs)),
			Remediation: "Invite an owner or grant the owner role to an existing member.",
			Details:     map[string]any{"tenants": slugs},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Every active tenant has an owner."}
}

// checkStaleInvitations reports pending invitations past expiry, a sign the
// sweep job is not running.
func (s *AuditService) checkStaleInvitations(ctx context.Context) Check {
	const id = "stale_invitations"
	if s.db == nil {
		return databaseUnavailable(id)
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, s.now().UTC()).
		Count(&count).Error; err != nil {
		return Check{ID: id, Status: StatusWarn, Message: fmt.Sprintf("Could not count invitations: %v", err)}
	}
	if count > 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d pending invitation(s) are past expiry.", count),
			Remediation: "Enable maintenance.invitation_sweep.",
			Details:     map[string]any{"count": count},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "No stale pending invitations."}
}
