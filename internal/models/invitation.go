package models

import "time"

// InvitationStatus captures the lifecycle of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// invitationPendingMarker fills PendingKey while an invitation is pending.
// Every other status stores NULL, which unique indexes treat as distinct, so
// the (tenant, email, pending_key) index admits one pending row per pair.
const invitationPendingMarker = "pending"

// Invitation is a single-use grant of membership addressed by a token. Only
// the token's hash and an encrypted copy (for resend) are stored.
type Invitation struct {
	BaseModel

	TenantID   string           `gorm:"type:uuid;not null;index;uniqueIndex:idx_invitations_pending,priority:1" json:"tenant_id"`
	Email      string           `gorm:"size:320;not null;index;uniqueIndex:idx_invitations_pending,priority:2" json:"email"`
	PendingKey *string          `gorm:"size:16;uniqueIndex:idx_invitations_pending,priority:3" json:"-"`
	Role       Role             `gorm:"size:16;not null" json:"role"`
	Status     InvitationStatus `gorm:"size:16;not null;index" json:"status"`

	TokenHash       string `gorm:"size:64;uniqueIndex;not null" json:"-"`
	TokenCiphertext string `gorm:"not null" json:"-"`

	InviterID string    `gorm:"type:uuid;not null" json:"inviter_id"`
	Message   string    `gorm:"size:1000" json:"message,omitempty"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`

	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	AcceptedByID *string    `gorm:"type:uuid" json:"accepted_by_id,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedByID  *string    `gorm:"type:uuid" json:"revoked_by_id,omitempty"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
	SendCount    int        `gorm:"not null" json:"send_count"`

	Tenant  *Tenant `gorm:"constraint:OnDelete:CASCADE" json:"tenant,omitempty"`
	Inviter *User   `gorm:"foreignKey:InviterID" json:"-"`
}

// PendingKeyFor returns the PendingKey column value for status.
func PendingKeyFor(status InvitationStatus) *string {
	if status != InvitationPending {
		return nil
	}
	marker := invitationPendingMarker
	return &marker
}

// ExpiredAt reports whether the invitation is past its expiry at now. An
// invitation expiring at T is invalid at any instant >= T.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// EffectiveStatus evaluates expiry lazily: a stored pending invitation whose
// expiry has passed is reported as expired.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && i.ExpiredAt(now) {
		return InvitationExpired
	}
	return i.Status
}
