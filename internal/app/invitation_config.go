package app

import (
	"fmt"

	"github.com/charlesng35/bizcore/internal/services"
)

const invitationKeyBytes = 32

// Key decodes the token encryption key.
func (c InvitationConfig) Key() ([]byte, error) {
	key, err := DecodeKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invitations.encryption_key: %w", err)
	}
	if len(key) != invitationKeyBytes {
		return nil, fmt.Errorf("invitations.encryption_key must decode to %d bytes (current: %d)", invitationKeyBytes, len(key))
	}
	return key, nil
}

// ServiceOptions converts InvitationConfig into invitation service options.
func (c InvitationConfig) ServiceOptions() []services.InvitationOption {
	return []services.InvitationOption{
		services.WithInvitationExpiry(c.Expiry),
		services.WithInvitationTokenBytes(c.TokenBytes),
		services.WithInvitationBaseURL(c.BaseURL),
	}
}
