package mail

import (
	"fmt"
	"strings"
	"time"
)

// InvitationNotice is the payload handed to the notification channel when an
// invitation is issued or resent.
type InvitationNotice struct {
	Recipient   string
	TenantName  string
	Role        string
	InviterName string
	Link        string
	Message     string
	ExpiresAt   time.Time
}

// InvitationMessage renders notice as a plain-text email.
func InvitationMessage(notice InvitationNotice) Message {
	var body strings.Builder

	inviter := strings.TrimSpace(notice.InviterName)
	if inviter == "" {
		inviter = "An administrator"
	}
	fmt.Fprintf(&body, "%s invited you to join %s as %s.\n\n", inviter, notice.TenantName, notice.Role)
	if msg := strings.TrimSpace(notice.Message); msg != "" {
		fmt.Fprintf(&body, "%s\n\n", msg)
	}
	fmt.Fprintf(&body, "Accept the invitation: %s\n", notice.Link)
	if !notice.ExpiresAt.IsZero() {
		fmt.Fprintf(&body, "This link expires on %s.\n", notice.ExpiresAt.UTC().Format(time.RFC1123))
	}

	return Message{
		To:      []string{notice.Recipient},
		Subject: fmt.Sprintf("You're invited to join %s", notice.TenantName),
		Body:    body.String(),
	}
}
