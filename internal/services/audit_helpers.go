package services

import (
	"context"

	"github.com/charlesng35/bizcore/internal/auditctx"
)

// recordAudit logs the supplied entry while tolerating audit failures. Request
// metadata missing from the entry is filled from the actor in ctx.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if actor, ok := auditctx.FromContext(ctx); ok {
		if entry.UserID == nil && actor.UserID != "" {
			entry.UserID = stringPtr(actor.UserID)
		}
		if entry.Username == "" {
			entry.Username = actor.Username
		}
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
	}
	_ = audit.Log(ctx, entry)
}
