package rbac

import (
	"context"

	"gorm.io/gorm"

	"github.com/charlesng35/bizcore/internal/models"
)

// ChangeKind enumerates membership mutations.
type ChangeKind string

const (
	MembershipCreated ChangeKind = "created"
	MembershipUpdated ChangeKind = "updated"
	MembershipDeleted ChangeKind = "deleted"
)

// MembershipChange describes one mutation of a membership row.
type MembershipChange struct {
	Kind       ChangeKind
	Membership models.Membership
	// Previous holds the row as it was before an update.
	Previous *models.Membership
}

// MembershipObserver is notified synchronously by the code that mutates
// memberships, inside the same transaction. A returned error aborts the
// mutation.
type MembershipObserver interface {
	MembershipChanged(ctx context.Context, tx *gorm.DB, change MembershipChange) error
}
