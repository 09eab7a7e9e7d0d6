package tenancy

import (
	"errors"

	apperrors "github.com/charlesng35/bizcore/pkg/errors"
)

var (
	// ErrTenantNotFound means no active tenant matched the supplied signal.
	ErrTenantNotFound = errors.New("tenancy: tenant not found")
	// ErrTenantAccessDenied means the caller may not act within the matched tenant.
	ErrTenantAccessDenied = errors.New("tenancy: tenant access denied")
	// ErrTenantAmbiguous means several tenants qualify and no explicit signal picked one.
	ErrTenantAmbiguous = errors.New("tenancy: tenant ambiguous")
	// ErrNoTenant is returned when a tenant-scoped operation runs without a resolution.
	ErrNoTenant = errors.New("tenancy: no tenant resolved")
	// ErrIsolationViolation marks statements refused by the isolation guard.
	ErrIsolationViolation = errors.New("tenancy: isolation violation")
)

// AppError maps resolution and isolation failures onto their API errors.
// Other errors are returned unchanged.
func AppError(err error) error {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return apperrors.ErrTenantNotFound
	case errors.Is(err, ErrTenantAccessDenied):
		return apperrors.ErrTenantAccessDenied
	case errors.Is(err, ErrTenantAmbiguous):
		return apperrors.ErrTenantAmbiguous
	case errors.Is(err, ErrNoTenant), errors.Is(err, ErrIsolationViolation):
		return apperrors.ErrTenantRequired.WithInternal(err)
	default:
		return err
	}
}
