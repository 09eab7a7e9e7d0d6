package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/bizcore/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("user.not_found", "User not found", http.StatusNotFound)
	// ErrUsernameTaken is returned when a new account collides with an existing username.
	ErrUsernameTaken = apperrors.New("user.username_taken", "Username is already taken", http.StatusConflict)
	// ErrOperatorRequired guards platform-level operations.
	ErrOperatorRequired = apperrors.New("auth.operator_required", "Platform operator access required", http.StatusForbidden)
	// ErrInsufficientRole means the actor's role in the tenant is too low.
	ErrInsufficientRole = apperrors.New("tenant.insufficient_role", "Your role in this organization does not allow this action", http.StatusForbidden)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
