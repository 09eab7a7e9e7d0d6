package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/response"
)

// UserHandler lists platform accounts for operators.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// GET /api/admin/users
func (h *UserHandler) List(c *gin.Context) {
	page, perPage := pagination(c)

	filters := services.UserFilters{Query: strings.TrimSpace(c.Query("q"))}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest("active must be a boolean"))
			return
		}
		filters.IsActive = &active
	}

	users, total, err := h.users.List(requestContext(c), services.ListUsersOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{Page: page, PerPage: perPage, Total: int(total)})
}
