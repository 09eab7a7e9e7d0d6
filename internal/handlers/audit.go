package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AuditHandler lists the audit trail for platform operators.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/admin/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, perPage := pagination(c)

	since, err := parseTimeQuery(c, "since")
	if err != nil {
		response.Error(c, errors.NewBadRequest("since must be an RFC3339 timestamp"))
		return
	}
	until, err := parseTimeQuery(c, "until")
	if err != nil {
		response.Error(c, errors.NewBadRequest("until must be an RFC3339 timestamp"))
		return
	}

	logs, total, err := h.audit.List(requestContext(c), services.AuditListOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.AuditFilters{
			UserID:   strings.TrimSpace(c.Query("user_id")),
			TenantID: strings.TrimSpace(c.Query("tenant_id")),
			Action:   strings.TrimSpace(c.Query("action")),
			Result:   strings.TrimSpace(c.Query("result")),
			Since:    since,
			Until:    until,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Page: page, PerPage: perPage, Total: int(total)})
}

func pagination(c *gin.Context) (int, int) {
	page := parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := parseIntQuery(c, "per_page", defaultPageSize)
	if perPage < 1 || perPage > maxPageSize {
		perPage = defaultPageSize
	}
	return page, perPage
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
