package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/rbac"
	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/response"
)

// ReconcileHandler exposes the role reconciler to platform operators.
type ReconcileHandler struct {
	reconciler *rbac.Reconciler
	users      *services.UserService
}

func NewReconcileHandler(reconciler *rbac.Reconciler, users *services.UserService) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, users: users}
}

type reconcileRequest struct {
	UserID string `json:"user_id"`
}

// POST /api/admin/reconcile
//
// With a user_id the user's derived state is recomputed; without one every
// user is audited for drift and repaired.
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	if userID := strings.TrimSpace(req.UserID); userID != "" {
		if _, err := h.users.GetByID(ctx, userID); err != nil {
			respondError(c, err)
			return
		}
		state, err := h.reconciler.Reconcile(ctx, userID)
		if err != nil {
			respondError(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"user_id": userID, "state": state})
		return
	}

	report, err := h.reconciler.AuditAll(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// GET /api/admin/reconcile/:userID
func (h *ReconcileHandler) Verify(c *gin.Context) {
	ctx := requestContext(c)
	userID := c.Param("userID")
	if _, err := h.users.GetByID(ctx, userID); err != nil {
		respondError(c, err)
		return
	}
	drift, err := h.reconciler.Verify(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, drift)
}
