package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/errors"
	"github.com/charlesng35/bizcore/pkg/response"
)

// MembershipHandler exposes the membership store to the admin console and to
// the member choosing a default organization.
type MembershipHandler struct {
	memberships *services.MembershipService
}

func NewMembershipHandler(memberships *services.MembershipService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

type addMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type updateMemberRequest struct {
	Role     *string `json:"role" validate:"omitempty"`
	IsActive *bool   `json:"is_active"`
}

// GET /api/me/memberships
func (h *MembershipHandler) ListMine(c *gin.Context) {
	memberships, err := h.memberships.ListForUser(requestContext(c), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, memberships)
}

// PUT /api/me/memberships/:id/default
func (h *MembershipHandler) SetDefault(c *gin.Context) {
	membership, err := h.memberships.SetDefault(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, membership)
}

// DELETE /api/me/memberships/:id
func (h *MembershipHandler) Leave(c *gin.Context) {
	if err := h.memberships.Leave(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/tenant/members
func (h *MembershipHandler) List(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	memberships, err := h.memberships.ListByTenant(requestContext(c), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, memberships)
}

// POST /api/tenant/members
func (h *MembershipHandler) Add(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	var req addMemberRequest
	if !bindAndValidate(c, &req) {
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		response.Error(c, errors.NewBadRequest(err.Error()))
		return
	}

	membership, err := h.memberships.Add(requestContext(c), currentUserID(c), services.AddMemberInput{
		TenantID: tenantID,
		UserID:   strings.TrimSpace(req.UserID),
		Role:     role,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, membership)
}

// PATCH /api/tenant/members/:id
func (h *MembershipHandler) Update(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	var req updateMemberRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Role == nil && req.IsActive == nil {
		response.Error(c, errors.NewBadRequest("role or is_active is required"))
		return
	}

	ctx := requestContext(c)
	actorID := currentUserID(c)
	membershipID := c.Param("id")

	var (
		membership *models.Membership
		err        error
	)
	if req.Role != nil {
		role, parseErr := models.ParseRole(*req.Role)
		if parseErr != nil {
			response.Error(c, errors.NewBadRequest(parseErr.Error()))
			return
		}
		membership, err = h.memberships.ChangeRole(ctx, actorID, tenantID, membershipID, role)
		if err != nil {
			respondError(c, err)
			return
		}
	}
	if req.IsActive != nil {
		membership, err = h.memberships.SetActive(ctx, actorID, tenantID, membershipID, *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
	}
	response.Success(c, http.StatusOK, membership)
}

// DELETE /api/tenant/members/:id
func (h *MembershipHandler) Remove(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	if err := h.memberships.Remove(requestContext(c), currentUserID(c), tenantID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
