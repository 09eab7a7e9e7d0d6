package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/models"
	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/response"
)

// TenantHandler serves tenant provisioning and the organization settings of
// the admin console.
type TenantHandler struct {
	tenants *services.TenantService
}

func NewTenantHandler(tenants *services.TenantService) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

type provisionTenantRequest struct {
	Name       string   `json:"name" validate:"required,max=255"`
	Slug       string   `json:"slug" validate:"required,slug,max=64"`
	Domains    []string `json:"domains" validate:"omitempty,dive,fqdn_host"`
	OwnerEmail string   `json:"owner_email" validate:"omitempty,email"`
	Message    string   `json:"message" validate:"omitempty,max=1000"`
}

type updateTenantRequest struct {
	Name     *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Slug     *string        `json:"slug" validate:"omitempty,slug,max=64"`
	Settings map[string]any `json:"settings"`
}

type bindDomainRequest struct {
	Domain  string `json:"domain" validate:"required,fqdn_host"`
	Primary bool   `json:"primary"`
}

type provisionResponse struct {
	Tenant     *models.Tenant      `json:"tenant"`
	Invitation *invitationResponse `json:"invitation,omitempty"`
}

// POST /api/tenants
func (h *TenantHandler) Provision(c *gin.Context) {
	var req provisionTenantRequest
	if !bindAndValidate(c, &req) {
		return
	}

	provisioned, err := h.tenants.Provision(requestContext(c), currentUserID(c), services.ProvisionTenantInput{
		Name:       req.Name,
		Slug:       req.Slug,
		Domains:    req.Domains,
		OwnerEmail: req.OwnerEmail,
		Message:    req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	out := provisionResponse{Tenant: provisioned.Tenant}
	if provisioned.Invitation != nil {
		inv := newInvitationResponse(provisioned.Invitation)
		out.Invitation = &inv
	}
	response.Created(c, out)
}

// GET /api/tenant
func (h *TenantHandler) Current(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	tenant, err := h.tenants.Get(requestContext(c), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, tenant)
}

// PATCH /api/tenant
func (h *TenantHandler) Update(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	var req updateTenantRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tenant, err := h.tenants.Update(requestContext(c), currentUserID(c), tenantID, services.UpdateTenantInput{
		Name:     req.Name,
		Slug:     req.Slug,
		Settings: req.Settings,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, tenant)
}

// POST /api/tenant/domains
func (h *TenantHandler) BindDomain(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	var req bindDomainRequest
	if !bindAndValidate(c, &req) {
		return
	}

	domain, err := h.tenants.BindDomain(requestContext(c), currentUserID(c), tenantID, req.Domain, req.Primary)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, domain)
}

// DELETE /api/tenant/domains/:id
func (h *TenantHandler) UnbindDomain(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	if err := h.tenants.UnbindDomain(requestContext(c), currentUserID(c), tenantID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/tenant/deactivate
func (h *TenantHandler) Deactivate(c *gin.Context) {
	tenantID, ok := currentTenantID(c)
	if !ok {
		return
	}
	if err := h.tenants.Deactivate(requestContext(c), currentUserID(c), tenantID); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tenant_id": tenantID, "is_active": false})
}

// POST /api/admin/tenants/:id/activate
func (h *TenantHandler) Activate(c *gin.Context) {
	tenantID := c.Param("id")
	if err := h.tenants.Activate(requestContext(c), currentUserID(c), tenantID); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tenant_id": tenantID, "is_active": true})
}
